package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/contractor-relay/internal/automation"
	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/internal/queue"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

func TestWorker_ReplyGoesBackToSender(t *testing.T) {
	f := newFixture(t)
	n := &recordingNotifier{}
	w := NewWorker(f.router, queue.NewMemoryQueue(1), n, f.dir, logging.Discard())

	require.NoError(t, w.Handle(context.Background(), InboundJob{Phone: contractorPhone + "@s.whatsapp.net", Text: "#AJUDA"}))

	sent := n.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, contractorPhone, sent[0].Phone)
	assert.Equal(t, helpText, sent[0].Message)
	assert.Equal(t, notifications.CategoryAutoReply, sent[0].Category)
}

func TestWorker_FallbackForwardsToRoleMembers(t *testing.T) {
	f := newFixture(t)
	f.dir.AddRoleMember(DefaultFallbackRole, "5511933334444")
	n := &recordingNotifier{}
	w := NewWorker(f.router, queue.NewMemoryQueue(1), n, f.dir, logging.Discard())

	require.NoError(t, w.Handle(context.Background(), InboundJob{Phone: contractorPhone, Text: "cheguei"}))

	sent := n.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, managerPhone, sent[0].Phone)
	assert.Equal(t, "5511933334444", sent[1].Phone)
	assert.Equal(t, "Mensagem de João Eletricista: cheguei", sent[0].Message)
}

func TestWorker_DeclineForwardsAndAcknowledges(t *testing.T) {
	f := newFixture(t)
	ticket := directory.Ticket{ID: 5, Number: "CH-0005", ContractorID: 7, Status: directory.TicketWaiting}
	f.dir.AddTicket(ticket)
	require.NoError(t, StartTicketConfirmation(context.Background(), f.states, contractorPhone, ticket, fixedNow))
	n := &recordingNotifier{}
	w := NewWorker(f.router, queue.NewMemoryQueue(1), n, f.dir, logging.Discard())

	require.NoError(t, w.Handle(context.Background(), InboundJob{Phone: contractorPhone, Text: "não"}))

	sent := n.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, managerPhone, sent[0].Phone)
	assert.Equal(t, contractorPhone, sent[1].Phone)
}

func TestWorker_InvokeRunsRegisteredFunction(t *testing.T) {
	f := newFixture(t,
		automation.Rule{Keyword: "chamados", MatchType: automation.MatchContains, Action: automation.ActionInvokeFunction, FunctionName: "listar_chamados", Priority: 1, Active: true},
		automation.Rule{Keyword: "relatorio", MatchType: automation.MatchContains, Action: automation.ActionInvokeFunction, FunctionName: "gerar_relatorio", Priority: 1, Active: true},
	)
	n := &recordingNotifier{}
	w := NewWorker(f.router, queue.NewMemoryQueue(1), n, f.dir, logging.Discard())

	require.NoError(t, w.Handle(context.Background(), InboundJob{Phone: contractorPhone, Text: "meus chamados"}))
	require.Len(t, n.sent(), 1)
	assert.Contains(t, n.sent()[0].Message, "não tem chamados ativos")

	require.NoError(t, w.Handle(context.Background(), InboundJob{Phone: contractorPhone, Text: "relatorio"}))
	assert.Len(t, n.sent(), 1, "unknown functions are ignored")
}

func TestWorker_StrangerSendsNothing(t *testing.T) {
	f := newFixture(t)
	n := &recordingNotifier{}
	w := NewWorker(f.router, queue.NewMemoryQueue(1), n, f.dir, logging.Discard())

	require.NoError(t, w.Handle(context.Background(), InboundJob{Phone: "5511999990000", Text: "oi"}))
	assert.Empty(t, n.sent())
}

func TestWorker_ConsumesPublishedJobs(t *testing.T) {
	f := newFixture(t)
	q := queue.NewMemoryQueue(4)
	n := &recordingNotifier{}
	w := NewWorker(f.router, q, n, f.dir, logging.Discard(), WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	require.NoError(t, NewPublisher(q, logging.Discard()).EnqueueInbound(ctx, InboundJob{Phone: contractorPhone, Text: "#STATUS"}))

	require.Eventually(t, func() bool { return len(n.sent()) == 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	w.Wait()
}
