package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/contractor-relay/internal/automation"
	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

func TestRouter_UnknownAndInactiveSendersAreIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.router.Route(ctx, "5511999990000", "oi")
	require.NoError(t, err)
	assert.Equal(t, ActionIgnore, d.Action)
	assert.Equal(t, StageStranger, d.Stage)

	d, err = f.router.Route(ctx, "5511900000000", "oi")
	require.NoError(t, err)
	assert.Equal(t, ActionIgnore, d.Action)
}

func TestRouter_NormalizesProviderSenderID(t *testing.T) {
	f := newFixture(t)
	d, err := f.router.Route(context.Background(), contractorPhone+"@s.whatsapp.net", "#AJUDA")
	require.NoError(t, err)
	assert.Equal(t, ActionReply, d.Action)
}

func TestRouter_StatusReportsOverdueTicket(t *testing.T) {
	f := newFixture(t)
	f.dir.AddTicket(directory.Ticket{ID: 1, Number: "CH-0100", ContractorID: 7, Status: directory.TicketInProgress, Deadline: fixedNow.Add(-time.Hour)})

	d := f.route(t, "#STATUS")
	assert.Equal(t, ActionReply, d.Action)
	assert.Equal(t, StageCommand, d.Stage)
	assert.Contains(t, d.Text, "⚠️")
	assert.Contains(t, d.Text, "CH-0100")
}

func TestRouter_HelpWinsEvenWithActiveFlow(t *testing.T) {
	f := newFixture(t)
	ticket := directory.Ticket{ID: 5, Number: "CH-0005", ContractorID: 7, Status: directory.TicketWaiting, Deadline: fixedNow.Add(time.Hour)}
	f.dir.AddTicket(ticket)
	require.NoError(t, StartTicketConfirmation(context.Background(), f.states, contractorPhone, ticket, fixedNow))

	d := f.route(t, "#AJUDA")
	assert.Equal(t, StageCommand, d.Stage)
	assert.Equal(t, helpText, d.Text)

	state, err := f.states.Load(context.Background(), contractorPhone)
	require.NoError(t, err)
	assert.NotNil(t, state, "a command does not consume the pending flow")
}

type catchAllFlow struct{}

func (catchAllFlow) Name() string { return "catch_all" }

func (catchAllFlow) Handle(_ context.Context, _ directory.Contractor, _ State, text string) (FlowResult, error) {
	return FlowResult{Handled: true, Reply: "flow got " + text}, nil
}

func TestRouter_ActiveFlowRunsBeforeCommands(t *testing.T) {
	dir := directory.NewMemory()
	dir.AddContractor(directory.Contractor{ID: 7, Name: "João Eletricista", Phone: contractorPhone, Active: true})
	states := NewMemoryStateStore()
	router := NewRouter(RouterConfig{
		Contractors: dir.ContractorView(),
		States:      states,
		Flows:       []FlowHandler{catchAllFlow{}},
		Executor:    NewCommandExecutor(dir, dir, dir.TicketView(), logging.Discard()),
		Logger:      logging.Discard(),
	})
	router.now = func() time.Time { return fixedNow }
	require.NoError(t, states.Save(context.Background(), State{Phone: contractorPhone, Flow: "catch_all", UpdatedAt: fixedNow}))

	d, err := router.Route(context.Background(), contractorPhone, "#STATUS")
	require.NoError(t, err)
	assert.Equal(t, StageFlow, d.Stage)
	assert.Equal(t, "flow got #STATUS", d.Text)
}

func TestRouter_UnknownCommandShortCircuitsRules(t *testing.T) {
	f := newFixture(t, automation.Rule{Keyword: "cancelar", MatchType: automation.MatchContains, Action: automation.ActionReply, ReplyText: "regra", Priority: 100, Active: true})
	d := f.route(t, "#CANCELAR")
	assert.Equal(t, StageCommand, d.Stage)
	assert.Contains(t, d.Text, "Comando desconhecido")
}

func TestRouter_HigherPriorityContainsRuleWins(t *testing.T) {
	f := newFixture(t,
		automation.Rule{Keyword: "qual o preço?", MatchType: automation.MatchExact, Action: automation.ActionReply, ReplyText: "exata", Priority: 1, Active: true},
		automation.Rule{Keyword: "preço", MatchType: automation.MatchContains, Action: automation.ActionReply, ReplyText: "Tabela de preços em anexo", Priority: 10, Active: true},
	)
	d := f.route(t, "Qual o preço?")
	assert.Equal(t, StageRule, d.Stage)
	assert.Equal(t, ActionReply, d.Action)
	assert.Equal(t, "Tabela de preços em anexo", d.Text)
}

func TestRouter_RuleActions(t *testing.T) {
	f := newFixture(t,
		automation.Rule{Keyword: "urgente", MatchType: automation.MatchContains, Action: automation.ActionForward, TargetRole: "supervisor", Priority: 5, Active: true},
		automation.Rule{Keyword: `meus\s+chamados`, MatchType: automation.MatchRegex, Action: automation.ActionInvokeFunction, FunctionName: "listar_chamados", Priority: 4, Active: true},
	)

	d := f.route(t, "É URGENTE, falta luz")
	assert.Equal(t, ActionForward, d.Action)
	assert.Equal(t, "supervisor", d.Role)
	assert.Equal(t, "Mensagem de João Eletricista: É URGENTE, falta luz", d.Text)

	d = f.route(t, "quero ver MEUS   chamados")
	assert.Equal(t, ActionInvoke, d.Action)
	assert.Equal(t, "listar_chamados", d.Function)
	assert.Equal(t, "quero ver MEUS   chamados", d.Params["text"])
}

func TestRouter_FallbackForwardsToManager(t *testing.T) {
	f := newFixture(t)
	d := f.route(t, "  bom dia, cheguei no local  ")
	assert.Equal(t, ActionForward, d.Action)
	assert.Equal(t, StageFallback, d.Stage)
	assert.Equal(t, DefaultFallbackRole, d.Role)
	assert.Equal(t, "Mensagem de João Eletricista: bom dia, cheguei no local", d.Text)
}

func TestRouter_ConfirmationFlowAccepts(t *testing.T) {
	f := newFixture(t)
	ticket := directory.Ticket{ID: 5, Number: "CH-0005", ContractorID: 7, Status: directory.TicketWaiting, Deadline: fixedNow.Add(time.Hour)}
	f.dir.AddTicket(ticket)
	require.NoError(t, StartTicketConfirmation(context.Background(), f.states, contractorPhone, ticket, fixedNow.Add(-time.Hour)))

	d := f.route(t, "sim")
	assert.Equal(t, StageFlow, d.Stage)
	assert.Equal(t, ActionReply, d.Action)
	assert.Contains(t, d.Text, "CH-0005 aceito")

	got, err := f.dir.TicketView().Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, directory.TicketAccepted, got.Status)

	state, _ := f.states.Load(context.Background(), contractorPhone)
	assert.Nil(t, state, "completed flow clears its state")
}

func TestRouter_ConfirmationFlowDeclines(t *testing.T) {
	for _, answer := range []string{"NÃO", "nao", "Não."} {
		t.Run(answer, func(t *testing.T) {
			f := newFixture(t)
			ticket := directory.Ticket{ID: 5, Number: "CH-0005", ContractorID: 7, Status: directory.TicketWaiting}
			f.dir.AddTicket(ticket)
			require.NoError(t, StartTicketConfirmation(context.Background(), f.states, contractorPhone, ticket, fixedNow))

			d := f.route(t, answer)
			assert.Equal(t, ActionForward, d.Action)
			assert.Equal(t, DefaultFallbackRole, d.Role)
			assert.Contains(t, d.Text, "recusou o chamado CH-0005")
			assert.Contains(t, d.Ack, "gestor será avisado")
		})
	}
}

func TestRouter_FlowFallsThroughOnOtherText(t *testing.T) {
	f := newFixture(t)
	ticket := directory.Ticket{ID: 5, Number: "CH-0005", ContractorID: 7, Status: directory.TicketWaiting}
	f.dir.AddTicket(ticket)
	require.NoError(t, StartTicketConfirmation(context.Background(), f.states, contractorPhone, ticket, fixedNow))

	d := f.route(t, "talvez amanhã")
	assert.Equal(t, StageFallback, d.Stage)

	state, _ := f.states.Load(context.Background(), contractorPhone)
	assert.NotNil(t, state)
}

func TestRouter_StaleStateIsIgnored(t *testing.T) {
	f := newFixture(t)
	ticket := directory.Ticket{ID: 5, Number: "CH-0005", ContractorID: 7, Status: directory.TicketWaiting}
	f.dir.AddTicket(ticket)
	require.NoError(t, StartTicketConfirmation(context.Background(), f.states, contractorPhone, ticket, fixedNow.Add(-25*time.Hour)))

	d := f.route(t, "SIM")
	assert.Equal(t, StageFallback, d.Stage)

	got, _ := f.dir.TicketView().Get(context.Background(), 5)
	assert.Equal(t, directory.TicketWaiting, got.Status)
}

type brokenContractors struct{ directory.Contractors }

func (brokenContractors) FindByPhone(context.Context, string) (*directory.Contractor, error) {
	return nil, errors.New("db down")
}

func TestRouter_DirectoryErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	r := NewRouter(RouterConfig{Contractors: brokenContractors{}, Executor: f.executor, Logger: logging.Discard()})
	_, err := r.Route(context.Background(), contractorPhone, "oi")
	assert.Error(t, err)
}
