package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/contractor-relay/internal/automation"
	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/internal/dispatch"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

const (
	contractorPhone = "5511987654321"
	managerPhone    = "5511911112222"
)

var fixedNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	dir      *directory.Memory
	states   *MemoryStateStore
	rules    *automation.MemoryStore
	executor *CommandExecutor
	router   *Router
}

func newFixture(t *testing.T, rules ...automation.Rule) *fixture {
	t.Helper()
	dir := directory.NewMemory()
	dir.AddContractor(directory.Contractor{ID: 7, Name: "João Eletricista", Phone: contractorPhone, Active: true})
	dir.AddContractor(directory.Contractor{ID: 8, Name: "Inativo", Phone: "5511900000000", Active: false})
	dir.AddItem(directory.StockItem{Code: "CABO-10MM", Name: "Cabo flexível 10mm", Unit: "m"})
	dir.AddRoleMember(DefaultFallbackRole, managerPhone)

	ruleStore := automation.NewMemoryStore(rules...)
	executor := NewCommandExecutor(dir, dir, dir.TicketView(), logging.Discard())
	executor.now = func() time.Time { return fixedNow }
	states := NewMemoryStateStore()

	router := NewRouter(RouterConfig{
		Contractors: dir.ContractorView(),
		States:      states,
		Flows:       []FlowHandler{NewTicketConfirmationFlow(dir.TicketView(), "", logging.Discard())},
		Executor:    executor,
		Rules:       automation.NewCache(ruleStore, time.Minute, logging.Discard()),
		Logger:      logging.Discard(),
	})
	router.now = func() time.Time { return fixedNow }

	return &fixture{dir: dir, states: states, rules: ruleStore, executor: executor, router: router}
}

func (f *fixture) route(t *testing.T, text string) Directive {
	t.Helper()
	d, err := f.router.Route(context.Background(), contractorPhone, text)
	require.NoError(t, err)
	return d
}

type recordingNotifier struct {
	mu   sync.Mutex
	reqs []dispatch.NotifyRequest
}

func (n *recordingNotifier) Notify(_ context.Context, req dispatch.NotifyRequest) dispatch.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reqs = append(n.reqs, req)
	return dispatch.Outcome{Queued: true}
}

func (n *recordingNotifier) sent() []dispatch.NotifyRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]dispatch.NotifyRequest(nil), n.reqs...)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}
