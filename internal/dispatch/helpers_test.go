package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/contractor-relay/internal/messaging/chatclient"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/internal/queue"
	"github.com/wolfman30/contractor-relay/internal/resilience"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

const validPhone = "5511987654321"

type fakeChatAPI struct {
	server *httptest.Server
	calls  atomic.Int32
	status atomic.Int32
}

func newFakeChatAPI(t *testing.T, status int) *fakeChatAPI {
	t.Helper()
	api := &fakeChatAPI{}
	api.status.Store(int32(status))
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.calls.Add(1)
		w.WriteHeader(int(api.status.Load()))
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	t.Cleanup(api.server.Close)
	return api
}

type harness struct {
	api        *fakeChatAPI
	store      *notifications.MemoryStore
	counters   *resilience.MemoryStore
	breaker    *resilience.CircuitBreaker
	limiter    *resilience.RateLimiter
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, status int) *harness {
	t.Helper()
	api := newFakeChatAPI(t, status)
	client, err := chatclient.New(chatclient.Config{Endpoint: api.server.URL, APIKey: "test-key", Logger: logging.Discard()})
	require.NoError(t, err)

	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	counters := resilience.NewMemoryStore(clock)
	breaker := resilience.NewCircuitBreaker(counters, resilience.BreakerConfig{Now: clock}, logging.Discard())
	limiter := resilience.NewRateLimiter(counters, resilience.LimiterConfig{}, logging.Discard())
	store := notifications.NewMemoryStore()

	gateway := NewGateway(client, breaker, limiter, nil, logging.Discard())
	return &harness{
		api:        api,
		store:      store,
		counters:   counters,
		breaker:    breaker,
		limiter:    limiter,
		dispatcher: NewDispatcher(gateway, store, nil, logging.Discard()),
	}
}

// seed creates a pending outbound record and the task for its first attempt.
func (h *harness) seed(t *testing.T, phone string, priority int) Task {
	t.Helper()
	rec := &notifications.Record{
		Direction: notifications.DirectionOutbound,
		Category:  notifications.CategoryReminder,
		Phone:     phone,
		Message:   "🔧 Lembrete",
		Priority:  priority,
	}
	require.NoError(t, h.store.Create(context.Background(), rec))
	return Task{NotificationID: rec.ID, Phone: phone, Message: rec.Message, Priority: priority}
}

func (h *harness) record(t *testing.T, task Task) *notifications.Record {
	t.Helper()
	rec, err := h.store.Get(context.Background(), task.NotificationID)
	require.NoError(t, err)
	return rec
}

type published struct {
	task  Task
	delay time.Duration
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, task Task, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{task: task, delay: delay})
	return nil
}

type stubProcessor struct {
	result Result
	tasks  []Task
}

func (p *stubProcessor) Process(_ context.Context, task Task) Result {
	p.tasks = append(p.tasks, task)
	return p.result
}

// deleteTrackingQueue records deletes on top of a memory queue.
type deleteTrackingQueue struct {
	*queue.MemoryQueue
	mu      sync.Mutex
	deleted []string
}

func (q *deleteTrackingQueue) Delete(_ context.Context, receipt string) error {
	q.mu.Lock()
	q.deleted = append(q.deleted, receipt)
	q.mu.Unlock()
	return nil
}
