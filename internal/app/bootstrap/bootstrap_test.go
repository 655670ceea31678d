package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/contractor-relay/internal/config"
	"github.com/wolfman30/contractor-relay/internal/conversation"
	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/internal/queue"
	"github.com/wolfman30/contractor-relay/internal/resilience"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		ChatAPIURL:              "https://chat.example.com/send",
		ChatAPIKey:              "key",
		ChatAPITimeout:          5 * time.Second,
		BreakerKeyPrefix:        "chatapi",
		BreakerFailureThreshold: 5,
		BreakerFailureWindow:    time.Minute,
		BreakerCooldown:         30 * time.Second,
		RateLimitPerWindow:      60,
		RateLimitWindow:         time.Minute,
		RateLimitDeferWait:      time.Minute,
		MaxRetries:              3,
		RetryBaseDelay:          time.Second,
		ConversationStateTTL:    time.Hour,
		RuleCacheTTL:            30 * time.Second,
		FallbackRole:            "manager",
	}
}

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.Discard(), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestConnectPostgresPoolEmptyURL(t *testing.T) {
	if pool := ConnectPostgresPool(context.Background(), " ", logging.Discard()); pool != nil {
		t.Fatalf("expected nil pool for empty url")
	}
}

func TestBuildCounterStore(t *testing.T) {
	if _, ok := BuildCounterStore(nil, logging.Discard()).(*resilience.MemoryStore); !ok {
		t.Fatalf("expected memory store without redis")
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	if _, ok := BuildCounterStore(client, logging.Discard()).(*resilience.RedisStore); !ok {
		t.Fatalf("expected redis store when redis is configured")
	}
}

func TestBuildStoresInMemory(t *testing.T) {
	stores := BuildStores(nil, logging.Discard())
	if stores.Memory == nil {
		t.Fatalf("expected memory directory")
	}
	if _, ok := stores.Notifications.(*notifications.MemoryStore); !ok {
		t.Fatalf("expected memory notification store, got %T", stores.Notifications)
	}

	stores.Memory.AddContractor(directory.Contractor{ID: 1, Name: "Ana", Phone: "5511987654321", Active: true})
	got, err := stores.Contractors.FindByPhone(context.Background(), "5511987654321")
	if err != nil || got.ID != 1 {
		t.Fatalf("expected seeded contractor, got %+v err=%v", got, err)
	}
}

func TestBuildQueuesFallsBackToMemory(t *testing.T) {
	cfg := testConfig()
	cfg.OutboundQueueURL = "https://sqs.example.com/outbound"

	queues := BuildQueues(cfg, nil, logging.Discard())
	if !queues.InMemory {
		t.Fatalf("expected in-memory queues without an sqs client")
	}
	if _, ok := queues.Outbound.(*queue.MemoryQueue); !ok {
		t.Fatalf("expected memory outbound queue, got %T", queues.Outbound)
	}
	if queues.Outbound == queues.Inbound {
		t.Fatalf("inbound and outbound queues must be distinct")
	}
}

func TestBuildRelayRequiresChatAPI(t *testing.T) {
	cfg := testConfig()
	cfg.ChatAPIKey = ""
	_, err := BuildRelay(cfg, resilience.NewMemoryStore(time.Now), notifications.NewMemoryStore(), queue.NewMemoryQueue(1), nil, logging.Discard())
	if err == nil {
		t.Fatalf("expected error without chat api key")
	}
}

func TestBuildRelayWiresPipeline(t *testing.T) {
	cfg := testConfig()
	relay, err := BuildRelay(cfg, resilience.NewMemoryStore(time.Now), notifications.NewMemoryStore(), queue.NewMemoryQueue(1), nil, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if relay.Counters == nil || relay.Breaker == nil || relay.Limiter == nil || relay.Dispatcher == nil || relay.Notifier == nil {
		t.Fatalf("incomplete relay: %+v", relay)
	}
	if got := relay.Limiter.Limit(); got != 60 {
		t.Fatalf("expected limit 60, got %d", got)
	}
}

func TestBuildStateStore(t *testing.T) {
	if _, ok := BuildStateStore(nil, testConfig()).(*conversation.MemoryStateStore); !ok {
		t.Fatalf("expected memory state store without redis")
	}
}

func TestBuildRoutingWiresRouter(t *testing.T) {
	stores := BuildStores(nil, logging.Discard())
	routing := BuildRouting(testConfig(), stores, conversation.NewMemoryStateStore(), nil, logging.Discard())
	if routing.Router == nil || routing.RuleCache == nil {
		t.Fatalf("incomplete routing: %+v", routing)
	}
	if len(routing.Functions) == 0 {
		t.Fatalf("expected default functions to be registered")
	}
}
