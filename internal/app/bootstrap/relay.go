package bootstrap

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/contractor-relay/internal/automation"
	appconfig "github.com/wolfman30/contractor-relay/internal/config"
	"github.com/wolfman30/contractor-relay/internal/conversation"
	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/internal/dispatch"
	"github.com/wolfman30/contractor-relay/internal/messaging/chatclient"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/internal/observability/metrics"
	"github.com/wolfman30/contractor-relay/internal/queue"
	"github.com/wolfman30/contractor-relay/internal/resilience"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// Stores groups the persistence collaborators shared by every binary.
type Stores struct {
	Notifications notifications.Store
	Rules         automation.Store
	Contractors   directory.Contractors
	Tickets       directory.Tickets
	Inventory     directory.Inventory
	Purchases     directory.Purchases
	Roles         directory.Roles
	// Memory is set when no database is configured; seed it for local runs.
	Memory *directory.Memory
}

// BuildStores returns Postgres-backed stores, or in-memory ones when pool is nil.
func BuildStores(pool *pgxpool.Pool, logger *logging.Logger) Stores {
	if pool != nil {
		return Stores{
			Notifications: notifications.NewPostgresStore(pool),
			Rules:         automation.NewPostgresStore(pool),
			Contractors:   directory.NewContractorStore(pool),
			Tickets:       directory.NewTicketStore(pool),
			Inventory:     directory.NewInventoryStore(pool),
			Purchases:     directory.NewPurchaseStore(pool),
			Roles:         directory.NewRoleStore(pool),
		}
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger.Warn("DATABASE_URL not set; using in-memory stores")
	mem := directory.NewMemory()
	return Stores{
		Notifications: notifications.NewMemoryStore(),
		Rules:         automation.NewMemoryStore(),
		Contractors:   mem.ContractorView(),
		Tickets:       mem.TicketView(),
		Inventory:     mem,
		Purchases:     mem,
		Roles:         mem,
		Memory:        mem,
	}
}

// Queues are the outbound dispatch queue and the inbound routing queue.
type Queues struct {
	Outbound queue.Client
	Inbound  queue.Client
	// InMemory means both queues live in this process, so the workers must
	// run here too.
	InMemory bool
}

// BuildQueues returns SQS queues when a client and both URLs are available,
// otherwise in-memory queues.
func BuildQueues(cfg *appconfig.Config, sqsClient queue.SQSAPI, logger *logging.Logger) Queues {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue || sqsClient == nil || cfg.OutboundQueueURL == "" || cfg.InboundQueueURL == "" {
		logger.Info("using in-memory queues")
		return Queues{
			Outbound: queue.NewMemoryQueue(1024),
			Inbound:  queue.NewMemoryQueue(1024),
			InMemory: true,
		}
	}
	return Queues{
		Outbound: queue.NewSQSQueue(sqsClient, cfg.OutboundQueueURL),
		Inbound:  queue.NewSQSQueue(sqsClient, cfg.InboundQueueURL),
	}
}

// Relay is the wired outbound path: guards, gateway, dispatcher and the
// notifier that feeds it.
type Relay struct {
	// Counters backs the breaker, the limiter and the reminder claims.
	Counters   resilience.CounterStore
	Breaker    *resilience.CircuitBreaker
	Limiter    *resilience.RateLimiter
	Gateway    *dispatch.Gateway
	Dispatcher *dispatch.Dispatcher
	Publisher  *dispatch.Publisher
	Notifier   *dispatch.Notifier
}

// BuildRelay wires the chat client behind the circuit breaker and rate
// limiter and returns the dispatch pipeline on top of it.
func BuildRelay(cfg *appconfig.Config, counters resilience.CounterStore, store notifications.Store, outbound queue.Client, m *metrics.RelayMetrics, logger *logging.Logger) (*Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	client, err := chatclient.New(chatclient.Config{
		Endpoint: cfg.ChatAPIURL,
		APIKey:   cfg.ChatAPIKey,
		Timeout:  cfg.ChatAPITimeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: chat client: %w", err)
	}

	breaker := resilience.NewCircuitBreaker(counters, resilience.BreakerConfig{
		KeyPrefix:        cfg.BreakerKeyPrefix,
		FailureThreshold: cfg.BreakerFailureThreshold,
		FailureWindow:    cfg.BreakerFailureWindow,
		Cooldown:         cfg.BreakerCooldown,
		ProbeTimeout:     2 * cfg.ChatAPITimeout,
	}, logger)
	limiter := resilience.NewRateLimiter(counters, resilience.LimiterConfig{
		Key:    cfg.BreakerKeyPrefix + ":rate",
		Limit:  cfg.RateLimitPerWindow,
		Window: cfg.RateLimitWindow,
	}, logger)

	gateway := dispatch.NewGateway(client, breaker, limiter, m, logger)
	dispatcher := dispatch.NewDispatcher(gateway, store, m, logger,
		dispatch.WithMaxRetries(cfg.MaxRetries),
		dispatch.WithRetryBaseDelay(cfg.RetryBaseDelay),
		dispatch.WithDeferDelay(cfg.RateLimitDeferWait),
	)
	publisher := dispatch.NewPublisher(outbound, logger)
	return &Relay{
		Counters:   counters,
		Breaker:    breaker,
		Limiter:    limiter,
		Gateway:    gateway,
		Dispatcher: dispatcher,
		Publisher:  publisher,
		Notifier:   dispatch.NewNotifier(store, publisher, dispatcher, logger),
	}, nil
}

// BuildStateStore keeps conversation state in Redis, or in process memory
// when Redis is unavailable.
func BuildStateStore(redisClient *redis.Client, cfg *appconfig.Config) conversation.StateStore {
	if redisClient == nil {
		return conversation.NewMemoryStateStore()
	}
	return conversation.NewRedisStateStore(redisClient, cfg.ConversationStateTTL, nil)
}

// Routing is the inbound side: the router and the functions rules may invoke.
type Routing struct {
	Router    *conversation.Router
	RuleCache *automation.Cache
	Functions conversation.Functions
}

// BuildRouting wires the conversation router over the stores.
func BuildRouting(cfg *appconfig.Config, stores Stores, states conversation.StateStore, m *metrics.RelayMetrics, logger *logging.Logger) *Routing {
	if logger == nil {
		logger = logging.Default()
	}
	executor := conversation.NewCommandExecutor(stores.Inventory, stores.Purchases, stores.Tickets, logger)
	cache := automation.NewCache(stores.Rules, cfg.RuleCacheTTL, logger)
	router := conversation.NewRouter(conversation.RouterConfig{
		Contractors:  stores.Contractors,
		States:       states,
		Flows:        []conversation.FlowHandler{conversation.NewTicketConfirmationFlow(stores.Tickets, cfg.FallbackRole, logger)},
		Executor:     executor,
		Rules:        cache,
		FallbackRole: cfg.FallbackRole,
		StateTTL:     cfg.ConversationStateTTL,
		Metrics:      m,
		Logger:       logger,
	})
	return &Routing{
		Router:    router,
		RuleCache: cache,
		Functions: conversation.DefaultFunctions(executor),
	}
}
