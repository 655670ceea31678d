package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/contractor-relay/cmd/mainconfig"
	"github.com/wolfman30/contractor-relay/internal/api/router"
	"github.com/wolfman30/contractor-relay/internal/app/bootstrap"
	appconfig "github.com/wolfman30/contractor-relay/internal/config"
	"github.com/wolfman30/contractor-relay/internal/conversation"
	"github.com/wolfman30/contractor-relay/internal/dispatch"
	"github.com/wolfman30/contractor-relay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/contractor-relay/internal/http/middleware"
	"github.com/wolfman30/contractor-relay/internal/messaging"
	"github.com/wolfman30/contractor-relay/internal/observability/metrics"
	"github.com/wolfman30/contractor-relay/internal/queue"
	"github.com/wolfman30/contractor-relay/internal/ticketing"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

func main() {
	// Local runs read a .env file; deployed environments set variables directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting contractor-relay API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}
	pool := bootstrap.ConnectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}

	sqsClient, err := mainconfig.SQSClient(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	var sqsAPI queue.SQSAPI
	if sqsClient != nil {
		sqsAPI = sqsClient
	}

	metricsHandler, relayMetrics := setupMetrics()
	counters := bootstrap.BuildCounterStore(redisClient, logger)
	stores := bootstrap.BuildStores(pool, logger)
	queues := bootstrap.BuildQueues(cfg, sqsAPI, logger)
	states := bootstrap.BuildStateStore(redisClient, cfg)

	relay, err := bootstrap.BuildRelay(cfg, counters, stores.Notifications, queues.Outbound, relayMetrics, logger)
	if err != nil {
		logger.Error("failed to build relay", "error", err)
		os.Exit(1)
	}
	routing := bootstrap.BuildRouting(cfg, stores, states, relayMetrics, logger)
	tickets := ticketing.NewTicketNotifier(stores.Tickets, stores.Contractors, relay.Notifier, states, logger)

	webhook := handlers.NewWebhookHandler(handlers.WebhookConfig{
		Verifier: messaging.NewVerifier(messaging.VerifierConfig{
			Secret:  cfg.WebhookSecret,
			Format:  messaging.ParseSignatureFormat(cfg.WebhookSignatureFormat),
			MaxSkew: cfg.WebhookMaxSkew,
		}),
		Store:     stores.Notifications,
		Publisher: conversation.NewPublisher(queues.Inbound, logger),
		Dedup:     counters,
		DedupTTL:  cfg.WebhookDedupTTL,
		Metrics:   relayMetrics,
		Logger:    logger,
	})
	admin := handlers.NewAdminRelayHandler(handlers.AdminRelayConfig{
		Rules:         stores.Rules,
		RuleCache:     routing.RuleCache,
		Notifications: stores.Notifications,
		Breaker:       relay.Breaker,
		Limiter:       relay.Limiter,
		Sender:        relay.Notifier,
		Tickets:       tickets,
		Logger:        logger,
	})
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes are disabled")
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Webhook:            webhook,
		WebhookLimiter:     httpmiddleware.NewIPLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst),
		Admin:              admin,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HealthChecks:       healthChecks(redisClient, pool),
	})

	inline := setupInlineWorkers(ctx, cfg, queues, relay, routing, stores, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	waitForInlineWorkers(shutdownCtx, inline, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers relay metrics on a dedicated registry so /metrics
// exposes only what this process records plus the Go runtime collectors.
func setupMetrics() (http.Handler, *metrics.RelayMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewRelayMetrics(reg)
}

func healthChecks(redisClient *redis.Client, pool *pgxpool.Pool) map[string]router.HealthChecker {
	checks := map[string]router.HealthChecker{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	return checks
}

type waiter interface {
	Wait()
}

// setupInlineWorkers runs the queue consumers and the reminder job inside the
// API process when the queues are in memory; nothing else could drain them.
func setupInlineWorkers(ctx context.Context, cfg *appconfig.Config, queues bootstrap.Queues, relay *bootstrap.Relay, routing *bootstrap.Routing, stores bootstrap.Stores, logger *logging.Logger) []waiter {
	if !queues.InMemory {
		return nil
	}
	logger.Info("starting inline workers", "workers", cfg.WorkerCount)

	outbound := dispatch.NewWorker(relay.Dispatcher, queues.Outbound, relay.Publisher, logger,
		dispatch.WithWorkerCount(cfg.WorkerCount),
	)
	inbound := conversation.NewWorker(routing.Router, queues.Inbound, relay.Notifier, stores.Roles, logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithFunctions(routing.Functions),
	)
	outbound.Start(ctx)
	inbound.Start(ctx)

	reminders := ticketing.NewReminderJob(stores.Tickets, stores.Contractors, relay.Notifier, logger).
		WithInterval(cfg.ReminderInterval).
		WithLookahead(cfg.ReminderLookahead).
		WithClaims(relay.Counters)
	go reminders.Run(ctx)

	return []waiter{outbound, inbound}
}

func waitForInlineWorkers(ctx context.Context, workers []waiter, logger *logging.Logger) {
	if len(workers) == 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			w.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline workers stopped")
	case <-ctx.Done():
		logger.Error("inline worker shutdown timed out", "error", ctx.Err())
	}
}
