package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/contractor-relay/cmd/mainconfig"
	"github.com/wolfman30/contractor-relay/internal/app/bootstrap"
	"github.com/wolfman30/contractor-relay/internal/config"
	"github.com/wolfman30/contractor-relay/internal/dispatch"
	"github.com/wolfman30/contractor-relay/internal/ticketing"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// The messaging worker drains the outbound dispatch queue and runs the daily
// ticket reminder sweep.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" || cfg.OutboundQueueURL == "" {
		logger.Error("messaging worker requires DATABASE_URL and OUTBOUND_QUEUE_URL")
		os.Exit(1)
	}

	pool := bootstrap.ConnectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sqsClient, err := mainconfig.SQSClient(ctx, cfg)
	if err != nil || sqsClient == nil {
		logger.Error("failed to create SQS client", "error", err)
		os.Exit(1)
	}

	stores := bootstrap.BuildStores(pool, logger)
	queues := bootstrap.BuildQueues(cfg, sqsClient, logger)
	relay, err := bootstrap.BuildRelay(cfg, bootstrap.BuildCounterStore(redisClient, logger), stores.Notifications, queues.Outbound, nil, logger)
	if err != nil {
		logger.Error("failed to build relay", "error", err)
		os.Exit(1)
	}

	worker := dispatch.NewWorker(relay.Dispatcher, queues.Outbound, relay.Publisher, logger,
		dispatch.WithWorkerCount(cfg.WorkerCount),
	)
	reminders := ticketing.NewReminderJob(stores.Tickets, stores.Contractors, relay.Notifier, logger).
		WithInterval(cfg.ReminderInterval).
		WithLookahead(cfg.ReminderLookahead).
		WithClaims(relay.Counters)

	worker.Start(ctx)
	go reminders.Run(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("messaging worker shutting down")
	cancel()

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("messaging worker stopped")
	case <-time.After(30 * time.Second):
		logger.Error("messaging worker shutdown timed out")
	}
}
