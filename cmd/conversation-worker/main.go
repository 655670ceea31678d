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
	appconfig "github.com/wolfman30/contractor-relay/internal/config"
	"github.com/wolfman30/contractor-relay/internal/conversation"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" || cfg.InboundQueueURL == "" || cfg.OutboundQueueURL == "" {
		logger.Error("conversation worker requires DATABASE_URL, INBOUND_QUEUE_URL and OUTBOUND_QUEUE_URL")
		os.Exit(1)
	}

	sqsClient, err := mainconfig.SQSClient(ctx, cfg)
	if err != nil || sqsClient == nil {
		logger.Error("failed to load AWS config", "error", err)
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
	} else {
		logger.Warn("redis unavailable; conversation state will not survive restarts")
	}

	stores := bootstrap.BuildStores(pool, logger)
	queues := bootstrap.BuildQueues(cfg, sqsClient, logger)
	relay, err := bootstrap.BuildRelay(cfg, bootstrap.BuildCounterStore(redisClient, logger), stores.Notifications, queues.Outbound, nil, logger)
	if err != nil {
		logger.Error("failed to build relay", "error", err)
		os.Exit(1)
	}
	routing := bootstrap.BuildRouting(cfg, stores, bootstrap.BuildStateStore(redisClient, cfg), nil, logger)

	worker := conversation.NewWorker(
		routing.Router,
		queues.Inbound,
		relay.Notifier,
		stores.Roles,
		logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithFunctions(routing.Functions),
	)
	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
