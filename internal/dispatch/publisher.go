package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/contractor-relay/internal/queue"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// Publisher enqueues delivery tasks.
type Publisher struct {
	queue  queue.Client
	logger *logging.Logger
}

func NewPublisher(q queue.Client, logger *logging.Logger) *Publisher {
	if q == nil {
		panic("dispatch: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: q, logger: logger}
}

// Publish makes task visible to workers after delay.
func (p *Publisher) Publish(ctx context.Context, task Task, delay time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := encodeTask(task)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body, delay); err != nil {
		return fmt.Errorf("dispatch: failed to enqueue task: %w", err)
	}
	p.logger.Debug("dispatch task enqueued", "notification_id", task.NotificationID.String(), "attempt", task.Attempt, "delay", delay)
	return nil
}
