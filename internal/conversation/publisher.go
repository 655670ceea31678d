package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/contractor-relay/internal/queue"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// InboundJob is one received chat message waiting to be routed.
type InboundJob struct {
	ID             string    `json:"id"`
	NotificationID uuid.UUID `json:"notification_id"`
	Phone          string    `json:"phone"`
	Text           string    `json:"text"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Publisher enqueues inbound jobs for asynchronous routing.
type Publisher struct {
	queue  queue.Client
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(q queue.Client, logger *logging.Logger) *Publisher {
	if q == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: q, logger: logger}
}

// EnqueueInbound publishes job, assigning an id when missing.
func (p *Publisher) EnqueueInbound(ctx context.Context, job InboundJob) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("conversation: failed to encode job: %w", err)
	}
	if err := p.queue.Send(ctx, string(body), 0); err != nil {
		return fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}
	p.logger.Debug("conversation job enqueued", "job_id", job.ID)
	return nil
}
