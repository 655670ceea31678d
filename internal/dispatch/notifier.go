package dispatch

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// NotifyRequest describes one outbound message.
type NotifyRequest struct {
	Phone    string
	Message  string
	Category notifications.Category
	TicketID *int64
	Priority int
}

// Outcome tells the caller whether the message made it onto the queue. The
// notifier never fails the caller's own operation.
type Outcome struct {
	NotificationID uuid.UUID
	Queued         bool
	Detail         string
}

// Notifier creates pending records and hands them to the dispatch queue.
type Notifier struct {
	store     notifications.Store
	publisher TaskPublisher
	processor Processor
	logger    *logging.Logger
}

// NewNotifier wires the notifier. processor is only needed for SendNow and
// may be nil for callers that only enqueue.
func NewNotifier(store notifications.Store, publisher TaskPublisher, processor Processor, logger *logging.Logger) *Notifier {
	if store == nil {
		panic("dispatch: store cannot be nil")
	}
	if publisher == nil {
		panic("dispatch: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{store: store, publisher: publisher, processor: processor, logger: logger}
}

func (n *Notifier) create(ctx context.Context, req NotifyRequest) (*notifications.Record, error) {
	rec := &notifications.Record{
		Direction: notifications.DirectionOutbound,
		Category:  req.Category,
		TicketID:  req.TicketID,
		Phone:     strings.TrimSpace(req.Phone),
		Message:   req.Message,
		Status:    notifications.StatusPending,
		Priority:  req.Priority,
	}
	if err := n.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Notify persists a pending record and enqueues its first delivery.
func (n *Notifier) Notify(ctx context.Context, req NotifyRequest) Outcome {
	rec, err := n.create(ctx, req)
	if err != nil {
		n.logger.Error("failed to persist notification", "error", err, "category", req.Category)
		return Outcome{Detail: "notification could not be recorded"}
	}

	task := Task{NotificationID: rec.ID, Phone: rec.Phone, Message: rec.Message, Priority: rec.Priority}
	if err := n.publisher.Publish(ctx, task, 0); err != nil {
		n.logger.Error("failed to enqueue notification", "error", err, "notification_id", rec.ID.String())
		upd := notifications.StatusUpdate{
			Status:      notifications.StatusFailed,
			Reason:      notifications.ReasonNetworkError,
			RawResponse: err.Error(),
		}
		if uerr := n.store.UpdateStatus(ctx, rec.ID, upd); uerr != nil {
			n.logger.Error("failed to mark unqueued notification failed", "error", uerr, "notification_id", rec.ID.String())
		}
		return Outcome{NotificationID: rec.ID, Detail: "notification failed to queue"}
	}
	return Outcome{NotificationID: rec.ID, Queued: true, Detail: "notification queued"}
}

// SendNow delivers synchronously, used by the admin test send. A requested
// retry is still published so it follows the normal schedule.
func (n *Notifier) SendNow(ctx context.Context, req NotifyRequest) (uuid.UUID, Result) {
	rec, err := n.create(ctx, req)
	if err != nil {
		n.logger.Error("failed to persist notification", "error", err, "category", req.Category)
		return uuid.Nil, Result{Status: notifications.StatusFailed, Detail: "notification could not be recorded"}
	}
	if n.processor == nil {
		return rec.ID, Result{Status: notifications.StatusPending, Detail: "no processor configured"}
	}
	task := Task{NotificationID: rec.ID, Phone: rec.Phone, Message: rec.Message, Priority: rec.Priority}
	res := n.processor.Process(ctx, task)
	switch {
	case res.Retry:
		next := task
		next.Attempt++
		if err := n.publisher.Publish(ctx, next, res.RetryAfter); err != nil {
			n.logger.Error("failed to schedule retry", "error", err, "notification_id", rec.ID.String())
		}
	case res.Deferred:
		if err := n.publisher.Publish(ctx, task, res.RetryAfter); err != nil {
			n.logger.Error("failed to schedule deferred send", "error", err, "notification_id", rec.ID.String())
		}
	}
	return rec.ID, res
}
