package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/contractor-relay/internal/messaging"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/internal/observability/metrics"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// Dispatcher processes one Task against the gateway and records the outcome
// on the notification record.
type Dispatcher struct {
	gateway    *Gateway
	store      notifications.Store
	metrics    *metrics.RelayMetrics
	logger     *logging.Logger
	maxRetries int
	baseDelay  time.Duration
	deferDelay time.Duration
	now        func() time.Time
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxRetries caps how many retries follow the first attempt.
func WithMaxRetries(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.maxRetries = n
		}
	}
}

// WithRetryBaseDelay sets the first retry delay; later retries double it.
func WithRetryBaseDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if delay > 0 {
			d.baseDelay = delay
		}
	}
}

// WithDeferDelay sets how long a rate-limited task waits before it is tried again.
func WithDeferDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if delay > 0 {
			d.deferDelay = delay
		}
	}
}

func NewDispatcher(gateway *Gateway, store notifications.Store, m *metrics.RelayMetrics, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if gateway == nil {
		panic("dispatch: gateway cannot be nil")
	}
	if store == nil {
		panic("dispatch: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		gateway:    gateway,
		store:      store,
		metrics:    m,
		logger:     logger,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		deferDelay: defaultDeferDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process delivers task and updates its record. It never returns an error;
// failures are reported in the Result and logged.
func (d *Dispatcher) Process(ctx context.Context, task Task) Result {
	log := d.logger.With("notification_id", task.NotificationID.String(), "attempt", task.Attempt)

	rec, err := d.store.Get(ctx, task.NotificationID)
	if err != nil {
		log.Error("notification record unavailable", "error", err)
		return Result{Status: notifications.StatusFailed, Detail: err.Error(), Attempt: task.Attempt}
	}
	if rec.Status == notifications.StatusSent {
		log.Info("notification already sent, skipping")
		return Result{Status: notifications.StatusSent, Success: true, Detail: "already sent", Attempt: task.Attempt}
	}
	if rec.Status == notifications.StatusEnqueued {
		if err := d.store.UpdateStatus(ctx, rec.ID, notifications.StatusUpdate{Status: notifications.StatusPending, Attempts: rec.Attempts}); err != nil {
			log.Warn("failed to move enqueued record back to pending", "error", err)
		} else {
			rec.Status = notifications.StatusPending
		}
	}

	delivery := d.gateway.Deliver(ctx, task.Phone, task.Message, task.Priority)
	switch delivery.Outcome {
	case DeliveryInvalidPhone:
		log.Warn("invalid recipient phone", "phone", messaging.MaskPhone(task.Phone))
		return d.fail(ctx, log, rec, task, delivery, rec.Attempts, false)

	case DeliveryCircuitOpen:
		log.Warn("circuit open, send skipped")
		return d.fail(ctx, log, rec, task, delivery, rec.Attempts, false)

	case DeliveryDeferred:
		status := rec.Status
		if notifications.CanTransition(rec.Status, notifications.StatusEnqueued) {
			if err := d.store.UpdateStatus(ctx, rec.ID, notifications.StatusUpdate{Status: notifications.StatusEnqueued, Attempts: rec.Attempts}); err != nil {
				log.Error("failed to mark record enqueued", "error", err)
			} else {
				status = notifications.StatusEnqueued
			}
		}
		log.Info("rate limit reached, send deferred", "retry_after", d.deferDelay)
		d.metrics.ObserveOutbound(string(notifications.StatusEnqueued), "")
		return Result{
			Status:     status,
			Success:    true,
			Detail:     "rate limited, rescheduled",
			Deferred:   true,
			RetryAfter: d.deferDelay,
			Attempt:    task.Attempt,
		}

	case DeliverySent:
		sentAt := d.now().UTC()
		err := d.store.UpdateStatus(ctx, rec.ID, notifications.StatusUpdate{
			Status:      notifications.StatusSent,
			Attempts:    task.Attempt + 1,
			RawResponse: delivery.Response,
			SentAt:      &sentAt,
		})
		if err != nil {
			log.Error("failed to mark record sent", "error", err)
		}
		log.Info("notification sent", "phone", messaging.MaskPhone(task.Phone))
		d.metrics.ObserveOutbound(string(notifications.StatusSent), "")
		return Result{Status: notifications.StatusSent, Success: true, Detail: "sent", Attempt: task.Attempt}
	}

	// Transient failure: a real attempt was made.
	return d.fail(ctx, log, rec, task, delivery, task.Attempt+1, true)
}

func (d *Dispatcher) fail(ctx context.Context, log *logging.Logger, rec *notifications.Record, task Task, delivery Delivery, attempts int, retryable bool) Result {
	reason := delivery.Reason
	retry := retryable && task.Attempt < d.maxRetries
	if retryable && !retry {
		reason = notifications.ReasonRetriesExhausted
		log.Error("notification retries exhausted", "last_error", delivery.Err)
	}
	err := d.store.UpdateStatus(ctx, rec.ID, notifications.StatusUpdate{
		Status:      notifications.StatusFailed,
		Reason:      reason,
		Attempts:    attempts,
		RawResponse: delivery.Response,
	})
	if err != nil && !errors.Is(err, notifications.ErrInvalidTransition) {
		log.Error("failed to mark record failed", "error", err)
	}
	d.metrics.ObserveOutbound(string(notifications.StatusFailed), string(reason))

	res := Result{
		Status:  notifications.StatusFailed,
		Reason:  reason,
		Detail:  delivery.Response,
		Attempt: task.Attempt,
	}
	if res.Detail == "" && delivery.Err != nil {
		res.Detail = delivery.Err.Error()
	}
	if retry {
		res.Retry = true
		res.RetryAfter = RetryDelay(d.baseDelay, task.Attempt)
		d.metrics.ObserveRetryScheduled()
		log.Info("notification retry scheduled", "retry_after", res.RetryAfter, "reason", reason)
	}
	return res
}
