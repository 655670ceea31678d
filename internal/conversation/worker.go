package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/internal/dispatch"
	"github.com/wolfman30/contractor-relay/internal/messaging"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/internal/queue"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5

	replyPriority = 1
)

// Notifier queues outbound messages.
type Notifier interface {
	Notify(ctx context.Context, req dispatch.NotifyRequest) dispatch.Outcome
}

// Worker consumes inbound jobs, routes them and carries out the directive.
type Worker struct {
	router    *Router
	queue     queue.Client
	notifier  Notifier
	roles     directory.Roles
	functions Functions
	logger    *logging.Logger

	workers          int
	receiveWaitSecs  int
	receiveBatchSize int

	wg sync.WaitGroup
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*Worker)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(w *Worker) {
		if count > 0 {
			w.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(w *Worker) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		w.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(w *Worker) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		w.receiveBatchSize = size
	}
}

// WithFunctions replaces the function registry used by invoke directives.
func WithFunctions(fns Functions) WorkerOption {
	return func(w *Worker) {
		if fns != nil {
			w.functions = fns
		}
	}
}

func NewWorker(router *Router, q queue.Client, notifier Notifier, roles directory.Roles, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if router == nil {
		panic("conversation: router cannot be nil")
	}
	if q == nil {
		panic("conversation: queue cannot be nil")
	}
	if notifier == nil {
		panic("conversation: notifier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		router:           router,
		queue:            q,
		notifier:         notifier,
		roles:            roles,
		functions:        DefaultFunctions(router.executor),
		logger:           logger,
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.receiveBatchSize, w.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) {
	var job InboundJob
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("failed to decode conversation job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}
	if err := w.Handle(ctx, job); err != nil {
		// Left on the queue for redelivery.
		w.logger.Error("conversation job failed", "error", err, "job_id", job.ID)
		return
	}
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

// Handle routes one job and executes the resulting directive.
func (w *Worker) Handle(ctx context.Context, job InboundJob) error {
	d, err := w.router.Route(ctx, job.Phone, job.Text)
	if err != nil {
		return err
	}
	sender := messaging.NormalizePhone(job.Phone)
	log := w.logger.With("job_id", job.ID, "stage", d.Stage, "action", d.Action)

	switch d.Action {
	case ActionIgnore:
		log.Info("inbound message ignored", "reason", d.Reason)
	case ActionReply:
		w.reply(ctx, log, sender, d.Text)
	case ActionForward:
		w.forward(ctx, log, d.Role, d.Text)
		if d.Ack != "" {
			w.reply(ctx, log, sender, d.Ack)
		}
	case ActionInvoke:
		w.invoke(ctx, log, sender, d)
	default:
		log.Warn("unknown directive action")
	}
	return nil
}

func (w *Worker) reply(ctx context.Context, log *logging.Logger, phone, text string) {
	if text == "" {
		return
	}
	out := w.notifier.Notify(ctx, dispatch.NotifyRequest{
		Phone:    phone,
		Message:  text,
		Category: notifications.CategoryAutoReply,
		Priority: replyPriority,
	})
	if !out.Queued {
		log.Warn("reply not queued", "detail", out.Detail)
	}
}

func (w *Worker) forward(ctx context.Context, log *logging.Logger, role, text string) {
	if w.roles == nil {
		log.Warn("no role directory configured, forward dropped", "role", role)
		return
	}
	phones, err := w.roles.PhonesForRole(ctx, role)
	if err != nil {
		log.Error("role lookup failed", "role", role, "error", err)
		return
	}
	if len(phones) == 0 {
		log.Warn("no recipients for role", "role", role)
		return
	}
	for _, phone := range phones {
		w.reply(ctx, log, phone, text)
	}
	log.Info("inbound message forwarded", "role", role, "recipients", len(phones))
}

func (w *Worker) invoke(ctx context.Context, log *logging.Logger, sender string, d Directive) {
	fn, ok := w.functions[d.Function]
	if !ok {
		log.Warn("unknown automation function", "function", d.Function)
		return
	}
	if d.Contractor == nil {
		return
	}
	text, err := fn(ctx, *d.Contractor, d.Params)
	if err != nil {
		log.Error("automation function failed", "function", d.Function, "error", err)
		return
	}
	w.reply(ctx, log, sender, text)
}

func (w *Worker) deleteMessage(ctx context.Context, receipt string) {
	if receipt == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receipt); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
