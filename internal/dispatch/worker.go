package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

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
)

// Processor handles one decoded task.
type Processor interface {
	Process(ctx context.Context, task Task) Result
}

// TaskPublisher re-publishes tasks the processor wants rescheduled.
type TaskPublisher interface {
	Publish(ctx context.Context, task Task, delay time.Duration) error
}

// Worker consumes delivery tasks and acts on each Result: retries go back on
// the queue with the next attempt number, deferrals with the same one.
type Worker struct {
	processor Processor
	queue     queue.Client
	publisher TaskPublisher
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

func NewWorker(processor Processor, q queue.Client, publisher TaskPublisher, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("dispatch: processor cannot be nil")
	}
	if q == nil {
		panic("dispatch: queue cannot be nil")
	}
	if publisher == nil {
		panic("dispatch: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		processor:        processor,
		queue:            q,
		publisher:        publisher,
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
	w.logger.Debug("dispatch worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("dispatch worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.receiveBatchSize, w.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive dispatch tasks", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage processes one queue message and deletes it unless a
// reschedule could not be published.
func (w *Worker) HandleMessage(ctx context.Context, msg queue.Message) {
	task, err := decodeTask(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode dispatch task", "error", err, "msg_id", msg.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	res := w.processor.Process(ctx, task)

	var (
		next  Task
		delay time.Duration
		again bool
	)
	switch {
	case res.Retry:
		next = task
		next.Attempt = task.Attempt + 1
		delay, again = res.RetryAfter, true
	case res.Deferred:
		next, delay, again = task, res.RetryAfter, true
	}
	if again {
		if err := w.publisher.Publish(ctx, next, delay); err != nil {
			// Leave the message so the queue redelivers it.
			w.logger.Error("failed to reschedule dispatch task", "error", err, "notification_id", task.NotificationID.String())
			return
		}
	}
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receipt string) {
	if receipt == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receipt); err != nil {
		w.logger.Error("failed to delete dispatch task", "error", err)
	}
}
