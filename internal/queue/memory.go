package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a Client backed by an in-memory buffered channel. Delayed
// sends are parked on timers until they become visible.
type MemoryQueue struct {
	ch   chan Message
	done chan struct{}

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		ch:     make(chan Message, buffer),
		done:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Send enqueues body now, or after delay. An immediate send blocks until
// there is buffer space or ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string, delay time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	msg := Message{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}
	if delay <= 0 {
		select {
		case q.ch <- msg:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return context.Canceled
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		_, live := q.timers[timer]
		delete(q.timers, timer)
		q.mu.Unlock()
		if !live {
			return
		}
		// A full buffer after Close drops the message.
		select {
		case q.ch <- msg:
		case <-q.done:
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

// Pending reports how many delayed messages are still parked.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Close drops all parked delayed messages, including ones whose timer fired
// but are still waiting for buffer space. Tasks are not cancellable
// individually; this only exists for shutdown.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.done)
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
		delete(q.timers, timer)
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg := <-q.ch:
		return q.collect(msg, maxMessages), nil
	}
}

// Delete is a no-op for the in-memory queue.
func (q *MemoryQueue) Delete(_ context.Context, _ string) error {
	return nil
}

func (q *MemoryQueue) collect(first Message, max int) []Message {
	messages := make([]Message, 0, max)
	messages = append(messages, first)
	for len(messages) < max {
		select {
		case msg := <-q.ch:
			messages = append(messages, msg)
		default:
			return messages
		}
	}
	return messages
}
