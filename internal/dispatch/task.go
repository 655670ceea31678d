// Package dispatch delivers outbound chat notifications: it owns the gateway
// that talks to the chat API through the circuit breaker and rate limiter,
// the dispatcher that turns a delivery outcome into a record status, and the
// queue plumbing that reschedules retries and deferrals.
package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/contractor-relay/internal/notifications"
)

const (
	// PriorityUrgent and above bypass the rate limiter.
	PriorityUrgent = 2

	defaultMaxRetries = 3
	defaultBaseDelay  = 60 * time.Second
	defaultDeferDelay = 60 * time.Second
)

// Task is one queued delivery. Attempt counts the retries already made, so
// the first delivery runs with Attempt 0.
type Task struct {
	NotificationID uuid.UUID `json:"notification_id"`
	Phone          string    `json:"phone"`
	Message        string    `json:"message"`
	Priority       int       `json:"priority"`
	Attempt        int       `json:"attempt"`
}

func encodeTask(task Task) (string, error) {
	raw, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("dispatch: encode task: %w", err)
	}
	return string(raw), nil
}

func decodeTask(body string) (Task, error) {
	var task Task
	if err := json.Unmarshal([]byte(body), &task); err != nil {
		return Task{}, fmt.Errorf("dispatch: decode task: %w", err)
	}
	if task.NotificationID == uuid.Nil {
		return Task{}, fmt.Errorf("dispatch: decode task: missing notification id")
	}
	return task, nil
}

// Result is what the dispatcher decided for a task. The worker acts on it;
// nothing in the dispatch path returns an error to the caller.
type Result struct {
	Status  notifications.Status
	Success bool
	Reason  notifications.Reason
	Detail  string
	// Retry asks for the task to be published again with Attempt+1.
	Retry bool
	// Deferred asks for the same attempt to be published again.
	Deferred   bool
	RetryAfter time.Duration
	Attempt    int
}

// RetryDelay is the wait before retry number attempt+1: base * 2^attempt.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base * time.Duration(1<<attempt)
}
