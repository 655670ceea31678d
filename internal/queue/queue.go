// Package queue provides the job transport shared by the outbound dispatch
// workers and the inbound conversation workers.
package queue

import (
	"context"
	"time"
)

// Client is the minimal queue surface the workers need.
type Client interface {
	// Send publishes body, making it visible after delay (zero for now).
	Send(ctx context.Context, body string, delay time.Duration) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is a received job.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}
