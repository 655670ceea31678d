// Package notifications persists the audit log of every outbound and inbound
// chat message together with its delivery status.
package notifications

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Direction of a message relative to this service.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Category says why a message exists.
type Category string

const (
	CategoryCreation     Category = "creation"
	CategoryReminder     Category = "reminder"
	CategoryBillingNudge Category = "billing_nudge"
	CategoryManualTest   Category = "manual_test"
	CategoryAutoReply    Category = "auto_reply"
	CategoryInbound      Category = "inbound"
)

// Status is the delivery status of a record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusEnqueued Status = "enqueued"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
	StatusReceived Status = "received"
)

// Reason distinguishes why a record ended up failed.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonInvalidPhone     Reason = "INVALID_PHONE"
	ReasonCircuitOpen      Reason = "CIRCUIT_OPEN"
	ReasonHTTPError        Reason = "HTTP_ERROR"
	ReasonNetworkError     Reason = "NETWORK_ERROR"
	ReasonRetriesExhausted Reason = "RETRIES_EXHAUSTED"
)

var (
	ErrNotFound          = errors.New("notifications: record not found")
	ErrInvalidTransition = errors.New("notifications: status transition not allowed")
)

// allowedFrom lists, per target status, the statuses a record may leave to
// reach it. Sent and received are terminal.
var allowedFrom = map[Status][]Status{
	StatusEnqueued: {StatusPending},
	StatusPending:  {StatusEnqueued},
	StatusSent:     {StatusPending, StatusEnqueued, StatusFailed},
	StatusFailed:   {StatusPending, StatusEnqueued, StatusFailed},
}

// CanTransition reports whether a record in status from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

func sourceStatuses(to Status) []string {
	from := allowedFrom[to]
	out := make([]string, 0, len(from))
	for _, s := range from {
		out = append(out, string(s))
	}
	return out
}

// Record is one row of the notification log.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Direction Direction `json:"direction"`
	Category  Category  `json:"category"`
	TicketID  *int64    `json:"ticket_id,omitempty"`
	// Phone is the recipient for outbound records and the sender for inbound.
	Phone       string     `json:"phone"`
	Message     string     `json:"message"`
	ContentHash string     `json:"content_hash"`
	Status      Status     `json:"status"`
	Reason      Reason     `json:"reason,omitempty"`
	Attempts    int        `json:"attempts"`
	Priority    int        `json:"priority"`
	RawResponse string     `json:"raw_response,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StatusUpdate moves a record to a new status.
type StatusUpdate struct {
	Status      Status
	Reason      Reason
	Attempts    int
	RawResponse string
	SentAt      *time.Time
}

// Stats summarises outbound traffic for the admin dashboard.
type Stats struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	// Pending counts outbound records still pending or enqueued, regardless of age.
	Pending int `json:"pending"`
}

// DailyCount is one UTC day of outbound volume.
type DailyCount struct {
	Day    time.Time
	Total  int
	Sent   int
	Failed int
}

// DeliveryRate is sent/total as a percentage, zero when nothing was sent.
func (s Stats) DeliveryRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Sent) / float64(s.Total) * 100
}

// ContentHash returns the hex SHA-256 of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// prepare fills the defaults a new record needs.
func prepare(rec *Record, now time.Time) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.ContentHash == "" {
		rec.ContentHash = ContentHash(rec.Message)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}

// UTCDay truncates t to midnight UTC, the bucket DailyCounts groups by.
func UTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
