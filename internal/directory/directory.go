// Package directory is the read side of the collaborators the relay depends
// on: contractors, tickets, stock items, purchase requests and role members.
// Their lifecycles are owned elsewhere; the relay only looks them up and, for
// tickets and purchases, records the few changes a chat reply can cause.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("directory: not found")

// Contractor is an external service provider reached over chat.
type Contractor struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Phone       string   `json:"phone"`
	Active      bool     `json:"active"`
	Specialties []string `json:"specialties,omitempty"`
	UnitID      *int64   `json:"unit_id,omitempty"`
}

// TicketStatus is the lifecycle state of a work order.
type TicketStatus string

const (
	TicketWaiting    TicketStatus = "waiting"
	TicketAccepted   TicketStatus = "accepted"
	TicketInProgress TicketStatus = "in_progress"
	TicketDone       TicketStatus = "done"
	TicketCancelled  TicketStatus = "cancelled"
)

// ActiveTicketStatuses are the statuses a contractor still has work in.
var ActiveTicketStatuses = []TicketStatus{TicketWaiting, TicketAccepted, TicketInProgress}

// Ticket is a work order assigned to a contractor.
type Ticket struct {
	ID           int64        `json:"id"`
	Number       string       `json:"number"`
	ContractorID int64        `json:"contractor_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Status       TicketStatus `json:"status"`
	Deadline     time.Time    `json:"deadline"`
	Priority     int          `json:"priority"`
}

// Overdue reports whether the agreed deadline has passed at now.
func (t Ticket) Overdue(now time.Time) bool {
	return t.Deadline.Before(now)
}

// StockItem is a catalog entry contractors can request.
type StockItem struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// PurchaseRequest asks purchasing to buy Quantity of ItemCode.
type PurchaseRequest struct {
	ID           int64           `json:"id"`
	ItemCode     string          `json:"item_code"`
	Quantity     decimal.Decimal `json:"quantity"`
	ContractorID int64           `json:"contractor_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Contractors looks contractors up.
type Contractors interface {
	FindByPhone(ctx context.Context, phone string) (*Contractor, error)
	Get(ctx context.Context, id int64) (*Contractor, error)
	ListActive(ctx context.Context) ([]Contractor, error)
}

// Tickets reads tickets and applies contractor acceptance.
type Tickets interface {
	Get(ctx context.Context, id int64) (*Ticket, error)
	// ListByContractor returns the contractor's tickets in any of statuses,
	// ordered by deadline ascending.
	ListByContractor(ctx context.Context, contractorID int64, statuses []TicketStatus) ([]Ticket, error)
	// ListDueBefore returns tickets not done or cancelled whose deadline is
	// before the given instant.
	ListDueBefore(ctx context.Context, before time.Time) ([]Ticket, error)
	// Accept moves a waiting ticket to accepted.
	Accept(ctx context.Context, id int64) error
}

// Inventory resolves stock items.
type Inventory interface {
	FindItem(ctx context.Context, code string) (*StockItem, error)
}

// Purchases records purchase requests.
type Purchases interface {
	CreateRequest(ctx context.Context, req *PurchaseRequest) error
}

// Roles resolves a role name such as "manager" to phones.
type Roles interface {
	PhonesForRole(ctx context.Context, role string) ([]string, error)
}
