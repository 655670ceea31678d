package ticketing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/contractor-relay/internal/conversation"
	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/internal/dispatch"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

var (
	// ErrNoContractor is returned when a ticket has no active contractor to notify.
	ErrNoContractor = errors.New("ticketing: ticket has no active contractor")
	ErrTicketClosed = errors.New("ticketing: ticket is closed")
)

// Notifier queues outbound messages.
type Notifier interface {
	Notify(ctx context.Context, req dispatch.NotifyRequest) dispatch.Outcome
}

// TicketNotifier sends the ticket lifecycle messages.
type TicketNotifier struct {
	tickets     directory.Tickets
	contractors directory.Contractors
	notifier    Notifier
	states      conversation.StateStore
	logger      *logging.Logger
	now         func() time.Time
}

// NewTicketNotifier wires the notifier. states may be nil, in which case new
// tickets do not open a confirmation flow.
func NewTicketNotifier(tickets directory.Tickets, contractors directory.Contractors, notifier Notifier, states conversation.StateStore, logger *logging.Logger) *TicketNotifier {
	if tickets == nil || contractors == nil || notifier == nil {
		panic("ticketing: tickets, contractors and notifier are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TicketNotifier{
		tickets:     tickets,
		contractors: contractors,
		notifier:    notifier,
		states:      states,
		logger:      logger,
		now:         time.Now,
	}
}

func (n *TicketNotifier) load(ctx context.Context, ticketID int64) (*directory.Ticket, *directory.Contractor, error) {
	ticket, err := n.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	contractor, err := n.contractors.Get(ctx, ticket.ContractorID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, nil, ErrNoContractor
		}
		return nil, nil, err
	}
	if !contractor.Active {
		return nil, nil, ErrNoContractor
	}
	return ticket, contractor, nil
}

// NotifyCreation sends the new-ticket message and, for a waiting ticket,
// opens the SIM/NÃO confirmation flow for the contractor.
func (n *TicketNotifier) NotifyCreation(ctx context.Context, ticketID int64) (dispatch.Outcome, error) {
	ticket, contractor, err := n.load(ctx, ticketID)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	priority := ticket.Priority
	if priority <= 0 {
		priority = 1
	}
	out := n.notifier.Notify(ctx, dispatch.NotifyRequest{
		Phone:    contractor.Phone,
		Message:  CreationMessage(*ticket),
		Category: notifications.CategoryCreation,
		TicketID: &ticket.ID,
		Priority: priority,
	})
	if out.Queued && n.states != nil && ticket.Status == directory.TicketWaiting {
		if err := conversation.StartTicketConfirmation(ctx, n.states, contractor.Phone, *ticket, n.now()); err != nil {
			n.logger.Warn("failed to open ticket confirmation flow", "error", err, "ticket_id", ticket.ID)
		}
	}
	n.logger.Info("ticket creation notification", "ticket_id", ticket.ID, "queued", out.Queued)
	return out, nil
}

// NotifyNudge asks the contractor for an estimate on an overdue ticket.
func (n *TicketNotifier) NotifyNudge(ctx context.Context, ticketID int64) (dispatch.Outcome, error) {
	ticket, contractor, err := n.load(ctx, ticketID)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	if ticket.Status == directory.TicketDone || ticket.Status == directory.TicketCancelled {
		return dispatch.Outcome{}, fmt.Errorf("%w: %s is %s", ErrTicketClosed, ticket.Number, ticket.Status)
	}
	out := n.notifier.Notify(ctx, dispatch.NotifyRequest{
		Phone:    contractor.Phone,
		Message:  NudgeMessage(*ticket),
		Category: notifications.CategoryBillingNudge,
		TicketID: &ticket.ID,
		Priority: 1,
	})
	return out, nil
}
