package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

// FlowResult is a flow handler's answer to one message.
type FlowResult struct {
	// Handled is false when the text is not a valid answer for the flow; the
	// router then falls through to commands and rules.
	Handled bool
	Reply   string
	// ForwardRole and ForwardText, when set, also notify a role.
	ForwardRole string
	ForwardText string
	// Done clears the state once the reply is produced.
	Done bool
}

// FlowHandler continues one kind of multi-step conversation.
type FlowHandler interface {
	Name() string
	Handle(ctx context.Context, contractor directory.Contractor, state State, text string) (FlowResult, error)
}

// FlowTicketConfirmation is the flow id stored while a contractor is asked to
// accept a new ticket.
const FlowTicketConfirmation = "ticket_confirmation"

type ticketConfirmationContext struct {
	TicketID     int64  `json:"ticket_id"`
	TicketNumber string `json:"ticket_number"`
}

// TicketConfirmationFlow handles the SIM / NÃO answer to a new ticket.
type TicketConfirmationFlow struct {
	tickets     directory.Tickets
	managerRole string
	logger      *logging.Logger
}

func NewTicketConfirmationFlow(tickets directory.Tickets, managerRole string, logger *logging.Logger) *TicketConfirmationFlow {
	if tickets == nil {
		panic("conversation: tickets cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(managerRole) == "" {
		managerRole = DefaultFallbackRole
	}
	return &TicketConfirmationFlow{tickets: tickets, managerRole: managerRole, logger: logger}
}

func (f *TicketConfirmationFlow) Name() string { return FlowTicketConfirmation }

func (f *TicketConfirmationFlow) Handle(ctx context.Context, contractor directory.Contractor, state State, text string) (FlowResult, error) {
	var fc ticketConfirmationContext
	if err := json.Unmarshal(state.Context, &fc); err != nil || fc.TicketID == 0 {
		return FlowResult{}, fmt.Errorf("conversation: bad ticket confirmation context: %v", err)
	}

	switch normalizeAnswer(text) {
	case "SIM":
		if err := f.tickets.Accept(ctx, fc.TicketID); err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				f.logger.Warn("ticket to confirm no longer waiting", "ticket_id", fc.TicketID)
				return FlowResult{
					Handled: true,
					Done:    true,
					Reply:   fmt.Sprintf("O chamado %s não está mais aguardando confirmação.", fc.TicketNumber),
				}, nil
			}
			return FlowResult{}, fmt.Errorf("conversation: accept ticket: %w", err)
		}
		f.logger.Info("ticket accepted over chat", "ticket_id", fc.TicketID, "contractor_id", contractor.ID)
		return FlowResult{
			Handled: true,
			Done:    true,
			Reply:   fmt.Sprintf("✅ Chamado %s aceito. Obrigado!", fc.TicketNumber),
		}, nil
	case "NAO":
		f.logger.Info("ticket declined over chat", "ticket_id", fc.TicketID, "contractor_id", contractor.ID)
		return FlowResult{
			Handled:     true,
			Done:        true,
			Reply:       fmt.Sprintf("Entendido. O gestor será avisado sobre o chamado %s.", fc.TicketNumber),
			ForwardRole: f.managerRole,
			ForwardText: fmt.Sprintf("⚠️ %s recusou o chamado %s.", contractor.Name, fc.TicketNumber),
		}, nil
	}
	return FlowResult{}, nil
}

// StartTicketConfirmation records that phone is being asked to confirm ticket.
func StartTicketConfirmation(ctx context.Context, store StateStore, phone string, ticket directory.Ticket, now time.Time) error {
	payload, err := json.Marshal(ticketConfirmationContext{TicketID: ticket.ID, TicketNumber: ticket.Number})
	if err != nil {
		return fmt.Errorf("conversation: encode flow context: %w", err)
	}
	return store.Save(ctx, State{
		Phone:     phone,
		Flow:      FlowTicketConfirmation,
		Context:   payload,
		UpdatedAt: now.UTC(),
	})
}

// normalizeAnswer upper-cases text, trims punctuation and folds "NÃO" to "NAO".
func normalizeAnswer(text string) string {
	s := strings.ToUpper(strings.TrimSpace(text))
	s = strings.Trim(s, ".!? ")
	return strings.ReplaceAll(s, "Ã", "A")
}
