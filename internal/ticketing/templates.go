// Package ticketing builds the chat messages sent to contractors about their
// tickets and runs the periodic deadline reminder sweep.
package ticketing

import (
	"fmt"
	"strings"

	"github.com/wolfman30/contractor-relay/internal/directory"
)

const deadlineLayout = "02/01 15:04"

// CreationMessage announces a new ticket and asks the contractor to confirm.
func CreationMessage(t directory.Ticket) string {
	var b strings.Builder
	b.WriteString("🔧 *Novo Chamado*\n\n")
	fmt.Fprintf(&b, "Chamado: %s\n", t.Number)
	fmt.Fprintf(&b, "Título: %s\n", t.Title)
	fmt.Fprintf(&b, "Prazo: %s\n", t.Deadline.Format(deadlineLayout))
	if desc := strings.TrimSpace(t.Description); desc != "" {
		fmt.Fprintf(&b, "\nDescrição: %s\n", desc)
	}
	b.WriteString("\nResponda SIM para aceitar ou NÃO para recusar.")
	return b.String()
}

// NudgeMessage asks for a completion estimate on an overdue ticket.
func NudgeMessage(t directory.Ticket) string {
	return fmt.Sprintf("⏰ *Prazo Vencido*\n\nChamado: %s\nTítulo: %s\nPrevisão de conclusão?", t.Number, t.Title)
}

// ReminderMessage warns that a deadline is close.
func ReminderMessage(t directory.Ticket) string {
	return fmt.Sprintf("🔧 Lembrete\n\nChamado: %s vence em breve.\nPrazo: %s", t.Number, t.Deadline.Format(deadlineLayout))
}
