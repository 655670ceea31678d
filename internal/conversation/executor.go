package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

const helpText = `❓ *Comandos Disponíveis*

- #COMPRA [código] [qtd]
  Ex: #COMPRA CABO-10MM 50

- #STATUS
  Ver seus chamados ativos

- #AJUDA
  Ver esta mensagem

Para falar com alguém, responda normalmente que encaminharemos.`

const purchaseUsage = "Uso: #COMPRA [código] [quantidade]\nEx: #COMPRA CABO-10MM 50"

var ticketStatusLabels = map[directory.TicketStatus]string{
	directory.TicketWaiting:    "aguardando",
	directory.TicketAccepted:   "aceito",
	directory.TicketInProgress: "em andamento",
	directory.TicketDone:       "concluído",
	directory.TicketCancelled:  "cancelado",
}

// CommandExecutor runs parsed commands against the collaborators and
// produces the reply text.
type CommandExecutor struct {
	inventory directory.Inventory
	purchases directory.Purchases
	tickets   directory.Tickets
	logger    *logging.Logger
	now       func() time.Time
}

func NewCommandExecutor(inventory directory.Inventory, purchases directory.Purchases, tickets directory.Tickets, logger *logging.Logger) *CommandExecutor {
	if logger == nil {
		logger = logging.Default()
	}
	return &CommandExecutor{
		inventory: inventory,
		purchases: purchases,
		tickets:   tickets,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute returns the reply for cmd, including the unknown-command and usage
// replies.
func (e *CommandExecutor) Execute(ctx context.Context, contractor directory.Contractor, cmd Command) string {
	switch {
	case errors.Is(cmd.Err, ErrUnknownCommand):
		return fmt.Sprintf("❓ Comando desconhecido: #%s\nEnvie #AJUDA para ver os comandos disponíveis.", cmd.Name)
	case errors.Is(cmd.Err, ErrCommandUsage):
		return purchaseUsage
	}
	switch cmd.Name {
	case CommandPurchase:
		return e.Purchase(ctx, contractor, cmd.ItemCode, cmd.Quantity)
	case CommandStatus:
		return e.Status(ctx, contractor)
	default:
		return e.Help()
	}
}

// Purchase records a purchase request for a known stock item.
func (e *CommandExecutor) Purchase(ctx context.Context, contractor directory.Contractor, code string, qty decimal.Decimal) string {
	if e.inventory == nil || e.purchases == nil {
		return "❌ Compras indisponíveis no momento."
	}
	if !qty.IsPositive() {
		return purchaseUsage
	}
	item, err := e.inventory.FindItem(ctx, code)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return fmt.Sprintf("❌ Item %s não encontrado no catálogo.", code)
		}
		e.logger.Error("stock lookup failed", "error", err, "item_code", code)
		return "❌ Erro ao processar pedido. Tente novamente."
	}
	req := &directory.PurchaseRequest{
		ItemCode:     item.Code,
		Quantity:     qty,
		ContractorID: contractor.ID,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.purchases.CreateRequest(ctx, req); err != nil {
		e.logger.Error("purchase request failed", "error", err, "item_code", code, "contractor_id", contractor.ID)
		return "❌ Erro ao processar pedido. Tente novamente."
	}
	e.logger.Info("purchase request created", "request_id", req.ID, "item_code", item.Code, "quantity", qty.String(), "contractor_id", contractor.ID)

	quantity := qty.String()
	if item.Unit != "" {
		quantity += " " + item.Unit
	}
	return fmt.Sprintf("✅ Solicitação recebida!\n\n*Item:* %s\n*Qtd:* %s", item.Name, quantity)
}

// Status lists the contractor's active tickets by deadline, flagging the
// overdue ones.
func (e *CommandExecutor) Status(ctx context.Context, contractor directory.Contractor) string {
	if e.tickets == nil {
		return "📋 Você não tem chamados ativos no momento."
	}
	tickets, err := e.tickets.ListByContractor(ctx, contractor.ID, directory.ActiveTicketStatuses)
	if err != nil {
		e.logger.Error("ticket lookup failed", "error", err, "contractor_id", contractor.ID)
		return "❌ Não foi possível consultar seus chamados agora. Tente novamente."
	}
	if len(tickets) == 0 {
		return "📋 Você não tem chamados ativos no momento."
	}
	sortTicketsByDeadline(tickets)

	now := e.now()
	var b strings.Builder
	b.WriteString("📋 *Seus Chamados Ativos*\n")
	for _, t := range tickets {
		icon := "✅"
		if t.Overdue(now) {
			icon = "⚠️"
		}
		label := ticketStatusLabels[t.Status]
		if label == "" {
			label = string(t.Status)
		}
		fmt.Fprintf(&b, "\n%s %s - %s\n   Prazo: %s\n", icon, t.Number, label, t.Deadline.Format("02/01"))
	}
	return b.String()
}

func (e *CommandExecutor) Help() string {
	return helpText
}

func sortTicketsByDeadline(tickets []directory.Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool { return tickets[i].Deadline.Before(tickets[j].Deadline) })
}
