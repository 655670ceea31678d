package conversation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// CommandName is the upper-cased token after '#'.
type CommandName string

const (
	CommandPurchase CommandName = "COMPRA"
	CommandStatus   CommandName = "STATUS"
	CommandHelp     CommandName = "AJUDA"
)

var (
	ErrUnknownCommand = errors.New("conversation: unknown command")
	ErrCommandUsage   = errors.New("conversation: malformed command")
)

var commandPattern = regexp.MustCompile(`(?s)^#(\S*)\s*(.*)$`)

// Command is a parsed # command. Err is ErrUnknownCommand or ErrCommandUsage
// when the text looked like a command but cannot run.
type Command struct {
	Name     CommandName
	Args     []string
	ItemCode string
	Quantity decimal.Decimal
	Err      error
}

// ParseCommand recognises text starting with '#'. The bool is false for
// plain text, which the router hands to the automation rules instead.
func ParseCommand(text string) (Command, bool) {
	m := commandPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Command{}, false
	}
	cmd := Command{
		Name: CommandName(strings.ToUpper(m[1])),
		Args: strings.Fields(m[2]),
	}
	switch cmd.Name {
	case CommandStatus, CommandHelp:
	case CommandPurchase:
		if len(cmd.Args) != 2 {
			cmd.Err = ErrCommandUsage
			break
		}
		qty, err := parseQuantity(cmd.Args[1])
		if err != nil || !qty.IsPositive() {
			cmd.Err = ErrCommandUsage
			break
		}
		cmd.ItemCode = strings.ToUpper(cmd.Args[0])
		cmd.Quantity = qty
	default:
		cmd.Err = ErrUnknownCommand
	}
	return cmd, true
}

// parseQuantity accepts both "2.5" and the Brazilian "2,5".
func parseQuantity(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
}
