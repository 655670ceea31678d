package conversation

import (
	"context"

	"github.com/wolfman30/contractor-relay/internal/directory"
)

// Function is a system action an automation rule can invoke. The returned
// text is sent back to the contractor.
type Function func(ctx context.Context, contractor directory.Contractor, params map[string]string) (string, error)

// Functions maps rule function names to implementations.
type Functions map[string]Function

// DefaultFunctions exposes the command executor to automation rules.
func DefaultFunctions(exec *CommandExecutor) Functions {
	return Functions{
		"listar_chamados": func(ctx context.Context, c directory.Contractor, _ map[string]string) (string, error) {
			return exec.Status(ctx, c), nil
		},
		"ajuda": func(context.Context, directory.Contractor, map[string]string) (string, error) {
			return exec.Help(), nil
		},
	}
}
