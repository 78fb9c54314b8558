package protocol

import (
	"context"
	"log/slog"

	"github.com/docuflow/docuflow/pkg/models"
)

// ActionResult is what an action handler reports back to the dispatcher.
type ActionResult struct {
	// SideEffectRef identifies the external side effect the handler created,
	// e.g. a notification id. Recorded in the action's ledger entry.
	SideEffectRef string
	Output        map[string]any
}

// ActionHandler executes one conditional action against a step instance.
type ActionHandler interface {
	Execute(ctx context.Context, action *models.ConditionalAction, ectx models.ExecutionContext, logger *slog.Logger) (*ActionResult, error)
}

// ActionHandlerFactory builds the handler for one action type.
type ActionHandlerFactory interface {
	Create() (ActionHandler, error)
	Type() models.ActionType
}
