// Package setfield writes a value into the workflow instance data context.
package setfield

import (
	"context"
	"log/slog"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/protocol"
	"github.com/docuflow/docuflow/pkg/template"
)

type HandlerFactory struct {
	engine protocol.WorkflowEngine
}

func NewHandlerFactory(engine protocol.WorkflowEngine) *HandlerFactory {
	return &HandlerFactory{engine: engine}
}

func (*HandlerFactory) Type() models.ActionType {
	return models.ActionSetFieldValue
}

func (f *HandlerFactory) Create() (protocol.ActionHandler, error) {
	return &Handler{engine: f.engine}, nil
}

type Handler struct {
	engine protocol.WorkflowEngine
}

func (h *Handler) Execute(ctx context.Context, action *models.ConditionalAction, ectx models.ExecutionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	params := action.Params.SetFieldValue

	value := params.Value
	if s, ok := value.(string); ok {
		rendered, err := template.RenderWithContext(s, ectx)
		if err != nil {
			return nil, err
		}

		value = rendered
	}

	logger.InfoContext(ctx, "Setting field value",
		"step_instance_id", ectx.StepInstanceID,
		"field", params.Field)

	if err := h.engine.SetField(ctx, ectx.StepInstanceID, params.Field, value); err != nil {
		return nil, err
	}

	return &protocol.ActionResult{
		Output: map[string]any{"field": params.Field, "value": value},
	}, nil
}
