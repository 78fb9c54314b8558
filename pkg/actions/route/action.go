// Package route moves the workflow instance to another step when its owning
// condition group fires.
package route

import (
	"context"
	"log/slog"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/protocol"
)

type HandlerFactory struct {
	engine protocol.WorkflowEngine
}

func NewHandlerFactory(engine protocol.WorkflowEngine) *HandlerFactory {
	return &HandlerFactory{engine: engine}
}

func (*HandlerFactory) Type() models.ActionType {
	return models.ActionRouteToStep
}

func (f *HandlerFactory) Create() (protocol.ActionHandler, error) {
	return &Handler{engine: f.engine}, nil
}

type Handler struct {
	engine protocol.WorkflowEngine
}

func (h *Handler) Execute(ctx context.Context, action *models.ConditionalAction, ectx models.ExecutionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	params := action.Params.RouteToStep

	logger.InfoContext(ctx, "Routing workflow to step",
		"step_instance_id", ectx.StepInstanceID,
		"target_step_id", params.TargetStepID)

	if err := h.engine.AdvanceStep(ctx, ectx.StepInstanceID, params.TargetStepID); err != nil {
		return nil, err
	}

	return &protocol.ActionResult{
		Output: map[string]any{"target_step_id": params.TargetStepID},
	}, nil
}
