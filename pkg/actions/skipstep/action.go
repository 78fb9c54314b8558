// Package skipstep marks the current step as skipped in the workflow engine.
package skipstep

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
	return models.ActionSkipStep
}

func (f *HandlerFactory) Create() (protocol.ActionHandler, error) {
	return &Handler{engine: f.engine}, nil
}

type Handler struct {
	engine protocol.WorkflowEngine
}

func (h *Handler) Execute(ctx context.Context, action *models.ConditionalAction, ectx models.ExecutionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	params := action.Params.SkipStep

	logger.InfoContext(ctx, "Skipping step",
		"step_instance_id", ectx.StepInstanceID,
		"reason", params.Reason)

	if err := h.engine.SkipStep(ctx, ectx.StepInstanceID, params.Reason); err != nil {
		return nil, err
	}

	return &protocol.ActionResult{}, nil
}
