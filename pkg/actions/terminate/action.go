// Package terminate aborts the whole workflow instance.
package terminate

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
	return models.ActionTerminateWorkflow
}

func (f *HandlerFactory) Create() (protocol.ActionHandler, error) {
	return &Handler{engine: f.engine}, nil
}

type Handler struct {
	engine protocol.WorkflowEngine
}

func (h *Handler) Execute(ctx context.Context, action *models.ConditionalAction, ectx models.ExecutionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	params := action.Params.TerminateWorkflow

	logger.WarnContext(ctx, "Terminating workflow instance",
		"workflow_instance_id", ectx.WorkflowInstanceID,
		"reason", params.Reason)

	if err := h.engine.Terminate(ctx, ectx.WorkflowInstanceID, params.Reason); err != nil {
		return nil, err
	}

	return &protocol.ActionResult{}, nil
}
