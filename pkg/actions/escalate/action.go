// Package escalate raises an escalation instance directly from a condition
// dispatch, bypassing the time-based scan.
package escalate

import (
	"context"
	"log/slog"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/protocol"
)

type HandlerFactory struct {
	raiser protocol.EscalationRaiser
}

func NewHandlerFactory(raiser protocol.EscalationRaiser) *HandlerFactory {
	return &HandlerFactory{raiser: raiser}
}

func (*HandlerFactory) Type() models.ActionType {
	return models.ActionTriggerEscalation
}

func (f *HandlerFactory) Create() (protocol.ActionHandler, error) {
	return &Handler{raiser: f.raiser}, nil
}

type Handler struct {
	raiser protocol.EscalationRaiser
}

func (h *Handler) Execute(ctx context.Context, action *models.ConditionalAction, ectx models.ExecutionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	params := action.Params.TriggerEscalation

	instance, err := h.raiser.Raise(ctx, params.RuleID, ectx.StepInstanceID, ectx.EventID)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Escalation raised",
		"rule_id", params.RuleID,
		"step_instance_id", ectx.StepInstanceID,
		"instance_id", instance.ID,
		"level", instance.Level)

	return &protocol.ActionResult{
		SideEffectRef: instance.ID,
		Output:        map[string]any{"instance_id": instance.ID, "level": instance.Level},
	}, nil
}
