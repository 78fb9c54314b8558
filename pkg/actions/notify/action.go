// Package notify sends a templated notification through the notification
// collaborator. Payload string values are rendered against the execution
// context before sending.
package notify

import (
	"context"
	"log/slog"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/protocol"
	"github.com/docuflow/docuflow/pkg/template"
)

type HandlerFactory struct {
	notifier protocol.Notifier
}

func NewHandlerFactory(notifier protocol.Notifier) *HandlerFactory {
	return &HandlerFactory{notifier: notifier}
}

func (*HandlerFactory) Type() models.ActionType {
	return models.ActionSendNotification
}

func (f *HandlerFactory) Create() (protocol.ActionHandler, error) {
	return &Handler{notifier: f.notifier}, nil
}

type Handler struct {
	notifier protocol.Notifier
}

func (h *Handler) Execute(ctx context.Context, action *models.ConditionalAction, ectx models.ExecutionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	params := action.Params.SendNotification

	payload, err := template.RenderPayload(params.Payload, ectx)
	if err != nil {
		return nil, err
	}

	target := protocol.NotificationTarget{UserID: params.UserID, Role: params.Role}

	notificationID, err := h.notifier.Send(ctx, target, params.TemplateKind, payload)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Notification sent",
		"step_instance_id", ectx.StepInstanceID,
		"template_kind", params.TemplateKind,
		"notification_id", notificationID)

	return &protocol.ActionResult{
		SideEffectRef: notificationID,
		Output:        map[string]any{"notification_id": notificationID},
	}, nil
}
