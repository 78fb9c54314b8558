// Package assign reassigns a step to a user resolved through the directory.
// Role targets resolve to the first member of the role.
package assign

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/protocol"
)

type HandlerFactory struct {
	engine    protocol.WorkflowEngine
	directory protocol.Directory
}

func NewHandlerFactory(engine protocol.WorkflowEngine, directory protocol.Directory) *HandlerFactory {
	return &HandlerFactory{engine: engine, directory: directory}
}

func (*HandlerFactory) Type() models.ActionType {
	return models.ActionAssignUser
}

func (f *HandlerFactory) Create() (protocol.ActionHandler, error) {
	return &Handler{engine: f.engine, directory: f.directory}, nil
}

type Handler struct {
	engine    protocol.WorkflowEngine
	directory protocol.Directory
}

func (h *Handler) Execute(ctx context.Context, action *models.ConditionalAction, ectx models.ExecutionContext, logger *slog.Logger) (*protocol.ActionResult, error) {
	params := action.Params.AssignUser

	user, err := h.resolveTarget(ctx, params)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Assigning step",
		"step_instance_id", ectx.StepInstanceID,
		"assignee_id", user.ID)

	if err := h.engine.AssignStep(ctx, ectx.StepInstanceID, user.ID); err != nil {
		return nil, err
	}

	return &protocol.ActionResult{
		SideEffectRef: user.ID,
		Output:        map[string]any{"assignee_id": user.ID},
	}, nil
}

func (h *Handler) resolveTarget(ctx context.Context, params *models.AssignUserParams) (*protocol.User, error) {
	if params.UserID != "" {
		user, err := h.directory.ResolveUser(ctx, params.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user %s: %w", params.UserID, err)
		}

		return user, nil
	}

	members, err := h.directory.ResolveRole(ctx, params.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role %s: %w", params.Role, err)
	}

	if len(members) == 0 {
		return nil, fmt.Errorf("role %s has no members", params.Role)
	}

	return members[0], nil
}
