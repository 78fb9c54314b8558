// Package protocol defines the contracts between the engine core and its
// external collaborators.
package protocol

import (
	"context"

	"github.com/docuflow/docuflow/pkg/models"
)

// WorkflowEngine is the external engine that owns workflow instances and
// their step pointers. Route and terminate actions delegate here; the
// engine core never mutates workflow state itself.
type WorkflowEngine interface {
	// GetContext returns the data context of a step instance as a flat,
	// dot-addressable key/value mapping.
	GetContext(ctx context.Context, stepInstanceID string) (map[string]any, error)

	// OpenStepInstances lists all in-progress step instances for a workflow.
	OpenStepInstances(ctx context.Context, workflowID string) ([]*models.StepInstance, error)

	AdvanceStep(ctx context.Context, stepInstanceID, targetStepID string) error
	AssignStep(ctx context.Context, stepInstanceID, userID string) error
	SkipStep(ctx context.Context, stepInstanceID, reason string) error
	SetField(ctx context.Context, stepInstanceID, field string, value any) error
	Terminate(ctx context.Context, workflowInstanceID, reason string) error
}

// EscalationRaiser creates escalation instances on demand. Condition-driven
// trigger-escalation actions funnel through the same insert-if-absent and
// level guards as the time-based scheduler.
type EscalationRaiser interface {
	Raise(ctx context.Context, ruleID, stepInstanceID, eventID string) (*models.EscalationInstance, error)
}

// NotificationTarget addresses a notification at a user or a role.
type NotificationTarget struct {
	UserID string
	Role   string
}

// Notifier dispatches templated notifications and returns the created
// notification id for the audit trail.
type Notifier interface {
	Send(ctx context.Context, target NotificationTarget, templateKind string, payload map[string]any) (string, error)
}

// User is a resolved directory entry.
type User struct {
	ID    string
	Email string
}

// Directory resolves assignment targets to concrete users.
type Directory interface {
	ResolveUser(ctx context.Context, userID string) (*User, error)
	ResolveRole(ctx context.Context, role string) ([]*User, error)
}
