// Package persistence provides the data storage abstraction for condition
// configuration, escalation instances and the audit ledger.
package persistence

import (
	"context"

	"github.com/docuflow/docuflow/pkg/ledger"
	"github.com/docuflow/docuflow/pkg/models"
)

// EscalationInstanceFilter narrows ListEscalationInstances.
type EscalationInstanceFilter struct {
	RuleID         string
	StepInstanceID string
	Status         models.EscalationStatus
}

type Persistence interface {
	// Condition configuration. Groups are stored flat (parent id + position)
	// and returned assembled as trees.
	ConditionGroups(ctx context.Context) ([]*models.ConditionGroup, error)
	ConditionGroupByID(ctx context.Context, id string) (*models.ConditionGroup, error)
	ConditionGroupsByStep(ctx context.Context, workflowStepID string) ([]*models.ConditionGroup, error)
	SaveConditionGroup(ctx context.Context, group *models.ConditionGroup) error
	DeactivateConditionGroup(ctx context.Context, id string) error

	// Conditional actions, returned in execution order.
	ActionsByGroup(ctx context.Context, groupID string) ([]*models.ConditionalAction, error)
	SaveAction(ctx context.Context, action *models.ConditionalAction) error
	DeactivateAction(ctx context.Context, id string) error

	// Escalation rules.
	EscalationRules(ctx context.Context) ([]*models.EscalationRule, error)
	EscalationRuleByID(ctx context.Context, id string) (*models.EscalationRule, error)
	ActiveEscalationRules(ctx context.Context) ([]*models.EscalationRule, error)
	SaveEscalationRule(ctx context.Context, rule *models.EscalationRule) error
	DeactivateEscalationRule(ctx context.Context, id string) error

	// Escalation instances. CreatePendingInstance is the atomic
	// insert-if-absent guard: it returns ErrDuplicatePending when a pending
	// instance already exists for (rule, step instance).
	CreatePendingInstance(ctx context.Context, instance *models.EscalationInstance) error
	UpdateEscalationInstance(ctx context.Context, instance *models.EscalationInstance) error
	EscalationInstanceByID(ctx context.Context, id string) (*models.EscalationInstance, error)
	OpenInstance(ctx context.Context, ruleID, stepInstanceID string) (*models.EscalationInstance, error)
	ListEscalationInstances(ctx context.Context, filter EscalationInstanceFilter) ([]*models.EscalationInstance, error)
	OpenInstancesByStepInstance(ctx context.Context, stepInstanceID string) ([]*models.EscalationInstance, error)

	ledger.Ledger

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
