// Package testutil provides test data builders and in-memory collaborator
// fakes for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/pkg/models"
)

// StringValue builds a string comparison value.
func StringValue(s string) models.ConditionValue {
	return models.ConditionValue{Kind: models.ValueKindString, StringVal: s}
}

// NumberValue builds a numeric comparison value.
func NumberValue(n float64) models.ConditionValue {
	return models.ConditionValue{Kind: models.ValueKindNumber, NumberVal: n}
}

// BoolValue builds a boolean comparison value.
func BoolValue(b bool) models.ConditionValue {
	return models.ConditionValue{Kind: models.ValueKindBool, BoolVal: b}
}

// DateValue builds a date comparison value.
func DateValue(t time.Time) models.ConditionValue {
	return models.ConditionValue{Kind: models.ValueKindDate, DateVal: t}
}

// SetValue builds a set comparison value.
func SetValue(members ...string) models.ConditionValue {
	return models.ConditionValue{Kind: models.ValueKindSet, SetVal: members}
}

// NoneValue builds the empty value used by operators without a right-hand side.
func NoneValue() models.ConditionValue {
	return models.ConditionValue{Kind: models.ValueKindNone}
}

// CreateTestCondition creates a structured condition with default values that
// can be overridden.
func CreateTestCondition(overrides ...func(*models.Condition)) *models.Condition {
	condition := &models.Condition{
		ID:       uuid.New().String(),
		Language: models.LanguageStructured,
		Field:    "document.status",
		Operator: models.OperatorEquals,
		Value:    StringValue("pending"),
	}

	for _, override := range overrides {
		override(condition)
	}

	return condition
}

// WithField sets the condition's field path.
func WithField(field string) func(*models.Condition) {
	return func(c *models.Condition) {
		c.Field = field
	}
}

// WithOperator sets the condition's operator and comparison value.
func WithOperator(op models.Operator, value models.ConditionValue) func(*models.Condition) {
	return func(c *models.Condition) {
		c.Operator = op
		c.Value = value
	}
}

// WithExpression turns the condition into an expression leaf.
func WithExpression(expression string) func(*models.Condition) {
	return func(c *models.Condition) {
		c.Language = models.LanguageExpression
		c.Expression = expression
		c.Field = ""
		c.Operator = ""
		c.Value = models.ConditionValue{}
	}
}

// CaseSensitive makes string comparisons case-sensitive.
func CaseSensitive() func(*models.Condition) {
	return func(c *models.Condition) {
		c.CaseSensitive = true
	}
}

// CreateTestGroup creates an active AND group with a single default condition.
func CreateTestGroup(overrides ...func(*models.ConditionGroup)) *models.ConditionGroup {
	group := &models.ConditionGroup{
		ID:             uuid.New().String(),
		WorkflowStepID: "step-review",
		Operator:       models.LogicalAnd,
		Children: []models.GroupChild{
			{Position: 0, Condition: CreateTestCondition()},
		},
		Active: true,
	}

	for _, override := range overrides {
		override(group)
	}

	return group
}

// WithGroupOperator sets the group's logical operator.
func WithGroupOperator(op models.LogicalOperator) func(*models.ConditionGroup) {
	return func(g *models.ConditionGroup) {
		g.Operator = op
	}
}

// WithConditions replaces the group's children with the given leaf conditions.
func WithConditions(conditions ...*models.Condition) func(*models.ConditionGroup) {
	return func(g *models.ConditionGroup) {
		g.Children = make([]models.GroupChild, 0, len(conditions))
		for i, condition := range conditions {
			g.Children = append(g.Children, models.GroupChild{Position: i, Condition: condition})
		}
	}
}

// WithChildren replaces the group's children verbatim.
func WithChildren(children ...models.GroupChild) func(*models.ConditionGroup) {
	return func(g *models.ConditionGroup) {
		g.Children = children
	}
}

// WithStepID sets the workflow step the group is attached to.
func WithStepID(stepID string) func(*models.ConditionGroup) {
	return func(g *models.ConditionGroup) {
		g.WorkflowStepID = stepID
	}
}

// NestedGroup wraps a group as a child entry at the given position.
func NestedGroup(position int, group *models.ConditionGroup) models.GroupChild {
	return models.GroupChild{Position: position, Group: group}
}

// LeafChild wraps a condition as a child entry at the given position.
func LeafChild(position int, condition *models.Condition) models.GroupChild {
	return models.GroupChild{Position: position, Condition: condition}
}

// CreateTestAction creates an enabled send-notification action with default
// values that can be overridden.
func CreateTestAction(groupID string, overrides ...func(*models.ConditionalAction)) *models.ConditionalAction {
	action := &models.ConditionalAction{
		ID:      uuid.New().String(),
		GroupID: groupID,
		Type:    models.ActionSendNotification,
		Params: models.ActionParams{
			SendNotification: &models.SendNotificationParams{
				Role:         "reviewers",
				TemplateKind: "document-pending",
			},
		},
		Enabled: true,
	}

	for _, override := range overrides {
		override(action)
	}

	return action
}

// WithActionType sets the action's type and parameters together.
func WithActionType(actionType models.ActionType, params models.ActionParams) func(*models.ConditionalAction) {
	return func(a *models.ConditionalAction) {
		a.Type = actionType
		a.Params = params
	}
}

// WithExecutionOrder sets the action's position in its group.
func WithExecutionOrder(order int) func(*models.ConditionalAction) {
	return func(a *models.ConditionalAction) {
		a.ExecutionOrder = order
	}
}

// Disabled marks the action disabled.
func Disabled() func(*models.ConditionalAction) {
	return func(a *models.ConditionalAction) {
		a.Enabled = false
	}
}

// CreateTestRule creates an active elapsed-since-start escalation rule with
// default values that can be overridden.
func CreateTestRule(overrides ...func(*models.EscalationRule)) *models.EscalationRule {
	rule := &models.EscalationRule{
		ID:         uuid.New().String(),
		WorkflowID: "wf-invoice-approval",
		Trigger:    models.TriggerElapsedSinceStart,
		Threshold:  4 * time.Hour,
		ActionType: models.ActionSendNotification,
		ActionParams: models.ActionParams{
			SendNotification: &models.SendNotificationParams{
				Role:         "managers",
				TemplateKind: "step-overdue",
			},
		},
		MaxLevel: 3,
		OnMax:    models.OnMaxStop,
		Active:   true,
	}

	for _, override := range overrides {
		override(rule)
	}

	return rule
}

// WithTrigger sets the rule's trigger kind and threshold.
func WithTrigger(kind models.TriggerKind, threshold time.Duration) func(*models.EscalationRule) {
	return func(r *models.EscalationRule) {
		r.Trigger = kind
		r.Threshold = threshold
	}
}

// WithRepeatInterval enables re-firing after the given interval.
func WithRepeatInterval(interval time.Duration) func(*models.EscalationRule) {
	return func(r *models.EscalationRule) {
		r.RepeatInterval = &interval
	}
}

// WithMaxLevel caps the rule's escalation chain.
func WithMaxLevel(level int) func(*models.EscalationRule) {
	return func(r *models.EscalationRule) {
		r.MaxLevel = level
	}
}

// WithOnMax sets the at-cap behavior, including the terminal action when the
// behavior requires one.
func WithOnMax(behavior models.OnMaxBehavior, terminalType *models.ActionType, terminalParams *models.ActionParams) func(*models.EscalationRule) {
	return func(r *models.EscalationRule) {
		r.OnMax = behavior
		r.TerminalType = terminalType
		r.TerminalParams = terminalParams
	}
}

// CreateTestStepInstance creates an open step instance started two hours ago.
func CreateTestStepInstance(overrides ...func(*models.StepInstance)) *models.StepInstance {
	now := time.Now().UTC()
	instance := &models.StepInstance{
		ID:                 uuid.New().String(),
		WorkflowInstanceID: uuid.New().String(),
		WorkflowID:         "wf-invoice-approval",
		StepID:             "step-review",
		Status:             models.StepInstanceOpen,
		StartedAt:          now.Add(-2 * time.Hour),
		LastActivityAt:     now.Add(-2 * time.Hour),
	}

	for _, override := range overrides {
		override(instance)
	}

	return instance
}

// WithDueAt sets the step instance's due date.
func WithDueAt(dueAt time.Time) func(*models.StepInstance) {
	return func(s *models.StepInstance) {
		s.DueAt = &dueAt
	}
}

// StartedAgo moves the step instance's start and last activity back by d.
func StartedAgo(d time.Duration) func(*models.StepInstance) {
	return func(s *models.StepInstance) {
		s.StartedAt = time.Now().UTC().Add(-d)
		s.LastActivityAt = s.StartedAt
	}
}
