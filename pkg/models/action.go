package models

import (
	"errors"
	"fmt"
	"time"
)

// ActionType identifies what a conditional action does when its owning group
// evaluates true.
type ActionType string

const (
	ActionRouteToStep       ActionType = "route-to-step"
	ActionAssignUser        ActionType = "assign-user"
	ActionSendNotification  ActionType = "send-notification"
	ActionSetFieldValue     ActionType = "set-field-value"
	ActionSkipStep          ActionType = "skip-step"
	ActionTriggerEscalation ActionType = "trigger-escalation"
	ActionTerminateWorkflow ActionType = "terminate-workflow"
)

// RouteToStepParams moves the workflow instance to another step.
type RouteToStepParams struct {
	TargetStepID string `json:"target_step_id" validate:"required"`
}

// AssignUserParams assigns the step to a user or to any member of a role.
// Exactly one of UserID or Role must be set.
type AssignUserParams struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// SendNotificationParams sends a templated notification. Payload values may
// contain template placeholders resolved against the execution context.
type SendNotificationParams struct {
	UserID       string         `json:"user_id,omitempty"`
	Role         string         `json:"role,omitempty"`
	TemplateKind string         `json:"template_kind" validate:"required"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// SetFieldValueParams writes a value into the workflow instance data context.
type SetFieldValueParams struct {
	Field string `json:"field" validate:"required"`
	Value any    `json:"value"`
}

// SkipStepParams marks the current step as skipped.
type SkipStepParams struct {
	Reason string `json:"reason,omitempty"`
}

// TriggerEscalationParams raises an escalation instance for a rule directly,
// bypassing the time-based scheduler.
type TriggerEscalationParams struct {
	RuleID string `json:"rule_id" validate:"required"`
}

// TerminateWorkflowParams aborts the whole workflow instance.
type TerminateWorkflowParams struct {
	Reason string `json:"reason,omitempty"`
}

// ActionParams is a closed tagged union with one variant per ActionType.
// Exactly the variant matching the owning action's type must be set; this is
// enforced at configuration write time so the dispatcher never type-checks
// parameters at runtime.
type ActionParams struct {
	RouteToStep       *RouteToStepParams       `json:"route_to_step,omitempty"`
	AssignUser        *AssignUserParams        `json:"assign_user,omitempty"`
	SendNotification  *SendNotificationParams  `json:"send_notification,omitempty"`
	SetFieldValue     *SetFieldValueParams     `json:"set_field_value,omitempty"`
	SkipStep          *SkipStepParams          `json:"skip_step,omitempty"`
	TriggerEscalation *TriggerEscalationParams `json:"trigger_escalation,omitempty"`
	TerminateWorkflow *TerminateWorkflowParams `json:"terminate_workflow,omitempty"`
}

func (p ActionParams) variantCount() int {
	count := 0

	for _, set := range []bool{
		p.RouteToStep != nil,
		p.AssignUser != nil,
		p.SendNotification != nil,
		p.SetFieldValue != nil,
		p.SkipStep != nil,
		p.TriggerEscalation != nil,
		p.TerminateWorkflow != nil,
	} {
		if set {
			count++
		}
	}

	return count
}

// ValidateFor checks that exactly the variant matching actionType is set and
// that the variant's own required fields are present.
func (p ActionParams) ValidateFor(actionType ActionType) error {
	if p.variantCount() > 1 {
		return errors.New("action parameters must set exactly one variant")
	}

	switch actionType {
	case ActionRouteToStep:
		if p.RouteToStep == nil || p.RouteToStep.TargetStepID == "" {
			return errors.New("route-to-step requires a target step id")
		}
	case ActionAssignUser:
		if p.AssignUser == nil {
			return errors.New("assign-user requires parameters")
		}

		if (p.AssignUser.UserID == "") == (p.AssignUser.Role == "") {
			return errors.New("assign-user requires exactly one of user_id or role")
		}
	case ActionSendNotification:
		if p.SendNotification == nil || p.SendNotification.TemplateKind == "" {
			return errors.New("send-notification requires a template kind")
		}

		if p.SendNotification.UserID == "" && p.SendNotification.Role == "" {
			return errors.New("send-notification requires a user_id or role target")
		}
	case ActionSetFieldValue:
		if p.SetFieldValue == nil || p.SetFieldValue.Field == "" {
			return errors.New("set-field-value requires a field path")
		}
	case ActionSkipStep:
		if p.SkipStep == nil {
			return errors.New("skip-step requires parameters")
		}
	case ActionTriggerEscalation:
		if p.TriggerEscalation == nil || p.TriggerEscalation.RuleID == "" {
			return errors.New("trigger-escalation requires a rule id")
		}
	case ActionTerminateWorkflow:
		if p.TerminateWorkflow == nil {
			return errors.New("terminate-workflow requires parameters")
		}
	default:
		return fmt.Errorf("unsupported action type: %s", actionType)
	}

	return nil
}

// ConditionalAction is executed when its owning condition group evaluates
// true. Actions in a group run in ascending ExecutionOrder, ties broken by
// creation time.
type ConditionalAction struct {
	ID             string       `json:"id"`
	GroupID        string       `json:"group_id"        validate:"required"`
	Type           ActionType   `json:"type"            validate:"required"`
	Params         ActionParams `json:"params"`
	ExecutionOrder int          `json:"execution_order"`
	Enabled        bool         `json:"enabled"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	DeactivatedAt  *time.Time   `json:"deactivated_at,omitempty"`
}

// Validate rejects malformed actions at configuration write time.
func (a *ConditionalAction) Validate() error {
	if a.GroupID == "" {
		return errors.New("action requires an owning group id")
	}

	if err := a.Params.ValidateFor(a.Type); err != nil {
		return fmt.Errorf("action %s: %w", a.ID, err)
	}

	return nil
}
