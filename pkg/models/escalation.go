package models

import (
	"errors"
	"fmt"
	"time"
)

// TriggerKind determines which elapsed metric an escalation rule measures.
type TriggerKind string

const (
	TriggerElapsedSinceStart    TriggerKind = "elapsed-since-step-start"
	TriggerElapsedSinceActivity TriggerKind = "elapsed-since-last-activity"
	TriggerDueDatePassed        TriggerKind = "due-date-passed"
	TriggerCustomCondition      TriggerKind = "custom-condition"
)

// OnMaxBehavior selects what happens when a rule re-fires on a step instance
// that is already at max escalation level.
type OnMaxBehavior string

const (
	// OnMaxStop suppresses further exceedances silently.
	OnMaxStop OnMaxBehavior = "stop"
	// OnMaxRepeat re-executes the rule's escalation action at the capped level.
	OnMaxRepeat OnMaxBehavior = "repeat-last"
	// OnMaxTerminal executes the rule's terminal action once, then stops.
	OnMaxTerminal OnMaxBehavior = "terminal-action"
)

// EscalationRule describes when a stalled step escalates and what happens then.
// Scope is a workflow id plus an optional step id; a nil StepID covers every
// step of the workflow.
type EscalationRule struct {
	ID               string         `json:"id"`
	WorkflowID       string         `json:"workflow_id" validate:"required"`
	StepID           *string        `json:"step_id,omitempty"`
	Trigger          TriggerKind    `json:"trigger"     validate:"required"`
	Threshold        time.Duration  `json:"threshold"`
	ConditionGroupID *string        `json:"condition_group_id,omitempty"`
	ActionType       ActionType     `json:"action_type"`
	ActionParams     ActionParams   `json:"action_params"`
	MaxLevel         int            `json:"max_level"`
	RepeatInterval   *time.Duration `json:"repeat_interval,omitempty"`
	OnMax            OnMaxBehavior  `json:"on_max"`
	TerminalType     *ActionType    `json:"terminal_type,omitempty"`
	TerminalParams   *ActionParams  `json:"terminal_params,omitempty"`
	Active           bool           `json:"active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeactivatedAt    *time.Time     `json:"deactivated_at,omitempty"`
}

// AppliesTo reports whether the rule's scope covers the given step.
func (r *EscalationRule) AppliesTo(workflowID, stepID string) bool {
	if r.WorkflowID != workflowID {
		return false
	}

	return r.StepID == nil || *r.StepID == stepID
}

// Validate rejects malformed rules at configuration write time.
func (r *EscalationRule) Validate() error {
	switch r.Trigger {
	case TriggerElapsedSinceStart, TriggerElapsedSinceActivity:
		if r.Threshold <= 0 {
			return fmt.Errorf("trigger %s requires a positive threshold", r.Trigger)
		}
	case TriggerDueDatePassed:
		// Threshold is an optional grace period past the due date.
		if r.Threshold < 0 {
			return errors.New("due-date-passed grace period cannot be negative")
		}
	case TriggerCustomCondition:
		if r.ConditionGroupID == nil || *r.ConditionGroupID == "" {
			return errors.New("custom-condition trigger requires a condition group reference")
		}
	default:
		return fmt.Errorf("unsupported trigger kind: %s", r.Trigger)
	}

	if r.MaxLevel < 1 {
		return errors.New("max escalation level must be at least 1")
	}

	if r.RepeatInterval != nil && *r.RepeatInterval <= 0 {
		return errors.New("repeat interval must be positive when set")
	}

	if err := r.ActionParams.ValidateFor(r.ActionType); err != nil {
		return fmt.Errorf("escalation action: %w", err)
	}

	switch r.OnMax {
	case OnMaxStop, OnMaxRepeat, "":
	case OnMaxTerminal:
		if r.TerminalType == nil || r.TerminalParams == nil {
			return errors.New("terminal-action behavior requires a terminal action")
		}

		if err := r.TerminalParams.ValidateFor(*r.TerminalType); err != nil {
			return fmt.Errorf("terminal action: %w", err)
		}
	default:
		return fmt.Errorf("unsupported on-max behavior: %s", r.OnMax)
	}

	return nil
}

// EscalationStatus is the lifecycle state of an escalation instance.
type EscalationStatus string

const (
	EscalationPending    EscalationStatus = "pending"
	EscalationTriggered  EscalationStatus = "triggered"
	EscalationResolved   EscalationStatus = "resolved"
	EscalationSuppressed EscalationStatus = "suppressed"
)

// EscalationInstance tracks one rule firing chain on one step instance.
// Level increments each time the rule re-fires, capped at the rule's max.
// At most one pending instance exists per (rule, step instance); the
// persistence layer enforces this with an atomic insert-if-absent.
type EscalationInstance struct {
	ID             string           `json:"id"`
	RuleID         string           `json:"rule_id"`
	StepInstanceID string           `json:"step_instance_id"`
	Level          int              `json:"level"`
	Status         EscalationStatus `json:"status"`
	TriggeredAt    *time.Time       `json:"triggered_at,omitempty"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Open reports whether the instance still participates in scans.
func (e *EscalationInstance) Open() bool {
	return e.Status == EscalationPending || e.Status == EscalationTriggered
}
