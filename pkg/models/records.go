package models

import (
	"encoding/json"
	"time"
)

// ConditionEvaluation is an append-only audit record: one row per evaluate
// call, with per-leaf detail carried in the Trace payload.
type ConditionEvaluation struct {
	ID              string          `json:"id"`
	GroupID         string          `json:"group_id"`
	StepInstanceID  string          `json:"step_instance_id"`
	Result          bool            `json:"result"`
	EvaluatedAt     time.Time       `json:"evaluated_at"`
	ContextSnapshot json.RawMessage `json:"context_snapshot,omitempty"`
	Trace           json.RawMessage `json:"trace,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// ExecutionStatus is the outcome of a single action execution.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionSkipped   ExecutionStatus = "skipped"
)

// ActionExecution is an append-only audit record for one action run. EventID
// identifies the triggering event so replays of the same event can be
// detected and skipped.
type ActionExecution struct {
	ID             string          `json:"id"`
	ActionID       string          `json:"action_id"`
	StepInstanceID string          `json:"step_instance_id"`
	EventID        string          `json:"event_id"`
	Status         ExecutionStatus `json:"status"`
	ExecutedAt     time.Time       `json:"executed_at"`
	Error          string          `json:"error,omitempty"`
	SideEffectRef  string          `json:"side_effect_ref,omitempty"`
}
