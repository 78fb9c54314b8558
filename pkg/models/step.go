package models

import "time"

// StepInstanceStatus is the lifecycle state of a workflow step instance as
// reported by the external workflow engine.
type StepInstanceStatus string

const (
	StepInstanceOpen      StepInstanceStatus = "open"
	StepInstanceCompleted StepInstanceStatus = "completed"
	StepInstanceSkipped   StepInstanceStatus = "skipped"
)

// StepInstance is a single in-progress step of a running workflow, the unit
// conditions and escalations operate on. The external workflow engine owns
// these; the engine core reads them during scans.
type StepInstance struct {
	ID                 string             `json:"id"`
	WorkflowInstanceID string             `json:"workflow_instance_id"`
	WorkflowID         string             `json:"workflow_id"`
	StepID             string             `json:"step_id"`
	Status             StepInstanceStatus `json:"status"`
	AssigneeID         string             `json:"assignee_id,omitempty"`
	StartedAt          time.Time          `json:"started_at"`
	LastActivityAt     time.Time          `json:"last_activity_at"`
	DueAt              *time.Time         `json:"due_at,omitempty"`
}

// ExecutionContext carries the data a condition group is evaluated against
// and the identifiers that flow into ledger records.
type ExecutionContext struct {
	StepInstanceID     string         `json:"step_instance_id"`
	WorkflowInstanceID string         `json:"workflow_instance_id"`
	EventID            string         `json:"event_id"`
	Data               map[string]any `json:"data"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}
