package web

import (
	"time"

	"github.com/docuflow/docuflow/pkg/conditions"
)

// EvaluateRequest is the body of the evaluate endpoint.
type EvaluateRequest struct {
	StepInstanceID string `json:"step_instance_id" validate:"required"`
}

// EvaluateResponse carries the evaluation outcome and its trace.
type EvaluateResponse struct {
	GroupID     string            `json:"group_id"`
	Result      bool              `json:"result"`
	Trace       *conditions.Trace `json:"trace,omitempty"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}

// DispatchRequest is the body of the dispatch endpoint. It mirrors a
// step-transition event so manual dispatches and event-driven ones share the
// idempotency key semantics.
type DispatchRequest struct {
	EventID            string         `json:"event_id"         validate:"required"`
	StepInstanceID     string         `json:"step_instance_id" validate:"required"`
	WorkflowInstanceID string         `json:"workflow_instance_id"`
	WorkflowID         string         `json:"workflow_id"`
	ToStepID           string         `json:"to_step_id"       validate:"required"`
	Context            map[string]any `json:"context,omitempty"`
}
