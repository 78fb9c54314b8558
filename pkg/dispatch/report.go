package dispatch

import (
	"time"

	"github.com/docuflow/docuflow/pkg/models"
)

// ActionOutcome records what happened to one action in a dispatch.
type ActionOutcome struct {
	ActionID      string                 `json:"action_id"`
	Type          models.ActionType      `json:"type"`
	Status        models.ExecutionStatus `json:"status"`
	Error         string                 `json:"error,omitempty"`
	SideEffectRef string                 `json:"side_effect_ref,omitempty"`
}

// ExecutionReport aggregates per-action outcomes for one dispatch. A failed
// action never aborts its siblings, so the report may mix statuses.
type ExecutionReport struct {
	GroupID        string          `json:"group_id"`
	StepInstanceID string          `json:"step_instance_id"`
	EventID        string          `json:"event_id"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Outcomes       []ActionOutcome `json:"outcomes"`
}

// Count returns how many outcomes carry the given status.
func (r *ExecutionReport) Count(status models.ExecutionStatus) int {
	count := 0

	for _, outcome := range r.Outcomes {
		if outcome.Status == status {
			count++
		}
	}

	return count
}
