package conditions

import (
	"encoding/json"

	"github.com/docuflow/docuflow/pkg/models"
)

// LeafTrace captures one leaf condition evaluation for the audit trail.
type LeafTrace struct {
	ConditionID string          `json:"condition_id"`
	Field       string          `json:"field,omitempty"`
	Operator    models.Operator `json:"operator,omitempty"`
	Expression  string          `json:"expression,omitempty"`
	Actual      any             `json:"actual,omitempty"`
	Result      bool            `json:"result"`
	Error       string          `json:"error,omitempty"`
}

// GroupTrace captures one group combination. ShortCircuited marks groups
// whose remaining children were never evaluated.
type GroupTrace struct {
	GroupID        string                 `json:"group_id"`
	Operator       models.LogicalOperator `json:"operator"`
	Result         bool                   `json:"result"`
	ShortCircuited bool                   `json:"short_circuited,omitempty"`
}

// Trace is the per-request evaluation detail stored inside a single
// ConditionEvaluation ledger record.
type Trace struct {
	Leaves []LeafTrace  `json:"leaves"`
	Groups []GroupTrace `json:"groups"`
}

// Marshal renders the trace as the JSON payload persisted with the record.
func (t *Trace) Marshal() json.RawMessage {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil
	}

	return payload
}

// Result is the outcome of evaluating a condition group tree.
type Result struct {
	GroupID string
	Value   bool
	Trace   *Trace
}
