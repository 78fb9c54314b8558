// Package ledger defines the append-only audit trail for condition
// evaluations and action executions. Records are immutable once written;
// retention pruning is an external concern.
package ledger

import (
	"context"
	"time"

	"github.com/docuflow/docuflow/pkg/models"
)

// Range filters ledger queries by time window. Zero bounds are open.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether ts falls within the range.
func (r Range) Contains(ts time.Time) bool {
	if !r.From.IsZero() && ts.Before(r.From) {
		return false
	}

	if !r.To.IsZero() && ts.After(r.To) {
		return false
	}

	return true
}

// Ledger is the append-only write and query interface. RecordEvaluation and
// RecordExecution never update or delete existing rows.
type Ledger interface {
	RecordEvaluation(ctx context.Context, record *models.ConditionEvaluation) error
	RecordExecution(ctx context.Context, record *models.ActionExecution) error

	EvaluationsByStepInstance(ctx context.Context, stepInstanceID string, timeRange Range) ([]*models.ConditionEvaluation, error)
	ExecutionsByStepInstance(ctx context.Context, stepInstanceID string, timeRange Range) ([]*models.ActionExecution, error)
	ExecutionsByAction(ctx context.Context, actionID string, timeRange Range) ([]*models.ActionExecution, error)

	// HasSucceededExecution is the idempotency lookup: it reports whether a
	// succeeded execution already exists for (action, step instance, event).
	HasSucceededExecution(ctx context.Context, actionID, stepInstanceID, eventID string) (bool, error)
}
