package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/pkg/ledger"
	"github.com/docuflow/docuflow/pkg/models"
)

// LedgerRepository handles the append-only audit tables. Rows are only ever
// inserted; there is no update or delete path.
type LedgerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewLedgerRepository(db *sql.DB, logger *slog.Logger) *LedgerRepository {
	return &LedgerRepository{db: db, logger: logger}
}

func (r *LedgerRepository) RecordEvaluation(ctx context.Context, record *models.ConditionEvaluation) error {
	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate evaluation ID: %w", err)
		}

		record.ID = id.String()
	}

	if record.EvaluatedAt.IsZero() {
		record.EvaluatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO condition_evaluations
			(id, group_id, step_instance_id, result, evaluated_at, context_snapshot, trace, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.GroupID,
		record.StepInstanceID,
		record.Result,
		record.EvaluatedAt,
		nullableJSON(record.ContextSnapshot),
		nullableJSON(record.Trace),
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record evaluation: %w", err)
	}

	return nil
}

func (r *LedgerRepository) RecordExecution(ctx context.Context, record *models.ActionExecution) error {
	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		record.ID = id.String()
	}

	if record.ExecutedAt.IsZero() {
		record.ExecutedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO action_executions
			(id, action_id, step_instance_id, event_id, status, executed_at, error, side_effect_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.ActionID,
		record.StepInstanceID,
		record.EventID,
		record.Status,
		record.ExecutedAt,
		record.Error,
		record.SideEffectRef,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}

	return nil
}

func (r *LedgerRepository) EvaluationsByStepInstance(ctx context.Context, stepInstanceID string, timeRange ledger.Range) ([]*models.ConditionEvaluation, error) {
	query := `
		SELECT
			id
		  , group_id
		  , step_instance_id
		  , result
		  , evaluated_at
		  , context_snapshot
		  , trace
		  , error
		FROM condition_evaluations
		WHERE step_instance_id = $1
	`

	args := []any{stepInstanceID}
	query, args = appendRange(query, args, "evaluated_at", timeRange)
	query += " ORDER BY evaluated_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}

	defer r.closeRows(ctx, rows)

	records := make([]*models.ConditionEvaluation, 0)

	for rows.Next() {
		record := &models.ConditionEvaluation{}

		var snapshot, trace []byte

		err := rows.Scan(
			&record.ID,
			&record.GroupID,
			&record.StepInstanceID,
			&record.Result,
			&record.EvaluatedAt,
			&snapshot,
			&trace,
			&record.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}

		record.ContextSnapshot = snapshot
		record.Trace = trace

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluations: %w", err)
	}

	return records, nil
}

func (r *LedgerRepository) ExecutionsByStepInstance(ctx context.Context, stepInstanceID string, timeRange ledger.Range) ([]*models.ActionExecution, error) {
	query := executionSelect + " WHERE step_instance_id = $1"

	args := []any{stepInstanceID}
	query, args = appendRange(query, args, "executed_at", timeRange)
	query += " ORDER BY executed_at"

	return r.queryExecutions(ctx, query, args...)
}

func (r *LedgerRepository) ExecutionsByAction(ctx context.Context, actionID string, timeRange ledger.Range) ([]*models.ActionExecution, error) {
	query := executionSelect + " WHERE action_id = $1"

	args := []any{actionID}
	query, args = appendRange(query, args, "executed_at", timeRange)
	query += " ORDER BY executed_at"

	return r.queryExecutions(ctx, query, args...)
}

func (r *LedgerRepository) HasSucceededExecution(ctx context.Context, actionID, stepInstanceID, eventID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM action_executions
			WHERE action_id = $1 AND step_instance_id = $2 AND event_id = $3 AND status = 'succeeded'
		)
	`

	var exists bool

	err := r.db.QueryRowContext(ctx, query, actionID, stepInstanceID, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query execution existence: %w", err)
	}

	return exists, nil
}

const executionSelect = `
	SELECT
		id
	  , action_id
	  , step_instance_id
	  , event_id
	  , status
	  , executed_at
	  , error
	  , side_effect_ref
	FROM action_executions
`

func (r *LedgerRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.ActionExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	records := make([]*models.ActionExecution, 0)

	for rows.Next() {
		record := &models.ActionExecution{}

		err := rows.Scan(
			&record.ID,
			&record.ActionID,
			&record.StepInstanceID,
			&record.EventID,
			&record.Status,
			&record.ExecutedAt,
			&record.Error,
			&record.SideEffectRef,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return records, nil
}

// nullableJSON maps an empty payload to NULL instead of invalid empty JSONB.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}

	return raw
}

// appendRange adds time window predicates for non-zero bounds.
func appendRange(query string, args []any, column string, timeRange ledger.Range) (string, []any) {
	if !timeRange.From.IsZero() {
		args = append(args, timeRange.From)
		query += fmt.Sprintf(" AND %s >= $%d", column, len(args))
	}

	if !timeRange.To.IsZero() {
		args = append(args, timeRange.To)
		query += fmt.Sprintf(" AND %s <= $%d", column, len(args))
	}

	return query, args
}

func (r *LedgerRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
