package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
)

// ActionRepository handles conditional action rows.
type ActionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewActionRepository(db *sql.DB, logger *slog.Logger) *ActionRepository {
	return &ActionRepository{db: db, logger: logger}
}

// GetByGroup returns the group's live actions in ascending execution order,
// ties broken by creation time.
func (r *ActionRepository) GetByGroup(ctx context.Context, groupID string) ([]*models.ConditionalAction, error) {
	query := `
		SELECT
			id
		  , group_id
		  , action_type
		  , params
		  , execution_order
		  , enabled
		  , created_at
		  , updated_at
		  , deactivated_at
		FROM conditional_actions
		WHERE group_id = $1 AND deactivated_at IS NULL
		ORDER BY execution_order, created_at
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	actions := make([]*models.ConditionalAction, 0)

	for rows.Next() {
		action := &models.ConditionalAction{}

		var paramsJSON []byte

		err := rows.Scan(
			&action.ID,
			&action.GroupID,
			&action.Type,
			&paramsJSON,
			&action.ExecutionOrder,
			&action.Enabled,
			&action.CreatedAt,
			&action.UpdatedAt,
			&action.DeactivatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		if err := json.Unmarshal(paramsJSON, &action.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action params: %w", err)
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

func (r *ActionRepository) Save(ctx context.Context, action *models.ConditionalAction) error {
	if err := action.Validate(); err != nil {
		return persistence.NewStoreError("SaveAction", action.ID, err)
	}

	now := time.Now().UTC()

	if action.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate action ID: %w", err)
		}

		action.ID = id.String()
	}

	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}

	action.UpdatedAt = now

	paramsJSON, err := json.Marshal(action.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal action params: %w", err)
	}

	query := `
		INSERT INTO conditional_actions
			(id, group_id, action_type, params, execution_order, enabled, created_at, updated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			action_type = EXCLUDED.action_type,
			params = EXCLUDED.params,
			execution_order = EXCLUDED.execution_order,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at,
			deactivated_at = EXCLUDED.deactivated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		action.ID,
		action.GroupID,
		action.Type,
		paramsJSON,
		action.ExecutionOrder,
		action.Enabled,
		action.CreatedAt,
		action.UpdatedAt,
		action.DeactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save action: %w", err)
	}

	return nil
}

// Deactivate soft-deletes: actions referenced by ledger history stay queryable.
func (r *ActionRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE conditional_actions
		SET enabled = false, deactivated_at = $2, updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate action: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivation result: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("DeactivateAction", id, persistence.ErrActionNotFound)
	}

	return nil
}
