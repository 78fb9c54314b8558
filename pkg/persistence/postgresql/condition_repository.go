package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
)

// ConditionGroupRepository handles condition group and condition rows.
// Groups are stored flat (parent id + position per node) and assembled into
// trees on read; root_group_id lets a whole tree be fetched in two queries.
type ConditionGroupRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewConditionGroupRepository(db *sql.DB, logger *slog.Logger) *ConditionGroupRepository {
	return &ConditionGroupRepository{db: db, logger: logger}
}

type groupRow struct {
	group    *models.ConditionGroup
	parentID sql.NullString
	position int
}

// GetAll returns all root condition groups, assembled.
func (r *ConditionGroupRepository) GetAll(ctx context.Context) ([]*models.ConditionGroup, error) {
	query := `
		SELECT DISTINCT root_group_id
		FROM condition_groups
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query condition group roots: %w", err)
	}

	defer r.closeRows(ctx, rows)

	rootIDs := make([]string, 0)

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan root id: %w", err)
		}

		rootIDs = append(rootIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating condition group roots: %w", err)
	}

	groups := make([]*models.ConditionGroup, 0, len(rootIDs))

	for _, rootID := range rootIDs {
		group, err := r.assembleTree(ctx, rootID)
		if err != nil {
			if errors.Is(err, persistence.ErrConditionGroupNotFound) {
				continue
			}

			return nil, err
		}

		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})

	return groups, nil
}

// GetByID returns the assembled tree rooted at id.
func (r *ConditionGroupRepository) GetByID(ctx context.Context, id string) (*models.ConditionGroup, error) {
	return r.assembleTree(ctx, id)
}

// GetByStep returns the active root groups attached to a workflow step.
func (r *ConditionGroupRepository) GetByStep(ctx context.Context, workflowStepID string) ([]*models.ConditionGroup, error) {
	query := `
		SELECT id
		FROM condition_groups
		WHERE workflow_step_id = $1 AND parent_group_id IS NULL AND active = true
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, workflowStepID)
	if err != nil {
		return nil, fmt.Errorf("failed to query condition groups by step: %w", err)
	}

	defer r.closeRows(ctx, rows)

	ids := make([]string, 0)

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating condition groups: %w", err)
	}

	groups := make([]*models.ConditionGroup, 0, len(ids))

	for _, id := range ids {
		group, err := r.assembleTree(ctx, id)
		if err != nil {
			return nil, err
		}

		groups = append(groups, group)
	}

	return groups, nil
}

// Save writes the whole tree: existing nodes of the tree are replaced.
func (r *ConditionGroupRepository) Save(ctx context.Context, group *models.ConditionGroup) error {
	if group.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate group ID: %w", err)
		}

		group.ID = id.String()
	}

	if err := group.Validate(); err != nil {
		return persistence.NewStoreError("SaveConditionGroup", group.ID, err)
	}

	now := time.Now().UTC()

	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}

	group.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Replace the previous version of the tree; conditions cascade.
	_, err = tx.ExecContext(ctx, "DELETE FROM condition_groups WHERE root_group_id = $1", group.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing tree: %w", err)
	}

	err = r.insertTree(ctx, tx, group, group.ID, nil, 0, now)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit condition group: %w", err)
	}

	return nil
}

func (r *ConditionGroupRepository) insertTree(ctx context.Context, tx *sql.Tx, group *models.ConditionGroup, rootID string, parentID *string, position int, now time.Time) error {
	if group.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate group ID: %w", err)
		}

		group.ID = id.String()
	}

	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}

	group.UpdatedAt = now

	groupQuery := `
		INSERT INTO condition_groups
			(id, root_group_id, parent_group_id, workflow_step_id, position, operator, active, created_at, updated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := tx.ExecContext(ctx, groupQuery,
		group.ID,
		rootID,
		parentID,
		group.WorkflowStepID,
		position,
		group.Operator,
		group.Active,
		group.CreatedAt,
		group.UpdatedAt,
		group.DeactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert condition group %s: %w", group.ID, err)
	}

	for i, child := range group.Children {
		childPosition := child.Position
		if childPosition == 0 {
			childPosition = i
		}

		switch {
		case child.Condition != nil:
			if err := r.insertCondition(ctx, tx, group.ID, child.Condition, childPosition, now); err != nil {
				return err
			}
		case child.Group != nil:
			child.Group.WorkflowStepID = group.WorkflowStepID

			if err := r.insertTree(ctx, tx, child.Group, rootID, &group.ID, childPosition, now); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *ConditionGroupRepository) insertCondition(ctx context.Context, tx *sql.Tx, groupID string, condition *models.Condition, position int, now time.Time) error {
	if condition.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate condition ID: %w", err)
		}

		condition.ID = id.String()
	}

	condition.GroupID = groupID

	if condition.CreatedAt.IsZero() {
		condition.CreatedAt = now
	}

	condition.UpdatedAt = now

	valueJSON, err := json.Marshal(condition.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal condition value: %w", err)
	}

	conditionQuery := `
		INSERT INTO conditions
			(id, group_id, position, language, field_path, operator, value, case_sensitive, expression, created_at, updated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = tx.ExecContext(ctx, conditionQuery,
		condition.ID,
		groupID,
		position,
		condition.Language,
		condition.Field,
		condition.Operator,
		valueJSON,
		condition.CaseSensitive,
		condition.Expression,
		condition.CreatedAt,
		condition.UpdatedAt,
		condition.DeactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert condition %s: %w", condition.ID, err)
	}

	return nil
}

// Deactivate soft-deactivates the root group. Trees referenced by ledger
// history are never hard-deleted.
func (r *ConditionGroupRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE condition_groups
		SET active = false, deactivated_at = $2, updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate condition group: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivation result: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("DeactivateConditionGroup", id, persistence.ErrConditionGroupNotFound)
	}

	return nil
}

// assembleTree loads every node of the tree rooted at rootID and rebuilds the
// in-memory form.
func (r *ConditionGroupRepository) assembleTree(ctx context.Context, rootID string) (*models.ConditionGroup, error) {
	groupQuery := `
		SELECT
			id
		  , parent_group_id
		  , workflow_step_id
		  , position
		  , operator
		  , active
		  , created_at
		  , updated_at
		  , deactivated_at
		FROM condition_groups
		WHERE root_group_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, groupQuery, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to query condition group tree: %w", err)
	}

	defer r.closeRows(ctx, rows)

	byID := make(map[string]*groupRow)
	order := make([]string, 0)

	for rows.Next() {
		row := &groupRow{group: &models.ConditionGroup{}}

		err := rows.Scan(
			&row.group.ID,
			&row.parentID,
			&row.group.WorkflowStepID,
			&row.position,
			&row.group.Operator,
			&row.group.Active,
			&row.group.CreatedAt,
			&row.group.UpdatedAt,
			&row.group.DeactivatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan condition group: %w", err)
		}

		byID[row.group.ID] = row
		order = append(order, row.group.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating condition group tree: %w", err)
	}

	root, ok := byID[rootID]
	if !ok {
		return nil, persistence.NewStoreError("ConditionGroupByID", rootID, persistence.ErrConditionGroupNotFound)
	}

	if err := r.attachConditions(ctx, rootID, byID); err != nil {
		return nil, err
	}

	// Link nested groups to their parents.
	for _, id := range order {
		row := byID[id]
		if !row.parentID.Valid {
			continue
		}

		parent, ok := byID[row.parentID.String]
		if !ok {
			return nil, fmt.Errorf("condition group %s references missing parent %s", id, row.parentID.String)
		}

		row.group.ParentGroupID = &parent.group.ID
		parent.group.Children = append(parent.group.Children, models.GroupChild{
			Position: row.position,
			Group:    row.group,
		})
	}

	for _, row := range byID {
		sortChildren(row.group)
	}

	return root.group, nil
}

func (r *ConditionGroupRepository) attachConditions(ctx context.Context, rootID string, byID map[string]*groupRow) error {
	conditionQuery := `
		SELECT
			c.id
		  , c.group_id
		  , c.position
		  , c.language
		  , c.field_path
		  , c.operator
		  , c.value
		  , c.case_sensitive
		  , c.expression
		  , c.created_at
		  , c.updated_at
		  , c.deactivated_at
		FROM conditions c
		JOIN condition_groups g ON g.id = c.group_id
		WHERE g.root_group_id = $1
		ORDER BY c.position
	`

	rows, err := r.db.QueryContext(ctx, conditionQuery, rootID)
	if err != nil {
		return fmt.Errorf("failed to query conditions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	for rows.Next() {
		condition := &models.Condition{}

		var (
			position  int
			fieldPath sql.NullString
			operator  sql.NullString
			valueJSON []byte
			expr      sql.NullString
		)

		err := rows.Scan(
			&condition.ID,
			&condition.GroupID,
			&position,
			&condition.Language,
			&fieldPath,
			&operator,
			&valueJSON,
			&condition.CaseSensitive,
			&expr,
			&condition.CreatedAt,
			&condition.UpdatedAt,
			&condition.DeactivatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan condition: %w", err)
		}

		condition.Field = fieldPath.String
		condition.Operator = models.Operator(operator.String)
		condition.Expression = expr.String

		if len(valueJSON) > 0 {
			if err := json.Unmarshal(valueJSON, &condition.Value); err != nil {
				return fmt.Errorf("failed to unmarshal condition value: %w", err)
			}
		}

		owner, ok := byID[condition.GroupID]
		if !ok {
			return fmt.Errorf("condition %s references missing group %s", condition.ID, condition.GroupID)
		}

		owner.group.Children = append(owner.group.Children, models.GroupChild{
			Position:  position,
			Condition: condition,
		})
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating conditions: %w", err)
	}

	return nil
}

func sortChildren(group *models.ConditionGroup) {
	sort.SliceStable(group.Children, func(i, j int) bool {
		return group.Children[i].Position < group.Children[j].Position
	})
}

func (r *ConditionGroupRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
