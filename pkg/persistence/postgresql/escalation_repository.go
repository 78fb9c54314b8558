package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
)

// EscalationRepository handles escalation rule and instance rows.
type EscalationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewEscalationRepository(db *sql.DB, logger *slog.Logger) *EscalationRepository {
	return &EscalationRepository{db: db, logger: logger}
}

const ruleColumns = `
	id
  , workflow_id
  , step_id
  , trigger_kind
  , threshold_ns
  , condition_group_id
  , action_type
  , action_params
  , max_level
  , repeat_interval_ns
  , on_max
  , terminal_type
  , terminal_params
  , active
  , created_at
  , updated_at
  , deactivated_at
`

func (r *EscalationRepository) GetAllRules(ctx context.Context) ([]*models.EscalationRule, error) {
	query := "SELECT " + ruleColumns + " FROM escalation_rules ORDER BY created_at"

	return r.queryRules(ctx, query)
}

func (r *EscalationRepository) GetActiveRules(ctx context.Context) ([]*models.EscalationRule, error) {
	query := "SELECT " + ruleColumns + " FROM escalation_rules WHERE active = true AND deactivated_at IS NULL ORDER BY created_at"

	return r.queryRules(ctx, query)
}

func (r *EscalationRepository) queryRules(ctx context.Context, query string, args ...any) ([]*models.EscalationRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalation rules: %w", err)
	}

	defer r.closeRows(ctx, rows)

	rules := make([]*models.EscalationRule, 0)

	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalation rules: %w", err)
	}

	return rules, nil
}

func (r *EscalationRepository) GetRuleByID(ctx context.Context, id string) (*models.EscalationRule, error) {
	query := "SELECT " + ruleColumns + " FROM escalation_rules WHERE id = $1"

	row := r.db.QueryRowContext(ctx, query, id)

	rule, err := r.scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("EscalationRuleByID", id, persistence.ErrEscalationRuleNotFound)
		}

		return nil, err
	}

	return rule, nil
}

func (r *EscalationRepository) scanRule(row interface{ Scan(...any) error }) (*models.EscalationRule, error) {
	rule := &models.EscalationRule{}

	var (
		thresholdNS    int64
		repeatNS       sql.NullInt64
		actionJSON     []byte
		terminalType   sql.NullString
		terminalJSON   []byte
		conditionGroup sql.NullString
	)

	err := row.Scan(
		&rule.ID,
		&rule.WorkflowID,
		&rule.StepID,
		&rule.Trigger,
		&thresholdNS,
		&conditionGroup,
		&rule.ActionType,
		&actionJSON,
		&rule.MaxLevel,
		&repeatNS,
		&rule.OnMax,
		&terminalType,
		&terminalJSON,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
		&rule.DeactivatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan escalation rule: %w", err)
	}

	rule.Threshold = time.Duration(thresholdNS)

	if repeatNS.Valid {
		interval := time.Duration(repeatNS.Int64)
		rule.RepeatInterval = &interval
	}

	if conditionGroup.Valid {
		rule.ConditionGroupID = &conditionGroup.String
	}

	if err := json.Unmarshal(actionJSON, &rule.ActionParams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action params: %w", err)
	}

	if terminalType.Valid {
		at := models.ActionType(terminalType.String)
		rule.TerminalType = &at
	}

	if len(terminalJSON) > 0 {
		params := &models.ActionParams{}
		if err := json.Unmarshal(terminalJSON, params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal terminal params: %w", err)
		}

		rule.TerminalParams = params
	}

	return rule, nil
}

func (r *EscalationRepository) SaveRule(ctx context.Context, rule *models.EscalationRule) error {
	if err := rule.Validate(); err != nil {
		return persistence.NewStoreError("SaveEscalationRule", rule.ID, err)
	}

	now := time.Now().UTC()

	if rule.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate rule ID: %w", err)
		}

		rule.ID = id.String()
	}

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	rule.UpdatedAt = now

	actionJSON, err := json.Marshal(rule.ActionParams)
	if err != nil {
		return fmt.Errorf("failed to marshal action params: %w", err)
	}

	var terminalJSON []byte
	if rule.TerminalParams != nil {
		terminalJSON, err = json.Marshal(rule.TerminalParams)
		if err != nil {
			return fmt.Errorf("failed to marshal terminal params: %w", err)
		}
	}

	var repeatNS *int64

	if rule.RepeatInterval != nil {
		ns := int64(*rule.RepeatInterval)
		repeatNS = &ns
	}

	query := `
		INSERT INTO escalation_rules
			(id, workflow_id, step_id, trigger_kind, threshold_ns, condition_group_id,
			 action_type, action_params, max_level, repeat_interval_ns, on_max,
			 terminal_type, terminal_params, active, created_at, updated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			step_id = EXCLUDED.step_id,
			trigger_kind = EXCLUDED.trigger_kind,
			threshold_ns = EXCLUDED.threshold_ns,
			condition_group_id = EXCLUDED.condition_group_id,
			action_type = EXCLUDED.action_type,
			action_params = EXCLUDED.action_params,
			max_level = EXCLUDED.max_level,
			repeat_interval_ns = EXCLUDED.repeat_interval_ns,
			on_max = EXCLUDED.on_max,
			terminal_type = EXCLUDED.terminal_type,
			terminal_params = EXCLUDED.terminal_params,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at,
			deactivated_at = EXCLUDED.deactivated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.WorkflowID,
		rule.StepID,
		rule.Trigger,
		int64(rule.Threshold),
		rule.ConditionGroupID,
		rule.ActionType,
		actionJSON,
		rule.MaxLevel,
		repeatNS,
		rule.OnMax,
		ruleTerminalType(rule),
		terminalJSON,
		rule.Active,
		rule.CreatedAt,
		rule.UpdatedAt,
		rule.DeactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save escalation rule: %w", err)
	}

	return nil
}

func ruleTerminalType(rule *models.EscalationRule) *string {
	if rule.TerminalType == nil {
		return nil
	}

	s := string(*rule.TerminalType)

	return &s
}

func (r *EscalationRepository) DeactivateRule(ctx context.Context, id string) error {
	query := `
		UPDATE escalation_rules
		SET active = false, deactivated_at = $2, updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate escalation rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivation result: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("DeactivateEscalationRule", id, persistence.ErrEscalationRuleNotFound)
	}

	return nil
}

const instanceColumns = `
	id
  , rule_id
  , step_instance_id
  , level
  , status
  , triggered_at
  , resolved_at
  , created_at
  , updated_at
`

// CreatePending inserts a pending instance; the partial unique index makes
// the insert race-safe. Losing the race is reported as ErrDuplicatePending.
func (r *EscalationRepository) CreatePending(ctx context.Context, instance *models.EscalationInstance) error {
	now := time.Now().UTC()

	if instance.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}

		instance.ID = id.String()
	}

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now
	instance.Status = models.EscalationPending

	if instance.Level < 1 {
		instance.Level = 1
	}

	query := `
		INSERT INTO escalation_instances
			(id, rule_id, step_instance_id, level, status, triggered_at, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (rule_id, step_instance_id) WHERE status = 'pending' DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.RuleID,
		instance.StepInstanceID,
		instance.Level,
		instance.Status,
		instance.TriggeredAt,
		instance.ResolvedAt,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create escalation instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check insert result: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("CreatePendingInstance", instance.ID, persistence.ErrDuplicatePending)
	}

	return nil
}

func (r *EscalationRepository) UpdateInstance(ctx context.Context, instance *models.EscalationInstance) error {
	instance.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE escalation_instances
		SET level = $2, status = $3, triggered_at = $4, resolved_at = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.Level,
		instance.Status,
		instance.TriggeredAt,
		instance.ResolvedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update escalation instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 0 {
		return persistence.NewStoreError("UpdateEscalationInstance", instance.ID, persistence.ErrEscalationInstanceNotFound)
	}

	return nil
}

func (r *EscalationRepository) GetInstanceByID(ctx context.Context, id string) (*models.EscalationInstance, error) {
	query := "SELECT " + instanceColumns + " FROM escalation_instances WHERE id = $1"

	instance, err := r.scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("EscalationInstanceByID", id, persistence.ErrEscalationInstanceNotFound)
		}

		return nil, err
	}

	return instance, nil
}

func (r *EscalationRepository) GetOpenInstance(ctx context.Context, ruleID, stepInstanceID string) (*models.EscalationInstance, error) {
	query := "SELECT " + instanceColumns + ` FROM escalation_instances
		WHERE rule_id = $1 AND step_instance_id = $2 AND status IN ('pending', 'triggered')
		ORDER BY created_at DESC
		LIMIT 1`

	instance, err := r.scanInstance(r.db.QueryRowContext(ctx, query, ruleID, stepInstanceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("OpenInstance", ruleID, persistence.ErrEscalationInstanceNotFound)
		}

		return nil, err
	}

	return instance, nil
}

func (r *EscalationRepository) ListInstances(ctx context.Context, filter persistence.EscalationInstanceFilter) ([]*models.EscalationInstance, error) {
	query := "SELECT " + instanceColumns + " FROM escalation_instances WHERE 1=1"
	args := make([]any, 0, 3)

	if filter.RuleID != "" {
		args = append(args, filter.RuleID)
		query += fmt.Sprintf(" AND rule_id = $%d", len(args))
	}

	if filter.StepInstanceID != "" {
		args = append(args, filter.StepInstanceID)
		query += fmt.Sprintf(" AND step_instance_id = $%d", len(args))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at"

	return r.queryInstances(ctx, query, args...)
}

func (r *EscalationRepository) GetOpenByStepInstance(ctx context.Context, stepInstanceID string) ([]*models.EscalationInstance, error) {
	query := "SELECT " + instanceColumns + ` FROM escalation_instances
		WHERE step_instance_id = $1 AND status IN ('pending', 'triggered')
		ORDER BY created_at`

	return r.queryInstances(ctx, query, stepInstanceID)
}

func (r *EscalationRepository) queryInstances(ctx context.Context, query string, args ...any) ([]*models.EscalationInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query escalation instances: %w", err)
	}

	defer r.closeRows(ctx, rows)

	instances := make([]*models.EscalationInstance, 0)

	for rows.Next() {
		instance, err := r.scanInstance(rows)
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalation instances: %w", err)
	}

	return instances, nil
}

func (r *EscalationRepository) scanInstance(row interface{ Scan(...any) error }) (*models.EscalationInstance, error) {
	instance := &models.EscalationInstance{}

	err := row.Scan(
		&instance.ID,
		&instance.RuleID,
		&instance.StepInstanceID,
		&instance.Level,
		&instance.Status,
		&instance.TriggeredAt,
		&instance.ResolvedAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan escalation instance: %w", err)
	}

	return instance, nil
}

func (r *EscalationRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
