// Package postgresql provides PostgreSQL persistence for condition
// configuration, escalation state and the audit ledger.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/docuflow/docuflow/pkg/ledger"
	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
	"github.com/docuflow/docuflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	conditionRepo  *ConditionGroupRepository
	actionRepo     *ActionRepository
	escalationRepo *EscalationRepository
	ledgerRepo     *LedgerRepository
}

// NewPersistence connects, runs migrations and returns the persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		conditionRepo:  NewConditionGroupRepository(database, logger),
		actionRepo:     NewActionRepository(database, logger),
		escalationRepo: NewEscalationRepository(database, logger),
		ledgerRepo:     NewLedgerRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) ConditionGroups(ctx context.Context) ([]*models.ConditionGroup, error) {
	return p.conditionRepo.GetAll(ctx)
}

func (p *Persistence) ConditionGroupByID(ctx context.Context, id string) (*models.ConditionGroup, error) {
	return p.conditionRepo.GetByID(ctx, id)
}

func (p *Persistence) ConditionGroupsByStep(ctx context.Context, workflowStepID string) ([]*models.ConditionGroup, error) {
	return p.conditionRepo.GetByStep(ctx, workflowStepID)
}

func (p *Persistence) SaveConditionGroup(ctx context.Context, group *models.ConditionGroup) error {
	return p.conditionRepo.Save(ctx, group)
}

func (p *Persistence) DeactivateConditionGroup(ctx context.Context, id string) error {
	return p.conditionRepo.Deactivate(ctx, id)
}

func (p *Persistence) ActionsByGroup(ctx context.Context, groupID string) ([]*models.ConditionalAction, error) {
	return p.actionRepo.GetByGroup(ctx, groupID)
}

func (p *Persistence) SaveAction(ctx context.Context, action *models.ConditionalAction) error {
	return p.actionRepo.Save(ctx, action)
}

func (p *Persistence) DeactivateAction(ctx context.Context, id string) error {
	return p.actionRepo.Deactivate(ctx, id)
}

func (p *Persistence) EscalationRules(ctx context.Context) ([]*models.EscalationRule, error) {
	return p.escalationRepo.GetAllRules(ctx)
}

func (p *Persistence) EscalationRuleByID(ctx context.Context, id string) (*models.EscalationRule, error) {
	return p.escalationRepo.GetRuleByID(ctx, id)
}

func (p *Persistence) ActiveEscalationRules(ctx context.Context) ([]*models.EscalationRule, error) {
	return p.escalationRepo.GetActiveRules(ctx)
}

func (p *Persistence) SaveEscalationRule(ctx context.Context, rule *models.EscalationRule) error {
	return p.escalationRepo.SaveRule(ctx, rule)
}

func (p *Persistence) DeactivateEscalationRule(ctx context.Context, id string) error {
	return p.escalationRepo.DeactivateRule(ctx, id)
}

func (p *Persistence) CreatePendingInstance(ctx context.Context, instance *models.EscalationInstance) error {
	return p.escalationRepo.CreatePending(ctx, instance)
}

func (p *Persistence) UpdateEscalationInstance(ctx context.Context, instance *models.EscalationInstance) error {
	return p.escalationRepo.UpdateInstance(ctx, instance)
}

func (p *Persistence) EscalationInstanceByID(ctx context.Context, id string) (*models.EscalationInstance, error) {
	return p.escalationRepo.GetInstanceByID(ctx, id)
}

func (p *Persistence) OpenInstance(ctx context.Context, ruleID, stepInstanceID string) (*models.EscalationInstance, error) {
	return p.escalationRepo.GetOpenInstance(ctx, ruleID, stepInstanceID)
}

func (p *Persistence) ListEscalationInstances(ctx context.Context, filter persistence.EscalationInstanceFilter) ([]*models.EscalationInstance, error) {
	return p.escalationRepo.ListInstances(ctx, filter)
}

func (p *Persistence) OpenInstancesByStepInstance(ctx context.Context, stepInstanceID string) ([]*models.EscalationInstance, error) {
	return p.escalationRepo.GetOpenByStepInstance(ctx, stepInstanceID)
}

func (p *Persistence) RecordEvaluation(ctx context.Context, record *models.ConditionEvaluation) error {
	return p.ledgerRepo.RecordEvaluation(ctx, record)
}

func (p *Persistence) RecordExecution(ctx context.Context, record *models.ActionExecution) error {
	return p.ledgerRepo.RecordExecution(ctx, record)
}

func (p *Persistence) EvaluationsByStepInstance(ctx context.Context, stepInstanceID string, timeRange ledger.Range) ([]*models.ConditionEvaluation, error) {
	return p.ledgerRepo.EvaluationsByStepInstance(ctx, stepInstanceID, timeRange)
}

func (p *Persistence) ExecutionsByStepInstance(ctx context.Context, stepInstanceID string, timeRange ledger.Range) ([]*models.ActionExecution, error) {
	return p.ledgerRepo.ExecutionsByStepInstance(ctx, stepInstanceID, timeRange)
}

func (p *Persistence) ExecutionsByAction(ctx context.Context, actionID string, timeRange ledger.Range) ([]*models.ActionExecution, error) {
	return p.ledgerRepo.ExecutionsByAction(ctx, actionID, timeRange)
}

func (p *Persistence) HasSucceededExecution(ctx context.Context, actionID, stepInstanceID, eventID string) (bool, error) {
	return p.ledgerRepo.HasSucceededExecution(ctx, actionID, stepInstanceID, eventID)
}
