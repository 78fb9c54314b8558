package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/docuflow/docuflow/pkg/ledger"
	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
	"github.com/docuflow/docuflow/pkg/persistence/postgresql"
	"github.com/docuflow/docuflow/pkg/testutil"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"action_executions", "condition_evaluations", "escalation_instances",
		"escalation_rules", "conditional_actions", "conditions",
		"condition_groups", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("docuflow_test"),
			postgres.WithUsername("docuflow"),
			postgres.WithPassword("docuflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = persist.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return persist, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{"condition_groups", "conditions", "conditional_actions",
		"escalation_rules", "escalation_instances", "condition_evaluations", "action_executions"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestConditionGroup_SaveAndRetrieveTree(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	inner := testutil.CreateTestGroup(testutil.WithGroupOperator(models.LogicalOr))
	group := testutil.CreateTestGroup(testutil.WithChildren(
		testutil.LeafChild(0, testutil.CreateTestCondition(
			testutil.WithField("document.priority"),
			testutil.WithOperator(models.OperatorGreaterThan, testutil.NumberValue(3)),
		)),
		testutil.NestedGroup(1, inner),
	))

	require.NoError(t, p.SaveConditionGroup(ctx, group))

	loaded, err := p.ConditionGroupByID(ctx, group.ID)
	require.NoError(t, err)

	assert.Equal(t, models.LogicalAnd, loaded.Operator)
	require.Len(t, loaded.Children, 2)

	leaf := loaded.Children[0].Condition
	require.NotNil(t, leaf)
	assert.Equal(t, "document.priority", leaf.Field)
	assert.Equal(t, models.OperatorGreaterThan, leaf.Operator)

	require.NotNil(t, loaded.Children[1].Group)
	assert.Equal(t, models.LogicalOr, loaded.Children[1].Group.Operator)
}

func TestConditionGroup_ByStepSkipsDeactivated(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	active := testutil.CreateTestGroup(testutil.WithStepID("step-review"))
	retired := testutil.CreateTestGroup(testutil.WithStepID("step-review"))

	require.NoError(t, p.SaveConditionGroup(ctx, active))
	require.NoError(t, p.SaveConditionGroup(ctx, retired))
	require.NoError(t, p.DeactivateConditionGroup(ctx, retired.ID))

	groups, err := p.ConditionGroupsByStep(ctx, "step-review")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, active.ID, groups[0].ID)

	_, err = p.ConditionGroupByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestActions_OrderedByExecutionOrder(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	group := testutil.CreateTestGroup()
	require.NoError(t, p.SaveConditionGroup(ctx, group))

	second := testutil.CreateTestAction(group.ID, testutil.WithExecutionOrder(2))
	first := testutil.CreateTestAction(group.ID, testutil.WithExecutionOrder(1),
		testutil.WithActionType(models.ActionRouteToStep, models.ActionParams{
			RouteToStep: &models.RouteToStepParams{TargetStepID: "step-approve"},
		}),
	)

	require.NoError(t, p.SaveAction(ctx, second))
	require.NoError(t, p.SaveAction(ctx, first))

	actions, err := p.ActionsByGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, first.ID, actions[0].ID)
	require.NotNil(t, actions[0].Params.RouteToStep)
	assert.Equal(t, "step-approve", actions[0].Params.RouteToStep.TargetStepID)
	assert.Equal(t, second.ID, actions[1].ID)
}

func TestEscalationRules_ActiveFilter(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	active := testutil.CreateTestRule(testutil.WithRepeatInterval(time.Hour))
	retired := testutil.CreateTestRule()

	require.NoError(t, p.SaveEscalationRule(ctx, active))
	require.NoError(t, p.SaveEscalationRule(ctx, retired))
	require.NoError(t, p.DeactivateEscalationRule(ctx, retired.ID))

	rules, err := p.ActiveEscalationRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, active.ID, rules[0].ID)
	require.NotNil(t, rules[0].RepeatInterval)
	assert.Equal(t, time.Hour, *rules[0].RepeatInterval)
}

func TestEscalationInstances_PendingUniqueGuard(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	rule := testutil.CreateTestRule()
	require.NoError(t, p.SaveEscalationRule(ctx, rule))

	instance := &models.EscalationInstance{RuleID: rule.ID, StepInstanceID: "si-1", Level: 1}
	require.NoError(t, p.CreatePendingInstance(ctx, instance))

	duplicate := &models.EscalationInstance{RuleID: rule.ID, StepInstanceID: "si-1", Level: 1}
	err := p.CreatePendingInstance(ctx, duplicate)
	require.Error(t, err)
	assert.True(t, persistence.IsDuplicatePending(err))

	// Resolving the instance releases the partial unique index.
	now := time.Now().UTC()
	instance.Status = models.EscalationResolved
	instance.ResolvedAt = &now
	require.NoError(t, p.UpdateEscalationInstance(ctx, instance))

	replacement := &models.EscalationInstance{RuleID: rule.ID, StepInstanceID: "si-1", Level: 1}
	require.NoError(t, p.CreatePendingInstance(ctx, replacement))
}

func TestEscalationInstances_OpenLookupAndFilters(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	rule := testutil.CreateTestRule()
	require.NoError(t, p.SaveEscalationRule(ctx, rule))

	instance := &models.EscalationInstance{RuleID: rule.ID, StepInstanceID: "si-1", Level: 1}
	require.NoError(t, p.CreatePendingInstance(ctx, instance))

	now := time.Now().UTC()
	instance.Status = models.EscalationTriggered
	instance.TriggeredAt = &now
	require.NoError(t, p.UpdateEscalationInstance(ctx, instance))

	open, err := p.OpenInstance(ctx, rule.ID, "si-1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, models.EscalationTriggered, open.Status)
	require.NotNil(t, open.TriggeredAt)

	byStatus, err := p.ListEscalationInstances(ctx, persistence.EscalationInstanceFilter{Status: models.EscalationTriggered})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)

	byStep, err := p.OpenInstancesByStepInstance(ctx, "si-1")
	require.NoError(t, err)
	assert.Len(t, byStep, 1)
}

func TestLedger_RecordAndQuery(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, p.RecordEvaluation(ctx, &models.ConditionEvaluation{
		GroupID:        "group-1",
		StepInstanceID: "si-1",
		Result:         true,
		EvaluatedAt:    early,
	}))

	require.NoError(t, p.RecordExecution(ctx, &models.ActionExecution{
		ActionID:       "action-1",
		StepInstanceID: "si-1",
		EventID:        "event-1",
		Status:         models.ExecutionSucceeded,
		ExecutedAt:     early,
		SideEffectRef:  "notification-1",
	}))
	require.NoError(t, p.RecordExecution(ctx, &models.ActionExecution{
		ActionID:       "action-1",
		StepInstanceID: "si-1",
		EventID:        "event-2",
		Status:         models.ExecutionFailed,
		ExecutedAt:     late,
		Error:          "service unavailable",
	}))

	evaluations, err := p.EvaluationsByStepInstance(ctx, "si-1", ledger.Range{})
	require.NoError(t, err)
	require.Len(t, evaluations, 1)
	assert.True(t, evaluations[0].Result)

	executions, err := p.ExecutionsByAction(ctx, "action-1", ledger.Range{From: late.Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionFailed, executions[0].Status)
	assert.Equal(t, "service unavailable", executions[0].Error)

	done, err := p.HasSucceededExecution(ctx, "action-1", "si-1", "event-1")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = p.HasSucceededExecution(ctx, "action-1", "si-1", "event-2")
	require.NoError(t, err)
	assert.False(t, done)
}
