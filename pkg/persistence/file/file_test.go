package file

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/ledger"
	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
	"github.com/docuflow/docuflow/pkg/testutil"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	persist, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	return persist
}

func TestConditionGroupRoundTrip(t *testing.T) {
	persist := newTestPersistence(t)
	ctx := context.Background()

	inner := testutil.CreateTestGroup(testutil.WithGroupOperator(models.LogicalOr))
	group := testutil.CreateTestGroup(testutil.WithChildren(
		testutil.LeafChild(0, testutil.CreateTestCondition()),
		testutil.NestedGroup(1, inner),
	))

	require.NoError(t, persist.SaveConditionGroup(ctx, group))

	loaded, err := persist.ConditionGroupByID(ctx, group.ID)
	require.NoError(t, err)

	assert.Equal(t, group.Operator, loaded.Operator)
	require.Len(t, loaded.Children, 2)
	assert.True(t, loaded.Children[0].IsLeaf())
	require.NotNil(t, loaded.Children[1].Group)
	assert.Equal(t, models.LogicalOr, loaded.Children[1].Group.Operator)
}

func TestSaveConditionGroup_RejectsInvalidTree(t *testing.T) {
	persist := newTestPersistence(t)

	group := testutil.CreateTestGroup(testutil.WithGroupOperator(models.LogicalNot))
	group.Children = nil

	err := persist.SaveConditionGroup(context.Background(), group)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one child")
}

func TestConditionGroupsByStep(t *testing.T) {
	persist := newTestPersistence(t)
	ctx := context.Background()

	review := testutil.CreateTestGroup(testutil.WithStepID("step-review"))
	sign := testutil.CreateTestGroup(testutil.WithStepID("step-sign"))
	inactive := testutil.CreateTestGroup(testutil.WithStepID("step-review"))

	for _, group := range []*models.ConditionGroup{review, sign, inactive} {
		require.NoError(t, persist.SaveConditionGroup(ctx, group))
	}

	require.NoError(t, persist.DeactivateConditionGroup(ctx, inactive.ID))

	groups, err := persist.ConditionGroupsByStep(ctx, "step-review")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, review.ID, groups[0].ID)
}

func TestDeactivateConditionGroup_NotFound(t *testing.T) {
	persist := newTestPersistence(t)

	err := persist.DeactivateConditionGroup(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestActionsByGroup_OrderedAndFiltered(t *testing.T) {
	persist := newTestPersistence(t)
	ctx := context.Background()

	group := testutil.CreateTestGroup()

	second := testutil.CreateTestAction(group.ID, testutil.WithExecutionOrder(2))
	first := testutil.CreateTestAction(group.ID, testutil.WithExecutionOrder(1))
	removed := testutil.CreateTestAction(group.ID, testutil.WithExecutionOrder(0))
	other := testutil.CreateTestAction("other-group")

	for _, action := range []*models.ConditionalAction{second, first, removed, other} {
		require.NoError(t, persist.SaveAction(ctx, action))
	}

	require.NoError(t, persist.DeactivateAction(ctx, removed.ID))

	actions, err := persist.ActionsByGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, first.ID, actions[0].ID)
	assert.Equal(t, second.ID, actions[1].ID)
}

func TestSaveAction_RejectsInvalidParams(t *testing.T) {
	persist := newTestPersistence(t)

	action := testutil.CreateTestAction("group-1",
		testutil.WithActionType(models.ActionRouteToStep, models.ActionParams{}),
	)

	err := persist.SaveAction(context.Background(), action)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target step id")
}

func TestActiveEscalationRules(t *testing.T) {
	persist := newTestPersistence(t)
	ctx := context.Background()

	active := testutil.CreateTestRule()
	retired := testutil.CreateTestRule()

	require.NoError(t, persist.SaveEscalationRule(ctx, active))
	require.NoError(t, persist.SaveEscalationRule(ctx, retired))
	require.NoError(t, persist.DeactivateEscalationRule(ctx, retired.ID))

	rules, err := persist.ActiveEscalationRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, active.ID, rules[0].ID)

	loaded, err := persist.EscalationRuleByID(ctx, retired.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Active)
	require.NotNil(t, loaded.DeactivatedAt)
}

func TestCreatePendingInstance_RejectsDuplicate(t *testing.T) {
	persist := newTestPersistence(t)
	ctx := context.Background()

	first := &models.EscalationInstance{RuleID: "rule-1", StepInstanceID: "si-1", Level: 1}
	require.NoError(t, persist.CreatePendingInstance(ctx, first))

	duplicate := &models.EscalationInstance{RuleID: "rule-1", StepInstanceID: "si-1", Level: 1}
	err := persist.CreatePendingInstance(ctx, duplicate)

	require.Error(t, err)
	assert.True(t, persistence.IsDuplicatePending(err))

	// A different pair is unaffected.
	other := &models.EscalationInstance{RuleID: "rule-1", StepInstanceID: "si-2", Level: 1}
	require.NoError(t, persist.CreatePendingInstance(ctx, other))
}

func TestCreatePendingInstance_ConcurrentSingleWinner(t *testing.T) {
	persist := newTestPersistence(t)
	ctx := context.Background()

	const attempts = 16

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			instance := &models.EscalationInstance{RuleID: "rule-1", StepInstanceID: "si-1", Level: 1}
			err := persist.CreatePendingInstance(ctx, instance)

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				created++
			} else if persistence.IsDuplicatePending(err) {
				rejected++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, rejected)
}

func TestEscalationInstanceLifecycle(t *testing.T) {
	persist := newTestPersistence(t)
	ctx := context.Background()

	instance := &models.EscalationInstance{RuleID: "rule-1", StepInstanceID: "si-1", Level: 1}
	require.NoError(t, persist.CreatePendingInstance(ctx, instance))

	open, err := persist.OpenInstance(ctx, "rule-1", "si-1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, models.EscalationPending, open.Status)

	now := time.Now().UTC()
	open.Status = models.EscalationTriggered
	open.TriggeredAt = &now
	require.NoError(t, persist.UpdateEscalationInstance(ctx, open))

	// Triggered instances are still open; resolved ones are not.
	stillOpen, err := persist.OpenInstance(ctx, "rule-1", "si-1")
	require.NoError(t, err)
	require.NotNil(t, stillOpen)

	stillOpen.Status = models.EscalationResolved
	stillOpen.ResolvedAt = &now
	require.NoError(t, persist.UpdateEscalationInstance(ctx, stillOpen))

	closed, err := persist.OpenInstance(ctx, "rule-1", "si-1")
	require.NoError(t, err)
	assert.Nil(t, closed)
}

func TestListEscalationInstances_Filters(t *testing.T) {
	persist := newTestPersistence(t)
	ctx := context.Background()

	a := &models.EscalationInstance{RuleID: "rule-1", StepInstanceID: "si-1", Level: 1}
	b := &models.EscalationInstance{RuleID: "rule-2", StepInstanceID: "si-1", Level: 1}
	c := &models.EscalationInstance{RuleID: "rule-1", StepInstanceID: "si-2", Level: 1}

	for _, instance := range []*models.EscalationInstance{a, b, c} {
		require.NoError(t, persist.CreatePendingInstance(ctx, instance))
	}

	byRule, err := persist.ListEscalationInstances(ctx, persistence.EscalationInstanceFilter{RuleID: "rule-1"})
	require.NoError(t, err)
	assert.Len(t, byRule, 2)

	byStep, err := persist.ListEscalationInstances(ctx, persistence.EscalationInstanceFilter{StepInstanceID: "si-1"})
	require.NoError(t, err)
	assert.Len(t, byStep, 2)

	byStatus, err := persist.ListEscalationInstances(ctx, persistence.EscalationInstanceFilter{Status: models.EscalationResolved})
	require.NoError(t, err)
	assert.Empty(t, byStatus)
}

func TestLedgerQueries(t *testing.T) {
	persist := newTestPersistence(t)
	ctx := context.Background()

	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, persist.RecordEvaluation(ctx, &models.ConditionEvaluation{
		GroupID:        "group-1",
		StepInstanceID: "si-1",
		Result:         true,
		EvaluatedAt:    early,
	}))
	require.NoError(t, persist.RecordEvaluation(ctx, &models.ConditionEvaluation{
		GroupID:        "group-1",
		StepInstanceID: "si-1",
		Result:         false,
		EvaluatedAt:    late,
	}))

	require.NoError(t, persist.RecordExecution(ctx, &models.ActionExecution{
		ActionID:       "action-1",
		StepInstanceID: "si-1",
		EventID:        "event-1",
		Status:         models.ExecutionSucceeded,
		ExecutedAt:     early,
	}))
	require.NoError(t, persist.RecordExecution(ctx, &models.ActionExecution{
		ActionID:       "action-1",
		StepInstanceID: "si-1",
		EventID:        "event-2",
		Status:         models.ExecutionFailed,
		ExecutedAt:     late,
	}))

	evaluations, err := persist.EvaluationsByStepInstance(ctx, "si-1", ledger.Range{})
	require.NoError(t, err)
	require.Len(t, evaluations, 2)
	assert.True(t, evaluations[0].EvaluatedAt.Before(evaluations[1].EvaluatedAt))

	bounded, err := persist.EvaluationsByStepInstance(ctx, "si-1", ledger.Range{To: early.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.True(t, bounded[0].Result)

	executions, err := persist.ExecutionsByAction(ctx, "action-1", ledger.Range{From: late.Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionFailed, executions[0].Status)
}

func TestHasSucceededExecution(t *testing.T) {
	persist := newTestPersistence(t)
	ctx := context.Background()

	require.NoError(t, persist.RecordExecution(ctx, &models.ActionExecution{
		ActionID:       "action-1",
		StepInstanceID: "si-1",
		EventID:        "event-1",
		Status:         models.ExecutionFailed,
	}))

	// Failed executions do not satisfy the idempotency check.
	done, err := persist.HasSucceededExecution(ctx, "action-1", "si-1", "event-1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, persist.RecordExecution(ctx, &models.ActionExecution{
		ActionID:       "action-1",
		StepInstanceID: "si-1",
		EventID:        "event-1",
		Status:         models.ExecutionSucceeded,
	}))

	done, err = persist.HasSucceededExecution(ctx, "action-1", "si-1", "event-1")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = persist.HasSucceededExecution(ctx, "action-1", "si-1", "event-2")
	require.NoError(t, err)
	assert.False(t, done)
}
