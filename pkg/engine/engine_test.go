package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/channels/gochannel"
	"github.com/docuflow/docuflow/pkg/cmd"
	"github.com/docuflow/docuflow/pkg/conditions"
	"github.com/docuflow/docuflow/pkg/dispatch"
	"github.com/docuflow/docuflow/pkg/engine"
	"github.com/docuflow/docuflow/pkg/escalation"
	"github.com/docuflow/docuflow/pkg/eventbus"
	"github.com/docuflow/docuflow/pkg/events"
	"github.com/docuflow/docuflow/pkg/ledger"
	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
	"github.com/docuflow/docuflow/pkg/persistence/file"
	"github.com/docuflow/docuflow/pkg/testutil"
)

type engineFixture struct {
	engine   *engine.Engine
	persist  persistence.Persistence
	workflow *testutil.FakeWorkflowEngine
	notifier *testutil.FakeNotifier
}

func newEngineFixture(t *testing.T, publisher eventbus.EventPublisher) *engineFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	persist, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	workflow := testutil.NewFakeWorkflowEngine()
	notifier := &testutil.FakeNotifier{}
	reg := cmd.NewRegistry(logger, workflow, notifier, testutil.NewFakeDirectory(), &testutil.FakeRaiser{})

	evaluator := conditions.NewEvaluator(logger)
	dispatcher := dispatch.NewDispatcher(reg, persist, logger)
	scheduler := escalation.NewScheduler(persist, workflow, evaluator, reg, publisher, escalation.NewLocalLocker(), time.Minute, logger)

	return &engineFixture{
		engine:   engine.New(persist, evaluator, dispatcher, scheduler, workflow, publisher, logger),
		persist:  persist,
		workflow: workflow,
		notifier: notifier,
	}
}

func transitionEvent(id, stepInstanceID, toStepID string, data map[string]any) *events.StepTransition {
	event := &events.StepTransition{
		StepInstanceID:     stepInstanceID,
		WorkflowInstanceID: "wfi-1",
		WorkflowID:         "wf-invoice-approval",
		ToStepID:           toStepID,
		Context:            data,
	}
	event.ID = id
	event.Type = events.StepTransitionEvent
	event.Timestamp = time.Now().UTC()

	return event
}

func TestEvaluateConditionGroup_RecordsResult(t *testing.T) {
	fx := newEngineFixture(t, nil)
	ctx := context.Background()

	group := testutil.CreateTestGroup()
	require.NoError(t, fx.persist.SaveConditionGroup(ctx, group))

	fx.workflow.Contexts["si-1"] = map[string]any{
		"document": map[string]any{"status": "pending"},
	}

	result, err := fx.engine.EvaluateConditionGroup(ctx, group.ID, "si-1")
	require.NoError(t, err)
	assert.True(t, result.Value)

	evaluations, err := fx.persist.EvaluationsByStepInstance(ctx, "si-1", ledger.Range{})
	require.NoError(t, err)
	require.Len(t, evaluations, 1)
	assert.Equal(t, group.ID, evaluations[0].GroupID)
	assert.True(t, evaluations[0].Result)
	assert.NotEmpty(t, evaluations[0].ContextSnapshot)
	assert.NotEmpty(t, evaluations[0].Trace)
}

func TestEvaluateConditionGroup_Errors(t *testing.T) {
	fx := newEngineFixture(t, nil)
	ctx := context.Background()

	_, err := fx.engine.EvaluateConditionGroup(ctx, "", "si-1")
	require.Error(t, err)
	assert.True(t, engine.IsValidationError(err))

	_, err = fx.engine.EvaluateConditionGroup(ctx, "group-1", "")
	require.Error(t, err)
	assert.True(t, engine.IsValidationError(err))

	_, err = fx.engine.EvaluateConditionGroup(ctx, "missing-group", "si-1")
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestEvaluateConditionGroup_RejectsInactiveGroup(t *testing.T) {
	fx := newEngineFixture(t, nil)
	ctx := context.Background()

	group := testutil.CreateTestGroup()
	require.NoError(t, fx.persist.SaveConditionGroup(ctx, group))
	require.NoError(t, fx.persist.DeactivateConditionGroup(ctx, group.ID))

	_, err := fx.engine.EvaluateConditionGroup(ctx, group.ID, "si-1")
	require.Error(t, err)
	assert.True(t, engine.IsConflictError(err))
}

func TestDispatchForEvent_RunsMatchingGroups(t *testing.T) {
	fx := newEngineFixture(t, nil)
	ctx := context.Background()

	matching := testutil.CreateTestGroup(testutil.WithStepID("step-review"))
	skipped := testutil.CreateTestGroup(
		testutil.WithStepID("step-review"),
		testutil.WithConditions(testutil.CreateTestCondition(
			testutil.WithOperator(models.OperatorEquals, testutil.StringValue("approved")),
		)),
	)

	require.NoError(t, fx.persist.SaveConditionGroup(ctx, matching))
	require.NoError(t, fx.persist.SaveConditionGroup(ctx, skipped))

	require.NoError(t, fx.persist.SaveAction(ctx, testutil.CreateTestAction(matching.ID)))
	require.NoError(t, fx.persist.SaveAction(ctx, testutil.CreateTestAction(skipped.ID,
		testutil.WithActionType(models.ActionRouteToStep, models.ActionParams{
			RouteToStep: &models.RouteToStepParams{TargetStepID: "step-archive"},
		}),
	)))

	event := transitionEvent("event-1", "si-1", "step-review", map[string]any{
		"document": map[string]any{"status": "pending"},
	})

	reports, err := fx.engine.DispatchForEvent(ctx, event)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, matching.ID, reports[0].GroupID)

	assert.Len(t, fx.notifier.Sent, 1)
	assert.Empty(t, fx.workflow.AdvanceCalls)

	// Both groups leave an evaluation record, matched or not.
	evaluations, err := fx.persist.EvaluationsByStepInstance(ctx, "si-1", ledger.Range{})
	require.NoError(t, err)
	assert.Len(t, evaluations, 2)
}

func TestDispatchForEvent_RejectsIncompleteEvent(t *testing.T) {
	fx := newEngineFixture(t, nil)

	_, err := fx.engine.DispatchForEvent(context.Background(), transitionEvent("", "si-1", "step-review", nil))
	require.Error(t, err)
	assert.True(t, engine.IsValidationError(err))

	_, err = fx.engine.DispatchForEvent(context.Background(), transitionEvent("event-1", "", "step-review", nil))
	require.Error(t, err)
	assert.True(t, engine.IsValidationError(err))
}

func TestPrepareDispatches_FallsBackToWorkflowContext(t *testing.T) {
	fx := newEngineFixture(t, nil)
	ctx := context.Background()

	group := testutil.CreateTestGroup(testutil.WithStepID("step-review"))
	require.NoError(t, fx.persist.SaveConditionGroup(ctx, group))
	require.NoError(t, fx.persist.SaveAction(ctx, testutil.CreateTestAction(group.ID)))

	fx.workflow.Contexts["si-1"] = map[string]any{
		"document": map[string]any{"status": "pending"},
	}

	jobs, err := fx.engine.PrepareDispatches(ctx, transitionEvent("event-1", "si-1", "step-review", nil))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, group.ID, jobs[0].Group.ID)
	require.Len(t, jobs[0].Actions, 1)
	assert.Equal(t, "pending", jobs[0].Context.Data["document"].(map[string]any)["status"])
}

func TestDispatchForEvent_PublishesDispatchCompleted(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	fx := newEngineFixture(t, bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completed := make(chan *events.DispatchCompleted, 1)

	require.NoError(t, bus.Handle(events.DispatchCompletedEvent, func(ctx context.Context, event any) error {
		completed <- event.(*events.DispatchCompleted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	group := testutil.CreateTestGroup(testutil.WithStepID("step-review"))
	require.NoError(t, fx.persist.SaveConditionGroup(ctx, group))
	require.NoError(t, fx.persist.SaveAction(ctx, testutil.CreateTestAction(group.ID)))

	event := transitionEvent("event-1", "si-1", "step-review", map[string]any{
		"document": map[string]any{"status": "pending"},
	})

	_, err = fx.engine.DispatchForEvent(ctx, event)
	require.NoError(t, err)

	select {
	case got := <-completed:
		assert.Equal(t, group.ID, got.GroupID)
		assert.Equal(t, "event-1", got.EventID)
		assert.Equal(t, 1, got.Succeeded)
		assert.Zero(t, got.Failed)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dispatch completed event")
	}
}

func TestGetAuditTrail(t *testing.T) {
	fx := newEngineFixture(t, nil)
	ctx := context.Background()

	group := testutil.CreateTestGroup(testutil.WithStepID("step-review"))
	require.NoError(t, fx.persist.SaveConditionGroup(ctx, group))
	require.NoError(t, fx.persist.SaveAction(ctx, testutil.CreateTestAction(group.ID)))

	event := transitionEvent("event-1", "si-1", "step-review", map[string]any{
		"document": map[string]any{"status": "pending"},
	})

	_, err := fx.engine.DispatchForEvent(ctx, event)
	require.NoError(t, err)

	trail, err := fx.engine.GetAuditTrail(ctx, "si-1", ledger.Range{})
	require.NoError(t, err)
	assert.Equal(t, "si-1", trail.StepInstanceID)
	assert.Len(t, trail.Evaluations, 1)
	assert.Len(t, trail.Executions, 1)

	empty, err := fx.engine.GetAuditTrail(ctx, "si-1", ledger.Range{To: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, empty.Evaluations)
	assert.Empty(t, empty.Executions)

	_, err = fx.engine.GetAuditTrail(ctx, "", ledger.Range{})
	require.Error(t, err)
	assert.True(t, engine.IsValidationError(err))
}

func TestHandleStepCompleted_ResolvesEscalations(t *testing.T) {
	fx := newEngineFixture(t, nil)
	ctx := context.Background()

	instance := &models.EscalationInstance{RuleID: "rule-1", StepInstanceID: "si-1", Level: 1}
	require.NoError(t, fx.persist.CreatePendingInstance(ctx, instance))

	completed := &events.StepCompleted{StepInstanceID: "si-1", StepID: "step-review"}
	require.NoError(t, fx.engine.HandleStepCompleted(ctx, completed))

	open, err := fx.persist.OpenInstance(ctx, "rule-1", "si-1")
	require.NoError(t, err)
	assert.Nil(t, open)
}
