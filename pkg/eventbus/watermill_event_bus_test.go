package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/channels/gochannel"
	"github.com/docuflow/docuflow/pkg/eventbus"
	"github.com/docuflow/docuflow/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	return eventbus.NewWatermillEventBus(pub, sub)
}

func TestPublishSubscribe_StepTransition(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.StepTransition, 1)

	err := bus.Handle(events.StepTransitionEvent, func(ctx context.Context, event any) error {
		transition, ok := event.(*events.StepTransition)
		require.True(t, ok)

		received <- transition

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	transition := &events.StepTransition{
		StepInstanceID:     "si-1",
		WorkflowInstanceID: "wfi-1",
		WorkflowID:         "wf-invoice-approval",
		ToStepID:           "step-review",
		Context:            map[string]any{"document": map[string]any{"status": "pending"}},
	}
	transition.ID = bus.GenerateID()
	transition.Type = events.StepTransitionEvent
	transition.Timestamp = time.Now().UTC()

	require.NoError(t, bus.Publish(ctx, transition.StepInstanceID, transition))

	select {
	case got := <-received:
		assert.Equal(t, transition.ID, got.ID)
		assert.Equal(t, "si-1", got.StepInstanceID)
		assert.Equal(t, "step-review", got.ToStepID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for step transition")
	}
}

func TestPublishSubscribe_EscalationTopic(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.EscalationTriggered, 1)

	err := bus.Handle(events.EscalationTriggeredEvent, func(ctx context.Context, event any) error {
		received <- event.(*events.EscalationTriggered)

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	triggered := &events.EscalationTriggered{
		InstanceID:     "ei-1",
		RuleID:         "rule-1",
		StepInstanceID: "si-1",
		Level:          2,
	}
	triggered.ID = bus.GenerateID()
	triggered.Type = events.EscalationTriggeredEvent

	require.NoError(t, bus.Publish(ctx, triggered.StepInstanceID, triggered))

	select {
	case got := <-received:
		assert.Equal(t, "rule-1", got.RuleID)
		assert.Equal(t, 2, got.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for escalation event")
	}
}

func TestSubscribe_UnhandledTypesAreAcked(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.StepCompleted, 1)

	err := bus.Handle(events.StepCompletedEvent, func(ctx context.Context, event any) error {
		received <- event.(*events.StepCompleted)

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for reassignment; it is acked and dropped.
	reassigned := &events.StepReassigned{StepInstanceID: "si-1", NewAssigneeID: "user-2"}
	reassigned.ID = bus.GenerateID()
	require.NoError(t, bus.Publish(ctx, reassigned.StepInstanceID, reassigned))

	completed := &events.StepCompleted{StepInstanceID: "si-1", StepID: "step-review"}
	completed.ID = bus.GenerateID()
	require.NoError(t, bus.Publish(ctx, completed.StepInstanceID, completed))

	select {
	case got := <-received:
		assert.Equal(t, "step-review", got.StepID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for step completed")
	}
}

func TestGenerateID_Unique(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
