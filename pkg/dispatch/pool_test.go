package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/testutil"
)

func TestPool_ProcessesSubmittedJobs(t *testing.T) {
	workflow := testutil.NewFakeWorkflowEngine()
	notifier := &testutil.FakeNotifier{}
	dispatcher, _ := newTestDispatcher(t, workflow, notifier)

	pool := NewPool(dispatcher, 2, dispatcher.logger)
	pool.Start(context.Background(), 2)

	group := testutil.CreateTestGroup()

	for i := 0; i < 3; i++ {
		job := Job{
			Group:   group,
			Actions: []*models.ConditionalAction{testutil.CreateTestAction(group.ID)},
			Context: models.ExecutionContext{
				StepInstanceID: "step-instance-" + string(rune('a'+i)),
				EventID:        "event-" + string(rune('a'+i)),
			},
		}

		require.NoError(t, pool.Submit(context.Background(), job))
	}

	seen := make(map[string]bool)

	for i := 0; i < 3; i++ {
		select {
		case report := <-pool.Reports():
			assert.Equal(t, 1, report.Count(models.ExecutionSucceeded))
			seen[report.StepInstanceID] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for dispatch reports")
		}
	}

	assert.Len(t, seen, 3)
	assert.Len(t, notifier.Sent, 3)

	pool.Close()
}

func TestPool_SubmitFailsOnCancelledContext(t *testing.T) {
	workflow := testutil.NewFakeWorkflowEngine()
	notifier := &testutil.FakeNotifier{}
	dispatcher, _ := newTestDispatcher(t, workflow, notifier)

	// No workers started: the queue fills up and Submit blocks.
	pool := NewPool(dispatcher, 1, dispatcher.logger)

	group := testutil.CreateTestGroup()
	job := Job{Group: group, Context: models.ExecutionContext{EventID: "event-1"}}

	for i := 0; i < 2; i++ {
		require.NoError(t, pool.Submit(context.Background(), job))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := pool.Submit(ctx, job)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_CloseDrainsInFlightWork(t *testing.T) {
	workflow := testutil.NewFakeWorkflowEngine()
	notifier := &testutil.FakeNotifier{}
	dispatcher, _ := newTestDispatcher(t, workflow, notifier)

	pool := NewPool(dispatcher, 1, dispatcher.logger)
	pool.Start(context.Background(), 1)

	group := testutil.CreateTestGroup()
	require.NoError(t, pool.Submit(context.Background(), Job{
		Group:   group,
		Actions: []*models.ConditionalAction{testutil.CreateTestAction(group.ID)},
		Context: models.ExecutionContext{StepInstanceID: "step-instance-1", EventID: "event-1"},
	}))

	pool.Close()

	count := 0
	for range pool.Reports() {
		count++
	}

	assert.Equal(t, 1, count)
}
