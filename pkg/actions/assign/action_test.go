package assign

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/protocol"
	"github.com/docuflow/docuflow/pkg/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assignAction(params models.AssignUserParams) *models.ConditionalAction {
	return testutil.CreateTestAction("group-1",
		testutil.WithActionType(models.ActionAssignUser, models.ActionParams{AssignUser: &params}),
	)
}

func TestExecute_AssignsNamedUser(t *testing.T) {
	workflow := testutil.NewFakeWorkflowEngine()
	directory := testutil.NewFakeDirectory()
	directory.Users["user-1"] = &protocol.User{ID: "user-1", Email: "reviewer@example.com"}

	handler, err := NewHandlerFactory(workflow, directory).Create()
	require.NoError(t, err)

	ectx := models.ExecutionContext{StepInstanceID: "si-1"}

	result, err := handler.Execute(context.Background(), assignAction(models.AssignUserParams{UserID: "user-1"}), ectx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "user-1", result.SideEffectRef)

	require.Len(t, workflow.AssignCalls, 1)
	assert.Equal(t, "si-1", workflow.AssignCalls[0].StepInstanceID)
	assert.Equal(t, "user-1", workflow.AssignCalls[0].UserID)
}

func TestExecute_RoleResolvesToFirstMember(t *testing.T) {
	workflow := testutil.NewFakeWorkflowEngine()
	directory := testutil.NewFakeDirectory()
	directory.Roles["managers"] = []*protocol.User{
		{ID: "user-2"},
		{ID: "user-3"},
	}

	handler, err := NewHandlerFactory(workflow, directory).Create()
	require.NoError(t, err)

	ectx := models.ExecutionContext{StepInstanceID: "si-1"}

	result, err := handler.Execute(context.Background(), assignAction(models.AssignUserParams{Role: "managers"}), ectx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "user-2", result.SideEffectRef)
}

func TestExecute_ResolutionFailures(t *testing.T) {
	workflow := testutil.NewFakeWorkflowEngine()
	directory := testutil.NewFakeDirectory()
	directory.Roles["empty-role"] = nil

	handler, err := NewHandlerFactory(workflow, directory).Create()
	require.NoError(t, err)

	ectx := models.ExecutionContext{StepInstanceID: "si-1"}

	testCases := []struct {
		name     string
		params   models.AssignUserParams
		expected string
	}{
		{
			name:     "unknown user",
			params:   models.AssignUserParams{UserID: "ghost"},
			expected: "unknown user",
		},
		{
			name:     "unknown role",
			params:   models.AssignUserParams{Role: "ghosts"},
			expected: "unknown role",
		},
		{
			name:     "role without members",
			params:   models.AssignUserParams{Role: "empty-role"},
			expected: "has no members",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := handler.Execute(context.Background(), assignAction(tc.params), ectx, testLogger())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expected)
		})
	}

	assert.Empty(t, workflow.AssignCalls)
}
