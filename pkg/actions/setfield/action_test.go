package setfield

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setFieldAction(field string, value any) *models.ConditionalAction {
	return testutil.CreateTestAction("group-1",
		testutil.WithActionType(models.ActionSetFieldValue, models.ActionParams{
			SetFieldValue: &models.SetFieldValueParams{Field: field, Value: value},
		}),
	)
}

func TestExecute_RendersStringValues(t *testing.T) {
	workflow := testutil.NewFakeWorkflowEngine()

	handler, err := NewHandlerFactory(workflow).Create()
	require.NoError(t, err)

	ectx := models.ExecutionContext{
		StepInstanceID: "si-1",
		Data: map[string]any{
			"document": map[string]any{"status": "pending"},
		},
	}

	action := setFieldAction("review.previous_status", "{{.data.document.status}}")

	result, err := handler.Execute(context.Background(), action, ectx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "pending", result.Output["value"])

	require.Len(t, workflow.FieldCalls, 1)
	assert.Equal(t, "review.previous_status", workflow.FieldCalls[0].Field)
	assert.Equal(t, "pending", workflow.FieldCalls[0].Value)
}

func TestExecute_NonStringValuesPassThrough(t *testing.T) {
	workflow := testutil.NewFakeWorkflowEngine()

	handler, err := NewHandlerFactory(workflow).Create()
	require.NoError(t, err)

	ectx := models.ExecutionContext{StepInstanceID: "si-1"}

	_, err = handler.Execute(context.Background(), setFieldAction("priority", 3), ectx, testLogger())
	require.NoError(t, err)

	require.Len(t, workflow.FieldCalls, 1)
	assert.Equal(t, 3, workflow.FieldCalls[0].Value)
}

func TestExecute_TemplateErrorFails(t *testing.T) {
	workflow := testutil.NewFakeWorkflowEngine()

	handler, err := NewHandlerFactory(workflow).Create()
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), setFieldAction("field", "{{.broken"), models.ExecutionContext{}, testLogger())
	require.Error(t, err)
	assert.Empty(t, workflow.FieldCalls)
}
