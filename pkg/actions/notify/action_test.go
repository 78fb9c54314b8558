package notify

import (
	"context"
	"errors"
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

func TestExecute_SendsRenderedNotification(t *testing.T) {
	notifier := &testutil.FakeNotifier{}

	factory := NewHandlerFactory(notifier)
	assert.Equal(t, models.ActionSendNotification, factory.Type())

	handler, err := factory.Create()
	require.NoError(t, err)

	action := testutil.CreateTestAction("group-1")
	action.Params.SendNotification.Payload = map[string]any{
		"message": "Step {{.step_instance.id}} is waiting",
		"level":   2,
	}

	ectx := models.ExecutionContext{StepInstanceID: "si-1", EventID: "event-1"}

	result, err := handler.Execute(context.Background(), action, ectx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "notification-1", result.SideEffectRef)

	require.Len(t, notifier.Sent, 1)
	sent := notifier.Sent[0]
	assert.Equal(t, "reviewers", sent.Target.Role)
	assert.Equal(t, "document-pending", sent.TemplateKind)
	assert.Equal(t, "Step si-1 is waiting", sent.Payload["message"])
	assert.Equal(t, 2, sent.Payload["level"])
}

func TestExecute_NotifierFailure(t *testing.T) {
	notifier := &testutil.FakeNotifier{Err: errors.New("service unavailable")}

	handler, err := NewHandlerFactory(notifier).Create()
	require.NoError(t, err)

	action := testutil.CreateTestAction("group-1")
	ectx := models.ExecutionContext{StepInstanceID: "si-1"}

	_, err = handler.Execute(context.Background(), action, ectx, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service unavailable")
}

func TestExecute_BadTemplateFails(t *testing.T) {
	notifier := &testutil.FakeNotifier{}

	handler, err := NewHandlerFactory(notifier).Create()
	require.NoError(t, err)

	action := testutil.CreateTestAction("group-1")
	action.Params.SendNotification.Payload = map[string]any{"message": "{{.broken"}

	_, err = handler.Execute(context.Background(), action, models.ExecutionContext{}, testLogger())
	require.Error(t, err)
	assert.Empty(t, notifier.Sent)
}
