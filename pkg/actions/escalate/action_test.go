package escalate

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

func escalateAction(ruleID string) *models.ConditionalAction {
	return testutil.CreateTestAction("group-1",
		testutil.WithActionType(models.ActionTriggerEscalation, models.ActionParams{
			TriggerEscalation: &models.TriggerEscalationParams{RuleID: ruleID},
		}),
	)
}

func TestExecute_RaisesEscalation(t *testing.T) {
	raiser := &testutil.FakeRaiser{}

	factory := NewHandlerFactory(raiser)
	assert.Equal(t, models.ActionTriggerEscalation, factory.Type())

	handler, err := factory.Create()
	require.NoError(t, err)

	ectx := models.ExecutionContext{StepInstanceID: "si-1", EventID: "event-1"}

	result, err := handler.Execute(context.Background(), escalateAction("rule-1"), ectx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "instance-rule-1", result.SideEffectRef)
	assert.Equal(t, 1, result.Output["level"])

	require.Len(t, raiser.Raised, 1)
	assert.Equal(t, "rule-1", raiser.Raised[0].RuleID)
	assert.Equal(t, "event-1", raiser.Raised[0].EventID)
}

func TestExecute_RaiserFailure(t *testing.T) {
	raiser := &testutil.FakeRaiser{Err: errors.New("rule is not active")}

	handler, err := NewHandlerFactory(raiser).Create()
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), escalateAction("rule-1"), models.ExecutionContext{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not active")
}
