// Package dispatch executes conditional actions when their owning group
// evaluates true. Actions within one dispatch run sequentially in execution
// order; dispatches for different step instances may run concurrently on the
// worker pool.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docuflow/docuflow/pkg/ledger"
	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/registry"
	"github.com/docuflow/docuflow/pkg/tracer"
)

type Dispatcher struct {
	registry *registry.Registry
	ledger   ledger.Ledger
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewDispatcher(reg *registry.Registry, led ledger.Ledger, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		ledger:   led,
		logger:   logger.With("module", "action_dispatcher"),
		tracer:   tracer.NewTracer("docuflow.dispatch"),
	}
}

// Dispatch runs the group's actions in ascending execution order. Each action
// outcome is written to the ledger; a failure is recorded and the remaining
// actions still run. A prior succeeded execution for the same (action, step
// instance, event) is skipped so replayed events stay idempotent.
func (d *Dispatcher) Dispatch(ctx context.Context, group *models.ConditionGroup, actions []*models.ConditionalAction, ectx models.ExecutionContext) *ExecutionReport {
	ctx, span := tracer.StartSpan(ctx, d.tracer, "dispatcher.dispatch",
		attribute.String(tracer.ConditionGroupIDKey, group.ID),
		attribute.String(tracer.StepInstanceIDKey, ectx.StepInstanceID),
		attribute.String(tracer.WorkflowInstanceIDKey, ectx.WorkflowInstanceID),
		attribute.String(tracer.EventIDKey, ectx.EventID),
	)
	defer span.End()

	report := &ExecutionReport{
		GroupID:        group.ID,
		StepInstanceID: ectx.StepInstanceID,
		EventID:        ectx.EventID,
		StartedAt:      time.Now().UTC(),
	}

	logger := d.logger.With(
		"group_id", group.ID,
		"step_instance_id", ectx.StepInstanceID,
		"event_id", ectx.EventID,
	)

	for _, action := range actions {
		if !action.Enabled || action.DeactivatedAt != nil {
			continue
		}

		report.Outcomes = append(report.Outcomes, d.executeOne(ctx, action, ectx, logger))
	}

	report.FinishedAt = time.Now().UTC()

	logger.InfoContext(ctx, "Dispatch completed",
		"succeeded", report.Count(models.ExecutionSucceeded),
		"failed", report.Count(models.ExecutionFailed),
		"skipped", report.Count(models.ExecutionSkipped))

	return report
}

func (d *Dispatcher) executeOne(ctx context.Context, action *models.ConditionalAction, ectx models.ExecutionContext, logger *slog.Logger) ActionOutcome {
	ctx, span := tracer.StartSpan(ctx, d.tracer, "dispatcher.execute_action",
		attribute.String(tracer.ActionIDKey, action.ID),
		attribute.String(tracer.ActionTypeKey, string(action.Type)),
	)
	defer span.End()

	outcome := ActionOutcome{ActionID: action.ID, Type: action.Type}

	done, err := d.ledger.HasSucceededExecution(ctx, action.ID, ectx.StepInstanceID, ectx.EventID)
	if err != nil {
		// Without the idempotency lookup a replay could duplicate side
		// effects, so the action fails rather than executing blind.
		tracer.SetError(span, err)

		outcome.Status = models.ExecutionFailed
		outcome.Error = "idempotency lookup failed: " + err.Error()
		d.record(ctx, action, ectx, outcome, logger)

		return outcome
	}

	if done {
		logger.InfoContext(ctx, "Action already executed for this event, skipping", "action_id", action.ID)

		outcome.Status = models.ExecutionSkipped
		d.record(ctx, action, ectx, outcome, logger)

		return outcome
	}

	handler, err := d.registry.CreateHandler(action.Type)
	if err != nil {
		tracer.SetError(span, err)

		outcome.Status = models.ExecutionFailed
		outcome.Error = err.Error()
		d.record(ctx, action, ectx, outcome, logger)

		return outcome
	}

	result, err := handler.Execute(ctx, action, ectx, logger.With("action_id", action.ID, "action_type", action.Type))
	if err != nil {
		logger.ErrorContext(ctx, "Action failed", "action_id", action.ID, "error", err)
		tracer.SetError(span, err)

		outcome.Status = models.ExecutionFailed
		outcome.Error = err.Error()
		d.record(ctx, action, ectx, outcome, logger)

		return outcome
	}

	outcome.Status = models.ExecutionSucceeded
	if result != nil {
		outcome.SideEffectRef = result.SideEffectRef
	}

	d.record(ctx, action, ectx, outcome, logger)

	return outcome
}

func (d *Dispatcher) record(ctx context.Context, action *models.ConditionalAction, ectx models.ExecutionContext, outcome ActionOutcome, logger *slog.Logger) {
	record := &models.ActionExecution{
		ActionID:       action.ID,
		StepInstanceID: ectx.StepInstanceID,
		EventID:        ectx.EventID,
		Status:         outcome.Status,
		ExecutedAt:     time.Now().UTC(),
		Error:          outcome.Error,
		SideEffectRef:  outcome.SideEffectRef,
	}

	if err := d.ledger.RecordExecution(ctx, record); err != nil {
		logger.ErrorContext(ctx, "Failed to record action execution", "action_id", action.ID, "error", err)
	}
}
