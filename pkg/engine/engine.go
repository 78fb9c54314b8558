package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docuflow/docuflow/pkg/conditions"
	"github.com/docuflow/docuflow/pkg/dispatch"
	"github.com/docuflow/docuflow/pkg/escalation"
	"github.com/docuflow/docuflow/pkg/eventbus"
	"github.com/docuflow/docuflow/pkg/events"
	"github.com/docuflow/docuflow/pkg/ledger"
	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
	"github.com/docuflow/docuflow/pkg/protocol"
	"github.com/docuflow/docuflow/pkg/tracer"
)

// Engine wires the evaluator, dispatcher and escalation scheduler behind the
// exposed operations.
type Engine struct {
	persistence persistence.Persistence
	evaluator   *conditions.Evaluator
	dispatcher  *dispatch.Dispatcher
	scheduler   *escalation.Scheduler
	workflow    protocol.WorkflowEngine
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
}

func New(
	persist persistence.Persistence,
	evaluator *conditions.Evaluator,
	dispatcher *dispatch.Dispatcher,
	scheduler *escalation.Scheduler,
	workflow protocol.WorkflowEngine,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		persistence: persist,
		evaluator:   evaluator,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		workflow:    workflow,
		publisher:   publisher,
		logger:      logger.With("module", "engine"),
		tracer:      tracer.NewTracer("docuflow.engine"),
	}
}

// EvaluateConditionGroup evaluates a stored group against the live context of
// a step instance and writes one evaluation record to the ledger.
func (e *Engine) EvaluateConditionGroup(ctx context.Context, groupID, stepInstanceID string) (*conditions.Result, error) {
	ctx, span := tracer.StartSpan(ctx, e.tracer, "engine.evaluate_condition_group",
		attribute.String(tracer.ConditionGroupIDKey, groupID),
		attribute.String(tracer.StepInstanceIDKey, stepInstanceID),
	)
	defer span.End()

	result, err := e.evaluateConditionGroup(ctx, groupID, stepInstanceID)
	if err != nil {
		tracer.SetError(span, err)
	}

	return result, err
}

func (e *Engine) evaluateConditionGroup(ctx context.Context, groupID, stepInstanceID string) (*conditions.Result, error) {
	if groupID == "" {
		return nil, NewValidationError("EvaluateConditionGroup", "empty_group_id", "condition group id is required", ErrEmptyGroupID)
	}

	if stepInstanceID == "" {
		return nil, NewValidationError("EvaluateConditionGroup", "empty_step_instance_id", "step instance id is required", ErrEmptyStepID)
	}

	group, err := e.persistence.ConditionGroupByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load condition group: %w", err)
	}

	if !group.Active {
		return nil, &EngineError{Op: "EvaluateConditionGroup", Code: "group_inactive", Err: ErrGroupInactive}
	}

	data, err := e.workflow.GetContext(ctx, stepInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load step instance context: %w", err)
	}

	ectx := models.ExecutionContext{
		StepInstanceID: stepInstanceID,
		EventID:        uuid.New().String(),
		Data:           data,
	}

	return e.evaluate(ctx, group, ectx)
}

// evaluate runs the evaluator and records the result. The context snapshot
// goes into the record so past decisions stay explainable after the document
// changes.
func (e *Engine) evaluate(ctx context.Context, group *models.ConditionGroup, ectx models.ExecutionContext) (*conditions.Result, error) {
	result, err := e.evaluator.Evaluate(ctx, group, ectx)

	record := &models.ConditionEvaluation{
		GroupID:        group.ID,
		StepInstanceID: ectx.StepInstanceID,
		EvaluatedAt:    time.Now().UTC(),
	}

	if snapshot, marshalErr := json.Marshal(ectx.Data); marshalErr == nil {
		record.ContextSnapshot = snapshot
	}

	if err != nil {
		record.Error = err.Error()
	} else {
		record.Result = result.Value
		record.Trace = result.Trace.Marshal()
	}

	if recordErr := e.persistence.RecordEvaluation(ctx, record); recordErr != nil {
		e.logger.ErrorContext(ctx, "Failed to record evaluation",
			"group_id", group.ID,
			"step_instance_id", ectx.StepInstanceID,
			"error", recordErr)
	}

	if err != nil {
		return nil, fmt.Errorf("evaluation failed for group %s: %w", group.ID, err)
	}

	return result, nil
}

// PrepareDispatches evaluates every active condition group attached to the
// entered step and returns one dispatch job per group that evaluated true.
// Evaluations are recorded in the ledger whether or not they produce a job.
func (e *Engine) PrepareDispatches(ctx context.Context, event *events.StepTransition) ([]dispatch.Job, error) {
	if event.StepInstanceID == "" || event.ID == "" {
		return nil, NewValidationError("DispatchForEvent", "invalid_event", "event requires id and step instance id", ErrInvalidRequest)
	}

	groups, err := e.persistence.ConditionGroupsByStep(ctx, event.ToStepID)
	if err != nil {
		return nil, fmt.Errorf("failed to load condition groups for step %s: %w", event.ToStepID, err)
	}

	data := event.Context
	if data == nil {
		data, err = e.workflow.GetContext(ctx, event.StepInstanceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load step instance context: %w", err)
		}
	}

	ectx := models.ExecutionContext{
		StepInstanceID:     event.StepInstanceID,
		WorkflowInstanceID: event.WorkflowInstanceID,
		EventID:            event.ID,
		Data:               data,
	}

	jobs := make([]dispatch.Job, 0, len(groups))

	for _, group := range groups {
		result, err := e.evaluate(ctx, group, ectx)
		if err != nil {
			e.logger.ErrorContext(ctx, "Group evaluation failed during dispatch",
				"group_id", group.ID,
				"error", err)

			continue
		}

		if !result.Value {
			continue
		}

		actions, err := e.persistence.ActionsByGroup(ctx, group.ID)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to load actions for group",
				"group_id", group.ID,
				"error", err)

			continue
		}

		jobs = append(jobs, dispatch.Job{Group: group, Actions: actions, Context: ectx})
	}

	return jobs, nil
}

// DispatchForEvent handles one step-transition event synchronously: the jobs
// PrepareDispatches produces run in order on the calling goroutine. The event
// id is the idempotency key, so redelivered events re-skip already-executed
// actions.
func (e *Engine) DispatchForEvent(ctx context.Context, event *events.StepTransition) ([]*dispatch.ExecutionReport, error) {
	jobs, err := e.PrepareDispatches(ctx, event)
	if err != nil {
		return nil, err
	}

	reports := make([]*dispatch.ExecutionReport, 0, len(jobs))

	for _, job := range jobs {
		report := e.dispatcher.Dispatch(ctx, job.Group, job.Actions, job.Context)
		reports = append(reports, report)

		e.PublishDispatchReport(ctx, report)
	}

	return reports, nil
}

// RunEscalationScan triggers one scan pass outside the timer loop.
func (e *Engine) RunEscalationScan(ctx context.Context) (*escalation.ScanReport, error) {
	return e.scheduler.RunScan(ctx)
}

// ListEscalationInstances returns instances matching the filter.
func (e *Engine) ListEscalationInstances(ctx context.Context, filter persistence.EscalationInstanceFilter) ([]*models.EscalationInstance, error) {
	return e.persistence.ListEscalationInstances(ctx, filter)
}

// AuditTrail is the combined decision history of one step instance.
type AuditTrail struct {
	StepInstanceID string                        `json:"step_instance_id"`
	Evaluations    []*models.ConditionEvaluation `json:"evaluations"`
	Executions     []*models.ActionExecution     `json:"executions"`
}

// GetAuditTrail returns all evaluations and executions recorded for a step
// instance within the time range.
func (e *Engine) GetAuditTrail(ctx context.Context, stepInstanceID string, timeRange ledger.Range) (*AuditTrail, error) {
	if stepInstanceID == "" {
		return nil, NewValidationError("GetAuditTrail", "empty_step_instance_id", "step instance id is required", ErrEmptyStepID)
	}

	evaluations, err := e.persistence.EvaluationsByStepInstance(ctx, stepInstanceID, timeRange)
	if err != nil {
		return nil, fmt.Errorf("failed to load evaluations: %w", err)
	}

	executions, err := e.persistence.ExecutionsByStepInstance(ctx, stepInstanceID, timeRange)
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	return &AuditTrail{
		StepInstanceID: stepInstanceID,
		Evaluations:    evaluations,
		Executions:     executions,
	}, nil
}

// HandleStepCompleted closes escalation chains and is the suppression hook
// for the escalation scheduler.
func (e *Engine) HandleStepCompleted(ctx context.Context, event *events.StepCompleted) error {
	return e.scheduler.HandleStepCompleted(ctx, event.StepInstanceID)
}

// HandleStepReassigned suppresses pending escalations of the reassigned step.
func (e *Engine) HandleStepReassigned(ctx context.Context, event *events.StepReassigned) error {
	return e.scheduler.HandleStepReassigned(ctx, event.StepInstanceID)
}

// PublishDispatchReport emits a dispatch-completed event summarising one
// group's action outcomes. A nil publisher makes it a no-op.
func (e *Engine) PublishDispatchReport(ctx context.Context, report *dispatch.ExecutionReport) {
	if e.publisher == nil {
		return
	}

	event := events.DispatchCompleted{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.DispatchCompletedEvent,
			Timestamp: time.Now().UTC(),
		},
		GroupID:        report.GroupID,
		StepInstanceID: report.StepInstanceID,
		EventID:        report.EventID,
		Succeeded:      report.Count(models.ExecutionSucceeded),
		Failed:         report.Count(models.ExecutionFailed),
		Skipped:        report.Count(models.ExecutionSkipped),
	}

	if err := e.publisher.Publish(ctx, report.StepInstanceID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish dispatch completed event", "error", err)
	}
}
