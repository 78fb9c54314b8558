// Package escalation implements the time-based escalation scheduler: a
// periodic scan that detects stalled step instances, fires escalation actions
// and tracks firing chains as escalation instances.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docuflow/docuflow/pkg/conditions"
	"github.com/docuflow/docuflow/pkg/eventbus"
	"github.com/docuflow/docuflow/pkg/events"
	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
	"github.com/docuflow/docuflow/pkg/protocol"
	"github.com/docuflow/docuflow/pkg/registry"
	"github.com/docuflow/docuflow/pkg/tracer"
)

const DefaultScanInterval = 1 * time.Minute

// Scheduler polls for stalled step instances and drives the escalation
// lifecycle. It also implements protocol.EscalationRaiser so condition-driven
// escalations funnel through the same guards as time-based ones.
type Scheduler struct {
	persistence persistence.Persistence
	engine      protocol.WorkflowEngine
	evaluator   *conditions.Evaluator
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	locker      Locker
	logger      *slog.Logger
	tracer      trace.Tracer
	interval    time.Duration
	cronExpr    string
	cron        *cron.Cron
	ticker      *time.Ticker
	done        chan bool
	started     bool
	mu          sync.RWMutex
}

func NewScheduler(
	persist persistence.Persistence,
	engine protocol.WorkflowEngine,
	evaluator *conditions.Evaluator,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	locker Locker,
	interval time.Duration,
	logger *slog.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = DefaultScanInterval
	}

	if locker == nil {
		locker = NewLocalLocker()
	}

	return &Scheduler{
		persistence: persist,
		engine:      engine,
		evaluator:   evaluator,
		registry:    reg,
		publisher:   publisher,
		locker:      locker,
		interval:    interval,
		logger:      logger.With("module", "escalation_scheduler"),
		tracer:      tracer.NewTracer("docuflow.escalation"),
	}
}

// SetCronExpression switches the scan trigger from a fixed interval to a
// cron schedule. Must be called before Start.
func (s *Scheduler) SetCronExpression(expr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cronExpr = expr
}

// Start begins the periodic scan loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.cronExpr != "" {
		s.cron = cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		))

		_, err := s.cron.AddFunc(s.cronExpr, func() {
			if _, err := s.RunScan(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Escalation scan failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid scan cron expression %q: %w", s.cronExpr, err)
		}

		s.logger.Info("Starting escalation scheduler", "cron", s.cronExpr)

		s.cron.Start()
		s.started = true

		return nil
	}

	s.logger.Info("Starting escalation scheduler", "interval", s.interval)

	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan bool)
	s.started = true

	go s.loop(ctx)

	return nil
}

// Stop gracefully shuts down the scan loop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info("Stopping escalation scheduler")

	if s.cron != nil {
		s.cron.Stop()
	}

	if s.ticker != nil {
		s.ticker.Stop()
	}

	if s.done != nil {
		select {
		case s.done <- true:
		default:
		}
	}

	s.started = false

	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			if _, err := s.RunScan(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Escalation scan failed", "error", err)
			}
		}
	}
}

// RunScan performs one full scan pass over all active rules. The run lock
// keeps concurrent scans (overlapping ticks, multiple processes) from firing
// the same exceedance twice; a scan that finds the lock held is skipped.
func (s *Scheduler) RunScan(ctx context.Context) (*ScanReport, error) {
	ctx, span := tracer.StartSpan(ctx, s.tracer, "scheduler.escalation_scan")
	defer span.End()

	report, err := s.runScan(ctx)
	if err != nil {
		tracer.SetError(span, err)
	}

	return report, err
}

func (s *Scheduler) runScan(ctx context.Context) (*ScanReport, error) {
	report := &ScanReport{StartedAt: time.Now().UTC()}

	acquired, err := s.locker.Acquire(ctx, 2*s.interval)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire scan lock: %w", err)
	}

	if !acquired {
		s.logger.InfoContext(ctx, "Scan already in progress, skipping")

		report.Skipped = true
		report.FinishedAt = time.Now().UTC()

		return report, nil
	}

	defer func() {
		if err := s.locker.Release(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to release scan lock", "error", err)
		}
	}()

	rules, err := s.persistence.ActiveEscalationRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load escalation rules: %w", err)
	}

	report.RulesScanned = len(rules)

	// Open step instances are fetched once per workflow and shared across
	// the rules scoped to it.
	stepsByWorkflow := make(map[string][]*models.StepInstance)

	for _, rule := range rules {
		steps, ok := stepsByWorkflow[rule.WorkflowID]
		if !ok {
			steps, err = s.engine.OpenStepInstances(ctx, rule.WorkflowID)
			if err != nil {
				report.RuleErrors = append(report.RuleErrors, RuleError{
					RuleID: rule.ID,
					Error:  fmt.Sprintf("failed to list open step instances: %v", err),
				})

				continue
			}

			stepsByWorkflow[rule.WorkflowID] = steps
		}

		s.scanRule(ctx, rule, steps, report)
	}

	report.FinishedAt = time.Now().UTC()

	s.logger.InfoContext(ctx, "Escalation scan completed",
		"rules", report.RulesScanned,
		"steps", report.StepsExamined,
		"fired", len(report.Fired),
		"errors", len(report.RuleErrors))

	return report, nil
}

func (s *Scheduler) scanRule(ctx context.Context, rule *models.EscalationRule, steps []*models.StepInstance, report *ScanReport) {
	now := time.Now().UTC()

	for _, step := range steps {
		if !rule.AppliesTo(step.WorkflowID, step.StepID) {
			continue
		}

		report.StepsExamined++

		exceeded, err := s.exceeded(ctx, rule, step, now)
		if err != nil {
			report.RuleErrors = append(report.RuleErrors, RuleError{RuleID: rule.ID, Error: err.Error()})

			continue
		}

		if !exceeded {
			continue
		}

		result := s.process(ctx, rule, step, now)
		if result == nil {
			continue
		}

		if result.Saturated {
			report.Saturated = append(report.Saturated, *result)
		} else {
			report.Fired = append(report.Fired, *result)
		}
	}
}

// exceeded reports whether the rule's trigger condition holds for the step.
func (s *Scheduler) exceeded(ctx context.Context, rule *models.EscalationRule, step *models.StepInstance, now time.Time) (bool, error) {
	switch rule.Trigger {
	case models.TriggerElapsedSinceStart:
		return now.Sub(step.StartedAt) >= rule.Threshold, nil
	case models.TriggerElapsedSinceActivity:
		return now.Sub(step.LastActivityAt) >= rule.Threshold, nil
	case models.TriggerDueDatePassed:
		if step.DueAt == nil {
			return false, nil
		}

		return now.After(step.DueAt.Add(rule.Threshold)), nil
	case models.TriggerCustomCondition:
		return s.evaluateCustomCondition(ctx, rule, step)
	default:
		return false, fmt.Errorf("unsupported trigger kind: %s", rule.Trigger)
	}
}

func (s *Scheduler) evaluateCustomCondition(ctx context.Context, rule *models.EscalationRule, step *models.StepInstance) (bool, error) {
	group, err := s.persistence.ConditionGroupByID(ctx, *rule.ConditionGroupID)
	if err != nil {
		return false, fmt.Errorf("failed to load condition group %s: %w", *rule.ConditionGroupID, err)
	}

	data, err := s.engine.GetContext(ctx, step.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load step context: %w", err)
	}

	result, err := s.evaluator.Evaluate(ctx, group, models.ExecutionContext{
		StepInstanceID:     step.ID,
		WorkflowInstanceID: step.WorkflowInstanceID,
		EventID:            "escalation-scan",
		Data:               data,
	})
	if err != nil {
		return false, fmt.Errorf("condition evaluation failed: %w", err)
	}

	return result.Value, nil
}

// process fires the rule on the step instance, creating the escalation
// instance on first exceedance and advancing its level on repeats.
func (s *Scheduler) process(ctx context.Context, rule *models.EscalationRule, step *models.StepInstance, now time.Time) *FireResult {
	instance, created, err := s.ensureInstance(ctx, rule.ID, step.ID, now)
	if err != nil {
		return &FireResult{RuleID: rule.ID, StepInstanceID: step.ID, Error: err.Error()}
	}

	if !created {
		advance, terminal, saturated := s.nextFiring(rule, instance, now)
		if saturated {
			return &FireResult{
				RuleID:         rule.ID,
				StepInstanceID: step.ID,
				InstanceID:     instance.ID,
				Level:          instance.Level,
				Saturated:      true,
			}
		}

		if !advance {
			return nil
		}

		if terminal {
			return s.fireTerminal(ctx, rule, step, instance)
		}
	}

	return s.fire(ctx, rule, step, instance)
}

// ensureInstance returns the open instance for the pair, or atomically
// creates the pending one when no chain is open. The insert-if-absent guard
// covers the race between concurrent creators; the open-instance lookup
// covers chains that already fired.
func (s *Scheduler) ensureInstance(ctx context.Context, ruleID, stepInstanceID string, now time.Time) (*models.EscalationInstance, bool, error) {
	open, err := s.persistence.OpenInstance(ctx, ruleID, stepInstanceID)
	if err != nil && !persistence.IsNotFound(err) {
		return nil, false, fmt.Errorf("failed to load open escalation instance: %w", err)
	}

	if open != nil {
		return open, false, nil
	}

	instance := &models.EscalationInstance{
		ID:             uuid.New().String(),
		RuleID:         ruleID,
		StepInstanceID: stepInstanceID,
		Level:          1,
		Status:         models.EscalationPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.persistence.CreatePendingInstance(ctx, instance)
	if err == nil {
		return instance, true, nil
	}

	if !errors.Is(err, persistence.ErrDuplicatePending) {
		return nil, false, fmt.Errorf("failed to create escalation instance: %w", err)
	}

	existing, err := s.persistence.OpenInstance(ctx, ruleID, stepInstanceID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load open escalation instance: %w", err)
	}

	if existing == nil {
		// The pending instance vanished between the insert conflict and the
		// lookup; the next scan starts a fresh chain.
		return nil, false, fmt.Errorf("open escalation instance for rule %s disappeared", ruleID)
	}

	return existing, false, nil
}

// nextFiring decides whether an already-open instance fires again now.
// The terminal flag selects the rule's terminal action instead of its
// escalation action; saturated marks a repeat due at max level that the stop
// behavior suppresses.
func (s *Scheduler) nextFiring(rule *models.EscalationRule, instance *models.EscalationInstance, now time.Time) (advance, terminal, saturated bool) {
	if instance.Status == models.EscalationPending {
		// A pending instance means the previous firing attempt never
		// completed; retry it at the same level.
		return true, false, false
	}

	if rule.RepeatInterval == nil {
		return false, false, false
	}

	if instance.TriggeredAt == nil || now.Sub(*instance.TriggeredAt) < *rule.RepeatInterval {
		return false, false, false
	}

	if instance.Level < rule.MaxLevel {
		instance.Level++

		return true, false, false
	}

	switch rule.OnMax {
	case models.OnMaxRepeat:
		return true, false, false
	case models.OnMaxTerminal:
		return true, true, false
	default:
		return false, false, true
	}
}

func (s *Scheduler) fire(ctx context.Context, rule *models.EscalationRule, step *models.StepInstance, instance *models.EscalationInstance) *FireResult {
	ctx, span := tracer.StartSpan(ctx, s.tracer, "scheduler.fire",
		attribute.String(tracer.EscalationRuleIDKey, rule.ID),
		attribute.String(tracer.StepInstanceIDKey, step.ID),
		attribute.Int(tracer.EscalationLevelKey, instance.Level),
	)
	defer span.End()

	result := &FireResult{
		RuleID:         rule.ID,
		StepInstanceID: step.ID,
		InstanceID:     instance.ID,
		Level:          instance.Level,
	}

	if err := s.executeAction(ctx, rule.ActionType, rule.ActionParams, step, instance); err != nil {
		result.Error = err.Error()

		return result
	}

	now := time.Now().UTC()
	instance.Status = models.EscalationTriggered
	instance.TriggeredAt = &now
	instance.UpdatedAt = now

	if err := s.persistence.UpdateEscalationInstance(ctx, instance); err != nil {
		result.Error = fmt.Sprintf("action executed but instance update failed: %v", err)

		return result
	}

	s.publishTriggered(ctx, instance)

	s.logger.InfoContext(ctx, "Escalation fired",
		"rule_id", rule.ID,
		"step_instance_id", step.ID,
		"level", instance.Level)

	return result
}

// fireTerminal executes the rule's terminal action once and closes the
// firing chain.
func (s *Scheduler) fireTerminal(ctx context.Context, rule *models.EscalationRule, step *models.StepInstance, instance *models.EscalationInstance) *FireResult {
	result := &FireResult{
		RuleID:         rule.ID,
		StepInstanceID: step.ID,
		InstanceID:     instance.ID,
		Level:          instance.Level,
		Terminal:       true,
	}

	if err := s.executeAction(ctx, *rule.TerminalType, *rule.TerminalParams, step, instance); err != nil {
		result.Error = err.Error()

		return result
	}

	now := time.Now().UTC()
	instance.Status = models.EscalationResolved
	instance.ResolvedAt = &now
	instance.UpdatedAt = now

	if err := s.persistence.UpdateEscalationInstance(ctx, instance); err != nil {
		result.Error = fmt.Sprintf("terminal action executed but instance update failed: %v", err)

		return result
	}

	s.publishResolved(ctx, instance)

	s.logger.InfoContext(ctx, "Terminal escalation action executed",
		"rule_id", rule.ID,
		"step_instance_id", step.ID,
		"level", instance.Level)

	return result
}

// executeAction runs an escalation action through the shared handler registry
// and records the run in the ledger. Each firing gets a fresh event id so
// repeat firings are recorded as distinct executions.
func (s *Scheduler) executeAction(ctx context.Context, actionType models.ActionType, params models.ActionParams, step *models.StepInstance, instance *models.EscalationInstance) error {
	handler, err := s.registry.CreateHandler(actionType)
	if err != nil {
		return err
	}

	data, err := s.engine.GetContext(ctx, step.ID)
	if err != nil {
		return fmt.Errorf("failed to load step context: %w", err)
	}

	action := &models.ConditionalAction{
		ID:      "escalation:" + instance.RuleID + ":" + strconv.Itoa(instance.Level),
		GroupID: "escalation:" + instance.RuleID,
		Type:    actionType,
		Params:  params,
		Enabled: true,
	}

	eventID := uuid.New().String()
	ectx := models.ExecutionContext{
		StepInstanceID:     step.ID,
		WorkflowInstanceID: step.WorkflowInstanceID,
		EventID:            eventID,
		Data:               data,
		Metadata: map[string]any{
			"escalation_rule_id":     instance.RuleID,
			"escalation_instance_id": instance.ID,
			"escalation_level":       instance.Level,
		},
	}

	execution := &models.ActionExecution{
		ActionID:       action.ID,
		StepInstanceID: step.ID,
		EventID:        eventID,
		ExecutedAt:     time.Now().UTC(),
	}

	execResult, err := handler.Execute(ctx, action, ectx, s.logger.With("rule_id", instance.RuleID, "action_type", actionType))
	if err != nil {
		execution.Status = models.ExecutionFailed
		execution.Error = err.Error()
		s.recordExecution(ctx, execution)

		return fmt.Errorf("escalation action %s failed: %w", actionType, err)
	}

	execution.Status = models.ExecutionSucceeded
	if execResult != nil {
		execution.SideEffectRef = execResult.SideEffectRef
	}

	s.recordExecution(ctx, execution)

	return nil
}

func (s *Scheduler) recordExecution(ctx context.Context, execution *models.ActionExecution) {
	if err := s.persistence.RecordExecution(ctx, execution); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record escalation execution", "error", err)
	}
}

// Raise implements protocol.EscalationRaiser for condition-driven
// trigger-escalation actions. It goes through the same insert-if-absent and
// level guards as the time-based scan.
func (s *Scheduler) Raise(ctx context.Context, ruleID, stepInstanceID, eventID string) (*models.EscalationInstance, error) {
	rule, err := s.persistence.EscalationRuleByID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escalation rule %s: %w", ruleID, err)
	}

	if !rule.Active || rule.DeactivatedAt != nil {
		return nil, fmt.Errorf("escalation rule %s is not active", ruleID)
	}

	now := time.Now().UTC()

	instance, created, err := s.ensureInstance(ctx, rule.ID, stepInstanceID, now)
	if err != nil {
		return nil, err
	}

	if !created {
		advance, terminal, saturated := s.nextFiring(rule, instance, now)
		if !advance || saturated {
			return instance, nil
		}

		if terminal {
			step := &models.StepInstance{ID: stepInstanceID}
			if result := s.fireTerminal(ctx, rule, step, instance); result.Error != "" {
				return instance, errors.New(result.Error)
			}

			return instance, nil
		}
	}

	step := &models.StepInstance{ID: stepInstanceID}
	if result := s.fire(ctx, rule, step, instance); result.Error != "" {
		return instance, errors.New(result.Error)
	}

	return instance, nil
}

// HandleStepCompleted closes the firing chains of a finished step instance:
// pending instances are suppressed, triggered ones resolved.
func (s *Scheduler) HandleStepCompleted(ctx context.Context, stepInstanceID string) error {
	open, err := s.persistence.OpenInstancesByStepInstance(ctx, stepInstanceID)
	if err != nil {
		return fmt.Errorf("failed to load open escalation instances: %w", err)
	}

	now := time.Now().UTC()

	for _, instance := range open {
		switch instance.Status {
		case models.EscalationPending:
			instance.Status = models.EscalationSuppressed
		case models.EscalationTriggered:
			instance.Status = models.EscalationResolved
			instance.ResolvedAt = &now
		default:
			continue
		}

		instance.UpdatedAt = now

		if err := s.persistence.UpdateEscalationInstance(ctx, instance); err != nil {
			return fmt.Errorf("failed to close escalation instance %s: %w", instance.ID, err)
		}

		s.publishResolved(ctx, instance)

		s.logger.InfoContext(ctx, "Escalation closed on step completion",
			"instance_id", instance.ID,
			"status", instance.Status)
	}

	return nil
}

// HandleStepReassigned suppresses pending instances of a reassigned step.
// Triggered instances stay open: the previous firing already had effect and
// resolves on completion.
func (s *Scheduler) HandleStepReassigned(ctx context.Context, stepInstanceID string) error {
	open, err := s.persistence.OpenInstancesByStepInstance(ctx, stepInstanceID)
	if err != nil {
		return fmt.Errorf("failed to load open escalation instances: %w", err)
	}

	now := time.Now().UTC()

	for _, instance := range open {
		if instance.Status != models.EscalationPending {
			continue
		}

		instance.Status = models.EscalationSuppressed
		instance.UpdatedAt = now

		if err := s.persistence.UpdateEscalationInstance(ctx, instance); err != nil {
			return fmt.Errorf("failed to suppress escalation instance %s: %w", instance.ID, err)
		}

		s.publishResolved(ctx, instance)

		s.logger.InfoContext(ctx, "Escalation suppressed on reassignment", "instance_id", instance.ID)
	}

	return nil
}

func (s *Scheduler) publishTriggered(ctx context.Context, instance *models.EscalationInstance) {
	if s.publisher == nil {
		return
	}

	event := events.EscalationTriggered{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.EscalationTriggeredEvent,
			Timestamp: time.Now().UTC(),
		},
		InstanceID:     instance.ID,
		RuleID:         instance.RuleID,
		StepInstanceID: instance.StepInstanceID,
		Level:          instance.Level,
	}

	if err := s.publisher.Publish(ctx, instance.StepInstanceID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish escalation triggered event", "error", err)
	}
}

func (s *Scheduler) publishResolved(ctx context.Context, instance *models.EscalationInstance) {
	if s.publisher == nil {
		return
	}

	event := events.EscalationResolved{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.EscalationResolvedEvent,
			Timestamp: time.Now().UTC(),
		},
		InstanceID:     instance.ID,
		RuleID:         instance.RuleID,
		StepInstanceID: instance.StepInstanceID,
		Status:         instance.Status,
	}

	if err := s.publisher.Publish(ctx, instance.StepInstanceID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish escalation resolved event", "error", err)
	}
}
