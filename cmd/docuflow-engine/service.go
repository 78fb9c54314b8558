// Package main provides the long-running docuflow engine service: it
// consumes step lifecycle events, dispatches conditional actions and runs the
// escalation scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docuflow/docuflow/pkg/dispatch"
	"github.com/docuflow/docuflow/pkg/engine"
	"github.com/docuflow/docuflow/pkg/escalation"
	"github.com/docuflow/docuflow/pkg/eventbus"
	"github.com/docuflow/docuflow/pkg/events"
)

type Service struct {
	id         string
	engine     *engine.Engine
	scheduler  *escalation.Scheduler
	eventBus   eventbus.EventBus
	dispatcher *dispatch.Dispatcher
	pool       *dispatch.Pool
	workers    int
	logger     *slog.Logger
}

func NewService(
	id string,
	eng *engine.Engine,
	scheduler *escalation.Scheduler,
	eventBus eventbus.EventBus,
	dispatcher *dispatch.Dispatcher,
	workers int,
	logger *slog.Logger,
) *Service {
	return &Service{
		id:         id,
		engine:     eng,
		scheduler:  scheduler,
		eventBus:   eventBus,
		dispatcher: dispatcher,
		workers:    workers,
		logger:     logger.With("module", "service"),
	}
}

// Start runs the service until the context is cancelled or a termination
// signal arrives.
func (s *Service) Start(ctx context.Context) {
	sCtx, cancel := context.WithCancel(ctx)

	s.logger.Info("Starting engine service")

	s.handleSignals(cancel)

	if err := s.run(sCtx); err != nil {
		s.logger.Error("Engine service failed", "error", err)
		cancel()

		return
	}

	<-sCtx.Done()
	s.logger.Info("Engine service context cancelled, stopping...")

	if err := s.scheduler.Stop(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("Failed to stop escalation scheduler", "error", err)
	}

	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Service) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		s.logger.Info("Received signal", "signal", sig)
		s.logger.Info("Shutting down gracefully...")
		cancel()
	}()
}

func (s *Service) run(ctx context.Context) error {
	s.pool = dispatch.NewPool(s.dispatcher, s.workers, s.logger)
	s.pool.Start(ctx, s.workers)

	go s.drainReports(ctx)

	if err := s.subscribeToStepEvents(ctx); err != nil {
		return err
	}

	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start escalation scheduler: %w", err)
	}

	s.logger.Info("Engine service started", "workers", s.workers)

	return nil
}

// drainReports publishes the outcome of every dispatch the pool completes.
func (s *Service) drainReports(ctx context.Context) {
	for report := range s.pool.Reports() {
		s.engine.PublishDispatchReport(ctx, report)
	}
}

// subscribeToStepEvents registers the step lifecycle handlers. Transition
// events drive dispatch; completion and reassignment events suppress open
// escalations.
func (s *Service) subscribeToStepEvents(ctx context.Context) error {
	err := s.eventBus.Handle(events.StepTransitionEvent, func(ctx context.Context, event any) error {
		transition, ok := event.(*events.StepTransition)
		if !ok {
			return fmt.Errorf("unexpected event payload %T for step transition", event)
		}

		s.logger.InfoContext(ctx, "Received step transition",
			"step_instance_id", transition.StepInstanceID,
			"to_step_id", transition.ToStepID)

		jobs, err := s.engine.PrepareDispatches(ctx, transition)
		if err != nil {
			return err
		}

		for _, job := range jobs {
			if err := s.pool.Submit(ctx, job); err != nil {
				return fmt.Errorf("failed to submit dispatch job: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register step transition handler: %w", err)
	}

	err = s.eventBus.Handle(events.StepCompletedEvent, func(ctx context.Context, event any) error {
		completed, ok := event.(*events.StepCompleted)
		if !ok {
			return fmt.Errorf("unexpected event payload %T for step completion", event)
		}

		s.logger.InfoContext(ctx, "Received step completion",
			"step_instance_id", completed.StepInstanceID)

		return s.engine.HandleStepCompleted(ctx, completed)
	})
	if err != nil {
		return fmt.Errorf("failed to register step completion handler: %w", err)
	}

	err = s.eventBus.Handle(events.StepReassignedEvent, func(ctx context.Context, event any) error {
		reassigned, ok := event.(*events.StepReassigned)
		if !ok {
			return fmt.Errorf("unexpected event payload %T for step reassignment", event)
		}

		s.logger.InfoContext(ctx, "Received step reassignment",
			"step_instance_id", reassigned.StepInstanceID)

		return s.engine.HandleStepReassigned(ctx, reassigned)
	})
	if err != nil {
		return fmt.Errorf("failed to register step reassignment handler: %w", err)
	}

	if err := s.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event topics: %w", err)
	}

	s.logger.Info("Subscribed to step lifecycle events")

	return nil
}
