package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/docuflow/docuflow/pkg/cmd"
	"github.com/docuflow/docuflow/pkg/collaborators"
	"github.com/docuflow/docuflow/pkg/conditions"
	"github.com/docuflow/docuflow/pkg/config"
	"github.com/docuflow/docuflow/pkg/dispatch"
	"github.com/docuflow/docuflow/pkg/engine"
	"github.com/docuflow/docuflow/pkg/escalation"
	"github.com/docuflow/docuflow/pkg/log"
	trc "github.com/docuflow/docuflow/pkg/tracer"
)

func main() {
	command := &cli.Command{
		Name:                  "docuflow-engine",
		Usage:                 "Start the docuflow conditional routing and escalation engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "workflow-api-url",
				Usage:    "Base URL of the workflow engine API",
				Required: true,
				Sources:  cli.EnvVars("WORKFLOW_API_URL"),
			},
			&cli.StringFlag{
				Name:     "notifier-url",
				Usage:    "Base URL of the notification service",
				Required: true,
				Sources:  cli.EnvVars("NOTIFIER_URL"),
			},
			&cli.StringFlag{
				Name:     "directory-url",
				Usage:    "Base URL of the user directory service",
				Required: true,
				Sources:  cli.EnvVars("DIRECTORY_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	tracerProvider, err := trc.InitTracer(ctx, "docuflow-engine")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	defer func() {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown tracer provider", "error", err)
		}
	}()

	cfg, err := loadConfig(command)
	if err != nil {
		return err
	}

	engineID := command.String("engine-id")
	if engineID == "" {
		engineID = fmt.Sprintf("engine-%s", uuid.New().String()[:8])
	}

	logger := log.WithModule("docuflow-engine").With("engine_id", engineID)

	logger.Info("Initializing docuflow engine", "engine_id", engineID)

	persist, err := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}

	defer func() {
		if err := persist.Close(ctx); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(cfg.EventBusProvider, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	workflowClient := collaborators.NewWorkflowClient(command.String("workflow-api-url"))
	notifierClient := collaborators.NewNotifierClient(command.String("notifier-url"))
	directoryClient := collaborators.NewDirectoryClient(command.String("directory-url"))

	raiserProxy := &cmd.RaiserProxy{}
	registry := cmd.NewRegistry(logger, workflowClient, notifierClient, directoryClient, raiserProxy)

	evaluator := conditions.NewEvaluator(logger)
	dispatcher := dispatch.NewDispatcher(registry, persist, logger)

	locker, err := newLocker(cfg)
	if err != nil {
		return err
	}

	scheduler := escalation.NewScheduler(
		persist,
		workflowClient,
		evaluator,
		registry,
		eventBus,
		locker,
		cfg.Escalation.ScanInterval,
		logger,
	)

	if cfg.Escalation.ScanCron != "" {
		scheduler.SetCronExpression(cfg.Escalation.ScanCron)
	}

	raiserProxy.Target = scheduler

	eng := engine.New(persist, evaluator, dispatcher, scheduler, workflowClient, eventBus, logger)

	service := NewService(engineID, eng, scheduler, eventBus, dispatcher, cfg.Dispatch.Workers, logger)

	service.Start(ctx)

	return nil
}

func loadConfig(command *cli.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if path := command.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	// Flags override file/env configuration.
	if url := command.String("database-url"); url != "" {
		cfg.DatabaseURL = url
	}

	if provider := command.String("event-bus"); provider != "" {
		cfg.EventBusProvider = provider
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required (flag, DATABASE_URL or config file)")
	}

	return cfg, nil
}

func newLocker(cfg *config.Config) (escalation.Locker, error) {
	if cfg.Escalation.LockRedisAddr == "" {
		return escalation.NewLocalLocker(), nil
	}

	locker, err := escalation.NewRedisLocker(
		cfg.Escalation.LockRedisAddr,
		cfg.Escalation.LockRedisPassword,
		cfg.Escalation.LockRedisDB,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scan lock: %w", err)
	}

	return locker, nil
}
