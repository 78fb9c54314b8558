// Package main provides the docuflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/docuflow/docuflow/pkg/engine"
	"github.com/docuflow/docuflow/pkg/persistence"
	"github.com/docuflow/docuflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	engine      *engine.Engine
	persistence persistence.Persistence
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	eng *engine.Engine,
	persistence persistence.Persistence,
) *API {
	return &API{
		logger:      logger,
		engine:      eng,
		persistence: persistence,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Docuflow API")
	})

	g := app.Group("/condition-groups")
	g.Post("/", handlers.CreateConditionGroup)
	g.Delete("/:id", handlers.DeactivateConditionGroup)
	g.Post("/:id/evaluate", handlers.EvaluateConditionGroup)
	g.Post("/:id/actions", handlers.CreateAction)

	app.Delete("/actions/:id", handlers.DeactivateAction)

	app.Post("/dispatch", handlers.Dispatch)

	e := app.Group("/escalations")
	e.Post("/rules", handlers.CreateEscalationRule)
	e.Delete("/rules/:id", handlers.DeactivateEscalationRule)
	e.Post("/scan", handlers.RunEscalationScan)
	e.Get("/instances", handlers.ListEscalationInstances)

	app.Get("/step-instances/:id/audit-trail", handlers.GetAuditTrail)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
