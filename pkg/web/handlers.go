// Package web provides the HTTP surface of the engine: evaluation, dispatch,
// escalation scans and the audit trail.
package web

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/docuflow/docuflow/pkg/engine"
	"github.com/docuflow/docuflow/pkg/events"
	"github.com/docuflow/docuflow/pkg/ledger"
	"github.com/docuflow/docuflow/pkg/models"
	"github.com/docuflow/docuflow/pkg/persistence"
)

type APIHandlers struct {
	engine      *engine.Engine
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(eng *engine.Engine, persist persistence.Persistence, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:      eng,
		persistence: persist,
		validator:   validate,
	}
}

// EvaluateConditionGroup evaluates a stored group against a step instance's
// live context. The evaluation is recorded in the ledger like any other.
func (h *APIHandlers) EvaluateConditionGroup(c fiber.Ctx) error {
	groupID := c.Params("id")
	if groupID == "" {
		return badRequest(c, "Condition group ID is required")
	}

	var req EvaluateRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, "Invalid request: "+err.Error())
	}

	result, err := h.engine.EvaluateConditionGroup(c.Context(), groupID, req.StepInstanceID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(EvaluateResponse{
		GroupID:     result.GroupID,
		Result:      result.Value,
		Trace:       result.Trace,
		EvaluatedAt: time.Now().UTC(),
	})
}

// Dispatch runs condition evaluation and action dispatch for a step
// transition supplied over HTTP. Reusing an event id replays idempotently.
func (h *APIHandlers) Dispatch(c fiber.Ctx) error {
	var req DispatchRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, "Invalid request: "+err.Error())
	}

	event := &events.StepTransition{
		BaseEvent: events.BaseEvent{
			ID:        req.EventID,
			Type:      events.StepTransitionEvent,
			Timestamp: time.Now().UTC(),
		},
		StepInstanceID:     req.StepInstanceID,
		WorkflowInstanceID: req.WorkflowInstanceID,
		WorkflowID:         req.WorkflowID,
		ToStepID:           req.ToStepID,
		Context:            req.Context,
	}

	reports, err := h.engine.DispatchForEvent(c.Context(), event)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"reports": reports})
}

// RunEscalationScan triggers one scan pass on demand.
func (h *APIHandlers) RunEscalationScan(c fiber.Ctx) error {
	report, err := h.engine.RunEscalationScan(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(report)
}

// ListEscalationInstances returns instances filtered by rule, step instance
// and status.
func (h *APIHandlers) ListEscalationInstances(c fiber.Ctx) error {
	filter := persistence.EscalationInstanceFilter{
		RuleID:         c.Query("rule_id"),
		StepInstanceID: c.Query("step_instance_id"),
		Status:         models.EscalationStatus(c.Query("status")),
	}

	instances, err := h.engine.ListEscalationInstances(c.Context(), filter)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances":   instances,
		"total_count": len(instances),
	})
}

// GetAuditTrail returns the recorded evaluations and executions of a step
// instance, optionally bounded by an RFC 3339 time window.
func (h *APIHandlers) GetAuditTrail(c fiber.Ctx) error {
	stepInstanceID := c.Params("id")
	if stepInstanceID == "" {
		return badRequest(c, "Step instance ID is required")
	}

	timeRange, err := parseRange(c)
	if err != nil {
		return badRequest(c, "Invalid time range: "+err.Error())
	}

	trail, err := h.engine.GetAuditTrail(c.Context(), stepInstanceID, timeRange)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(trail)
}

func parseRange(c fiber.Ctx) (ledger.Range, error) {
	var timeRange ledger.Range

	if from := c.Query("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return timeRange, err
		}

		timeRange.From = ts
	}

	if to := c.Query("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return timeRange, err
		}

		timeRange.To = ts
	}

	return timeRange, nil
}

// HealthCheck reports persistence health.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
