package web

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/docuflow/docuflow/pkg/models"
)

// Configuration writes. Raw action parameters are validated against the
// per-type JSON schema before the typed union is built, so malformed
// configuration never reaches the dispatcher.

// CreateConditionGroup stores a condition group tree.
func (h *APIHandlers) CreateConditionGroup(c fiber.Ctx) error {
	var group models.ConditionGroup
	if err := c.Bind().Body(&group); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	group.Active = true

	if err := group.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.SaveConditionGroup(c.Context(), &group); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(group)
}

// DeactivateConditionGroup soft-deactivates a group; its ledger history
// stays queryable.
func (h *APIHandlers) DeactivateConditionGroup(c fiber.Ctx) error {
	if err := h.persistence.DeactivateConditionGroup(c.Context(), c.Params("id")); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// CreateActionRequest is the body of the action-create endpoint. Params is
// the raw, untyped payload checked against the action type's JSON schema.
type CreateActionRequest struct {
	Type           models.ActionType `json:"type" validate:"required"`
	Params         map[string]any    `json:"params"`
	ExecutionOrder int               `json:"execution_order"`
	Enabled        *bool             `json:"enabled"`
}

// CreateAction attaches a conditional action to a group.
func (h *APIHandlers) CreateAction(c fiber.Ctx) error {
	groupID := c.Params("id")
	if groupID == "" {
		return badRequest(c, "Condition group ID is required")
	}

	var req CreateActionRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, "Invalid request: "+err.Error())
	}

	if _, err := h.persistence.ConditionGroupByID(c.Context(), groupID); err != nil {
		return handleEngineError(c, err)
	}

	params, err := models.ActionParamsFromPayload(req.Type, req.Params)
	if err != nil {
		return badRequest(c, err.Error())
	}

	action := &models.ConditionalAction{
		GroupID:        groupID,
		Type:           req.Type,
		Params:         params,
		ExecutionOrder: req.ExecutionOrder,
		Enabled:        req.Enabled == nil || *req.Enabled,
	}

	if err := action.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.SaveAction(c.Context(), action); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(action)
}

// DeactivateAction disables an action without touching its execution history.
func (h *APIHandlers) DeactivateAction(c fiber.Ctx) error {
	if err := h.persistence.DeactivateAction(c.Context(), c.Params("id")); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// CreateEscalationRuleRequest is the body of the rule-create endpoint.
// Durations are Go duration strings ("4h", "30m").
type CreateEscalationRuleRequest struct {
	WorkflowID       string               `json:"workflow_id" validate:"required"`
	StepID           *string              `json:"step_id,omitempty"`
	Trigger          models.TriggerKind   `json:"trigger"     validate:"required"`
	Threshold        string               `json:"threshold,omitempty"`
	ConditionGroupID *string              `json:"condition_group_id,omitempty"`
	ActionType       models.ActionType    `json:"action_type" validate:"required"`
	ActionParams     map[string]any       `json:"action_params"`
	MaxLevel         int                  `json:"max_level"`
	RepeatInterval   string               `json:"repeat_interval,omitempty"`
	OnMax            models.OnMaxBehavior `json:"on_max,omitempty"`
	TerminalType     *models.ActionType   `json:"terminal_type,omitempty"`
	TerminalParams   map[string]any       `json:"terminal_params,omitempty"`
}

// CreateEscalationRule stores an escalation rule.
func (h *APIHandlers) CreateEscalationRule(c fiber.Ctx) error {
	var req CreateEscalationRuleRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, "Invalid request: "+err.Error())
	}

	rule := &models.EscalationRule{
		WorkflowID:       req.WorkflowID,
		StepID:           req.StepID,
		Trigger:          req.Trigger,
		ConditionGroupID: req.ConditionGroupID,
		ActionType:       req.ActionType,
		MaxLevel:         req.MaxLevel,
		OnMax:            req.OnMax,
		TerminalType:     req.TerminalType,
		Active:           true,
	}

	if rule.MaxLevel == 0 {
		rule.MaxLevel = 1
	}

	if req.Threshold != "" {
		threshold, err := time.ParseDuration(req.Threshold)
		if err != nil {
			return badRequest(c, "Invalid threshold: "+err.Error())
		}

		rule.Threshold = threshold
	}

	if req.RepeatInterval != "" {
		interval, err := time.ParseDuration(req.RepeatInterval)
		if err != nil {
			return badRequest(c, "Invalid repeat interval: "+err.Error())
		}

		rule.RepeatInterval = &interval
	}

	params, err := models.ActionParamsFromPayload(req.ActionType, req.ActionParams)
	if err != nil {
		return badRequest(c, err.Error())
	}

	rule.ActionParams = params

	if req.TerminalType != nil {
		terminalParams, err := models.ActionParamsFromPayload(*req.TerminalType, req.TerminalParams)
		if err != nil {
			return badRequest(c, err.Error())
		}

		rule.TerminalParams = &terminalParams
	}

	if err := rule.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.SaveEscalationRule(c.Context(), rule); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

// DeactivateEscalationRule stops a rule from firing; open instances are left
// to resolve through the normal lifecycle.
func (h *APIHandlers) DeactivateEscalationRule(c fiber.Ctx) error {
	if err := h.persistence.DeactivateEscalationRule(c.Context(), c.Params("id")); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
