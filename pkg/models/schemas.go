package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// actionParamSchemas describes the raw JSON parameter payload accepted for
// each action type. API handlers validate incoming configuration writes
// against these before the typed ActionParams union is built.
var actionParamSchemas = map[ActionType]map[string]any{
	ActionRouteToStep: {
		"type": "object",
		"properties": map[string]any{
			"target_step_id": map[string]any{"type": "string", "minLength": 1},
		},
		"required":             []string{"target_step_id"},
		"additionalProperties": false,
	},
	ActionAssignUser: {
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string"},
			"role":    map[string]any{"type": "string"},
		},
		"additionalProperties": false,
	},
	ActionSendNotification: {
		"type": "object",
		"properties": map[string]any{
			"user_id":       map[string]any{"type": "string"},
			"role":          map[string]any{"type": "string"},
			"template_kind": map[string]any{"type": "string", "minLength": 1},
			"payload":       map[string]any{"type": "object"},
		},
		"required":             []string{"template_kind"},
		"additionalProperties": false,
	},
	ActionSetFieldValue: {
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{"type": "string", "minLength": 1},
			"value": map[string]any{},
		},
		"required":             []string{"field"},
		"additionalProperties": false,
	},
	ActionSkipStep: {
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string"},
		},
		"additionalProperties": false,
	},
	ActionTriggerEscalation: {
		"type": "object",
		"properties": map[string]any{
			"rule_id": map[string]any{"type": "string", "minLength": 1},
		},
		"required":             []string{"rule_id"},
		"additionalProperties": false,
	},
	ActionTerminateWorkflow: {
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{"type": "string"},
		},
		"additionalProperties": false,
	},
}

// ValidateActionParamsPayload validates a raw parameter payload against the
// JSON schema for the given action type.
func ValidateActionParamsPayload(actionType ActionType, payload map[string]any) error {
	schema, ok := actionParamSchemas[actionType]
	if !ok {
		return fmt.Errorf("unsupported action type: %s", actionType)
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate action parameters: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("action parameters failed schema validation: %s", strings.Join(details, "; "))
	}

	return nil
}

var paramVariantKeys = map[ActionType]string{
	ActionRouteToStep:       "route_to_step",
	ActionAssignUser:        "assign_user",
	ActionSendNotification:  "send_notification",
	ActionSetFieldValue:     "set_field_value",
	ActionSkipStep:          "skip_step",
	ActionTriggerEscalation: "trigger_escalation",
	ActionTerminateWorkflow: "terminate_workflow",
}

// ActionParamsFromPayload validates a raw parameter payload against the
// action type's JSON schema and decodes it into the matching union variant.
func ActionParamsFromPayload(actionType ActionType, payload map[string]any) (ActionParams, error) {
	var params ActionParams

	if payload == nil {
		payload = map[string]any{}
	}

	if err := ValidateActionParamsPayload(actionType, payload); err != nil {
		return params, err
	}

	raw, err := json.Marshal(map[string]any{paramVariantKeys[actionType]: payload})
	if err != nil {
		return params, fmt.Errorf("failed to encode action parameters: %w", err)
	}

	if err := json.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("failed to decode action parameters: %w", err)
	}

	return params, nil
}
