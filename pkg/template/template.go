// Package template renders action parameters against a step instance's
// execution context, so notification payloads and field values can reference
// live workflow data.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/docuflow/docuflow/pkg/models"
)

// RenderWithContext renders input with the execution context's data exposed
// as .data, plus .step_instance and .event identifiers.
func RenderWithContext(input string, ectx models.ExecutionContext) (any, error) {
	data := map[string]any{
		"data":     ectx.Data,
		"metadata": ectx.Metadata,
		"step_instance": map[string]any{
			"id":                   ectx.StepInstanceID,
			"workflow_instance_id": ectx.WorkflowInstanceID,
		},
		"event": map[string]any{
			"id": ectx.EventID,
		},
	}

	return Render(input, data)
}

func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("params").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	// Preserve structure where the rendered value is JSON.
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderPayload renders every string value of a payload map, leaving other
// value types untouched.
func RenderPayload(payload map[string]any, ectx models.ExecutionContext) (map[string]any, error) {
	if payload == nil {
		return nil, nil
	}

	rendered := make(map[string]any, len(payload))

	for key, value := range payload {
		s, ok := value.(string)
		if !ok {
			rendered[key] = value

			continue
		}

		out, err := RenderWithContext(s, ectx)
		if err != nil {
			return nil, fmt.Errorf("failed to render payload key %q: %w", key, err)
		}

		rendered[key] = out
	}

	return rendered, nil
}
