// Package collaborators provides HTTP clients for the external systems the
// engine delegates to: the workflow engine that owns step instances, the
// notification service and the user directory.
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docuflow/docuflow/pkg/models"
)

const defaultTimeoutSeconds = 30

// WorkflowClient implements protocol.WorkflowEngine against the workflow
// backend's REST API.
type WorkflowClient struct {
	baseURL string
	client  *http.Client
}

func NewWorkflowClient(baseURL string) *WorkflowClient {
	return &WorkflowClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
	}
}

func (c *WorkflowClient) GetContext(ctx context.Context, stepInstanceID string) (map[string]any, error) {
	var data map[string]any

	err := c.get(ctx, "/step-instances/"+stepInstanceID+"/context", &data)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch step instance context: %w", err)
	}

	return data, nil
}

func (c *WorkflowClient) OpenStepInstances(ctx context.Context, workflowID string) ([]*models.StepInstance, error) {
	var response struct {
		StepInstances []*models.StepInstance `json:"step_instances"`
	}

	err := c.get(ctx, "/workflows/"+workflowID+"/step-instances?status=open", &response)
	if err != nil {
		return nil, fmt.Errorf("failed to list open step instances: %w", err)
	}

	return response.StepInstances, nil
}

func (c *WorkflowClient) AdvanceStep(ctx context.Context, stepInstanceID, targetStepID string) error {
	return c.post(ctx, "/step-instances/"+stepInstanceID+"/advance", map[string]any{
		"target_step_id": targetStepID,
	}, nil)
}

func (c *WorkflowClient) AssignStep(ctx context.Context, stepInstanceID, userID string) error {
	return c.post(ctx, "/step-instances/"+stepInstanceID+"/assign", map[string]any{
		"user_id": userID,
	}, nil)
}

func (c *WorkflowClient) SkipStep(ctx context.Context, stepInstanceID, reason string) error {
	return c.post(ctx, "/step-instances/"+stepInstanceID+"/skip", map[string]any{
		"reason": reason,
	}, nil)
}

func (c *WorkflowClient) SetField(ctx context.Context, stepInstanceID, field string, value any) error {
	return c.post(ctx, "/step-instances/"+stepInstanceID+"/fields", map[string]any{
		"field": field,
		"value": value,
	}, nil)
}

func (c *WorkflowClient) Terminate(ctx context.Context, workflowInstanceID, reason string) error {
	return c.post(ctx, "/workflow-instances/"+workflowInstanceID+"/terminate", map[string]any{
		"reason": reason,
	}, nil)
}

func (c *WorkflowClient) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	return c.do(req, target)
}

func (c *WorkflowClient) post(ctx context.Context, path string, body, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.do(req, target)
}

func (c *WorkflowClient) do(req *http.Request, target any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("workflow engine returned %d: %s", resp.StatusCode, string(body))
	}

	if target == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
