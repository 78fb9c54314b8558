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

	"github.com/docuflow/docuflow/pkg/protocol"
)

// NotifierClient implements protocol.Notifier against the notification
// service's REST API.
type NotifierClient struct {
	baseURL string
	client  *http.Client
}

func NewNotifierClient(baseURL string) *NotifierClient {
	return &NotifierClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
	}
}

func (c *NotifierClient) Send(ctx context.Context, target protocol.NotificationTarget, templateKind string, payload map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{
		"user_id":  target.UserID,
		"role":     target.Role,
		"template": templateKind,
		"payload":  payload,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("notification request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return "", fmt.Errorf("notification service returned %d: %s", resp.StatusCode, string(detail))
	}

	var response struct {
		ID string `json:"id"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode notification response: %w", err)
	}

	return response.ID, nil
}
