package collaborators

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docuflow/docuflow/pkg/protocol"
)

// DirectoryClient implements protocol.Directory against the user directory
// service's REST API.
type DirectoryClient struct {
	baseURL string
	client  *http.Client
}

func NewDirectoryClient(baseURL string) *DirectoryClient {
	return &DirectoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
	}
}

func (c *DirectoryClient) ResolveUser(ctx context.Context, userID string) (*protocol.User, error) {
	var user protocol.User

	err := c.get(ctx, "/users/"+userID, &user)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}

	return &user, nil
}

func (c *DirectoryClient) ResolveRole(ctx context.Context, role string) ([]*protocol.User, error) {
	var response struct {
		Users []*protocol.User `json:"users"`
	}

	err := c.get(ctx, "/roles/"+role+"/users", &response)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role %s: %w", role, err)
	}

	return response.Users, nil
}

func (c *DirectoryClient) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("directory service returned %d: %s", resp.StatusCode, string(detail))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode directory response: %w", err)
	}

	return nil
}
