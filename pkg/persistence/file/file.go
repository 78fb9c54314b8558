// Package file provides file-based persistence for condition configuration,
// escalation instances and the audit ledger. Intended for development and
// tests; production deployments use the postgresql package.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	dirConditionGroups     = "condition_groups"
	dirActions             = "actions"
	dirEscalationRules     = "escalation_rules"
	dirEscalationInstances = "escalation_instances"
	dirEvaluations         = "evaluations"
	dirExecutions          = "executions"
)

// Persistence implements persistence.Persistence on the file system. A single
// mutex serializes writes so the insert-if-absent pending guard is atomic.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{
		dirConditionGroups, dirActions, dirEscalationRules,
		dirEscalationInstances, dirEvaluations, dirExecutions,
	} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) path(dir, id string) string {
	return filepath.Join(fp.root, dir, id+".json")
}

func (fp *Persistence) writeJSON(dir, id string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	if err := os.WriteFile(fp.path(dir, id), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	return nil
}

func (fp *Persistence) readJSON(dir, id string, target any) (bool, error) {
	data, err := os.ReadFile(fp.path(dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to parse %s/%s: %w", dir, id, err)
	}

	return true, nil
}

func listJSON[T any](fp *Persistence, dir string) ([]*T, error) {
	root := os.DirFS(filepath.Join(fp.root, dir))

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	items := make([]*T, 0, len(files))

	for _, file := range files {
		item := new(T)

		found, err := fp.readJSON(dir, strings.TrimSuffix(file, ".json"), item)
		if err != nil {
			return nil, err
		}

		if found {
			items = append(items, item)
		}
	}

	return items, nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}

	return id.String()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
