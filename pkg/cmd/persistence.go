package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docuflow/docuflow/pkg/persistence"
	"github.com/docuflow/docuflow/pkg/persistence/file"
	"github.com/docuflow/docuflow/pkg/persistence/postgresql"
)

// NewPersistence selects the persistence backend by URL scheme:
// file://./data for the JSON-file store, postgres://... for PostgreSQL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "file":
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	default:
		return nil, fmt.Errorf("unsupported persistence scheme in %q (supported: file, postgres)", databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")
	if len(parts) < 2 {
		return "file"
	}

	return parts[0]
}
