package cmd_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/cmd"
)

func TestNewPersistence_FileScheme(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := filepath.Join(t.TempDir(), "store")

	persist, err := cmd.NewPersistence(context.Background(), logger, "file://"+root)
	require.NoError(t, err)
	require.NotNil(t, persist)

	assert.NoError(t, persist.HealthCheck(context.Background()))
	assert.NoError(t, persist.Close(context.Background()))
}

func TestNewPersistence_BareFilePath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// A URL without a scheme falls back to the file backend.
	persist, err := cmd.NewPersistence(context.Background(), logger, t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, persist)

	assert.NoError(t, persist.Close(context.Background()))
}

func TestNewPersistence_UnsupportedScheme(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := cmd.NewPersistence(context.Background(), logger, "mongodb://localhost:27017")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported persistence scheme")
}
