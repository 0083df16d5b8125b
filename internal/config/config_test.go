package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PROJECT_ID", "test-project")
	t.Setenv("STAGING_BUCKET", "staging")
	t.Setenv("OUTPUT_BUCKET", "output")
	t.Setenv("UPLOAD_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-project", cfg.ProjectID)
	assert.Equal(t, 8, cfg.UploadWorkers)
	assert.Equal(t, "pipelineRuns", cfg.RunCollection)
	assert.Equal(t, "processingHistory", cfg.HistoryCollection)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
projectId: yaml-project
stagingBucket: yaml-staging
outputBucket: yaml-output
uploadWorkers: 2
logLevel: DEBUG
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PROJECT_ID", "env-project")
	t.Setenv("STAGING_BUCKET", "")
	t.Setenv("OUTPUT_BUCKET", "")
	t.Setenv("UPLOAD_WORKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	// Environment wins over the file; file wins over defaults.
	assert.Equal(t, "env-project", cfg.ProjectID)
	assert.Equal(t, "yaml-staging", cfg.StagingBucket)
	assert.Equal(t, 2, cfg.UploadWorkers)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PROJECT_ID", "")
	t.Setenv("STAGING_BUCKET", "")
	t.Setenv("OUTPUT_BUCKET", "")
	t.Setenv("UPLOAD_WORKERS", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidWorkers(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PROJECT_ID", "p")
	t.Setenv("STAGING_BUCKET", "s")
	t.Setenv("OUTPUT_BUCKET", "o")
	t.Setenv("UPLOAD_WORKERS", "zero")

	_, err := Load()
	assert.Error(t, err)
}
