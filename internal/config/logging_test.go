package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWithWriters_FansOutToBoth(t *testing.T) {
	var primary, secondary bytes.Buffer
	logger := SetupLoggerWithWriters(&primary, &secondary, slog.LevelInfo)

	logger.Info("Upload phase complete.", "uploaded", 3)

	for _, out := range []string{primary.String(), secondary.String()} {
		assert.Contains(t, out, "Upload phase complete.")
		assert.Contains(t, out, `"uploaded":3`)
	}
}

func TestSetupLoggerWithWriters_RespectsLevel(t *testing.T) {
	var primary, secondary bytes.Buffer
	logger := SetupLoggerWithWriters(&primary, &secondary, slog.LevelWarn)

	logger.Info("suppressed")
	logger.Warn("emitted")

	assert.NotContains(t, primary.String(), "suppressed")
	assert.Contains(t, primary.String(), "emitted")
	assert.Equal(t, primary.String(), secondary.String())
}

func TestSetupLogger_WritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)

	logger.Info("Pipeline run started.", "runID", "run-1")
	require.NoError(t, cleanup())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "Pipeline run started."))
	assert.Contains(t, string(raw), `"runID":"run-1"`)
}
