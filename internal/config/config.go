// Package config loads service configuration from an optional YAML file with
// environment variable overrides, and builds the process logger.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/medicalrecordflow/internal/gcp"
)

// Config holds all configuration for the record-linker service.
type Config struct {
	// GCP project and buckets
	ProjectID     string `yaml:"projectId"`
	StagingBucket string `yaml:"stagingBucket"`
	OutputBucket  string `yaml:"outputBucket"`

	// Drive artifact store
	DriveRootFolderID     string `yaml:"driveRootFolderId"`
	FolderCacheCollection string `yaml:"folderCacheCollection"`
	ArtifactCollection    string `yaml:"artifactCollection"`

	// Pipeline state
	RunCollection     string `yaml:"runCollection"`
	HistoryCollection string `yaml:"historyCollection"`

	// Orchestration
	UploadWorkers    int    `yaml:"uploadWorkers"`
	WorkflowID       string `yaml:"workflowId"`
	WorkflowLocation string `yaml:"workflowLocation"`

	// Logging
	LogFile  string `yaml:"logFile"`
	LogLevel string `yaml:"logLevel"`
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if set), then environment variable overrides.
func Load() (Config, error) {
	cfg := Config{
		FolderCacheCollection: "driveFolders",
		ArtifactCollection:    "uploadedArtifacts",
		RunCollection:         "pipelineRuns",
		HistoryCollection:     "processingHistory",
		UploadWorkers:         4,
		WorkflowID:            "record-postprocessing",
		WorkflowLocation:      "us-central1",
		LogLevel:              "INFO",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ProjectID = gcp.GetEnv("PROJECT_ID", cfg.ProjectID)
	cfg.StagingBucket = gcp.GetEnv("STAGING_BUCKET", cfg.StagingBucket)
	cfg.OutputBucket = gcp.GetEnv("OUTPUT_BUCKET", cfg.OutputBucket)
	cfg.DriveRootFolderID = gcp.GetEnv("DRIVE_ROOT_FOLDER_ID", cfg.DriveRootFolderID)
	cfg.FolderCacheCollection = gcp.GetEnv("FOLDER_CACHE_COLLECTION", cfg.FolderCacheCollection)
	cfg.ArtifactCollection = gcp.GetEnv("ARTIFACT_COLLECTION", cfg.ArtifactCollection)
	cfg.RunCollection = gcp.GetEnv("RUN_COLLECTION", cfg.RunCollection)
	cfg.HistoryCollection = gcp.GetEnv("HISTORY_COLLECTION", cfg.HistoryCollection)
	cfg.WorkflowID = gcp.GetEnv("WORKFLOW_ID", cfg.WorkflowID)
	cfg.WorkflowLocation = gcp.GetEnv("WORKFLOW_LOCATION", cfg.WorkflowLocation)
	cfg.LogFile = gcp.GetEnv("LOG_FILE", cfg.LogFile)
	cfg.LogLevel = gcp.GetEnv("LOG_LEVEL", cfg.LogLevel)
	if workers := os.Getenv("UPLOAD_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid UPLOAD_WORKERS value %q", workers)
		}
		cfg.UploadWorkers = n
	}

	if cfg.ProjectID == "" {
		return Config{}, fmt.Errorf("PROJECT_ID must be set")
	}
	if cfg.StagingBucket == "" {
		return Config{}, fmt.Errorf("STAGING_BUCKET must be set")
	}
	if cfg.OutputBucket == "" {
		return Config{}, fmt.Errorf("OUTPUT_BUCKET must be set")
	}
	return cfg, nil
}

// Level parses the configured log level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
