package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger: JSON to stdout for the hosting
// platform, plus JSON to an optional local file. Returns the logger and a
// cleanup function that closes the file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	stdoutHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	if logFile == "" {
		return slog.New(stdoutHandler), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Error("Failed to open log file, using stdout only.", "error", err, "file", logFile)
		return slog.New(stdoutHandler), func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(slogmulti.Fanout(stdoutHandler, fileHandler))
	return logger, func() error { return file.Close() }
}

// SetupLoggerWithWriters builds a fanout logger over custom writers, for
// tests.
func SetupLoggerWithWriters(primary, secondary io.Writer, level slog.Level) *slog.Logger {
	primaryHandler := slog.NewJSONHandler(primary, &slog.HandlerOptions{Level: level})
	secondaryHandler := slog.NewJSONHandler(secondary, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(primaryHandler, secondaryHandler))
}
