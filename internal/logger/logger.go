// Package logger configures the process-wide structured logger: JSON to
// stdout, level from the LOG_LEVEL environment variable.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var (
	Logger       *slog.Logger
	programLevel = new(slog.LevelVar)
)

func init() {
	programLevel.Set(slog.LevelInfo)

	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if level, err := ParseLevel(levelStr); err == nil {
			programLevel.Set(level)
		}
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: programLevel,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// SetLevel sets the minimum log level for the logger.
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level.
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a string level name to slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}
