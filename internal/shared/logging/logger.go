package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a slog.Logger configured for structured, JSON-oriented output.
// The level defaults to info and can be lowered with RENDERD_LOG_LEVEL=debug.
func New(subsystem string) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: levelFromEnv()}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler).With("subsystem", subsystem)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("RENDERD_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
