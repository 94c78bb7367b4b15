// Package logging provides helpers for structured, colorized logging across contractctl.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Level represents a structured log level used by contractctl.
type Level slog.Level

const (
	// LevelDebug represents the debug logging level.
	LevelDebug Level = Level(slog.LevelDebug)
	// LevelInfo represents the informational logging level.
	LevelInfo Level = Level(slog.LevelInfo)
	// LevelWarn represents the warning logging level.
	LevelWarn Level = Level(slog.LevelWarn)
	// LevelError represents the error logging level.
	LevelError Level = Level(slog.LevelError)
)

// ParseLevel converts a textual log level into a Level value.
// Unknown values fall back to info.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	return slog.Level(l).String()
}

// NewLogger constructs a slog.Logger configured with a tint handler and level.
// Colors are disabled when NO_COLOR is set.
func NewLogger(w io.Writer, level Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:      slog.Level(level),
		TimeFormat: time.TimeOnly,
		NoColor:    os.Getenv("NO_COLOR") != "",
	})

	return slog.New(handler)
}

// Discard returns a logger that drops every record. Useful for library callers and tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
