package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a diagnostic logger writing to w. JSON output is used when
// stdout already carries row data, so stderr stays machine-readable too.
func New(w io.Writer, json bool, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init sets the process default logger to a stderr logger built by New and
// returns it.
func Init(json bool, level slog.Level) *slog.Logger {
	l := New(os.Stderr, json, level)
	slog.SetDefault(l)
	return l
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to slog.Level.
// Unknown strings default to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
