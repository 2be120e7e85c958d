// Package logging configures the structured logger shared by every tinycron
// component.
//
// The daemon logs JSON to stdout so journald can index the fields. The
// one-shot CLI commands log human-readable text to stderr, keeping stdout
// free for command output.
//
// Usage:
//
//	logger := logging.SetupLogger("info")
//	schedLog := logging.WithComponent(logger, "scheduler")
//	schedLog.Info("job completed", slog.String("job_id", id))
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Format selects the handler used by New.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// SetupLogger creates the daemon logger (JSON on stdout, source locations
// included) and installs it as the slog default.
// Unknown levels fall back to info.
func SetupLogger(level string) *slog.Logger {
	logger := New(os.Stdout, level, FormatJSON)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w. Source locations are only attached to
// JSON output.
func New(w io.Writer, level string, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		AddSource:   format == FormatJSON,
		ReplaceAttr: shortenSource,
	}

	var handler slog.Handler
	switch format {
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// shortenSource trims source paths to start at internal/ (or the base
// name for files outside it).
func shortenSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	source, ok := a.Value.Any().(*slog.Source)
	if !ok {
		return a
	}
	if idx := strings.Index(source.File, "internal/"); idx != -1 {
		source.File = source.File[idx:]
	} else {
		source.File = filepath.Base(source.File)
	}
	if idx := strings.Index(source.Function, "internal/"); idx != -1 {
		source.Function = source.Function[idx:]
	}
	return a
}

// ParseLevel converts "debug", "info", "warn"/"warning" or "error"
// (case-insensitive) to a slog.Level. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// ValidLevel reports whether level is one ParseLevel recognises.
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// WithComponent tags every record from logger with a component attribute.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}
