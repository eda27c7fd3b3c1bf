// Package telemetry wires structured logging, metrics and tracing for devmem.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogFileName is the JSON-lines log inside <metaDir>/logs.
const LogFileName = "devmem.jsonl"

// NewLogger opens <metaDir>/logs/devmem.jsonl and returns a JSON logger
// writing to it and, unless quiet, to stderr. Stdout is left alone because
// it carries the MCP stdio transport.
func NewLogger(metaDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(metaDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}

	file, err := os.OpenFile(filepath.Join(logDir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = file
	if !quiet {
		w = io.MultiWriter(os.Stderr, file)
	}
	return slog.New(newHandler(w, level)).With("component", "devmem"), file, nil
}

// NewWriterLogger returns a JSON logger on w. Used by the CLI when no
// project directory is available yet.
func NewWriterLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(newHandler(w, level)).With("component", "devmem")
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(w io.Writer, level string) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			if shouldRedactKey(a.Key) {
				return slog.String(a.Key, "[REDACTED]")
			}
			return a
		},
	})
}

// shouldRedactKey reports whether an attribute name looks like a credential.
func shouldRedactKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	for _, token := range []string{"token", "secret", "password", "authorization", "api_key", "apikey"} {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// ParseLevel maps a config string to a slog level, defaulting to info.
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
