package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/ringbridge/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "ringbridge"

// redacted replaces the value of any attribute whose key names a secret.
const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach the output,
// matched case-insensitively at any group depth.
var secretKeys = map[string]struct{}{
	"token":         {},
	"refresh_token": {},
	"access_token":  {},
	"password":      {},
	"authorization": {},
}

// Logger is a *slog.Logger carrying the service and version fields.
//
// It satisfies the small Logger interfaces declared by the engine
// packages, so one value (or a Component child) is handed to each.
type Logger struct {
	*slog.Logger
}

// New creates a Logger for cfg.Output: "stdout" (default), "stderr", or a
// file path opened for append. A file that cannot be opened falls back to
// stderr with a warning, so a bad path never stops the bridge.
func New(cfg config.LoggingConfig, version string) *Logger {
	w, err := openOutput(cfg.Output)
	if err != nil {
		l := NewWithWriter(cfg, version, os.Stderr)
		l.Warn("log output unavailable, using stderr", "output", cfg.Output, "error", err)
		return l
	}
	return NewWithWriter(cfg, version, w)
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) //nolint:gosec // Path from operator config
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// NewWithWriter creates a Logger writing to w, ignoring cfg.Output.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

// redact masks secret-named attributes.
func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := secretKeys[strings.ToLower(a.Key)]; ok && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, redacted)
	}
	return a
}

// parseLevel maps debug, info, warn(ing) and error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the JSON, info-level stdout logger used before configuration
// is loaded.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "dev", os.Stdout)
}
