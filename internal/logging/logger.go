package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rendis/stickyflow/pkg/schema"
)

// Log formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps a config level name (debug, info, warn, error) to a
// slog level. An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, schema.NewErrorf(schema.ErrCodeConfig, "unknown log level %q", name).WithCause(err)
	}
	return level, nil
}

// New builds a correlated logger writing to w.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var inner slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatText, "":
		inner = slog.NewTextHandler(w, opts)
	case FormatJSON:
		inner = slog.NewJSONHandler(w, opts)
	default:
		return nil, schema.NewError(schema.ErrCodeConfig, fmt.Sprintf("unknown log format %q", format))
	}
	return slog.New(NewCorrelationHandler(inner)), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns logger, or a discarding logger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}
