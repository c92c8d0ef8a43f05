// Package logging carries correlation attributes through a context and
// builds the slog loggers the CLI and MCP server hand to the pipeline.
package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	flowGroupKey
	recordIDKey
)

// Attribute names used in every correlated log record.
const (
	AttrRunID     = "run_id"
	AttrFlowGroup = "flow_group"
	AttrRecordID  = "record_id"
)

var correlated = []struct {
	key  ctxKey
	attr string
}{
	{runIDKey, AttrRunID},
	{flowGroupKey, AttrFlowGroup},
	{recordIDKey, AttrRecordID},
}

// WithRunID returns a context carrying the compilation run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithFlowGroup returns a context carrying the flow group being processed.
func WithFlowGroup(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, flowGroupKey, id)
}

// WithRecordID returns a context carrying the source record ID.
func WithRecordID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, recordIDKey, id)
}

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// FlowGroup extracts the flow group from the context, or "" if absent.
func FlowGroup(ctx context.Context) string {
	v, _ := ctx.Value(flowGroupKey).(string)
	return v
}

// RecordID extracts the record ID from the context, or "" if absent.
func RecordID(ctx context.Context) string {
	v, _ := ctx.Value(recordIDKey).(string)
	return v
}

// attrs returns the non-empty correlation attributes held by ctx.
func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, c := range correlated {
		if v, _ := ctx.Value(c.key).(string); v != "" {
			out = append(out, slog.String(c.attr, v))
		}
	}
	return out
}

// LogWith returns a logger enriched with the correlation attributes from
// ctx. Only non-empty values are added.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	logger = OrDiscard(logger)
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and adds the correlation
// attributes of the record's context, so logger.InfoContext(ctx, ...) is
// enough to tag a line with its run.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps inner.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		r.AddAttrs(attrs(ctx)...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(as []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(as)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
