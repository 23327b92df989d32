package logging

import (
	"context"
	"log/slog"
	"strings"
)

// Standard attribute keys shared by every component.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldItem      = "item"
	FieldRunID     = "run_id"
	FieldErrorKind = "error_kind"
)

type contextKey int

const (
	runIDKey contextKey = iota
	itemKey
)

// WithRunID tags ctx so records logged with it carry the run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, strings.TrimSpace(runID))
}

// WithItem tags ctx with the input filename currently being handled.
func WithItem(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, itemKey, strings.TrimSpace(name))
}

// RunIDFromContext returns the run id stored by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(runIDKey).(string)
	return value, ok && value != ""
}

// ItemFromContext returns the item name stored by WithItem.
func ItemFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(itemKey).(string)
	return value, ok && value != ""
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if item, ok := ItemFromContext(ctx); ok {
		attrs = append(attrs, slog.String(FieldItem, item))
	}
	if runID, ok := RunIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String(FieldRunID, runID))
	}
	return attrs
}

// contextHandler copies run and item tags from the record context onto the record.
type contextHandler struct {
	inner slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		record = record.Clone()
		record.AddAttrs(attrs...)
	}
	return h.inner.Handle(ctx, record)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{inner: h.inner.WithGroup(name)}
}
