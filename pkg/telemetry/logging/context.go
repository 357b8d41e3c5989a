package logging

import (
	"context"
	"log/slog"

	"mercator-hq/warden/pkg/interceptor"
)

type contextKey string

const (
	// InvocationIDKey is the context key for invocation IDs.
	InvocationIDKey contextKey = "invocation_id"

	// MethodKey is the context key for the enhanced method name.
	MethodKey contextKey = "method"
)

// WithInvocation stores the invocation id and method in ctx. Records logged
// with a context carrying them include both fields.
func WithInvocation(ctx context.Context, inv *interceptor.Invocation) context.Context {
	ctx = context.WithValue(ctx, InvocationIDKey, inv.ID())
	return context.WithValue(ctx, MethodKey, inv.Method().String())
}

// GetInvocationID retrieves the invocation id from the context.
func GetInvocationID(ctx context.Context) string {
	if id, ok := ctx.Value(InvocationIDKey).(string); ok {
		return id
	}
	return ""
}

// GetMethod retrieves the method name from the context.
func GetMethod(ctx context.Context) string {
	if m, ok := ctx.Value(MethodKey).(string); ok {
		return m
	}
	return ""
}

// ForInvocation returns a logger that tags every record with the method and
// invocation id of inv.
func ForInvocation(logger *slog.Logger, inv *interceptor.Invocation) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(
		"method", inv.Method().String(),
		"invocation_id", inv.ID(),
	)
}

// contextHandler adds invocation fields found in the record context.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if id := GetInvocationID(ctx); id != "" {
			r.AddAttrs(slog.String(string(InvocationIDKey), id))
		}
		if m := GetMethod(ctx); m != "" {
			r.AddAttrs(slog.String(string(MethodKey), m))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
