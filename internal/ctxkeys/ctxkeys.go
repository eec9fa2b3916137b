// Package ctxkeys provides typed context keys for values that cross package
// boundaries without being part of any function's explicit signature: the
// correlation id printed in every log line for one request and carried onto
// domain.Envelope for tracing.
package ctxkeys

import "context"

type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID attaches a trace/correlation id to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID retrieves the trace id set by WithTraceID, if any.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
