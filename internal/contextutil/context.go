// Package contextutil carries request-scoped values through the pipeline
// with type-safe keys.
package contextutil

import (
	"context"

	"computegate/internal/identity"
)

// Key is a type-safe key for context values.
type Key string

const (
	// TraceIDKey is the key for the trace ID.
	TraceIDKey Key = "context:trace_id"

	// SpanIDKey is the key for the span ID.
	SpanIDKey Key = "context:span_id"

	// PrincipalKey is the key for the resolved principal.
	PrincipalKey Key = "context:principal"
)

// WithTraceID adds a trace ID to a context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves a trace ID from a context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithSpanID adds a span ID to a context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

// GetSpanID retrieves a span ID from a context.
func GetSpanID(ctx context.Context) string {
	if spanID, ok := ctx.Value(SpanIDKey).(string); ok {
		return spanID
	}
	return ""
}

// WithPrincipal attaches the resolved principal for the rest of the pipeline.
// Only the authorization gate sets it, and only after a successful resolution.
func WithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipal retrieves the resolved principal from a context, or nil.
func GetPrincipal(ctx context.Context) *identity.Principal {
	if p, ok := ctx.Value(PrincipalKey).(*identity.Principal); ok {
		return p
	}
	return nil
}
