package sift

import "context"

// Tracer creates spans around loop iterations, provider calls, and tool
// execution. The observer package provides an OTEL-backed implementation;
// when no Tracer is configured, span creation is skipped.
type Tracer interface {
	// Start creates a span. Callers must call Span.End when the operation
	// completes.
	Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span)
}

// Span is one traced operation.
type Span interface {
	SetAttr(attrs ...SpanAttr)
	// Error records an error on the span and marks it failed.
	Error(err error)
	// End completes the span. Must be called exactly once.
	End()
}

// SpanAttr is a key-value attribute attached to a span.
type SpanAttr struct {
	Key   string
	Value any
}

// StringAttr creates a string-typed span attribute.
func StringAttr(k, v string) SpanAttr { return SpanAttr{Key: k, Value: v} }

// IntAttr creates an int-typed span attribute.
func IntAttr(k string, v int) SpanAttr { return SpanAttr{Key: k, Value: v} }

// BoolAttr creates a bool-typed span attribute.
func BoolAttr(k string, v bool) SpanAttr { return SpanAttr{Key: k, Value: v} }
