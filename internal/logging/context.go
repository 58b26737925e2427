package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldBook is the standardized structured logging key for book radix names.
	FieldBook = "book"
	// FieldSheet is the standardized structured logging key for 1-based sheet numbers.
	FieldSheet = "sheet"
	// FieldStep is the standardized structured logging key for pipeline step names.
	FieldStep = "step"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a record for log queries (e.g. step_complete).
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next action to an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey string

const (
	bookKey      contextKey = "book"
	sheetKey     contextKey = "sheet"
	stepKey      contextKey = "step"
	requestIDKey contextKey = "request_id"
)

// WithBook annotates context with the book radix.
func WithBook(ctx context.Context, radix string) context.Context {
	if radix == "" {
		return ctx
	}
	return context.WithValue(ctx, bookKey, radix)
}

// WithSheet annotates context with a 1-based sheet number.
func WithSheet(ctx context.Context, number int) context.Context {
	if number <= 0 {
		return ctx
	}
	return context.WithValue(ctx, sheetKey, number)
}

// WithStep annotates context with the pipeline step name.
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, stepKey, step)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if radix, ok := ctx.Value(bookKey).(string); ok {
		fields = append(fields, slog.String(FieldBook, radix))
	}
	if number, ok := ctx.Value(sheetKey).(int); ok {
		fields = append(fields, slog.Int(FieldSheet, number))
	}
	if step, ok := ctx.Value(stepKey).(string); ok {
		fields = append(fields, slog.String(FieldStep, step))
	}
	if rid, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
