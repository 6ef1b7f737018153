package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so pipeline context (message_id, stage,
// customer_id, ...) is included in every log statement without passing it explicitly.
type LogFields struct {
	MessageID  *string // inbound message id, the idempotency key for a run
	Stage      *string // pipeline stage currently executing
	CustomerID *string // resolved customer record id
	OrderID    *int64  // order id once one has been assigned
	Component  string  // component name (e.g. "intake.pipeline.fulfill")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, updated LogFields) LogFields {
	result := existing

	if updated.MessageID != nil {
		result.MessageID = updated.MessageID
	}
	if updated.Stage != nil {
		result.Stage = updated.Stage
	}
	if updated.CustomerID != nil {
		result.CustomerID = updated.CustomerID
	}
	if updated.OrderID != nil {
		result.OrderID = updated.OrderID
	}
	if updated.Component != "" {
		result.Component = updated.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{MessageID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like email bodies or error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
