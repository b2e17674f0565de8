package core

import (
	"context"

	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// CorrelationID returns the request ID of ctx, or the id of the pool task running
// with ctx when no request ID was set.
func CorrelationID(ctx context.Context) string {
	if id := GetRequestID(ctx); id != "" {
		return id
	}
	if info, ok := concurrency.TaskInfoFromContext(ctx); ok {
		return info.ID
	}
	return ""
}

// GenerateRequestID generates a new request ID
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithNewRequestID adds a new request ID to the context
func WithNewRequestID(ctx context.Context) context.Context {
	return WithRequestID(ctx, GenerateRequestID())
}
