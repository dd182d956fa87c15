// Package reqcontext carries the correlation id that links a chat
// message to its stream of token events and terminal event, and the
// request id used for HTTP/stdio request logging.
package reqcontext

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	correlationIDKey ctxKey = "correlation_id"
	requestIDKey     ctxKey = "request_id"
)

// NewCorrelationID generates a new correlation id for a chat message.
func NewCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelationID attaches a correlation id to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID reads the correlation id from ctx, or "" if absent.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// NewRequestID generates a new request id for a JSON-RPC/HTTP request.
func NewRequestID() string {
	return uuid.New().String()
}

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID reads the request id from ctx, or "" if absent.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
