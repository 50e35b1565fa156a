// Package tracing carries a per-task correlation id through context and
// stamps it on outbound HTTP requests as the X-Trace-Id header.
package tracing

import (
	"context"
	"crypto/rand"
)

// HeaderName is the HTTP header carrying the trace id on outbound calls.
const HeaderName = "X-Trace-Id"

const (
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	idLength   = 6
)

type contextKey struct{}

// With returns a context carrying the given trace id. An id set this way
// takes precedence over any auto-generated one.
func With(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey{}, traceID)
}

// ID returns the trace id carried by the context, or "" if none is set.
func ID(ctx context.Context) string {
	traceID, _ := ctx.Value(contextKey{}).(string)
	return traceID
}

// Ensure returns a context that carries a trace id, generating a fresh one
// when the context has none, together with the effective id.
func Ensure(ctx context.Context) (context.Context, string) {
	if traceID := ID(ctx); traceID != "" {
		return ctx, traceID
	}
	traceID := NewTraceID()
	return With(ctx, traceID), traceID
}

// NewTraceID generates a 6-character alphanumeric trace id.
func NewTraceID() string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// fixed id rather than panicking in a logging path.
		return "trace0"
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}
