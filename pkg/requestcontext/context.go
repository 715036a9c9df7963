// Package requestcontext provides transport-independent context accessors for
// invocation-scoped values.
//
// Middleware (HTTP) and the chaincode adapter (Fabric) set these values;
// services and ledger operations read them. Keeping the package free of
// net/http and shim imports lets services depend on it directly.
//
// Usage in services (read values):
//
//	now := requestcontext.Now(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	invokerKey     struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyInvoker     = invokerKey{}
)

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request (or ledger transaction) id from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Invoker retrieves the submitting organization or client label. It is
// recorded in logs and events only; it is never used for authorization.
func Invoker(ctx context.Context) string {
	if inv, ok := ctx.Value(ContextKeyInvoker).(string); ok {
		return inv
	}
	return ""
}

// WithInvoker injects the submitting organization label into the context.
func WithInvoker(ctx context.Context, invoker string) context.Context {
	return context.WithValue(ctx, ContextKeyInvoker, invoker)
}

// -----------------------------------------------------------------------------
// Invocation time
// -----------------------------------------------------------------------------

// Now retrieves the invocation-scoped time from context.
// Falls back to time.Now() if not set (tests, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

// WithTime injects a specific time into a context. The chaincode adapter sets
// the transaction timestamp here so every endorser computes identical records.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t.UTC())
}
