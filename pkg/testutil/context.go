package testutil

import (
	"context"
	"time"

	"rotrust/pkg/requestcontext"
)

// Invocation returns a context carrying the values the HTTP middleware or the
// chaincode adapter would set for one ledger operation.
func Invocation(ctx context.Context, requestID string, now time.Time) context.Context {
	ctx = requestcontext.WithRequestID(ctx, requestID)
	return requestcontext.WithTime(ctx, now)
}

// InvocationAs is Invocation with an invoker label.
func InvocationAs(ctx context.Context, requestID, invoker string, now time.Time) context.Context {
	return requestcontext.WithInvoker(Invocation(ctx, requestID, now), invoker)
}
