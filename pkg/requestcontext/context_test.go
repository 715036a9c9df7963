package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow(t *testing.T) {
	t.Run("returns injected time in UTC", func(t *testing.T) {
		loc := time.FixedZone("EET", 2*60*60)
		fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, loc)
		ctx := WithTime(context.Background(), fixed)

		got := Now(ctx)
		assert.True(t, got.Equal(fixed))
		assert.Equal(t, time.UTC, got.Location())
	})

	t.Run("falls back to wall clock", func(t *testing.T) {
		before := time.Now()
		got := Now(context.Background())
		assert.False(t, got.Before(before.Add(-time.Second)))
	})
}

func TestRequestScopedValues(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithInvoker(ctx, "NotaryOrgMSP")

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "NotaryOrgMSP", Invoker(ctx))
	assert.Empty(t, RequestID(context.Background()))
}
