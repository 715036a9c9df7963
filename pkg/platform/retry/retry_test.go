package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errConflict = errors.New("conflict")
	errRejected = errors.New("rejected")
)

func fastPolicy() Policy {
	return Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsedTime:  time.Second,
		MaxRetries:      4,
	}
}

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func TestDo(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		retries := 0
		p := fastPolicy()
		p.OnRetry = func(error, time.Duration) { retries++ }

		err := Do(context.Background(), p, isConflict, func(context.Context) error {
			calls++
			if calls < 3 {
				return errConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("stops at a non-retryable error", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastPolicy(), isConflict, func(context.Context) error {
			calls++
			return errRejected
		})
		assert.ErrorIs(t, err, errRejected)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastPolicy(), isConflict, func(context.Context) error {
			calls++
			return errConflict
		})
		assert.ErrorIs(t, err, errConflict)
		assert.Equal(t, 5, calls)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Do(ctx, fastPolicy(), isConflict, func(context.Context) error {
			calls++
			cancel()
			return errConflict
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
