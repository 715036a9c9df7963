// Package retry re-runs an operation with exponential backoff while its error
// is classified as retryable.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds the retry loop.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	// MaxRetries caps the attempts after the first. Zero means no cap beyond
	// MaxElapsedTime.
	MaxRetries uint64
	// OnRetry is called before each wait.
	OnRetry func(err error, wait time.Duration)
}

// DefaultPolicy suits version-conflict retries against a single node.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  15 * time.Second,
		MaxRetries:      8,
	}
}

// Do runs op until it succeeds, fails with an error retryable rejects, ctx is
// done, or the policy is exhausted. The last error from op is returned.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = p.MaxElapsedTime

	var b backoff.BackOff = eb
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	b = backoff.WithContext(b, ctx)

	return backoff.RetryNotify(func() error {
		err := op(ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, p.OnRetry)
}
