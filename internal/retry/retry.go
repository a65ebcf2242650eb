// Package retry wraps github.com/cenkalti/backoff/v4 with the retry policy
// used by the OpenSenseMap and weather clients: retry on
// transport/timeout/5xx/decode/429 errors, never retry a permanent 4xx. Do
// waits a server-given delay only when op's error is wrapped in RetryAfter;
// neither client does that, so a 429 gets the ordinary backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Permanent marks err as non-retryable, matching spec §4.1's "4xx (except
// 429) is non-retryable" rule. Wraps backoff.Permanent so callers of this
// package never need to import backoff directly.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// RetryAfter annotates a transient error with a server-suggested wait, used
// when an OpenSenseMap response is 429 with a Retry-After header.
type RetryAfter struct {
	Err   error
	Delay time.Duration
}

func (r *RetryAfter) Error() string { return r.Err.Error() }
func (r *RetryAfter) Unwrap() error { return r.Err }

// Do runs op, retrying on transient failures up to maxAttempts times with
// exponential backoff. op must return Permanent(err) for errors that should
// not be retried (spec §4.1).
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = baseDelay
	policy.MaxElapsedTime = 0 // bounded by attempt count below, not wall clock
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxAttempts-1)), ctx)

	var lastRetryAfter time.Duration
	wrapped := func() error {
		err := op()
		var ra *RetryAfter
		if errors.As(err, &ra) {
			lastRetryAfter = ra.Delay
			return ra.Err
		}
		lastRetryAfter = 0
		return err
	}

	notify := func(err error, next time.Duration) {
		if lastRetryAfter > 0 {
			// honored by the caller's next sleep via backoff.BackOff contract:
			// we cannot force a specific delay through NextBackOff, so Retry-After
			// is enforced by sleeping here before returning control to backoff.
			time.Sleep(lastRetryAfter)
		}
	}

	return backoff.RetryNotify(wrapped, bo, notify)
}
