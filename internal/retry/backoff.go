// Package retry re-attempts client connects that the peer refused.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// StopError ends a retry loop at once.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop marks err as not worth another attempt, e.g. a host that does
// not resolve.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &StopError{Err: err}
}

// Backoff retries an operation with a doubling, jittered delay.
type Backoff struct {
	Attempts int           // total tries; values below 1 mean a single try
	Initial  time.Duration // first delay (default 200ms)
	Max      time.Duration // delay cap (default 2s)

	// OnRetry, when set, is told about each failure that will be retried.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do calls fn until it succeeds, returns a Stop error, runs out of
// attempts, or ctx is done.  fn receives the 1-based attempt number.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := max(b.Attempts, 1)
	delay := b.Initial
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	ceiling := b.Max
	if ceiling <= 0 {
		ceiling = 2 * time.Second
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		var stop *StopError
		if errors.As(err, &stop) {
			return stop.Err
		}
		if attempt >= attempts {
			if attempts > 1 {
				return fmt.Errorf("%d attempts: %w", attempts, err)
			}
			return err
		}

		wait := jitter(delay)
		if b.OnRetry != nil {
			b.OnRetry(attempt, wait, err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w (last: %w)", ctx.Err(), err)
		case <-t.C:
		}
		delay = min(delay*2, ceiling)
	}
}

// jitter spreads d by up to a quarter either way.
func jitter(d time.Duration) time.Duration {
	q := int64(d) / 4
	if q <= 0 {
		return d
	}
	return d - time.Duration(q) + time.Duration(rand.Int63n(2*q+1))
}
