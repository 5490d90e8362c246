// Package wait polls for a condition with exponential backoff and a bounded
// overall timeout, replacing fixed sleeps around asynchronous shutdowns.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a condition is not met before the deadline.
var ErrTimeout = errors.New("timed out waiting for condition")

// Condition reports whether the awaited state has been reached. A non-nil
// error aborts the wait immediately.
type Condition func(ctx context.Context) (bool, error)

// Backoff controls polling cadence.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Timeout time.Duration
}

// DefaultBackoff polls after 250ms, doubling up to 4s, for at most 30s.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial: 250 * time.Millisecond,
		Max:     4 * time.Second,
		Timeout: 30 * time.Second,
	}
}

func (b Backoff) normalized() Backoff {
	d := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Timeout <= 0 {
		b.Timeout = d.Timeout
	}
	return b
}

// Until evaluates cond immediately and then after each backoff interval until
// it returns true, returns an error, or b.Timeout elapses. what names the
// condition in the timeout error.
func Until(ctx context.Context, what string, b Backoff, cond Condition) error {
	b = b.normalized()
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	interval := b.Initial
	for {
		done, err := cond(ctx)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", what, err)
		}
		if done {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%s after %s: %w", what, b.Timeout, ErrTimeout)
			}
			return ctx.Err()
		case <-timer.C:
		}

		interval = min(interval*2, b.Max)
	}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
