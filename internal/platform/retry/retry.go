package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, use backoff
)

// Policy controls how an operation is retried. Backoff maps the attempt
// number (1-based) to the wait before the next attempt; when nil,
// Exponential(InitialBackoff) is used. Clock defaults to the real clock.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Backoff        func(attempt int) time.Duration
	Clock          clockwork.Clock
	OnRetry        func(attempt int, err error, backoff time.Duration)
}

type Classify func(err error) Action
type Operation[T any] func() (T, error)
type VoidOperation func() error

// Exponential doubles the initial backoff on every attempt.
func Exponential(initial time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		return initial << (attempt - 1)
	}
}

// LinearCapped grows the backoff by step per attempt, capped at max.
func LinearCapped(step, max time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		d := time.Duration(attempt) * step
		if d > max {
			return max
		}
		return d
	}
}

func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	backoff := p.Backoff
	if backoff == nil {
		backoff = Exponential(p.InitialBackoff)
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		if classify != nil && classify(err) == Stop {
			var zero T
			return zero, &PermanentError{Err: err}
		}

		if attempt == p.MaxAttempts {
			var zero T
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		wait := backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		timer := clock.NewTimer(wait)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	panic("unreachable: MaxAttempts must be >= 1")
}

func DoVoid(ctx context.Context, p Policy, classify Classify, op VoidOperation) error {
	_, err := Do(ctx, p, classify, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
