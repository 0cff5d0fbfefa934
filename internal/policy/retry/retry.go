// Package retry implements a bounded retry policy with a fixed backoff schedule.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Defaults used when a Policy is built from an empty Config.
const DefaultMaxAttempts = 5

// DefaultSchedule is the wait inserted after each failed attempt.
var DefaultSchedule = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	32 * time.Second,
}

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	Schedule    []time.Duration
}

// Policy decides whether and when a failed operation runs again.
type Policy struct {
	maxAttempts int
	schedule    []time.Duration
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// New builds a Policy, filling in defaults for zero values.
func New(cfg Config) *Policy {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	schedule := cfg.Schedule
	if len(schedule) == 0 {
		schedule = DefaultSchedule
	}
	return &Policy{
		maxAttempts: attempts,
		schedule:    append([]time.Duration(nil), schedule...),
	}
}

// MaxAttempts returns the total number of attempts, including the first.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether the error from the given attempt (1-based) is
// retryable. Timeouts of the attempt itself are retryable; cancellation of
// the caller is decided by Do from its own context.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	return !IsPermanent(err)
}

// Backoff returns the wait after the given failed attempt (1-based).
// Attempts past the end of the schedule reuse its last entry.
func (p *Policy) Backoff(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.schedule) {
		idx = len(p.schedule) - 1
	}
	return p.schedule[idx]
}

// Notify is called before each backoff sleep.
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, fails permanently, or attempts run out.
func (p *Policy) Do(ctx context.Context, op func(context.Context) error) error {
	return p.DoNotify(ctx, op, nil)
}

// DoNotify is Do with a hook invoked before every retry.
func (p *Policy) DoNotify(ctx context.Context, op func(context.Context) error, notify Notify) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
		if !p.ShouldRetry(lastErr, attempt) {
			break
		}

		wait := p.Backoff(attempt)
		if notify != nil {
			notify(attempt, lastErr, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}

	var perm *permanentError
	if errors.As(lastErr, &perm) {
		return perm.err
	}
	return &ExhaustedError{Attempts: p.maxAttempts, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
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
