// Package limiter caps the number of simultaneous outbound requests and
// optionally paces them with a token bucket.
package limiter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/paper-harvester/internal/metrics"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxConnections is the connection cap used when none is configured.
const DefaultMaxConnections = 2

// Config holds limiter configuration.
type Config struct {
	MaxConnections int
	// RequestsPerSecond paces acquisitions; 0 disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Limiter is a process-wide gate shared by every network operation.
type Limiter struct {
	sem      *semaphore.Weighted
	pace     *rate.Limiter
	max      int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	l := &Limiter{
		sem: semaphore.NewWeighted(int64(maxConns)),
		max: int64(maxConns),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.pace = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return l
}

// Acquire blocks until a slot is free or ctx is done. Every successful
// Acquire must be paired with exactly one Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if l.pace != nil {
		if err := l.pace.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire connection slot: %w", err)
	}
	metrics.ObserveLimiterWait(time.Since(start))

	n := l.inFlight.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	metrics.SetInflightRequests(n)
	return nil
}

// Release frees a slot obtained by Acquire.
func (l *Limiter) Release() {
	n := l.inFlight.Add(-1)
	metrics.SetInflightRequests(n)
	l.sem.Release(1)
}

// Do runs fn while holding a slot.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// Max returns the configured connection cap.
func (l *Limiter) Max() int {
	return int(l.max)
}

// InFlight returns the number of slots currently held.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak returns the highest InFlight value observed since creation.
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}
