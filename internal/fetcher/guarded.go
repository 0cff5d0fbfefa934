// Package fetcher holds decorators shared by every harvest.Fetcher implementation.
package fetcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/metrics"
	"github.com/JakeFAU/paper-harvester/internal/policy/retry"
)

// Gate bounds concurrent access to the network.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// Guarded wraps a Fetcher so every attempt holds a Gate slot and failed
// attempts are retried. The slot is released before any backoff sleep.
type Guarded struct {
	inner  harvest.Fetcher
	gate   Gate
	policy *retry.Policy
	logger *zap.Logger
}

// NewGuarded builds a Guarded fetcher.
func NewGuarded(inner harvest.Fetcher, gate Gate, policy *retry.Policy, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = retry.New(retry.Config{})
	}
	return &Guarded{
		inner:  inner,
		gate:   gate,
		policy: policy,
		logger: logger.Named("fetcher"),
	}
}

// Fetch performs the request with gating and retries.
func (g *Guarded) Fetch(ctx context.Context, request harvest.FetchRequest) (harvest.FetchResponse, error) {
	kind := string(request.Kind)
	if kind == "" {
		kind = "unknown"
	}

	var resp harvest.FetchResponse
	err := g.policy.DoNotify(ctx, func(ctx context.Context) error {
		r, err := g.attempt(ctx, request, kind)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		metrics.IncFetchRetry(kind)
		g.logger.Warn("fetch failed, retrying",
			zap.String("url", request.URL),
			zap.String("kind", kind),
			zap.Int("attempt", attempt),
			zap.Int("status", harvest.StatusCode(err)),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return harvest.FetchResponse{}, err
	}
	return resp, nil
}

func (g *Guarded) attempt(ctx context.Context, request harvest.FetchRequest, kind string) (harvest.FetchResponse, error) {
	if g.gate != nil {
		if err := g.gate.Acquire(ctx); err != nil {
			return harvest.FetchResponse{}, err
		}
		defer g.gate.Release()
	}

	start := time.Now()
	resp, err := g.inner.Fetch(ctx, request)
	metrics.ObserveFetch(kind, outcome(err), time.Since(start))
	return resp, err
}

func outcome(err error) string {
	var statusErr *harvest.StatusError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &statusErr):
		return "status_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport_error"
	}
}
