package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/paper-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/policy/limiter"
	"github.com/JakeFAU/paper-harvester/internal/policy/retry"
)

type scriptedFetcher struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	onFetch  func()
}

func (s *scriptedFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if s.onFetch != nil {
		s.onFetch()
	}
	if n <= s.failures {
		return harvest.FetchResponse{}, s.err
	}
	return harvest.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte("ok")}, nil
}

func fastPolicy() *retry.Policy {
	return retry.New(retry.Config{MaxAttempts: 5, Schedule: []time.Duration{time.Millisecond}})
}

func TestGuarded_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	inner := &scriptedFetcher{failures: 2, err: &harvest.StatusError{URL: "u", StatusCode: 503}}
	g := NewGuarded(inner, limiter.New(limiter.Config{MaxConnections: 2}), fastPolicy(), zap.NewNop())

	resp, err := g.Fetch(context.Background(), harvest.FetchRequest{URL: "u", Kind: harvest.KindListing})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, 3, inner.calls)
}

func TestGuarded_ExhaustsAfterFiveAttempts(t *testing.T) {
	t.Parallel()

	inner := &scriptedFetcher{failures: 100, err: &harvest.StatusError{URL: "u", StatusCode: 404}}
	g := NewGuarded(inner, limiter.New(limiter.Config{}), fastPolicy(), nil)

	_, err := g.Fetch(context.Background(), harvest.FetchRequest{URL: "u", Kind: harvest.KindPDF})
	require.Error(t, err)
	assert.Equal(t, 5, inner.calls)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 404, harvest.StatusCode(err))
}

func TestGuarded_ReleasesSlotDuringBackoff(t *testing.T) {
	t.Parallel()

	gate := limiter.New(limiter.Config{MaxConnections: 1})
	inner := &scriptedFetcher{failures: 1, err: errors.New("reset")}
	policy := retry.New(retry.Config{MaxAttempts: 2, Schedule: []time.Duration{100 * time.Millisecond}})
	g := NewGuarded(inner, gate, policy, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := g.Fetch(context.Background(), harvest.FetchRequest{URL: "slow"})
		done <- err
	}()

	// While the first request backs off, another caller can take the only slot.
	require.Eventually(t, func() bool {
		inner.mu.Lock()
		defer inner.mu.Unlock()
		return inner.calls == 1
	}, time.Second, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, gate.Acquire(ctx))
	gate.Release()

	require.NoError(t, <-done)
}

func TestGuarded_ConcurrencyBounded(t *testing.T) {
	t.Parallel()

	gate := limiter.New(limiter.Config{MaxConnections: 2})
	var current, peak atomic.Int32
	inner := &scriptedFetcher{onFetch: func() {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
	}}
	g := NewGuarded(inner, gate, fastPolicy(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Fetch(context.Background(), harvest.FetchRequest{URL: "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.LessOrEqual(t, gate.Peak(), 2)
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "success", outcome(nil))
	assert.Equal(t, "status_error", outcome(&harvest.StatusError{StatusCode: 500}))
	assert.Equal(t, "canceled", outcome(context.Canceled))
	assert.Equal(t, "timeout", outcome(fmt.Errorf("get: %w", context.DeadlineExceeded)))
	assert.Equal(t, "transport_error", outcome(errors.New("eof")))
}

func TestGuarded_RetriesRequestTimeouts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(300 * time.Millisecond):
			_, _ = fmt.Fprint(w, "late")
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	inner := collyfetcher.New(collyfetcher.Config{Timeout: 50 * time.Millisecond})
	policy := retry.New(retry.Config{MaxAttempts: 3, Schedule: []time.Duration{time.Millisecond}})
	g := NewGuarded(inner, limiter.New(limiter.Config{MaxConnections: 1}), policy, zap.NewNop())

	_, err := g.Fetch(context.Background(), harvest.FetchRequest{URL: srv.URL + "/slow", Kind: harvest.KindDetail})
	require.Error(t, err)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, int32(3), hits.Load())
}
