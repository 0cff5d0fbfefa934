// Package collyfetcher implements harvest.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/policy/retry"
)

// Defaults applied when Config leaves a field empty.
const (
	DefaultUserAgent   = "Mozilla/5.0"
	DefaultTimeout     = 180 * time.Second
	DefaultMaxBodySize = 100 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodySize   int
}

// Fetcher implements harvest.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. All fetches share one transport and connection pool.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.WithTransport(newHTTPTransport())
	// Clones share the backend client, so the timeout only needs setting once.
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request harvest.FetchRequest) (harvest.FetchResponse, error) {
	var (
		result   harvest.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return harvest.FetchResponse{}, err
	}
	if err := f.checkComplete(result); err != nil {
		return harvest.FetchResponse{}, err
	}
	return result, nil
}

// checkComplete rejects bodies colly silently cut at MaxBodySize, and bodies
// shorter than the Content-Length the server announced.
func (f *Fetcher) checkComplete(resp harvest.FetchResponse) error {
	if len(resp.Body) >= f.cfg.MaxBodySize {
		return retry.Permanent(fmt.Errorf("%s: %w at %d bytes", resp.URL, harvest.ErrBodyTruncated, f.cfg.MaxBodySize))
	}
	if resp.Headers == nil || resp.Headers.Get("Content-Encoding") != "" {
		return nil
	}
	declared, err := strconv.Atoi(resp.Headers.Get("Content-Length"))
	if err != nil || declared == len(resp.Body) {
		return nil
	}
	return fmt.Errorf("%s: %w: got %d of %d bytes", resp.URL, harvest.ErrBodyTruncated, len(resp.Body), declared)
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	start time.Time,
	result *harvest.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *harvest.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "*/*")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = toFetchResponse(r, start)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r == nil || r.StatusCode == 0 {
			*fetchErr = err
			return
		}
		if r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices {
			// Colly flags some 2xx codes as errors; they still carry a usable body.
			*result = toFetchResponse(r, start)
			return
		}
		*fetchErr = &harvest.StatusError{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
		}
	})
}

func toFetchResponse(r *colly.Response, start time.Time) harvest.FetchResponse {
	resp := harvest.FetchResponse{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(start),
	}
	if r.Request != nil && r.Request.URL != nil {
		resp.URL = r.Request.URL.String()
	}
	if r.Headers != nil {
		resp.Headers = r.Headers.Clone()
	}
	return resp
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return classify(fmt.Errorf("colly response failed: %w", *fetchErr))
		}
		if err != nil {
			return classify(fmt.Errorf("colly visit failed: %w", err))
		}
		return nil
	}
}

// classify marks errors that another attempt cannot fix.
func classify(err error) error {
	switch {
	case errors.Is(err, colly.ErrForbiddenDomain),
		errors.Is(err, colly.ErrMissingURL),
		errors.Is(err, colly.ErrRobotsTxtBlocked):
		return retry.Permanent(err)
	default:
		return err
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
