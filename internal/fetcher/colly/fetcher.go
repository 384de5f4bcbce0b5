// Package collyfetcher implements the source fetcher and the shared HTTP
// client on top of gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/research-infograph/internal/hash/sha256"
	"github.com/JakeFAU/research-infograph/internal/metrics"
	"github.com/JakeFAU/research-infograph/internal/quality"
	"github.com/JakeFAU/research-infograph/internal/research"
)

// Config controls fetch behavior.
type Config struct {
	Client        ClientConfig
	MinTextLength int
	MaxTextLength int
}

// SourceCache stores successful fetches by key.
type SourceCache interface {
	Get(key string) (research.FetchedSource, bool)
	Set(key string, value research.FetchedSource)
}

// Admission is the non-blocking side of a token bucket.
type Admission interface {
	Allow() bool
}

// Fetcher implements research.Fetcher with a cache, a fail-fast rate limit
// and the quality gate.
type Fetcher struct {
	client  *Client
	cache   SourceCache
	limiter Admission
	gate    *quality.Heuristic
	clock   research.Clock
	logger  *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, cache SourceCache, limiter Admission, clock research.Clock, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:  NewClient(cfg.Client),
		cache:   cache,
		limiter: limiter,
		gate:    quality.NewHeuristic(cfg.MinTextLength, cfg.MaxTextLength),
		clock:   clock,
		logger:  logger,
	}
}

// Fetch returns the cached source for url or performs one GET and runs the
// quality gate. Only successes are cached; cache hits are not re-checked.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (research.FetchedSource, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return research.FetchedSource{}, &research.FetchError{Msg: "url is required"}
	}

	key := sha256.Key("fetch", url)
	if cached, ok := f.cache.Get(key); ok {
		metrics.ObserveCacheLookup("fetch", true)
		return cached, nil
	}
	metrics.ObserveCacheLookup("fetch", false)

	if !f.limiter.Allow() {
		metrics.ObserveFetch(url, "rate_limited", 0)
		return research.FetchedSource{}, &research.FetchError{
			URL: url,
			Msg: "fetch rate limit exceeded",
			Err: &research.RateLimitError{Resource: "fetch"},
		}
	}

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		metrics.ObserveFetch(url, "error", 0)
		return research.FetchedSource{}, &research.FetchError{URL: url, Msg: "request failed", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveFetch(url, "bad_status", len(resp.Body))
		return research.FetchedSource{}, &research.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Msg:        fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	title, text, err := f.gate.Evaluate(url, resp.ContentType, string(resp.Body))
	if err != nil {
		metrics.ObserveFetch(url, "rejected", len(resp.Body))
		f.logger.Debug("source rejected", zap.String("url", url), zap.Error(err))
		return research.FetchedSource{}, err
	}

	src := research.FetchedSource{
		URL:         url,
		Title:       title,
		Text:        text,
		ContentType: resp.ContentType,
		StatusCode:  resp.StatusCode,
		FetchedAt:   f.clock.Now(),
	}
	f.cache.Set(key, src)
	metrics.ObserveFetch(url, "ok", len(resp.Body))
	return src, nil
}
