// Package search queries DuckDuckGo's HTML endpoint for candidate sources.
package search

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/research-infograph/internal/fetcher/colly"
	"github.com/JakeFAU/research-infograph/internal/hash/sha256"
	"github.com/JakeFAU/research-infograph/internal/metrics"
	"github.com/JakeFAU/research-infograph/internal/research"
)

// DefaultEndpoint is DuckDuckGo's script-free results page.
const DefaultEndpoint = "https://duckduckgo.com/html/"

// Config controls the search client.
type Config struct {
	Endpoint string
	Client   collyfetcher.ClientConfig
}

// ResultCache stores result lists by key.
type ResultCache interface {
	Get(key string) ([]research.SearchResult, bool)
	Set(key string, value []research.SearchResult)
}

// Limiter is the token bucket guarding the search backend.
type Limiter interface {
	AcquireBlocking(ctx context.Context) error
	AcquireOrFail() error
}

// Client implements research.Searcher.
type Client struct {
	endpoint string
	http     *collyfetcher.Client
	cache    ResultCache
	limiter  Limiter
	logger   *zap.Logger
}

// NewClient builds a Client.
func NewClient(cfg Config, cache ResultCache, limiter Limiter, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http:     collyfetcher.NewClient(cfg.Client),
		cache:    cache,
		limiter:  limiter,
		logger:   logger,
	}
}

// Search waits for a token when the bucket is empty.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error) {
	return c.search(ctx, query, maxResults, c.limiter.AcquireBlocking)
}

// TrySearch fails with a *research.RateLimitError instead of waiting.
func (c *Client) TrySearch(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error) {
	return c.search(ctx, query, maxResults, func(context.Context) error {
		return c.limiter.AcquireOrFail()
	})
}

func (c *Client) search(
	ctx context.Context,
	query string,
	maxResults int,
	acquire func(context.Context) error,
) ([]research.SearchResult, error) {
	if strings.TrimSpace(query) == "" || maxResults <= 0 {
		return []research.SearchResult{}, nil
	}

	key := sha256.Key("ddg", query, strconv.Itoa(maxResults))
	if cached, ok := c.cache.Get(key); ok {
		metrics.ObserveCacheLookup("search", true)
		metrics.ObserveSearch("cache_hit")
		return slices.Clone(cached), nil
	}
	metrics.ObserveCacheLookup("search", false)

	if err := acquire(ctx); err != nil {
		metrics.ObserveSearch("rate_limited")
		return nil, err
	}

	resp, err := c.http.PostForm(ctx, c.endpoint, map[string]string{"q": query})
	if err != nil {
		metrics.ObserveSearch("error")
		return nil, &research.SearchError{Query: query, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveSearch("error")
		return nil, &research.SearchError{Query: query, StatusCode: resp.StatusCode}
	}

	results := ParseResults(string(resp.Body), maxResults)
	c.cache.Set(key, slices.Clone(results))
	metrics.ObserveSearch("ok")
	c.logger.Debug("search complete", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}
