// Package ratelimit implements the token bucket shared by outbound search and fetch calls.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/research-infograph/internal/metrics"
	"github.com/JakeFAU/research-infograph/internal/research"
)

const (
	minPollInterval = 50 * time.Millisecond
	maxPollInterval = time.Second
)

// TokenBucket holds ratePerMinute tokens, starts full and refills
// continuously at ratePerMinute/60 tokens per second.
type TokenBucket struct {
	resource string
	limiter  *rate.Limiter
	clock    research.Clock
	poll     time.Duration
}

// NewTokenBucket creates a limiter for the named resource.
func NewTokenBucket(resource string, ratePerMinute int, clock research.Clock) (*TokenBucket, error) {
	if ratePerMinute <= 0 {
		return nil, &research.ConfigError{Field: resource + " rate per minute", Reason: "must be > 0"}
	}
	if clock == nil {
		return nil, &research.ConfigError{Field: resource + " clock", Reason: "is required"}
	}
	refill := float64(ratePerMinute) / 60.0
	return &TokenBucket{
		resource: resource,
		limiter:  rate.NewLimiter(rate.Limit(refill), ratePerMinute),
		clock:    clock,
		poll:     pollInterval(refill),
	}, nil
}

// Allow takes one token if available. A denial has no side effect.
func (b *TokenBucket) Allow() bool {
	return b.limiter.AllowN(b.clock.Now(), 1)
}

// AcquireBlocking polls Allow until a token is taken or ctx ends.
// Only the calling goroutine waits.
func (b *TokenBucket) AcquireBlocking(ctx context.Context) error {
	if b.Allow() {
		return nil
	}
	start := b.clock.Now()
	timer := time.NewTimer(b.poll)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-timer.C:
		}
		if b.Allow() {
			metrics.ObserveRateLimitDelay(b.resource, b.clock.Now().Sub(start))
			return nil
		}
		timer.Reset(b.poll)
	}
}

// AcquireOrFail takes one token or returns a *research.RateLimitError.
func (b *TokenBucket) AcquireOrFail() error {
	if b.Allow() {
		return nil
	}
	return &research.RateLimitError{Resource: b.resource}
}

// Resource names the upstream this bucket guards.
func (b *TokenBucket) Resource() string {
	return b.resource
}

func pollInterval(refillPerSecond float64) time.Duration {
	d := time.Duration(float64(time.Second) / refillPerSecond)
	if d < minPollInterval {
		return minPollInterval
	}
	if d > maxPollInterval {
		return maxPollInterval
	}
	return d
}
