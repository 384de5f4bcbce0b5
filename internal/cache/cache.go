// Package cache provides a bounded in-memory cache with per-entry expiry.
package cache

import (
	"sync"
	"time"

	"github.com/JakeFAU/research-infograph/internal/research"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache maps string keys to values that expire ttl after their last Set.
// Expired entries are dropped lazily on Get. When full, inserting a new key
// evicts one arbitrary resident entry; eviction is not LRU.
type TTLCache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxItems int
	clock    research.Clock
	items    map[string]entry[V]
}

// New builds a TTLCache. ttl and maxItems must both be positive.
func New[V any](ttl time.Duration, maxItems int, clock research.Clock) (*TTLCache[V], error) {
	if ttl <= 0 {
		return nil, &research.ConfigError{Field: "cache ttl", Reason: "must be > 0"}
	}
	if maxItems <= 0 {
		return nil, &research.ConfigError{Field: "cache max items", Reason: "must be > 0"}
	}
	if clock == nil {
		return nil, &research.ConfigError{Field: "cache clock", Reason: "is required"}
	}
	return &TTLCache[V]{
		ttl:      ttl,
		maxItems: maxItems,
		clock:    clock,
		items:    make(map[string]entry[V], maxItems),
	}, nil
}

// Get returns the value for key if present and not yet expired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.items, key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous value and expiry.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		for k := range c.items {
			delete(c.items, k)
			break
		}
	}
	c.items[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
}

// Len reports the number of resident entries, expired or not.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
