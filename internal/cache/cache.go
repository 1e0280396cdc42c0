// Package cache provides an in-memory TTL cache for normalized backend
// responses, so identical generation requests can be answered without a
// network call.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/mindnote/mindroute/internal/models"
)

// Key builds the cache key from the normalized request parameters. Two
// requests that agree on prompt, model, temperature, max tokens and top_p
// share one entry.
func Key(prompt, model string, temperature float64, maxTokens int, topP float64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.4f|%d|%.4f", prompt, model, temperature, maxTokens, topP)))
	return hex.EncodeToString(h[:])
}

type entry struct {
	response  models.Response
	expiresAt time.Time
	storedAt  time.Time
}

// ResponseCache is a bounded TTL cache. When full, expired entries are
// dropped first, then the oldest entry.
type ResponseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]entry
	now     func() time.Time
}

// New creates a cache with the given TTL and size bound. Non-positive
// values disable the respective bound.
func New(ttl time.Duration, maxSize int) *ResponseCache {
	return &ResponseCache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached response for key, if present and fresh.
func (c *ResponseCache) Get(key string) (models.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return models.Response{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return models.Response{}, false
	}
	return e.response, true
}

// Set stores a response under key.
func (c *ResponseCache) Set(key string, resp models.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ttl := c.ttl
	if ttl <= 0 {
		ttl = time.Hour
	}

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		if _, exists := c.entries[key]; !exists {
			c.evict(now)
		}
	}

	c.entries[key] = entry{
		response:  resp,
		expiresAt: now.Add(ttl),
		storedAt:  now,
	}
}

// Len returns the number of stored entries, including any not yet pruned.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// evict removes expired entries, falling back to the oldest entry when
// nothing has expired. Caller holds the lock.
func (c *ResponseCache) evict(now time.Time) {
	removed := false
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed = true
		}
	}
	if removed {
		return
	}

	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
