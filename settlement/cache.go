package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/adipundir/aptos-x402/types"
)

// Cache provides best-effort idempotency for settlement: a retried
// identical payload returns the first attempt's result instead of being
// resubmitted, and a concurrent duplicate waits for the in-flight
// attempt. The chain's sequence numbering remains the authority on
// double spends; the cache only saves round trips and keeps retries
// from surfacing spurious sequence conflicts.
type Cache struct {
	mu         sync.Mutex
	results    map[string]*types.SettlementResult
	expiry     map[string]time.Time
	inFlight   map[string]chan struct{}
	ttl        time.Duration
	maxEntries int
}

// NewCache creates a settlement cache. Entries live for ttl and the
// cache never holds more than maxEntries results; the closest-to-expiry
// entry is evicted first.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Cache{
		results:    make(map[string]*types.SettlementResult),
		expiry:     make(map[string]time.Time),
		inFlight:   make(map[string]chan struct{}),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Key derives the cache key from the signed payload bytes. The sender
// authenticator is part of the input, so two different signatures over
// the same transfer settle independently.
func Key(payloadBytes []byte) string {
	sum := sha256.Sum256(payloadBytes)
	return hex.EncodeToString(sum[:])
}

// Status is the outcome of checking the cache.
type Status int

const (
	// StatusNotFound means this caller should settle (now marked in-flight).
	StatusNotFound Status = iota
	// StatusCached means a previous settlement's result was returned.
	StatusCached
	// StatusInFlight means another caller is settling this payload.
	StatusInFlight
)

// CheckAndMark atomically checks the cache and, when the key is
// unknown, marks it in-flight for this caller.
func (c *Cache) CheckAndMark(key string) (Status, *types.SettlementResult, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, ok := c.expiry[key]; ok {
		if time.Now().Before(expiry) {
			if result, ok := c.results[key]; ok {
				return StatusCached, result, nil
			}
		}
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if done, ok := c.inFlight[key]; ok {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return StatusNotFound, nil, done
}

// Wait blocks until the in-flight attempt finishes or the context is
// done, then returns whatever result it cached (nil if it failed
// without caching).
func (c *Cache) Wait(ctx context.Context, key string, done chan struct{}) (*types.SettlementResult, error) {
	select {
	case <-done:
		return c.Get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the cached result for key, or nil.
func (c *Cache) Get(key string) *types.SettlementResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.expiry[key]
	if !ok {
		return nil
	}
	if time.Now().After(expiry) {
		delete(c.results, key)
		delete(c.expiry, key)
		return nil
	}
	return c.results[key]
}

// Complete caches the result, clears the in-flight marker, and wakes
// any waiters.
func (c *Cache) Complete(key string, result *types.SettlementResult, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = result
	c.expiry[key] = time.Now().Add(c.ttl)

	delete(c.inFlight, key)
	close(done)

	c.enforceBoundsLocked()
}

// Fail clears the in-flight marker without caching, so the settlement
// can be retried, and wakes any waiters.
func (c *Cache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

// Len reports the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func (c *Cache) enforceBoundsLocked() {
	now := time.Now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}

	for len(c.results) > c.maxEntries {
		var oldest string
		var oldestExpiry time.Time
		for key, expiry := range c.expiry {
			if oldest == "" || expiry.Before(oldestExpiry) {
				oldest = key
				oldestExpiry = expiry
			}
		}
		delete(c.results, oldest)
		delete(c.expiry, oldest)
	}
}
