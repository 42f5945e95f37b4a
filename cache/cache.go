// Package cache provides a process-wide bounded key-value cache with
// per-entry TTL. Entries are independent; writes are last-writer-wins and
// no cross-key locking is performed.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value       V
	refreshedAt time.Time
	expiresAt   time.Time
}

// Cache is a thread-safe in-memory cache with TTL and a maximum entry count.
// When the capacity is reached, the single oldest entry by refresh time is
// evicted to make room for the new one.
type Cache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	clock      Clock
}

// New creates a cache holding at most maxEntries values for ttl each.
// A maxEntries of zero or less means unbounded.
func New[V any](ttl time.Duration, maxEntries int, clock Clock) *Cache[V] {
	if clock == nil {
		clock = RealClock{}
	}
	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
	}
}

// Get returns the cached value for key if present and not expired.
// Expired entries are removed on access.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.clock.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, still := c.entries[key]; still && c.clock.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, evicting the oldest entry if the cache is full.
func (c *Cache[V]) Set(key string, value V) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = entry[V]{
		value:       value,
		refreshedAt: now,
		expiresAt:   now.Add(c.ttl),
	}
}

// Delete removes key from the cache if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the current number of entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (c *Cache[V]) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// evictOldestLocked drops the entry with the oldest refresh time.
// Caller must hold the write lock.
func (c *Cache[V]) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.refreshedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.refreshedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
