// Package cache provides a generic in-memory TTL cache for catalog reads.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a generic TTL cache safe for concurrent use. Expired entries stay
// readable through Peek until Cleanup removes them, so callers can serve
// stale data when a refresh fails.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]entry[V]
	ttl     time.Duration
	nowFunc func() time.Time // For testing
}

// New creates a cache whose entries live for ttl.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		items:   make(map[K]entry[V]),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Get returns a value that has not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, fresh, ok := c.Peek(key)
	if !ok || !fresh {
		var zero V
		return zero, false
	}
	return v, true
}

// Peek returns the value whether or not it has expired, and reports freshness.
func (c *Cache[K, V]) Peek(key K) (value V, fresh bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.items[key]
	if !found {
		return value, false, false
	}
	return e.value, !c.nowFunc().After(e.expiresAt), true
}

// GetOrLoad returns the fresh value for key or calls load to produce one. If
// load fails and a stale value exists, the stale value is returned with the
// error so callers can decide whether to use it.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		if stale, _, ok := c.Peek(key); ok {
			return stale, err
		}
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Set stores value with the configured TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[V]{
		value:     value,
		expiresAt: c.nowFunc().Add(c.ttl),
	}
}

// Delete removes key.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Clear removes everything.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]entry[V])
}

// Cleanup drops expired entries.
func (c *Cache[K, V]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	for key, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, key)
		}
	}
}

// Len counts entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
