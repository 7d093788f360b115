// Package cache provides the bounded, recency-evicting key/value map used
// by the document store and collection store. It wraps
// hashicorp/golang-lru so the rest of the codebase sees exactly the
// narrow surface callers actually need — Get, Put, Invalidate — rather
// than the library's richer API (eviction callbacks, peeking, resizing).
//
// Not internally synchronized: callers hold the enclosing RW-lock, same
// discipline the document store already applies to its own map.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a fixed-capacity key/value map with least-recently-used
// eviction. All operations are O(1) amortized.
type Cache[K comparable, V any] struct {
	inner *lru.Cache[K, V]
}

// New creates a cache holding at most capacity entries.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	inner, _ := lru.New[K, V](capacity)
	return &Cache[K, V]{inner: inner}
}

// Get returns the value for key and marks it most-recently-used. The
// second return value is false if the key is absent.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.inner.Get(key)
}

// Put upserts key and marks it most-recently-used, evicting the
// least-recently-used entry if capacity is exceeded.
func (c *Cache[K, V]) Put(key K, value V) {
	c.inner.Add(key, value)
}

// Invalidate removes key if present; a no-op otherwise.
func (c *Cache[K, V]) Invalidate(key K) {
	c.inner.Remove(key)
}
