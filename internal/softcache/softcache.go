package softcache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Hook observes every entry leaving the cache, whether pushed out by
// capacity, Shrink, Evict, or Purge. It must not call back into the cache.
type Hook[K comparable, V any] func(key K, value V)

// Cache is a bounded memo of recomputable values. Any entry may disappear at
// any time, so callers must always be able to rebuild a missing value.
// All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	entries *lru.Cache[K, V]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// New returns a cache holding at most capacity entries.
func New[K comparable, V any](capacity int, hook Hook[K, V]) (*Cache[K, V], error) {
	entries, err := lru.NewWithEvict[K, V](capacity, hook)
	if err != nil {
		return nil, fmt.Errorf("create soft cache: %w", err)
	}
	return &Cache[K, V]{entries: entries}, nil
}

// Get returns the live value for key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Contains reports whether key is live without touching recency.
func (c *Cache[K, V]) Contains(key K) bool {
	return c.entries.Contains(key)
}

// Put stores value under key, possibly evicting the least recently used entry.
func (c *Cache[K, V]) Put(key K, value V) {
	c.entries.Add(key, value)
}

// Evict drops key and reports whether it was present.
func (c *Cache[K, V]) Evict(key K) bool {
	return c.entries.Remove(key)
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.entries.Purge()
}

// Shrink evicts least recently used entries until at most keep remain,
// returning the number evicted. It models a memory pressure signal.
func (c *Cache[K, V]) Shrink(keep int) int {
	evicted := 0
	for c.entries.Len() > keep {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			break
		}
		evicted++
	}
	return evicted
}

// Len returns the number of live entries.
func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

// Keys lists live keys from oldest to newest.
func (c *Cache[K, V]) Keys() []K {
	return c.entries.Keys()
}

// Stats reports lookup hits and misses since creation.
func (c *Cache[K, V]) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
