// Package memory provides the in-process image cache tier.
package memory

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meigma/imgcache/cache"
)

// Cache is a count-bounded LRU cache of image payloads.
//
// When an insert would exceed the capacity, the least recently used entry
// is evicted. The entry being inserted is always the most recently used one,
// so an operation never evicts the payload it is about to return.
//
// Returned slices are shared with the cache and must be treated as
// read-only. Cache is safe for concurrent use.
type Cache struct {
	lru       *lru.Cache[string, []byte]
	capacity  int
	evictions atomic.Int64
}

var _ cache.Cache = (*Cache)(nil)

// New creates a cache holding at most capacity entries.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("memory cache capacity must be > 0, got %d", capacity)
	}
	l, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, capacity: capacity}, nil
}

// Get returns the payload for id and marks it most recently used.
func (c *Cache) Get(id string) ([]byte, error) {
	if content, ok := c.lru.Get(id); ok {
		return content, nil
	}
	return nil, cache.ErrMiss
}

// Put inserts content under id, evicting the least recently used entry if
// the cache is full.
func (c *Cache) Put(id string, content []byte) error {
	if c.lru.Add(id, content) {
		c.evictions.Add(1)
	}
	return nil
}

// Delete removes id from the cache.
func (c *Cache) Delete(id string) error {
	c.lru.Remove(id)
	return nil
}

// Purge removes all entries.
func (c *Cache) Purge() error {
	c.lru.Purge()
	return nil
}

// Contains reports whether id is cached without updating its recency.
func (c *Cache) Contains(id string) bool {
	return c.lru.Contains(id)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Capacity returns the configured entry limit.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Evictions returns how many entries were dropped to make room for new ones.
func (c *Cache) Evictions() int64 {
	return c.evictions.Load()
}
