// Package testutil provides fakes and fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meigma/imgcache/blobstore"
	"github.com/meigma/imgcache/cache"
)

// MemoryStore is a concurrency-safe in-memory blobstore.Store with call
// counters, per-ID latency and failure injection.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	delays map[string]time.Duration
	getErr error
	putErr error

	gets atomic.Int64
	puts atomic.Int64
}

var _ blobstore.Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string][]byte),
		delays: make(map[string]time.Duration),
	}
}

// Put stores a copy of data unless a put error is injected.
func (s *MemoryStore) Put(ctx context.Context, id string, data []byte) error {
	s.puts.Add(1)
	if err := s.wait(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.data[id] = append([]byte(nil), data...)
	return nil
}

// Get returns the stored bytes, honouring injected delays and errors.
func (s *MemoryStore) Get(ctx context.Context, id string, maxBytes int64) ([]byte, error) {
	s.gets.Add(1)
	if err := s.wait(ctx, id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blobstore.ErrNotFound, id)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", blobstore.ErrTooLarge, len(data))
	}
	return data, nil
}

func (s *MemoryStore) wait(ctx context.Context, id string) error {
	s.mu.RLock()
	d := s.delays[id]
	s.mu.RUnlock()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Seed stores data directly without counting a Put.
func (s *MemoryStore) Seed(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = data
}

// Has reports whether id has been stored.
func (s *MemoryStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[id]
	return ok
}

// SetDelay makes every call for id wait d (or until ctx is done).
func (s *MemoryStore) SetDelay(id string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[id] = d
}

// SetGetError makes every Get fail with err. Pass nil to clear.
func (s *MemoryStore) SetGetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

// SetPutError makes every Put fail with err. Pass nil to clear.
func (s *MemoryStore) SetPutError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

// Gets returns the number of Get calls.
func (s *MemoryStore) Gets() int64 { return s.gets.Load() }

// Puts returns the number of Put calls.
func (s *MemoryStore) Puts() int64 { return s.puts.Load() }

// CountingCache wraps a cache.Cache and counts calls per method.
type CountingCache struct {
	cache.Cache

	gets    atomic.Int64
	puts    atomic.Int64
	deletes atomic.Int64
	putErr  atomic.Pointer[error]
}

// NewCountingCache wraps inner.
func NewCountingCache(inner cache.Cache) *CountingCache {
	return &CountingCache{Cache: inner}
}

// Get counts and delegates.
func (c *CountingCache) Get(id string) ([]byte, error) {
	c.gets.Add(1)
	return c.Cache.Get(id)
}

// Put counts and delegates unless a put error is injected.
func (c *CountingCache) Put(id string, content []byte) error {
	c.puts.Add(1)
	if errp := c.putErr.Load(); errp != nil {
		return *errp
	}
	return c.Cache.Put(id, content)
}

// Delete counts and delegates.
func (c *CountingCache) Delete(id string) error {
	c.deletes.Add(1)
	return c.Cache.Delete(id)
}

// Len delegates to the wrapped cache when it reports a size.
func (c *CountingCache) Len() int {
	if s, ok := c.Cache.(cache.Sizer); ok {
		return s.Len()
	}
	return 0
}

// FailPuts makes every Put fail with err. Pass nil to clear.
func (c *CountingCache) FailPuts(err error) {
	if err == nil {
		c.putErr.Store(nil)
		return
	}
	c.putErr.Store(&err)
}

// Gets returns the number of Get calls.
func (c *CountingCache) Gets() int64 { return c.gets.Load() }

// Puts returns the number of Put calls.
func (c *CountingCache) Puts() int64 { return c.puts.Load() }

// Deletes returns the number of Delete calls.
func (c *CountingCache) Deletes() int64 { return c.deletes.Load() }

// Reset zeroes all counters.
func (c *CountingCache) Reset() {
	c.gets.Store(0)
	c.puts.Store(0)
	c.deletes.Store(0)
}
