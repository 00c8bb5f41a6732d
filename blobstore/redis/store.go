// Package redis stores images as plain string values in Redis.
//
// This backend suits deployments where images are small and Redis is
// already the shared store; payloads are never expired by this package.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/meigma/imgcache/blobstore"
)

// DefaultKeyPrefix namespaces image keys.
const DefaultKeyPrefix = "imgcache:images:"

// Store implements blobstore.Store on a Redis client.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ blobstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New wraps an existing client. The store does not own the client and
// never closes it.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis: client is nil")
	}
	s := &Store{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put stores data under the key for id.
func (s *Store) Put(ctx context.Context, id string, data []byte) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", blobstore.ErrInvalidID)
	}
	if err := s.client.Set(ctx, s.prefix+id, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get returns the value for id. The size is checked with STRLEN first so
// oversized values are never transferred.
func (s *Store) Get(ctx context.Context, id string, maxBytes int64) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", blobstore.ErrInvalidID)
	}
	key := s.prefix + id

	size, err := s.client.StrLen(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis strlen: %w", err)
	}
	// STRLEN reports 0 for missing keys; an empty payload is never a valid image.
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", blobstore.ErrNotFound, key)
	}
	if maxBytes > 0 && size > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", blobstore.ErrTooLarge, size, maxBytes)
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", blobstore.ErrNotFound, key)
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", blobstore.ErrTooLarge, len(data), maxBytes)
	}
	return data, nil
}
