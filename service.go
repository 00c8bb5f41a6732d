package imgcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/imgcache/blobstore"
	"github.com/meigma/imgcache/cache"
	"github.com/meigma/imgcache/cache/disk"
	"github.com/meigma/imgcache/cache/memory"
	"github.com/meigma/imgcache/compress"
)

// Service is a tiered image cache backed by a remote blob store.
//
// Service is safe for concurrent use. Use one Service per cache directory.
type Service struct {
	dir        string
	store      blobstore.Store
	memory     cache.Cache
	disk       cache.Cache
	compressor *compress.Compressor
	logger     *slog.Logger

	memoryCapacity   int
	maxFetchBytes    int64
	sizeCeiling      int64
	fetchTimeout     time.Duration
	uploadTimeout    time.Duration
	fetchConcurrency int

	fetchGroup singleflight.Group
	stats      counters
}

// New creates a Service caching under dir and falling back on store.
// The directory is created if it does not exist.
func New(dir string, store blobstore.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("imgcache: blob store is nil")
	}
	s := &Service{
		dir:            dir,
		store:          store,
		memoryCapacity: DefaultMemoryCapacity,
		maxFetchBytes:  DefaultMaxFetchBytes,
		sizeCeiling:    DefaultSizeCeiling,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("imgcache: %w", err)
		}
	}

	if s.memory == nil {
		m, err := memory.New(s.memoryCapacity)
		if err != nil {
			return nil, fmt.Errorf("imgcache: %w", err)
		}
		s.memory = m
	}
	if s.disk == nil {
		if dir == "" {
			return nil, errors.New("imgcache: cache dir is empty")
		}
		d, err := disk.New(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		s.disk = d
		s.dir = d.Dir()
	}
	if s.compressor == nil {
		c, err := compress.New()
		if err != nil {
			return nil, fmt.Errorf("imgcache: %w", err)
		}
		s.compressor = c
	}
	return s, nil
}

func (s *Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Dir returns the cache directory.
func (s *Service) Dir() string {
	return s.dir
}

// Fetch returns the image stored under id, checking memory, then disk,
// then the remote store. It reports false on any miss or failure; the
// cause is logged. An empty id returns immediately without touching any
// tier.
//
// Disk and remote payloads are only returned, and only cached, if they
// decode completely. Concurrent fetches of the same uncached id share one
// remote call; a caller whose ctx ends stops waiting without cancelling
// the call for the others.
func (s *Service) Fetch(ctx context.Context, id string) ([]byte, bool) {
	if id == "" {
		return nil, false
	}
	key, err := NormalizeID(id)
	if err != nil {
		s.log().Debug("fetch: invalid id", "id", id, "error", err)
		s.stats.misses.Add(1)
		return nil, false
	}

	if data, ok := s.fromMemory(key); ok {
		return data, true
	}

	if ctx.Err() != nil {
		s.stats.misses.Add(1)
		return nil, false
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := s.fetchGroup.DoChan(key, func() (any, error) {
		// Another flight may have filled memory since the check above.
		if data, ok := s.fromMemory(key); ok {
			return data, nil
		}
		if data, ok := s.fromDisk(key); ok {
			return data, nil
		}
		return s.fromRemote(flightCtx, key), nil
	})

	var data []byte
	select {
	case res := <-ch:
		data, _ = res.Val.([]byte) //nolint:errcheck // nil on miss
	case <-ctx.Done():
		s.log().Debug("fetch abandoned", "id", key, "error", ctx.Err())
	}
	if data == nil {
		s.stats.misses.Add(1)
		return nil, false
	}
	return data, true
}

func (s *Service) fromMemory(id string) ([]byte, bool) {
	data, err := s.memory.Get(id)
	if err != nil {
		return nil, false
	}
	s.stats.memoryHits.Add(1)
	return data, true
}

func (s *Service) fromDisk(id string) ([]byte, bool) {
	data, err := s.disk.Get(id)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log().Warn("disk cache read failed", "id", id, "tier", "disk", "error", err)
		}
		return nil, false
	}
	if err := s.decodable(data); err != nil {
		s.log().Warn("discarding corrupt disk entry", "id", id, "tier", "disk", "bytes", len(data), "error", err)
		if err := s.disk.Delete(id); err != nil {
			s.log().Warn("remove corrupt disk entry failed", "id", id, "tier", "disk", "error", err)
		}
		return nil, false
	}

	s.putMemory(id, data)
	s.stats.diskHits.Add(1)
	return data, true
}

func (s *Service) fromRemote(ctx context.Context, id string) []byte {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	data, err := s.store.Get(ctx, id, s.maxFetchBytes)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			s.log().Debug("image not found", "id", id, "tier", "remote")
		} else {
			s.log().Warn("remote fetch failed", "id", id, "tier", "remote", "error", remoteError(ctx, err))
		}
		return nil
	}
	if err := s.decodable(data); err != nil {
		s.log().Warn("remote payload is not an image", "id", id, "tier", "remote", "bytes", len(data), "error", err)
		return nil
	}

	s.putMemory(id, data)
	s.putDisk(id, data)
	s.stats.remoteHits.Add(1)
	return data
}

// decodable reports an error unless data decodes completely as an image
// within the compressor's pixel limit.
func (s *Service) decodable(data []byte) error {
	_, err := s.compressor.Decode(data)
	return err
}

func (s *Service) putMemory(id string, data []byte) {
	if err := s.memory.Put(id, data); err != nil {
		s.log().Warn("memory cache write failed", "id", id, "tier", "memory", "error", err)
	}
}

func (s *Service) putDisk(id string, data []byte) {
	if err := s.disk.Put(id, data); err != nil {
		s.log().Warn("disk cache write failed", "id", id, "tier", "disk", "bytes", len(data), "error", err)
	}
}

// FetchBatch fetches every id concurrently and returns the results in the
// same order, with nil for misses. It returns once every fetch has
// finished.
func (s *Service) FetchBatch(ctx context.Context, ids []string) [][]byte {
	out := make([][]byte, len(ids))
	if len(ids) == 0 {
		return out
	}

	var g errgroup.Group
	if s.fetchConcurrency > 0 {
		g.SetLimit(s.fetchConcurrency)
	}
	for i, id := range ids {
		g.Go(func() error {
			if data, ok := s.Fetch(ctx, id); ok {
				out[i] = data
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // fetches never fail
	return out
}

// Publish compresses raw to at most ceiling bytes, stores it under a new
// ID in the local tiers and uploads it. A ceiling <= 0 selects the
// configured default.
//
// If only the upload fails, Publish returns the new ID together with an
// *UploadError. The image stays cached locally and Upload can retry it.
func (s *Service) Publish(ctx context.Context, raw []byte, ceiling int64) (string, error) {
	if ceiling <= 0 {
		ceiling = s.sizeCeiling
	}

	res, err := s.compressor.Compress(raw, ceiling)
	if err != nil {
		var exhausted *compress.ExhaustedError
		switch {
		case errors.As(err, &exhausted):
			s.log().Info("publish rejected: ceiling unreachable",
				"bytes", exhausted.BestSize, "quality", exhausted.Quality, "attempts", exhausted.Attempts)
			return "", &CompressionError{
				Ceiling:  exhausted.Ceiling,
				BestSize: exhausted.BestSize,
				Quality:  exhausted.Quality,
				Attempts: exhausted.Attempts,
				Err:      err,
			}
		case errors.Is(err, compress.ErrDecode):
			return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
		default:
			return "", fmt.Errorf("imgcache: compress: %w", err)
		}
	}

	id := NewID()
	s.putMemory(id, res.Data)
	s.putDisk(id, res.Data)

	if err := s.upload(ctx, id, res.Data); err != nil {
		return id, err
	}
	s.log().Info("published image", "id", id, "bytes", len(res.Data), "quality", res.Quality, "attempts", res.Attempts)
	return id, nil
}

// Upload sends a locally cached image to the remote store. It is the retry
// path for a Publish that returned an *UploadError.
func (s *Service) Upload(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	key, err := NormalizeID(id)
	if err != nil {
		return err
	}

	data, err := s.memory.Get(key)
	if err != nil {
		data, err = s.disk.Get(key)
		if err != nil {
			if errors.Is(err, cache.ErrMiss) {
				return fmt.Errorf("%w: %s", ErrNotFound, key)
			}
			return fmt.Errorf("%w: %w", ErrStorage, err)
		}
	}
	return s.upload(ctx, key, data)
}

func (s *Service) upload(ctx context.Context, id string, data []byte) error {
	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	if err := s.store.Put(ctx, id, data); err != nil {
		s.stats.uploadFailures.Add(1)
		upErr := &UploadError{ID: id, Err: remoteError(ctx, err)}
		s.log().Warn("upload failed", "id", id, "tier", "remote", "bytes", len(data), "error", upErr.Err)
		return upErr
	}
	s.stats.uploads.Add(1)
	return nil
}

// Evict removes id from memory and disk. Evicting an absent, empty or
// malformed id is a no-op.
func (s *Service) Evict(id string) error {
	if id == "" {
		return nil
	}
	key, err := NormalizeID(id)
	if err != nil {
		return nil //nolint:nilerr // malformed ids are never cached
	}

	if err := s.memory.Delete(key); err != nil {
		s.log().Warn("memory cache delete failed", "id", key, "tier", "memory", "error", err)
	}
	if err := s.disk.Delete(key); err != nil {
		return fmt.Errorf("%w: evict %s: %w", ErrStorage, key, err)
	}
	s.log().Debug("evicted image", "id", key)
	return nil
}

// Clear empties both local tiers. The cache directory is removed and
// recreated, so the service remains usable.
func (s *Service) Clear() error {
	if err := s.memory.Purge(); err != nil {
		s.log().Warn("memory cache purge failed", "tier", "memory", "error", err)
	}
	if err := s.disk.Purge(); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrStorage, err)
	}
	s.log().Info("cleared image cache", "dir", s.dir)
	return nil
}
