package imgcache

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meigma/imgcache/cache"
	"github.com/meigma/imgcache/compress"
)

// Option configures a Service.
type Option func(*Service) error

// Defaults.
const (
	// DefaultMemoryCapacity is the number of images held in memory.
	DefaultMemoryCapacity = 100

	// DefaultMaxFetchBytes bounds a single remote download.
	DefaultMaxFetchBytes int64 = 10 << 20 // 10 MiB

	// DefaultSizeCeiling is the publish ceiling used when the caller passes 0.
	DefaultSizeCeiling int64 = 5 << 20 // 5 MiB
)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		s.logger = logger
		return nil
	}
}

// WithMemoryCapacity sets how many images the memory tier holds.
func WithMemoryCapacity(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return fmt.Errorf("memory capacity must be > 0, got %d", n)
		}
		s.memoryCapacity = n
		return nil
	}
}

// WithMaxFetchBytes bounds the size of a remote download.
func WithMaxFetchBytes(n int64) Option {
	return func(s *Service) error {
		if n <= 0 {
			return fmt.Errorf("max fetch bytes must be > 0, got %d", n)
		}
		s.maxFetchBytes = n
		return nil
	}
}

// WithSizeCeiling sets the default publish ceiling.
func WithSizeCeiling(n int64) Option {
	return func(s *Service) error {
		if n <= 0 {
			return fmt.Errorf("size ceiling must be > 0, got %d", n)
		}
		s.sizeCeiling = n
		return nil
	}
}

// WithFetchTimeout bounds each remote download. Zero means no limit beyond
// the caller's context.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) error {
		if d < 0 {
			return fmt.Errorf("fetch timeout must be >= 0, got %s", d)
		}
		s.fetchTimeout = d
		return nil
	}
}

// WithUploadTimeout bounds each upload. Zero means no limit beyond the
// caller's context.
func WithUploadTimeout(d time.Duration) Option {
	return func(s *Service) error {
		if d < 0 {
			return fmt.Errorf("upload timeout must be >= 0, got %s", d)
		}
		s.uploadTimeout = d
		return nil
	}
}

// WithFetchConcurrency limits how many fetches FetchBatch runs at once.
// Zero or negative means one goroutine per ID.
func WithFetchConcurrency(n int) Option {
	return func(s *Service) error {
		s.fetchConcurrency = n
		return nil
	}
}

// WithCompressor replaces the default JPEG compressor.
func WithCompressor(c *compress.Compressor) Option {
	return func(s *Service) error {
		if c == nil {
			return errors.New("compressor is nil")
		}
		s.compressor = c
		return nil
	}
}

// WithMemoryCache replaces the memory tier. WithMemoryCapacity is ignored.
func WithMemoryCache(c cache.Cache) Option {
	return func(s *Service) error {
		if c == nil {
			return errors.New("memory cache is nil")
		}
		s.memory = c
		return nil
	}
}

// WithDiskCache replaces the disk tier. The directory passed to New is
// still reported by Dir but is not created.
func WithDiskCache(c cache.Cache) Option {
	return func(s *Service) error {
		if c == nil {
			return errors.New("disk cache is nil")
		}
		s.disk = c
		return nil
	}
}
