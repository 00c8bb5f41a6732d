// Package disk provides the filesystem-backed image cache tier.
//
// Each entry is a single file directly under the cache directory whose name
// is the image ID and whose contents are the encoded image bytes. There are
// no sidecar files. Writes go to a temporary file that is renamed into place,
// so readers never observe a partially written entry.
package disk

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/meigma/imgcache/cache"
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600

	// tmpPrefix marks in-flight writes. Image IDs never start with a dot.
	tmpPrefix = ".tmp-"
)

// ErrInvalidKey is returned when an ID cannot be used as a file name.
var ErrInvalidKey = errors.New("disk: invalid cache key")

// Cache implements cache.Cache on the local filesystem.
//
// The cache is unbounded: entries are only removed by Delete or Purge.
// It is safe for concurrent use.
type Cache struct {
	dir      string
	dirPerm  os.FileMode
	filePerm os.FileMode

	// mu is held shared by entry operations and exclusively by Purge,
	// which replaces the directory underneath them.
	mu sync.RWMutex
}

var _ cache.Cache = (*Cache)(nil)

// Option configures a disk cache.
type Option func(*Cache)

// WithDirPerm sets the permissions used when creating the cache directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithFilePerm sets the permissions of cached files.
func WithFilePerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.filePerm = mode
	}
}

// New creates a disk cache rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:      filepath.Clean(dir),
		dirPerm:  defaultDirPerm,
		filePerm: defaultFilePerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := os.MkdirAll(c.dir, c.dirPerm); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Get reads the entry for id.
func (c *Cache) Get(id string) ([]byte, error) {
	if err := validateKey(id); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	root, err := os.OpenRoot(c.dir)
	if err != nil {
		return nil, fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()

	data, err := root.ReadFile(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return data, nil
}

// Put writes content under id. An existing entry is left untouched since
// the content for an ID never changes.
func (c *Cache) Put(id string, content []byte) error {
	if err := validateKey(id); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	root, err := os.OpenRoot(c.dir)
	if err != nil {
		return fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()

	if _, err := root.Stat(id); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat cache entry: %w", err)
	}

	tmp, tmpPath, err := c.createTemp(root)
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = root.Remove(tmpPath)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = root.Remove(tmpPath)
		return fmt.Errorf("close cache file: %w", err)
	}

	if err := root.Rename(tmpPath, id); err != nil {
		// A concurrent writer of the same ID won the race with identical bytes.
		if _, statErr := root.Stat(id); statErr == nil {
			_ = root.Remove(tmpPath)
			return nil
		}
		_ = root.Remove(tmpPath)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Delete removes the entry for id. A missing entry is not an error.
func (c *Cache) Delete(id string) error {
	if err := validateKey(id); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	root, err := os.OpenRoot(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open cache root: %w", err)
	}
	defer root.Close()

	if err := root.Remove(id); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// Purge deletes the cache directory with everything in it and recreates it
// empty.
func (c *Cache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("remove cache dir: %w", err)
	}
	if err := os.MkdirAll(c.dir, c.dirPerm); err != nil {
		return fmt.Errorf("recreate cache dir: %w", err)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), tmpPrefix) {
			n++
		}
	}
	return n
}

// SizeBytes returns the total size of the cached entries.
func (c *Cache) SizeBytes() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return dirSize(c.dir)
}

func (c *Cache) createTemp(root *os.Root) (*os.File, string, error) {
	for range 10000 {
		var randBytes [8]byte
		if _, err := rand.Read(randBytes[:]); err != nil {
			return nil, "", err
		}
		name := tmpPrefix + hex.EncodeToString(randBytes[:])
		f, err := root.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, c.filePerm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, name, nil
	}
	return nil, "", errors.New("failed to create temp file")
}

// validateKey rejects IDs that are not a single plain file name.
func validateKey(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, id)
	case strings.HasPrefix(id, tmpPrefix):
		return fmt.Errorf("%w: %q uses the reserved temp prefix", ErrInvalidKey, id)
	}
	return nil
}
