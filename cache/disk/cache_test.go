package disk

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/imgcache/cache"
)

const testID = "0f8fad5b-d9cb-469f-a165-70867728950e"

func TestCachePutGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("hello")
	if err := c.Put(testID, content); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := c.Get(testID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("Get() content = %q, want %q", got, content)
	}

	// filename == ID directly under the cache root, no sidecars
	path := filepath.Join(dir, testID)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file at %s: %v", path, err)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCacheGetMiss(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = c.Get(testID)
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestCachePutKeepsExisting(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Put(testID, []byte("first")))
	require.NoError(t, c.Put(testID, []byte("second")))

	got, err := c.Get(testID)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestCacheConcurrentPutSameID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)

	content := bytes.Repeat([]byte("x"), 64<<10)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Put(testID, content))
		}()
	}
	wg.Wait()

	got, err := c.Get(testID)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCacheDelete(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Put(testID, []byte("data")))
	require.NoError(t, c.Delete(testID))

	_, err = c.Get(testID)
	assert.ErrorIs(t, err, cache.ErrMiss)

	// idempotent
	assert.NoError(t, c.Delete(testID))
}

func TestCachePurge(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "ImageCache")
	c, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, c.Put(testID, []byte("a")))
	require.NoError(t, c.Put("7c9e6679-7425-40de-944b-e07fc1f90ae7", []byte("b")))
	require.NoError(t, c.Purge())

	info, err := os.Stat(dir)
	require.NoError(t, err, "cache dir should be recreated")
	assert.True(t, info.IsDir())
	assert.Equal(t, 0, c.Len())

	// still writable
	require.NoError(t, c.Put(testID, []byte("again")))
	got, err := c.Get(testID)
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), got)
}

func TestCacheLenAndSize(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Put(testID, []byte("12345")))
	require.NoError(t, c.Put("7c9e6679-7425-40de-944b-e07fc1f90ae7", []byte("123")))

	assert.Equal(t, 2, c.Len())
	size, err := c.SizeBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
}

func TestCacheInvalidKeys(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", ".", "..", "../escape", "a/b", `a\b`, ".tmp-abc"} {
		t.Run(id, func(t *testing.T) {
			_, err := c.Get(id)
			assert.True(t, errors.Is(err, ErrInvalidKey), "Get(%q) error = %v", id, err)
			assert.ErrorIs(t, c.Put(id, []byte("x")), ErrInvalidKey)
			assert.ErrorIs(t, c.Delete(id), ErrInvalidKey)
		})
	}
}

func TestNewEmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New() error = nil, want error")
	}
}

func TestNewCreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "ImageCache")
	c, err := New(dir, WithDirPerm(0o750))
	require.NoError(t, err)
	assert.Equal(t, dir, c.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
