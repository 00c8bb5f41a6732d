package s3

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/imgcache/blobstore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        Config
		wantErr    bool
		wantPrefix string
	}{
		{
			name:    "missing bucket",
			cfg:     Config{Endpoint: "localhost:9000"},
			wantErr: true,
		},
		{
			name:    "missing endpoint",
			cfg:     Config{Bucket: "images"},
			wantErr: true,
		},
		{
			name:       "default prefix",
			cfg:        Config{Endpoint: "localhost:9000", Bucket: "images"},
			wantPrefix: DefaultPrefix,
		},
		{
			name:       "custom prefix gets trailing slash",
			cfg:        Config{Endpoint: "localhost:9000", Bucket: "images", Prefix: "/app/avatars"},
			wantPrefix: "app/avatars/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, s.prefix)
			assert.Equal(t, tt.cfg.Bucket, s.bucket)
		})
	}
}

func TestStoreKey(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Endpoint: "localhost:9000", Bucket: "images"})
	require.NoError(t, err)

	key, err := s.key("0f8fad5b-d9cb-469f-a165-70867728950e")
	require.NoError(t, err)
	assert.Equal(t, "images/0f8fad5b-d9cb-469f-a165-70867728950e", key)

	for _, id := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := s.key(id)
		assert.ErrorIs(t, err, blobstore.ErrInvalidID, "key(%q)", id)
	}
}

func TestStoreInvalidIDSkipsNetwork(t *testing.T) {
	t.Parallel()

	// Port 1 is never listening; an invalid id must fail before any request.
	s, err := New(Config{Endpoint: "127.0.0.1:1", Bucket: "images"})
	require.NoError(t, err)

	err = s.Put(context.Background(), "../escape", []byte("x"))
	assert.ErrorIs(t, err, blobstore.ErrInvalidID)

	_, err = s.Get(context.Background(), "", 10)
	assert.ErrorIs(t, err, blobstore.ErrInvalidID)
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, translate(nil))

	notFound := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	assert.ErrorIs(t, translate(notFound), blobstore.ErrNotFound)

	noBucket := minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}
	assert.ErrorIs(t, translate(noBucket), blobstore.ErrNotFound)

	other := errors.New("connection reset")
	got := translate(other)
	assert.ErrorIs(t, got, other)
	assert.NotErrorIs(t, got, blobstore.ErrNotFound)
}
