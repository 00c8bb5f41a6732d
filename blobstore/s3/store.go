// Package s3 stores images in an S3-compatible bucket using the MinIO client.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/meigma/imgcache/blobstore"
)

// DefaultPrefix is the key prefix images are stored under.
const DefaultPrefix = "images/"

// Config holds the settings for an S3 store.
type Config struct {
	// Endpoint is the S3 host[:port], e.g. "s3.amazonaws.com" or "localhost:9000".
	Endpoint string
	// AccessKey and SecretKey are static credentials. Both empty means
	// anonymous access.
	AccessKey string
	SecretKey string
	// Region is optional.
	Region string
	// UseSSL enables HTTPS.
	UseSSL bool
	// Bucket holds the images. It must already exist.
	Bucket string
	// Prefix is prepended to every object key. Defaults to DefaultPrefix.
	Prefix string
	// Client overrides the client built from Endpoint and credentials.
	Client *minio.Client
}

func (c *Config) validate() error {
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	if c.Client == nil && c.Endpoint == "" {
		return errors.New("endpoint is required when no client is provided")
	}
	return nil
}

// Store implements blobstore.Store on an S3 bucket.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ blobstore.Store = (*Store)(nil)

// New creates an S3-backed store.
func New(cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Put uploads data as the object <prefix><id>.
func (s *Store) Put(ctx context.Context, id string, data []byte) error {
	key, err := s.key(id)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: blobstore.MediaType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, translate(err))
	}
	return nil
}

// Get downloads the object <prefix><id>, refusing objects above maxBytes.
func (s *Store) Get(ctx context.Context, id string, maxBytes int64) ([]byte, error) {
	key, err := s.key(id)
	if err != nil {
		return nil, err
	}

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat object %s: %w", key, translate(err))
	}
	if maxBytes > 0 && info.Size > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", blobstore.ErrTooLarge, info.Size, maxBytes)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, translate(err))
	}
	defer func() {
		_ = obj.Close()
	}()

	// The object may have been replaced between stat and read; never read
	// past the limit regardless.
	limit := info.Size
	if maxBytes > 0 {
		limit = maxBytes
	}
	data, err := io.ReadAll(io.LimitReader(obj, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, translate(err))
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", blobstore.ErrTooLarge, maxBytes)
	}
	return data, nil
}

func (s *Store) key(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("%w: %q", blobstore.ErrInvalidID, id)
	}
	return s.prefix + id, nil
}

// translate converts MinIO error responses to blobstore errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchObject":
		return fmt.Errorf("%w: %v", blobstore.ErrNotFound, err)
	}
	return fmt.Errorf("minio: %w", err)
}
