// Package blobstore defines the remote object store the image service
// publishes to and falls back on.
//
// Backends live in subpackages: [github.com/meigma/imgcache/blobstore/oci]
// stores each image as an OCI artifact, [github.com/meigma/imgcache/blobstore/s3]
// uses an S3-compatible bucket and [github.com/meigma/imgcache/blobstore/redis]
// keeps payloads in Redis. Any implementation of [Store] is interchangeable.
package blobstore

import (
	"context"
	"errors"
)

// MediaType is the content type recorded for stored images.
const MediaType = "image/jpeg"

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when no object exists for the ID.
	ErrNotFound = errors.New("blobstore: not found")

	// ErrTooLarge is returned by Get when the object exceeds the byte limit.
	ErrTooLarge = errors.New("blobstore: object exceeds size limit")

	// ErrInvalidID is returned when an ID cannot be mapped to an object name.
	ErrInvalidID = errors.New("blobstore: invalid id")
)

// Store is a remote, content-immutable object store keyed by image ID.
//
// Implementations must be safe for concurrent use and must honour ctx
// cancellation on every network call.
type Store interface {
	// Put uploads data under id.
	Put(ctx context.Context, id string, data []byte) error

	// Get downloads the object for id. Objects larger than maxBytes are
	// rejected with ErrTooLarge without being read in full.
	Get(ctx context.Context, id string, maxBytes int64) ([]byte, error)
}
