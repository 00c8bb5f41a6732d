package imgcache

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by Upload when the ID is not held locally.
	ErrNotFound = errors.New("imgcache: image not found")

	// ErrInvalidID is returned when an ID is not a canonical UUID.
	ErrInvalidID = errors.New("imgcache: invalid image id")

	// ErrInvalidInput is returned by Publish when the input is not a decodable image.
	ErrInvalidInput = errors.New("imgcache: invalid image input")

	// ErrCompressionExhausted is returned by Publish when no quality fits the ceiling.
	ErrCompressionExhausted = errors.New("imgcache: compression exhausted")

	// ErrUploadFailed is matched by every *UploadError.
	ErrUploadFailed = errors.New("imgcache: upload failed")

	// ErrStorage wraps local disk failures.
	ErrStorage = errors.New("imgcache: storage error")

	// ErrRemote wraps blob store failures.
	ErrRemote = errors.New("imgcache: remote store error")

	// ErrRemoteTimeout wraps blob store calls that ran out of time.
	ErrRemoteTimeout = errors.New("imgcache: remote store timeout")
)

// UploadError reports a failed upload. ID is valid and the image is held
// by the local tiers, so the upload can be retried with Service.Upload.
type UploadError struct {
	ID  string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("imgcache: upload %s: %v", e.ID, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Is reports ErrUploadFailed so callers can use errors.Is.
func (e *UploadError) Is(target error) bool {
	return target == ErrUploadFailed
}

// CompressionError reports the best result of a failed compression search.
type CompressionError struct {
	Ceiling  int64
	BestSize int64
	Quality  int
	Attempts int
	Err      error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("imgcache: cannot fit image in %d bytes (best %d bytes at quality %d, %d attempts)",
		e.Ceiling, e.BestSize, e.Quality, e.Attempts)
}

func (e *CompressionError) Unwrap() error { return e.Err }

// Is reports ErrCompressionExhausted so callers can use errors.Is.
func (e *CompressionError) Is(target error) bool {
	return target == ErrCompressionExhausted
}

// remoteError classifies a store failure as a timeout or a generic remote
// error. ctx is the context the call ran under.
func remoteError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrRemoteTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrRemote, err)
}
