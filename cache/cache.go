// Package cache defines the local storage tiers used by the image service.
//
// Entries are keyed by image ID. Because a published image never changes,
// a cached entry is valid for as long as it exists: tiers never need to
// revalidate content against the remote store.
package cache

import "errors"

// ErrMiss is returned by Get when the tier holds no entry for the ID.
var ErrMiss = errors.New("cache: miss")

// Cache stores encoded image payloads by image ID.
//
// Implementations must be safe for concurrent use. Put for an ID that is
// already present is a no-op or an identical overwrite; callers rely on
// this to let duplicate writers race harmlessly.
type Cache interface {
	// Get returns the payload for id, or ErrMiss if the tier does not
	// hold it. Any other error reports a failure of the tier itself.
	Get(id string) ([]byte, error)

	// Put stores content under id.
	Put(id string, content []byte) error

	// Delete removes id. Deleting an absent entry is not an error.
	Delete(id string) error

	// Purge removes every entry and leaves the tier ready for use.
	Purge() error
}

// Sizer is implemented by tiers that can report how many entries they hold.
type Sizer interface {
	Len() int
}
