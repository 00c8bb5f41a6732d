package imgcache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh random image ID.
func NewID() string {
	return uuid.NewString()
}

// NormalizeID trims and lower-cases s and checks that it is a canonical
// hyphenated UUID. Other UUID spellings accepted by uuid.Parse (braces,
// urn prefix, no hyphens) are rejected so that one image has one name.
func NormalizeID(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
	}
	if u.String() != s {
		return "", fmt.Errorf("%w: %q is not in canonical form", ErrInvalidID, s)
	}
	return s, nil
}
