// Package oci stores images in an OCI registry.
//
// Every image becomes a small OCI artifact: a single layer holding the
// encoded bytes, an empty config and a manifest tagged with the image ID.
// Reads resolve the tag, check the layer size against the caller's limit
// and only then download and verify the layer against its digest.
package oci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/errcode"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/meigma/imgcache/blobstore"
)

// ArtifactType identifies image artifacts written by this package.
const ArtifactType = "application/vnd.meigma.imgcache.image.v1"

const (
	defaultUserAgent        = "imgcache/1.0"
	defaultMaxManifestBytes = 64 << 10
)

// tagPattern is the OCI distribution tag grammar.
var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._-]{0,127}$`)

// Store implements blobstore.Store on top of an OCI registry repository.
type Store struct {
	target           oras.Target
	plainHTTP        bool
	userAgent        string
	host             string // registry host[:port] that static credentials belong to
	anonymous        bool   // skip credential lookup entirely
	static           *auth.Credential
	credStore        credentials.Store
	maxManifestBytes int64
}

var _ blobstore.Store = (*Store)(nil)

// New creates a store for the repository reference repoRef, for example
// "ghcr.io/myorg/images". The reference must not carry a tag or digest.
func New(repoRef string, opts ...Option) (*Store, error) {
	s := newStore(opts...)

	repo, err := remote.NewRepository(repoRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if repo.Reference.Reference != "" {
		return nil, fmt.Errorf("%w: %q must not include a tag or digest", ErrInvalidReference, repoRef)
	}

	s.host = repo.Reference.Host()
	repo.PlainHTTP = s.plainHTTP
	repo.Client = &auth.Client{
		Client:     retry.DefaultClient,
		Cache:      auth.NewCache(),
		Credential: s.credential,
		Header: http.Header{
			"User-Agent": []string{s.userAgent},
		},
	}
	s.target = repo
	return s, nil
}

// NewWithTarget creates a store over an arbitrary ORAS target, such as an
// OCI layout directory or an in-memory store.
func NewWithTarget(target oras.Target, opts ...Option) (*Store, error) {
	if target == nil {
		return nil, errors.New("oci: target is nil")
	}
	s := newStore(opts...)
	s.target = target
	return s, nil
}

func newStore(opts ...Option) *Store {
	s := &Store{
		userAgent:        defaultUserAgent,
		maxManifestBytes: defaultMaxManifestBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put pushes data as a single-layer artifact tagged with id.
func (s *Store) Put(ctx context.Context, id string, data []byte) error {
	if err := validateTag(id); err != nil {
		return err
	}

	layer := content.NewDescriptorFromBytes(blobstore.MediaType, data)
	layer.Annotations = map[string]string{
		ocispec.AnnotationTitle: id,
	}
	if err := s.pushBlob(ctx, layer, data); err != nil {
		return fmt.Errorf("push layer: %w", err)
	}

	manifestDesc, err := oras.PackManifest(ctx, s.target, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers: []ocispec.Descriptor{layer},
	})
	if err != nil {
		return fmt.Errorf("push manifest: %w", mapError(err))
	}

	if err := s.target.Tag(ctx, manifestDesc, id); err != nil {
		return fmt.Errorf("tag manifest: %w", mapError(err))
	}
	return nil
}

// Get resolves the tag id and returns the layer content.
func (s *Store) Get(ctx context.Context, id string, maxBytes int64) ([]byte, error) {
	if err := validateTag(id); err != nil {
		return nil, err
	}

	desc, err := s.target.Resolve(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	manifest, err := s.fetchManifest(ctx, desc)
	if err != nil {
		return nil, err
	}

	layer := manifest.Layers[0]
	if layer.Size < 0 {
		return nil, fmt.Errorf("%w: negative layer size %d", ErrManifestInvalid, layer.Size)
	}
	if maxBytes > 0 && layer.Size > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", blobstore.ErrTooLarge, layer.Size, maxBytes)
	}

	data, err := content.FetchAll(ctx, s.target, layer)
	if err != nil {
		return nil, mapError(err)
	}
	return data, nil
}

// fetchManifest downloads and validates the image manifest behind desc.
func (s *Store) fetchManifest(ctx context.Context, desc ocispec.Descriptor) (ocispec.Manifest, error) {
	if desc.MediaType != "" && desc.MediaType != ocispec.MediaTypeImageManifest {
		return ocispec.Manifest{}, fmt.Errorf("%w: unsupported media type %s", ErrManifestInvalid, desc.MediaType)
	}
	if desc.Size > s.maxManifestBytes {
		return ocispec.Manifest{}, fmt.Errorf("%w: manifest is %d bytes", ErrManifestInvalid, desc.Size)
	}

	raw, err := content.FetchAll(ctx, s.target, desc)
	if err != nil {
		return ocispec.Manifest{}, mapError(err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return ocispec.Manifest{}, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	if manifest.ArtifactType != "" && manifest.ArtifactType != ArtifactType {
		return ocispec.Manifest{}, fmt.Errorf("%w: unexpected artifact type %s", ErrManifestInvalid, manifest.ArtifactType)
	}
	if len(manifest.Layers) != 1 {
		return ocispec.Manifest{}, fmt.Errorf("%w: want 1 layer, got %d", ErrManifestInvalid, len(manifest.Layers))
	}
	return manifest, nil
}

// pushBlob uploads a blob, tolerating blobs the registry already holds.
func (s *Store) pushBlob(ctx context.Context, desc ocispec.Descriptor, data []byte) error {
	exists, err := s.target.Exists(ctx, desc)
	if err != nil {
		return mapError(err)
	}
	if exists {
		return nil
	}
	if err := s.target.Push(ctx, desc, bytes.NewReader(data)); err != nil {
		if errors.Is(err, errdef.ErrAlreadyExists) {
			return nil
		}
		return mapError(err)
	}
	return nil
}

// validateTag checks that id can be used as an OCI tag.
func validateTag(id string) error {
	if !tagPattern.MatchString(id) {
		return fmt.Errorf("%w: %q is not a valid OCI tag", blobstore.ErrInvalidID, id)
	}
	return nil
}

// mapError maps ORAS errors to blobstore and package sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", blobstore.ErrNotFound, err)
	}
	if errors.Is(err, content.ErrMismatchedDigest) || errors.Is(err, content.ErrTrailingData) {
		return fmt.Errorf("%w: %v", ErrDigestMismatch, err)
	}
	// ORAS wraps HTTP errors, check for specific error types
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) {
		switch errResp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", blobstore.ErrNotFound, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		}
	}
	return err
}
