package oci

import (
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

// Option configures a Store.
type Option func(*Store)

// WithCredentialStore looks up credentials per registry host in store.
func WithCredentialStore(store credentials.Store) Option {
	return func(s *Store) {
		s.credStore = store
	}
}

// WithBasicAuth authenticates to the repository's registry with a username
// and password. It takes precedence over any credential store.
func WithBasicAuth(username, password string) Option {
	return func(s *Store) {
		s.static = &auth.Credential{Username: username, Password: password}
	}
}

// WithBearerToken authenticates to the repository's registry with a
// registry access token. It takes precedence over any credential store.
func WithBearerToken(token string) Option {
	return func(s *Store) {
		s.static = &auth.Credential{AccessToken: token}
	}
}

// WithDockerConfig reads credentials from ~/.docker/config.json.
// If the docker config cannot be loaded the store falls back to no credentials.
func WithDockerConfig() Option {
	return func(s *Store) {
		store, err := dockerCredentialStore()
		if err != nil {
			return
		}
		s.credStore = store
	}
}

// WithPlainHTTP enables plain HTTP (no TLS) for registries.
// This is useful for local development registries.
func WithPlainHTTP(enabled bool) Option {
	return func(s *Store) {
		s.plainHTTP = enabled
	}
}

// WithAnonymous disables all authentication, including credential store lookups.
func WithAnonymous() Option {
	return func(s *Store) {
		s.anonymous = true
	}
}

// WithUserAgent sets the User-Agent header for requests.
func WithUserAgent(ua string) Option {
	return func(s *Store) {
		s.userAgent = ua
	}
}

// WithMaxManifestBytes bounds the size of manifests the store will read.
func WithMaxManifestBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxManifestBytes = n
		}
	}
}
