package oci

import (
	"context"

	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

// credential resolves the credential for a request to hostport.
//
// Anonymous access wins over everything. Static credentials are sent only
// to the repository's own registry host, never to token servers or
// redirect targets. Otherwise the credential store, if any, is consulted.
func (s *Store) credential(ctx context.Context, hostport string) (auth.Credential, error) {
	switch {
	case s.anonymous:
		return auth.EmptyCredential, nil
	case s.static != nil:
		if hostport != s.host {
			return auth.EmptyCredential, nil
		}
		return *s.static, nil
	case s.credStore != nil:
		return s.credStore.Get(ctx, hostport)
	default:
		return auth.EmptyCredential, nil
	}
}

// dockerCredentialStore reads ~/.docker/config.json and the credential
// helpers it names.
func dockerCredentialStore() (credentials.Store, error) {
	return credentials.NewStoreFromDocker(credentials.StoreOptions{})
}
