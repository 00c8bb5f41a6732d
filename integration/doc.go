//go:build integration

// Package integration runs the image service against real blob store
// backends.
//
// These tests require Docker. They start an OCI registry, MinIO and Redis
// with testcontainers.
// Run with: go test -tags=integration ./integration/...
package integration
