//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/imgcache"
	"github.com/meigma/imgcache/blobstore"
	"github.com/meigma/imgcache/blobstore/oci"
	"github.com/meigma/imgcache/blobstore/redis"
	"github.com/meigma/imgcache/blobstore/s3"
)

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
	minioBucket   = "images"
)

// sharedContainer starts one container per image for the whole package.
type sharedContainer struct {
	once sync.Once
	addr string
	err  error
}

var (
	registryC sharedContainer
	minioC    sharedContainer
	redisC    sharedContainer
)

func (s *sharedContainer) get(tb testing.TB, req testcontainers.ContainerRequest, port string) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}
	if testing.Short() {
		tb.Skip("skipping integration test in short mode")
	}

	s.once.Do(func() {
		s.addr, s.err = startContainer(context.Background(), req, port)
	})
	if s.err != nil {
		tb.Fatalf("start %s container: %v", req.Image, s.err)
	}
	return s.addr
}

// startContainer starts req and returns the host:port mapped to port.
// Cleanup is left to the testcontainers reaper.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return "", fmt.Errorf("resolve port: %w", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

func isOKStatus(status int) bool {
	return status >= 200 && status < 300
}

// --- Backends ---

func newOCIStore(tb testing.TB) blobstore.Store {
	tb.Helper()

	addr := registryC.get(tb, testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(isOKStatus),
	}, "5000/tcp")

	store, err := oci.New(addr+"/test/images", oci.WithPlainHTTP(true), oci.WithAnonymous())
	require.NoError(tb, err)
	return store
}

func newS3Store(tb testing.TB) blobstore.Store {
	tb.Helper()

	addr := minioC.get(tb, testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     minioUser,
			"MINIO_ROOT_PASSWORD": minioPassword,
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	}, "9000/tcp")

	ctx := context.Background()
	client, err := minio.New(addr, &minio.Options{
		Creds: credentials.NewStaticV4(minioUser, minioPassword, ""),
	})
	require.NoError(tb, err)

	if err := client.MakeBucket(ctx, minioBucket, minio.MakeBucketOptions{}); err != nil {
		exists, existsErr := client.BucketExists(ctx, minioBucket)
		if !exists || existsErr != nil {
			require.NoError(tb, err, "create bucket")
		}
	}

	store, err := s3.New(s3.Config{Client: client, Bucket: minioBucket})
	require.NoError(tb, err)
	return store
}

func newRedisStore(tb testing.TB) blobstore.Store {
	tb.Helper()

	addr := redisC.get(tb, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379/tcp")

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	tb.Cleanup(func() { _ = client.Close() })

	store, err := redis.New(client)
	require.NoError(tb, err)
	return store
}

// backends lists every store under test by name.
var backends = []struct {
	name string
	new  func(testing.TB) blobstore.Store
}{
	{name: "oci", new: newOCIStore},
	{name: "s3", new: newS3Store},
	{name: "redis", new: newRedisStore},
}

// newService creates a service with its own cache directory.
func newService(tb testing.TB, store blobstore.Store, opts ...imgcache.Option) *imgcache.Service {
	tb.Helper()

	svc, err := imgcache.New(tb.TempDir(), store, opts...)
	require.NoError(tb, err)
	return svc
}
