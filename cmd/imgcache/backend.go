package main

import (
	"errors"
	"io"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/meigma/imgcache/blobstore"
	"github.com/meigma/imgcache/blobstore/oci"
	"github.com/meigma/imgcache/blobstore/redis"
	"github.com/meigma/imgcache/blobstore/s3"
)

// ociAuth picks the registry authentication mode from the flags.
func ociAuth(cfg config) (oci.Option, error) {
	switch {
	case cfg.ociAnonymous:
		return oci.WithAnonymous(), nil
	case cfg.ociToken != "" && cfg.ociUsername != "":
		return nil, errors.New("--oci-token and --oci-username are mutually exclusive")
	case cfg.ociToken != "":
		return oci.WithBearerToken(cfg.ociToken), nil
	case cfg.ociUsername != "" && cfg.ociPassword == "":
		return nil, errors.New("--oci-username requires --oci-password")
	case cfg.ociPassword != "" && cfg.ociUsername == "":
		return nil, errors.New("--oci-password requires --oci-username")
	case cfg.ociUsername != "":
		return oci.WithBasicAuth(cfg.ociUsername, cfg.ociPassword), nil
	default:
		return oci.WithDockerConfig(), nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newStore builds the configured blob store. The returned closer releases
// backend connections.
func newStore(cfg config) (blobstore.Store, io.Closer, error) {
	switch cfg.backend {
	case backendOCI:
		if cfg.ociRepository == "" {
			return nil, nil, errors.New("oci backend requires --oci-repository")
		}
		authOpt, err := ociAuth(cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := oci.New(cfg.ociRepository, oci.WithPlainHTTP(cfg.ociPlainHTTP), authOpt)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil

	case backendS3:
		store, err := s3.New(s3.Config{
			Endpoint:  cfg.s3Endpoint,
			AccessKey: cfg.s3AccessKey,
			SecretKey: cfg.s3SecretKey,
			Region:    cfg.s3Region,
			UseSSL:    cfg.s3SSL,
			Bucket:    cfg.s3Bucket,
			Prefix:    cfg.s3Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil

	case backendRedis:
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    strings.Split(cfg.redisAddr, ","),
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		store, err := redis.New(client, redis.WithKeyPrefix(cfg.redisPrefix))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client, nil
	}
	return nil, nil, errors.New("unknown backend " + cfg.backend)
}
