package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "IMGCACHE"

const (
	backendOCI   = "oci"
	backendS3    = "s3"
	backendRedis = "redis"
)

type config struct {
	cacheDir  string
	backend   string
	logLevel  string
	logFormat string

	memoryCapacity int
	maxFetchBytes  int64
	ceiling        int64
	fetchTimeout   time.Duration
	uploadTimeout  time.Duration
	concurrency    int

	ociRepository string
	ociPlainHTTP  bool
	ociAnonymous  bool
	ociUsername   string
	ociPassword   string
	ociToken      string

	s3Endpoint  string
	s3AccessKey string
	s3SecretKey string
	s3Region    string
	s3Bucket    string
	s3Prefix    string
	s3SSL       bool

	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "imgcache", "ImageCache")
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String("cache-dir", defaultCacheDir(), "local cache directory")
	fs.String("backend", backendOCI, "remote store: oci, s3 or redis")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: text or json")

	fs.Int("memory-capacity", 100, "images held in memory")
	fs.Int64("max-fetch-bytes", 10<<20, "largest remote image accepted")
	fs.Int64("ceiling", 5<<20, "default publish size ceiling in bytes")
	fs.Duration("fetch-timeout", 30*time.Second, "per-image remote fetch timeout (0 disables)")
	fs.Duration("upload-timeout", 60*time.Second, "upload timeout (0 disables)")
	fs.Int("concurrency", 0, "parallel fetches for multi-image fetch (0 means one per image)")

	fs.String("oci-repository", "", "OCI repository, e.g. ghcr.io/acme/images")
	fs.Bool("oci-plain-http", false, "use plain HTTP for the registry")
	fs.Bool("oci-anonymous", false, "ignore docker credentials")
	fs.String("oci-username", "", "registry username (overrides docker credentials)")
	fs.String("oci-password", "", "registry password")
	fs.String("oci-token", "", "registry access token (overrides docker credentials)")

	fs.String("s3-endpoint", "s3.amazonaws.com", "S3 endpoint host[:port]")
	fs.String("s3-access-key", "", "S3 access key")
	fs.String("s3-secret-key", "", "S3 secret key")
	fs.String("s3-region", "", "S3 region")
	fs.String("s3-bucket", "", "S3 bucket")
	fs.String("s3-prefix", "images/", "S3 object key prefix")
	fs.Bool("s3-ssl", true, "use HTTPS for S3")

	fs.String("redis-addr", "localhost:6379", "comma separated Redis addresses")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database")
	fs.String("redis-prefix", "imgcache:images:", "Redis key prefix")
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		cacheDir:       v.GetString("cache-dir"),
		backend:        strings.ToLower(v.GetString("backend")),
		logLevel:       v.GetString("log-level"),
		logFormat:      v.GetString("log-format"),
		memoryCapacity: v.GetInt("memory-capacity"),
		maxFetchBytes:  v.GetInt64("max-fetch-bytes"),
		ceiling:        v.GetInt64("ceiling"),
		fetchTimeout:   v.GetDuration("fetch-timeout"),
		uploadTimeout:  v.GetDuration("upload-timeout"),
		concurrency:    v.GetInt("concurrency"),

		ociRepository: v.GetString("oci-repository"),
		ociPlainHTTP:  v.GetBool("oci-plain-http"),
		ociAnonymous:  v.GetBool("oci-anonymous"),
		ociUsername:   v.GetString("oci-username"),
		ociPassword:   v.GetString("oci-password"),
		ociToken:      v.GetString("oci-token"),

		s3Endpoint:  v.GetString("s3-endpoint"),
		s3AccessKey: v.GetString("s3-access-key"),
		s3SecretKey: v.GetString("s3-secret-key"),
		s3Region:    v.GetString("s3-region"),
		s3Bucket:    v.GetString("s3-bucket"),
		s3Prefix:    v.GetString("s3-prefix"),
		s3SSL:       v.GetBool("s3-ssl"),

		redisAddr:     v.GetString("redis-addr"),
		redisPassword: v.GetString("redis-password"),
		redisDB:       v.GetInt("redis-db"),
		redisPrefix:   v.GetString("redis-prefix"),
	}
	if cfg.cacheDir == "" {
		return config{}, errors.New("cache-dir is empty")
	}
	switch cfg.backend {
	case backendOCI, backendS3, backendRedis:
	default:
		return config{}, fmt.Errorf("unknown backend %q", cfg.backend)
	}
	return cfg, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log-level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
