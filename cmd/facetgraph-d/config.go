package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAddr      = "127.0.0.1:8090"
	defaultCacheTTL  = 30 * time.Minute
	defaultLeaseTTL  = 10 * time.Second
	defaultEnv       = "development"
	defaultLeaseMode = "none"
)

type Config struct {
	DBPath      string
	Addr        string
	RedisAddr   string
	CacheTTL    time.Duration
	BlobDir     string
	DatasetsDir string
	Env         string
	LeaseMode   string
	LeaseTTL    time.Duration
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	dbPath := envOrDefault("FACETGRAPH_DB_PATH", filepath.Join(cwd, "facetgraph.db"))
	addr := addrFromEnv(defaultAddr)
	redisAddr := os.Getenv("FACETGRAPH_REDIS_ADDR")
	cacheTTL, err := durationFromEnv("FACETGRAPH_CACHE_TTL", defaultCacheTTL)
	if err != nil {
		return Config{}, err
	}
	leaseTTL, err := durationFromEnv("FACETGRAPH_LEASE_TTL", defaultLeaseTTL)
	if err != nil {
		return Config{}, err
	}
	blobDir := envOrDefault("FACETGRAPH_BLOB_DIR", filepath.Join(cwd, "snapshots"))
	datasetsDir := envOrDefault("FACETGRAPH_DATASETS_DIR", filepath.Join(cwd, "datasets"))
	env := envOrDefault("FACETGRAPH_ENV", defaultEnv)
	leaseMode := envOrDefault("FACETGRAPH_SESSION_LEASE", defaultLeaseMode)

	flagSet := flag.NewFlagSet("facetgraph-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", dbPath, "path to SQLite database")
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagRedis := flagSet.String("redis", redisAddr, "redis address for the session cache (empty = in-memory)")
	flagCacheTTL := flagSet.String("cache-ttl", cacheTTL.String(), "session cache TTL")
	flagLeaseTTL := flagSet.String("lease-ttl", leaseTTL.String(), "session lease TTL")
	flagBlobDir := flagSet.String("blob-dir", blobDir, "directory for archived snapshots")
	flagDatasets := flagSet.String("datasets", datasetsDir, "directory of dataset configs and rows")
	flagEnv := flagSet.String("env", env, "environment: development|production")
	flagLease := flagSet.String("lease", leaseMode, "session lease backend: none|sqlite|redis")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
		}
		return Config{}, err
	}

	cacheTTLParsed, err := time.ParseDuration(*flagCacheTTL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid cache ttl: %w", err)
	}
	if cacheTTLParsed <= 0 {
		return Config{}, errors.New("cache ttl must be positive")
	}
	leaseTTLParsed, err := time.ParseDuration(*flagLeaseTTL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid lease ttl: %w", err)
	}
	if leaseTTLParsed <= 0 {
		return Config{}, errors.New("lease ttl must be positive")
	}

	config := Config{
		DBPath:      resolvePath(*flagDB, cwd),
		Addr:        strings.TrimSpace(*flagAddr),
		RedisAddr:   strings.TrimSpace(*flagRedis),
		CacheTTL:    cacheTTLParsed,
		BlobDir:     resolvePath(*flagBlobDir, cwd),
		DatasetsDir: resolvePath(*flagDatasets, cwd),
		Env:         strings.ToLower(strings.TrimSpace(*flagEnv)),
		LeaseMode:   normalizeLeaseMode(*flagLease),
		LeaseTTL:    leaseTTLParsed,
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.Env != "development" && config.Env != "production" {
		return Config{}, fmt.Errorf("unsupported env: %s", config.Env)
	}
	switch config.LeaseMode {
	case "none", "sqlite":
	case "redis":
		if config.RedisAddr == "" {
			return Config{}, errors.New("lease=redis requires redis")
		}
	default:
		return Config{}, fmt.Errorf("unsupported lease mode: %s", config.LeaseMode)
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return parsed, nil
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("FACETGRAPH_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("FACETGRAPH_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}

func normalizeLeaseMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "none", "off", "local":
		return "none"
	case "sqlite", "db":
		return "sqlite"
	default:
		return strings.ToLower(strings.TrimSpace(mode))
	}
}
