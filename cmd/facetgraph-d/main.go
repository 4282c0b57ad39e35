package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rmax-ai/facetgraph/pkg/api"
	"github.com/rmax-ai/facetgraph/pkg/blob"
	"github.com/rmax-ai/facetgraph/pkg/dataset"
	"github.com/rmax-ai/facetgraph/pkg/engine"
	"github.com/rmax-ai/facetgraph/pkg/store"
	"github.com/rmax-ai/facetgraph/pkg/store/redis"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "facetgraph-d: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "facetgraph-d: failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("facetgraph-d exited", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg Config, logger *zap.Logger) error {
	logger.Info("system_started", zap.String("component", "facetgraph-d"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed_to_close_store", zap.Error(err))
		}
	}()
	logger.Info("store_initialized", zap.String("path", cfg.DBPath))

	watcher := dataset.NewWatcher(cfg.DatasetsDir, st, logger.Named("datasets"))
	if err := watcher.Start(ctx); err != nil {
		// the daemon still serves datasets already in the store
		logger.Warn("dataset_watcher_disabled", zap.String("dir", cfg.DatasetsDir), zap.Error(err))
	}

	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("redis_connected", zap.String("addr", cfg.RedisAddr))
	}

	var cache engine.CacheStore = engine.NewMemoryCacheStore()
	if rdb != nil {
		cache = redis.NewCacheStore(rdb, cfg.CacheTTL)
	}

	var leases store.LeaseStore
	switch cfg.LeaseMode {
	case "sqlite":
		leases = st
	case "redis":
		leases = redis.NewLeaseStore(rdb)
	}

	holderID, err := os.Hostname()
	if err != nil {
		holderID = "facetgraph-d"
	}
	holderID = fmt.Sprintf("%s-%d", holderID, os.Getpid())

	eng := engine.New(engine.Deps{
		Search:  st,
		Docs:    st,
		Cache:   cache,
		History: st,
		Archive: engine.NewSnapshotArchive(blob.NewLocalStore(cfg.BlobDir)),
		Leases:  leases,
		Logger:  logger.Named("engine"),
	}, engine.Config{
		HolderID: holderID,
		LeaseTTL: cfg.LeaseTTL,
	})

	srv := api.NewServer(eng, logger.Named("api"), cfg.Addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown_initiated")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("failed_to_stop_server", zap.Error(err))
	}
	logger.Info("shutdown_complete")
	return nil
}
