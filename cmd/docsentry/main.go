package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/docsentry/docsentry/pkg/acl"
	"github.com/docsentry/docsentry/pkg/async"
	"github.com/docsentry/docsentry/pkg/config"
	"github.com/docsentry/docsentry/pkg/frontendcache"
	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/reconciler"
	"github.com/docsentry/docsentry/pkg/server"
	"github.com/docsentry/docsentry/pkg/signals"
	"github.com/docsentry/docsentry/pkg/storage"
	"github.com/docsentry/docsentry/pkg/storage/postgres"
	"github.com/docsentry/docsentry/pkg/storage/sqlite"
	"github.com/docsentry/docsentry/pkg/visibility"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	// OpenTelemetry
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	// Metrics
	var metrics *observability.Metrics
	var metricsHandler http.Handler
	if cfg.Observability.MetricsEnabled {
		registry := prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
		metricsHandler = observability.MetricsHandler(registry)
	}

	// CMS mirror store
	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize store")
		os.Exit(1)
	}
	defer store.Close()

	// Visibility resolver with optional two-tier cache
	var redisClient *redis.Client
	var cache *visibility.Cache
	if cfg.Storage.CacheEnabled {
		if cfg.Storage.RedisURL != "" {
			redisClient, err = visibility.NewRedisClient(cfg.Storage)
			if err != nil {
				logger.WithError(err).Error("Failed to connect to redis")
				os.Exit(1)
			}
			defer redisClient.Close()
		}
		cache = visibility.NewCache(cfg.Storage, redisClient, metrics)
	}
	resolver := visibility.NewResolver(store, cache, metrics, logger)

	// S3 ACL synchronizer. Only built when the CMS reports S3 storage; the
	// configuration gates keep the handlers away from it otherwise.
	var synchronizer *acl.Synchronizer
	if cfg.Storage.S3InUse() {
		s3Client, err := acl.NewS3Client(cfg.Storage)
		if err != nil {
			logger.WithError(err).Error("Failed to create S3 client")
			os.Exit(1)
		}
		synchronizer = acl.NewSynchronizer(s3Client, cfg.Storage.S3Bucket, store, resolver, metrics, logger)
	} else {
		logger.Info("S3 storage not in use; ACL handlers disabled")
	}

	// Frontend cache purger
	backends, err := frontendcache.NewBackends(cfg.FrontendCache.Backends)
	if err != nil {
		logger.WithError(err).Error("Invalid frontend cache configuration")
		os.Exit(1)
	}
	purger := frontendcache.NewPurger(backends, metrics, logger)
	if len(backends) == 0 {
		logger.Info("No frontend cache backends configured; purge handlers disabled")
	}

	// Signal registry and handlers
	registry := signals.NewRegistry(metrics, logger)
	handlers := signals.NewHandlers(cfg.Storage, store, resolver, synchronizer, purger, metrics, logger)
	handlers.Connect(registry)

	// Hot reload of the backend map when the YAML file changes
	if cfg.FrontendCache.BackendsFile != "" {
		if err := watchBackendsFile(cfg.FrontendCache.BackendsFile, purger, logger); err != nil {
			logger.WithError(err).Warn("Frontend cache config watcher unavailable; edits require a restart")
		}
	}

	// Optional in-process reconciliation on startup, to repair drift that
	// accumulated while docsentry was down.
	if os.Getenv("DOCSENTRY_RECONCILE_ON_START") == "true" && synchronizer != nil {
		rec := reconciler.New(store, resolver, synchronizer, metrics, logger, 4)
		async.SafeGo(ctx, 10*time.Minute, "startup reconciliation", logger, rec.Sweep)
	}

	// HTTP servers: event API plus health/metrics sidecar
	apiServer := server.New(registry, metrics, logger, cfg.Server.EventToken)
	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var s3Pinger observability.Pinger
	if synchronizer != nil {
		s3Pinger = synchronizer
	}
	checker := observability.NewHealthChecker(store, s3Pinger, redisClient)
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: server.HealthRouter(checker, metricsHandler),
	}

	go func() {
		logger.Infof("Health server listening on :%s", cfg.Server.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.Infof("Event server listening on :%s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Event server failed")
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
}

// newStore builds the configured store backend and ensures its schema.
func newStore(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	switch cfg.Type {
	case "postgres":
		store, err := postgres.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	}
}

// watchBackendsFile reloads the purger's backend set when the YAML file is
// rewritten. Watches the parent directory so editors that replace the file
// (rename-over) are still caught.
func watchBackendsFile(path string, purger *frontendcache.Purger, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer observability.RecoverPanic(logger, "frontend cache config watcher")
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				configs, err := config.LoadFrontendCacheBackends(path)
				if err != nil {
					logger.WithError(err).Error("Failed to reload frontend cache config; keeping previous backends")
					continue
				}
				backends, err := frontendcache.NewBackends(configs)
				if err != nil {
					logger.WithError(err).Error("Invalid frontend cache config; keeping previous backends")
					continue
				}
				purger.SetBackends(backends)
				logger.WithField("backends", len(backends)).Info("Frontend cache backends reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Frontend cache config watcher error")
			}
		}
	}()

	return nil
}
