package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/docsentry/docsentry/pkg/acl"
	"github.com/docsentry/docsentry/pkg/config"
	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/reconciler"
	"github.com/docsentry/docsentry/pkg/storage"
	"github.com/docsentry/docsentry/pkg/storage/postgres"
	"github.com/docsentry/docsentry/pkg/storage/sqlite"
	"github.com/docsentry/docsentry/pkg/visibility"
)

// docsentry-reconciler walks every collection and rewrites each document's
// S3 ACL to match its current visibility. Run it on a schedule to repair
// drift from missed events, or with -run-once for a single sweep.
func main() {
	var (
		schedule    = flag.String("schedule", "0 3 * * *", "cron schedule for reconciliation sweeps")
		runOnce     = flag.Bool("run-once", false, "run a single sweep and exit")
		parallelism = flag.Int("parallelism", 4, "collections swept concurrently")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if !cfg.Storage.S3InUse() {
		log.Fatal("S3 storage is not configured; nothing to reconcile")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	store, err := newStore(context.Background(), cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize store")
	}
	defer store.Close()

	var redisClient *redis.Client
	var cache *visibility.Cache
	if cfg.Storage.CacheEnabled && cfg.Storage.RedisURL != "" {
		redisClient, err = visibility.NewRedisClient(cfg.Storage)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to redis")
		}
		defer redisClient.Close()
		cache = visibility.NewCache(cfg.Storage, redisClient, nil)
	}
	resolver := visibility.NewResolver(store, cache, nil, logger)

	s3Client, err := acl.NewS3Client(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("Failed to create S3 client")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	synchronizer := acl.NewSynchronizer(s3Client, cfg.Storage.S3Bucket, store, resolver, metrics, logger)
	rec := reconciler.New(store, resolver, synchronizer, metrics, logger, *parallelism)

	sweep := func() {
		defer observability.RecoverPanic(logger, "reconciliation sweep")
		log.Info("Starting reconciliation sweep")
		if err := rec.Sweep(context.Background()); err != nil {
			log.WithError(err).Error("Reconciliation sweep failed")
			return
		}
		log.Info("Reconciliation sweep complete")
	}

	if *runOnce {
		log.Info("Running single sweep")
		if err := rec.Sweep(context.Background()); err != nil {
			log.WithError(err).Fatal("Reconciliation sweep failed")
		}
		log.Info("Reconciliation sweep complete")
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, sweep); err != nil {
		log.WithError(err).Fatalf("Invalid cron schedule %q", *schedule)
	}
	c.Start()
	log.WithField("schedule", *schedule).Info("Reconciler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down reconciler")
	<-c.Stop().Done()
}

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
