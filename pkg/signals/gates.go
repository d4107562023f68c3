package signals

import (
	"context"

	"github.com/docsentry/docsentry/pkg/frontendcache"
	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/storage"
)

// Configuration gates. Each wraps a handler and silently no-ops it when a
// precondition does not hold: the handler is not called, no error is
// returned, no side effect happens. Absent configuration means "feature
// disabled", never an error.

// SkipIfS3StorageNotUsed invokes the handler only when the CMS default file
// storage is the S3 backend.
func SkipIfS3StorageNotUsed(cfg storage.Config, name string, metrics *observability.Metrics, handler Handler) Handler {
	return func(ctx context.Context, event Event) error {
		if !cfg.S3InUse() {
			if metrics != nil {
				metrics.HandlerSkipsTotal.WithLabelValues(name, "s3_storage").Inc()
			}
			return nil
		}
		return handler(ctx, event)
	}
}

// SkipIfFrontendCacheNotConfigured invokes the handler only when at least
// one cache-invalidator backend is configured. The check happens per
// dispatch so hot-reloaded backend sets take effect immediately.
func SkipIfFrontendCacheNotConfigured(purger *frontendcache.Purger, name string, metrics *observability.Metrics, handler Handler) Handler {
	return func(ctx context.Context, event Event) error {
		if purger == nil || !purger.Configured() {
			if metrics != nil {
				metrics.HandlerSkipsTotal.WithLabelValues(name, "frontend_cache").Inc()
			}
			return nil
		}
		return handler(ctx, event)
	}
}
