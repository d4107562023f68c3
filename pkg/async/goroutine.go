// Package async provides panic-safe goroutine helpers for fire-and-forget
// work off the request path.
package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/docsentry/docsentry/pkg/observability"
)

// SafeGo executes a function in a goroutine with context cancellation,
// panic recovery, timeout enforcement and error logging. Use this instead of
// a bare `go func()` for background work such as config reloads.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.WithFields(map[string]interface{}{
						"task":  taskName,
						"panic": r,
						"stack": string(debug.Stack()),
					}).Error("Panic in background task")
				}
			}
		}()

		if err := fn(ctx); err != nil && logger != nil {
			logger.WithError(err).WithField("task", taskName).Error("Background task failed")
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, logger, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
