package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases a resource during shutdown. The context carries the
// shutdown deadline.
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the event server and tears down registered
// resources (health server, telemetry exporters, connections) when the
// process receives SIGINT or SIGTERM.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []ShutdownFunc
}

// NewShutdownManager creates a manager for the given event server. A zero
// timeout defaults to 30 seconds.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// RegisterShutdownFunc adds a teardown step. Steps run after the event
// server has drained, in registration order.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, fn)
}

// WaitForShutdown blocks until a termination signal arrives, then drains
// the event server and runs the registered teardown steps. Event dispatch is
// synchronous, so draining the server guarantees no ACL update or cache
// purge is cut off mid-flight.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("Received signal %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	var errs []error

	if sm.server != nil {
		sm.logger.Info("Draining event server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("Event server shutdown error")
			errs = append(errs, fmt.Errorf("event server shutdown: %w", err))
		}
	}

	sm.mu.Lock()
	funcs := sm.funcs
	sm.mu.Unlock()

	for _, fn := range funcs {
		if ctx.Err() != nil {
			sm.logger.Warn("Shutdown deadline reached, skipping remaining teardown steps")
			errs = append(errs, fmt.Errorf("shutdown deadline reached: %w", ctx.Err()))
			break
		}
		if err := fn(ctx); err != nil {
			sm.logger.WithError(err).Error("Teardown step failed")
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors", len(errs))
	}

	sm.logger.Info("Shutdown complete")
	return nil
}
