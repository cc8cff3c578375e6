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

// ShutdownFunc releases one resource during shutdown.
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the HTTP servers and runs registered cleanup
// functions when SIGINT or SIGTERM arrives.
type ShutdownManager struct {
	logger        *Logger
	servers       []*http.Server
	shutdownFuncs []ShutdownFunc
	timeout       time.Duration
	mu            sync.Mutex
}

// NewShutdownManager creates a shutdown manager for the given servers.
func NewShutdownManager(logger *Logger, timeout time.Duration, servers ...*http.Server) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		servers: servers,
		timeout: timeout,
	}
}

// Register adds a cleanup function to run after the servers drain.
func (sm *ShutdownManager) Register(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownFuncs = append(sm.shutdownFuncs, fn)
}

// Wait blocks until a termination signal arrives, then shuts everything
// down within the timeout.
func (sm *ShutdownManager) Wait() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("received signal %s, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()
	return sm.Shutdown(ctx)
}

// Shutdown drains the servers and runs the cleanup functions.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	var firstErr error

	for _, server := range sm.servers {
		if err := server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("http server shutdown error")
			if firstErr == nil {
				firstErr = fmt.Errorf("http server shutdown failed: %w", err)
			}
		}
	}

	sm.mu.Lock()
	funcs := sm.shutdownFuncs
	sm.mu.Unlock()

	for _, fn := range funcs {
		if err := fn(ctx); err != nil {
			sm.logger.WithError(err).Error("shutdown function error")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr == nil {
		sm.logger.Info("graceful shutdown complete")
	}
	return firstErr
}
