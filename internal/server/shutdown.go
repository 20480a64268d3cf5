// Package server coordinates graceful shutdown of the API servers and the
// resources behind them.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Shutdown defaults.
const (
	DefaultShutdownTimeout = 30 * time.Second
	DefaultDrainTimeout    = 15 * time.Second
)

// ShutdownConfig configures a ShutdownManager.
type ShutdownConfig struct {
	// ShutdownTimeout bounds the whole shutdown, closers included
	ShutdownTimeout time.Duration

	// DrainTimeout bounds the wait for in-flight HTTP requests
	DrainTimeout time.Duration
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// ShutdownManager tracks in-flight requests and closes registered resources
// in reverse registration order once shutdown starts.
type ShutdownManager struct {
	cfg    ShutdownConfig
	logger *zap.Logger

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
	inFlight     atomic.Int64
	shuttingDown atomic.Bool

	mu      sync.Mutex
	closers []namedCloser
}

// NewShutdownManager creates a manager. Zero timeouts take the defaults.
func NewShutdownManager(cfg ShutdownConfig, logger *zap.Logger) *ShutdownManager {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShutdownManager{
		cfg:        cfg,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// Register adds a resource to close on shutdown. Resources close LIFO, so
// register dependencies (store, cache) before their users (servers).
func (sm *ShutdownManager) Register(name string, c io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, closer: c})
}

// ListenForSignals blocks until SIGINT/SIGTERM, ctx cancellation or another
// Shutdown call, then shuts down.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), "signal "+sig.String())
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.shutdownCh:
		return sm.Wait()
	}
}

// Shutdown stops accepting requests, drains in-flight ones and closes the
// registered resources. Later calls return the first call's result.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	sm.shutdownOnce.Do(func() {
		sm.shuttingDown.Store(true)
		sm.logger.Info("shutting down", zap.String("reason", reason))

		shutdownCtx, cancel := context.WithTimeout(ctx, sm.cfg.ShutdownTimeout)
		defer cancel()

		if err := sm.drain(shutdownCtx); err != nil {
			sm.logger.Warn("drain incomplete", zap.Error(err))
			sm.shutdownErr = err
		}

		sm.mu.Lock()
		closers := append([]namedCloser(nil), sm.closers...)
		sm.mu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			c := closers[i]
			if err := c.closer.Close(); err != nil {
				sm.logger.Error("close failed", zap.String("resource", c.name), zap.Error(err))
				if sm.shutdownErr == nil {
					sm.shutdownErr = fmt.Errorf("close %s: %w", c.name, err)
				}
				continue
			}
			sm.logger.Debug("closed", zap.String("resource", c.name))
		}

		sm.logger.Info("shutdown complete")
		close(sm.shutdownCh)
	})
	return sm.shutdownErr
}

// Wait blocks until shutdown has completed.
func (sm *ShutdownManager) Wait() error {
	<-sm.shutdownCh
	return sm.shutdownErr
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.cfg.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if sm.inFlight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			if n := sm.inFlight.Load(); n > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight requests", n)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// TrackRequest counts a new request. It returns false once shutdown has
// started.
func (sm *ShutdownManager) TrackRequest() bool {
	if sm.shuttingDown.Load() {
		return false
	}
	sm.inFlight.Add(1)
	return true
}

// UntrackRequest marks a tracked request as finished.
func (sm *ShutdownManager) UntrackRequest() {
	sm.inFlight.Add(-1)
}

// IsShuttingDown reports whether shutdown has started.
func (sm *ShutdownManager) IsShuttingDown() bool {
	return sm.shuttingDown.Load()
}

// InFlightCount returns the number of tracked requests.
func (sm *ShutdownManager) InFlightCount() int64 {
	return sm.inFlight.Load()
}

// Done is closed when shutdown has completed.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.shutdownCh
}

// Middleware tracks in-flight requests and answers 503 during shutdown.
func (sm *ShutdownManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sm.TrackRequest() {
			w.Header().Set("Connection", "close")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "server is shutting down"})
			return
		}
		defer sm.UntrackRequest()
		next.ServeHTTP(w, r)
	})
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error {
	return f()
}

// HTTPCloser shuts srv down gracefully within timeout.
func HTTPCloser(srv *http.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// GRPCCloser stops srv gracefully, forcing a stop after timeout.
func GRPCCloser(srv *grpc.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			srv.Stop()
		}
		return nil
	})
}
