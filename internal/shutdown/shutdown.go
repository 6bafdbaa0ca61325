// Package shutdown runs cleanup hooks in reverse registration order once
// the process is asked to stop.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Func is one shutdown hook.
type Func func(ctx context.Context) error

type hook struct {
	name string
	fn   Func
}

// Manager handles graceful shutdown
type Manager struct {
	mu      sync.Mutex
	hooks   []hook
	timeout time.Duration
	logger  *zap.Logger
	once    sync.Once
	done    chan struct{}
	err     error
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a shutdown hook. Hooks run LIFO.
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Done is closed once Shutdown has started.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Shutdown runs every hook once, bounded by the manager timeout. Later
// calls return the first call's result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		close(m.done)

		m.mu.Lock()
		hooks := append([]hook(nil), m.hooks...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			m.logger.Debug("stopping", zap.String("component", h.name))
			if err := h.fn(ctx); err != nil {
				m.logger.Warn("shutdown hook failed", zap.String("component", h.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			}
		}
		m.err = errors.Join(errs...)
		m.logger.Info("graceful shutdown complete")
	})
	return m.err
}

// WaitWithContext blocks until SIGINT/SIGTERM or ctx cancellation, then
// runs Shutdown.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		m.logger.Info("context done, shutting down")
	}
	return m.Shutdown()
}

// StopHTTPServer creates a shutdown hook for an http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) Func {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	}
}

// CloseResource creates a shutdown hook for an io.Closer
func CloseResource(closer interface{ Close() error }) Func {
	return func(context.Context) error {
		return closer.Close()
	}
}
