// Package shutdown coordinates signal-driven graceful termination.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/williamzujkowski/arpwatch-docker/internal/logging"
)

// StopFunc is a function that performs cleanup during shutdown.
type StopFunc func(context.Context) error

// Manager cancels a root context on SIGINT/SIGTERM and then runs the
// registered stop functions, most recently registered first, under a
// shared timeout.
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	mu    sync.Mutex
	stops []stopEntry
	once  sync.Once
	done  chan struct{}
}

type stopEntry struct {
	name string
	fn   StopFunc
}

// New creates a shutdown manager.
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		logger:  logger.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Register adds a named stop function. Functions run in reverse
// registration order so dependents stop before their dependencies.
func (m *Manager) Register(name string, fn StopFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops = append(m.stops, stopEntry{name: name, fn: fn})
}

// Context returns a context canceled when a termination signal arrives or
// Trigger is called.
func (m *Manager) Context(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			m.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		case <-m.done:
		case <-parent.Done():
		}
		signal.Stop(sigCh)
		cancel()
	}()

	return ctx
}

// Trigger initiates shutdown without a signal.
func (m *Manager) Trigger() {
	m.once.Do(func() { close(m.done) })
}

// Shutdown runs every registered stop function. It is safe to call more
// than once; later calls are no-ops handled by the individual components.
func (m *Manager) Shutdown() {
	m.Trigger()

	m.mu.Lock()
	stops := make([]stopEntry, len(m.stops))
	copy(stops, m.stops)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.logger.Info().
		Int("components", len(stops)).
		Dur("timeout", m.timeout).
		Msg("Starting graceful shutdown")

	for i := len(stops) - 1; i >= 0; i-- {
		entry := stops[i]
		if err := entry.fn(ctx); err != nil {
			m.logger.Error().Err(err).Str("component", entry.name).Msg("Component shutdown failed")
		} else {
			m.logger.Debug().Str("component", entry.name).Msg("Component stopped")
		}

		if ctx.Err() != nil {
			m.logger.Warn().Msg("Graceful shutdown timed out")
			return
		}
	}

	m.logger.Info().Msg("Graceful shutdown completed")
}
