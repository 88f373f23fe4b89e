// Package server serves the metrics exposition endpoint and the health
// probes. It runs independently of the log pipeline; a slow scrape never
// blocks line processing and vice versa.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/williamzujkowski/arpwatch-docker/internal/health"
	"github.com/williamzujkowski/arpwatch-docker/internal/logging"
)

// Config holds server configuration
type Config struct {
	Address     string
	MetricsPath string
	Registry    *prometheus.Registry
	Checker     *health.Checker
	Logger      *logging.Logger
}

// Server is the HTTP listener for scrapes and probes.
type Server struct {
	httpServer *http.Server
	logger     *logging.Logger

	mu   sync.Mutex
	addr string
}

// New creates a new server
func New(cfg Config) *Server {
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(
		cfg.Registry,
		promhttp.HandlerOpts{
			// Render failures answer the scraper with a 500 instead of
			// aborting mid-body; the pipeline is unaffected either way.
			ErrorHandling: promhttp.HTTPErrorOnError,
		},
	))

	if cfg.Checker != nil {
		mux.HandleFunc("/health/live", cfg.Checker.LivenessHandler())
		mux.HandleFunc("/health/ready", cfg.Checker.ReadinessHandler())
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: cfg.Logger.WithComponent("server"),
	}
}

// Start binds the listen address and serves in the background. The bind
// happens synchronously so an unusable port fails startup instead of
// surfacing on the first scrape.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics listener on %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.addr).Msg("Starting metrics server")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// Addr returns the bound listen address, useful when the configured port
// is 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}
