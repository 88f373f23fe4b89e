// Package health exposes liveness and readiness probes for the exporter.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/williamzujkowski/arpwatch-docker/pkg/types"
)

// Check reports nil when its component is healthy.
type Check func() error

// Checker aggregates component checks into probe handlers.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

// Register adds a named component check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes every registered check and returns the failures by
// component name.
func (c *Checker) Run() map[string]string {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	failures := make(map[string]string)
	for name, check := range checks {
		if err := check(); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}

type probeResponse struct {
	Status    string            `json:"status"`
	Failures  map[string]string `json:"failures,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// LivenessHandler reports whether the process is alive. It always
// succeeds; a wedged process simply stops answering.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(probeResponse{
			Status:    "alive",
			Timestamp: time.Now(),
		})
	}
}

// ReadinessHandler runs all component checks and reports 503 on any
// failure.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failures := c.Run()

		status := "ready"
		code := http.StatusOK
		if len(failures) > 0 {
			status = "not_ready"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(probeResponse{
			Status:    status,
			Failures:  failures,
			Timestamp: time.Now(),
		})
	}
}

// PipelineRunning builds a check that fails unless the pipeline has
// reached its running state.
func PipelineRunning(state func() types.PipelineState) Check {
	return func() error {
		if s := state(); s != types.StateRunning {
			return fmt.Errorf("pipeline is %s", s)
		}
		return nil
	}
}
