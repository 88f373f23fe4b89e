// Package procwatch periodically samples the process table for the
// monitored daemon and reports its presence as a gauge. It observes only;
// the daemon's lifecycle is managed elsewhere.
package procwatch

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/williamzujkowski/arpwatch-docker/internal/logging"
	"github.com/williamzujkowski/arpwatch-docker/internal/metrics"
)

// Lister enumerates process names. The production implementation reads
// the process table via gopsutil; tests substitute a fake.
type Lister interface {
	ProcessNames(ctx context.Context) ([]string, error)
}

// SystemLister lists processes from the OS process table.
type SystemLister struct{}

// ProcessNames returns the names of all running processes. Processes that
// disappear mid-scan are skipped.
func (SystemLister) ProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Watcher samples the process table on an interval and mirrors the result
// into the daemon gauge.
type Watcher struct {
	name      string
	interval  time.Duration
	lister    Lister
	collector *metrics.Collector
	logger    *logging.Logger
}

// New creates a watcher for the named daemon.
func New(name string, interval time.Duration, lister Lister, collector *metrics.Collector, logger *logging.Logger) *Watcher {
	return &Watcher{
		name:      name,
		interval:  interval,
		lister:    lister,
		collector: collector,
		logger:    logger.WithComponent("procwatch"),
	}
}

// Run samples immediately, then on every tick, until the context is
// canceled.
func (w *Watcher) Run(ctx context.Context) {
	w.sample(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sample(ctx)
		}
	}
}

// sample performs one process-table lookup. Lookup errors leave the gauge
// at its previous value.
func (w *Watcher) sample(ctx context.Context) {
	names, err := w.lister.ProcessNames(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to read process table")
		return
	}

	up := false
	for _, name := range names {
		if strings.EqualFold(name, w.name) {
			up = true
			break
		}
	}

	w.collector.SetDaemonUp(up)
	w.logger.Debug().Bool("up", up).Str("daemon", w.name).Msg("Sampled daemon state")
}
