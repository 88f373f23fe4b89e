package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/williamzujkowski/arpwatch-docker/pkg/types"
)

// Namespace for all metrics
const namespace = "arpwatch"

// Collector holds every metric the exporter exposes. The metric set is
// fixed at construction, one counter per event label plus the aggregate
// and operational series; nothing is registered after startup.
type Collector struct {
	// Per-event counters keyed by label, e.g. "new_station" →
	// arpwatch_new_station_total.
	events map[string]prometheus.Counter

	// EventsTotal counts every classified event across all labels.
	EventsTotal prometheus.Counter

	// LastActivity is the unix timestamp of the most recent classified
	// event.
	LastActivity prometheus.Gauge

	// UnrecognizedLines counts daemon log lines that matched no rule.
	// These do not contribute to EventsTotal.
	UnrecognizedLines prometheus.Counter

	// LinesRead counts every line pulled from the log, matched or not.
	LinesRead prometheus.Counter

	// Rotations counts log rotations and truncations the follower handled.
	Rotations prometheus.Counter

	// DaemonUp is 1 while the monitored daemon is found in the process
	// table, 0 otherwise.
	DaemonUp prometheus.Gauge

	// PipelineState is the numeric pipeline lifecycle state.
	PipelineState prometheus.Gauge

	registry *prometheus.Registry
}

// NewCollector builds a collector whose per-event counters correspond to
// the given labels. Counts always start at zero; nothing is persisted
// across restarts.
func NewCollector(labels []string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		events:   make(map[string]prometheus.Counter, len(labels)),
		registry: registry,
	}

	for _, label := range labels {
		c.events[label] = promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      fmt.Sprintf("%s_total", label),
			Help:      fmt.Sprintf("Total %q events reported by arpwatch", label),
		})
	}

	c.EventsTotal = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Total classified arpwatch events across all event types",
	})

	c.LastActivity = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_activity_timestamp_seconds",
		Help:      "Unix timestamp of the most recent classified arpwatch event",
	})

	c.UnrecognizedLines = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unrecognized_lines_total",
		Help:      "Arpwatch log lines that matched no known event pattern",
	})

	c.LinesRead = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lines_read_total",
		Help:      "Raw lines read from the arpwatch log",
	})

	c.Rotations = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_rotations_total",
		Help:      "Log rotations and truncations detected by the follower",
	})

	c.DaemonUp = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "daemon_up",
		Help:      "Whether the arpwatch daemon is present in the process table (1=up, 0=down)",
	})

	c.PipelineState = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pipeline_state",
		Help:      "Pipeline lifecycle state (0=starting, 1=waiting_for_file, 2=running, 3=draining, 4=stopped)",
	})

	return c
}

// RecordEvent increments the counter for label, the aggregate events
// counter, and refreshes the activity timestamp. Labels outside the fixed
// set are an error; the metric set never grows at runtime.
func (c *Collector) RecordEvent(label string) error {
	counter, ok := c.events[label]
	if !ok {
		return fmt.Errorf("unknown event label %q", label)
	}
	counter.Inc()
	c.EventsTotal.Inc()
	c.LastActivity.Set(float64(time.Now().Unix()))
	return nil
}

// RecordUnrecognized counts a daemon line that matched no rule.
func (c *Collector) RecordUnrecognized() {
	c.UnrecognizedLines.Inc()
}

// RecordLine counts one raw line read from the log.
func (c *Collector) RecordLine() {
	c.LinesRead.Inc()
}

// RecordRotation counts one handled rotation or truncation.
func (c *Collector) RecordRotation() {
	c.Rotations.Inc()
}

// SetDaemonUp records whether the monitored daemon is running.
func (c *Collector) SetDaemonUp(up bool) {
	if up {
		c.DaemonUp.Set(1)
	} else {
		c.DaemonUp.Set(0)
	}
}

// SetPipelineState mirrors the pipeline state into its gauge.
func (c *Collector) SetPipelineState(s types.PipelineState) {
	c.PipelineState.Set(float64(s))
}

// Registry returns the Prometheus registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
