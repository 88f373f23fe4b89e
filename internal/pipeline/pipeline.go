// Package pipeline wires the follower, the classifier and the metrics
// collector into a single processing loop and owns its lifecycle.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/williamzujkowski/arpwatch-docker/internal/follower"
	"github.com/williamzujkowski/arpwatch-docker/internal/logging"
	"github.com/williamzujkowski/arpwatch-docker/internal/metrics"
	"github.com/williamzujkowski/arpwatch-docker/internal/pattern"
	"github.com/williamzujkowski/arpwatch-docker/pkg/types"
)

// Config holds coordinator configuration.
type Config struct {
	Follower follower.Config
}

// Coordinator drives the follow → classify → record loop through its
// lifecycle: starting, waiting for the file, running, draining, stopped.
type Coordinator struct {
	cfg        Config
	classifier *pattern.Classifier
	collector  *metrics.Collector
	logger     *logging.Logger
	baseLogger *logging.Logger

	state atomic.Int32

	// unmatchedLog throttles per-line logging of unrecognized daemon
	// lines so a noisy or hostile log cannot flood the logger.
	unmatchedLog *rate.Limiter
}

// New creates a coordinator. The follower is opened inside Run, not here,
// so startup waits for the log file under the run context.
func New(cfg Config, classifier *pattern.Classifier, collector *metrics.Collector, logger *logging.Logger) *Coordinator {
	c := &Coordinator{
		cfg:          cfg,
		classifier:   classifier,
		collector:    collector,
		logger:       logger.WithComponent("pipeline"),
		baseLogger:   logger,
		unmatchedLog: rate.NewLimiter(rate.Limit(1), 5),
	}
	c.setState(types.StateStarting)
	return c
}

// State returns the current lifecycle state. Safe for concurrent use.
func (c *Coordinator) State() types.PipelineState {
	return types.PipelineState(c.state.Load())
}

func (c *Coordinator) setState(s types.PipelineState) {
	c.state.Store(int32(s))
	c.collector.SetPipelineState(s)
	c.logger.Info().Str("state", s.String()).Msg("Pipeline state changed")
}

// Run executes the pipeline until the context is canceled or a fatal
// startup error occurs. Cancellation drains cleanly: the line in flight
// is finished, no new ones are pulled, and nil is returned. A log file
// that never appears is fatal and returns the open error.
func (c *Coordinator) Run(ctx context.Context) error {
	c.setState(types.StateWaitingForFile)

	fcfg := c.cfg.Follower
	fcfg.OnRotate = c.collector.RecordRotation

	f, err := follower.Open(ctx, fcfg, c.baseLogger)
	if err != nil {
		c.setState(types.StateStopped)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	defer f.Close()

	c.setState(types.StateRunning)

	for {
		line, err := f.Next(ctx)
		if err != nil {
			c.setState(types.StateDraining)
			if errors.Is(err, context.Canceled) || errors.Is(err, follower.ErrStopped) {
				c.setState(types.StateStopped)
				return nil
			}
			c.setState(types.StateStopped)
			return err
		}

		c.process(line)

		select {
		case <-ctx.Done():
			c.setState(types.StateDraining)
			c.setState(types.StateStopped)
			return nil
		default:
		}
	}
}

// process classifies one line and records the outcome.
func (c *Coordinator) process(line string) {
	c.collector.RecordLine()

	res := c.classifier.Classify(line)
	switch {
	case res.Matched:
		if err := c.collector.RecordEvent(res.Label); err != nil {
			c.logger.Error().Err(err).Str("label", res.Label).Msg("Failed to record event")
			return
		}
		c.logger.Debug().Str("event", res.Label).Msg("Classified event")
	case res.DaemonLine:
		c.collector.RecordUnrecognized()
		if c.unmatchedLog.Allow() {
			c.logger.Debug().Str("line", line).Msg("Unrecognized arpwatch line")
		}
	}
}
