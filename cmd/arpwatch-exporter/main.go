package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/williamzujkowski/arpwatch-docker/internal/config"
	"github.com/williamzujkowski/arpwatch-docker/internal/follower"
	"github.com/williamzujkowski/arpwatch-docker/internal/health"
	"github.com/williamzujkowski/arpwatch-docker/internal/logging"
	"github.com/williamzujkowski/arpwatch-docker/internal/metrics"
	"github.com/williamzujkowski/arpwatch-docker/internal/pattern"
	"github.com/williamzujkowski/arpwatch-docker/internal/pipeline"
	"github.com/williamzujkowski/arpwatch-docker/internal/procwatch"
	"github.com/williamzujkowski/arpwatch-docker/internal/server"
	"github.com/williamzujkowski/arpwatch-docker/internal/shutdown"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file (optional, ARPWATCH_* env vars override)")
	showVersion = flag.Bool("version", false, "Print version and exit")
	version     = "0.3.0"
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.SetGlobal(logger)

	logger.Info().
		Str("version", version).
		Str("log_file", cfg.Log.Path).
		Str("listen", cfg.ListenAddr()).
		Msg("Starting arpwatch exporter")

	table := pattern.NewTable(pattern.DefaultRules())
	classifier := pattern.NewClassifier(table, cfg.Daemon.Name)
	collector := metrics.NewCollector(table.Labels())

	coord := pipeline.New(pipeline.Config{
		Follower: follower.Config{
			Path:             cfg.Log.Path,
			WaitTimeout:      cfg.Log.WaitTimeout,
			OpenPollInterval: cfg.Log.OpenPollInterval,
			PollInterval:     cfg.Log.PollInterval,
			MaxLineBytes:     cfg.Log.MaxLineBytes,
		},
	}, classifier, collector, logger)

	checker := health.NewChecker()
	checker.Register("pipeline", health.PipelineRunning(coord.State))

	srv := server.New(server.Config{
		Address:     cfg.ListenAddr(),
		MetricsPath: cfg.Metrics.Path,
		Registry:    collector.Registry(),
		Checker:     checker,
		Logger:      logger,
	})
	if err := srv.Start(); err != nil {
		return err
	}

	mgr := shutdown.New(30*time.Second, logger)
	mgr.Register("metrics-server", srv.Stop)

	ctx := mgr.Context(context.Background())

	watcher := procwatch.New(
		cfg.Daemon.Name,
		cfg.Daemon.CheckInterval,
		procwatch.SystemLister{},
		collector,
		logger,
	)
	go watcher.Run(ctx)

	// The pipeline runs in the foreground; everything else follows its
	// lifetime. Counters start at zero on every launch, nothing is
	// persisted across restarts.
	runErr := coord.Run(ctx)

	mgr.Shutdown()

	if runErr != nil {
		return runErr
	}

	logger.Info().Msg("Exporter stopped")
	return nil
}
