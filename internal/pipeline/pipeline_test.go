package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/williamzujkowski/arpwatch-docker/internal/follower"
	"github.com/williamzujkowski/arpwatch-docker/internal/logging"
	"github.com/williamzujkowski/arpwatch-docker/internal/metrics"
	"github.com/williamzujkowski/arpwatch-docker/internal/pattern"
	"github.com/williamzujkowski/arpwatch-docker/pkg/types"
)

func testCoordinator(t *testing.T, logFile string) (*Coordinator, *metrics.Collector) {
	t.Helper()

	table := pattern.NewTable(pattern.DefaultRules())
	collector := metrics.NewCollector(table.Labels())
	classifier := pattern.NewClassifier(table, "arpwatch")

	coord := New(Config{
		Follower: follower.Config{
			Path:             logFile,
			WaitTimeout:      2 * time.Second,
			OpenPollInterval: 20 * time.Millisecond,
			PollInterval:     20 * time.Millisecond,
			MaxLineBytes:     64 * 1024,
		},
	}, classifier, collector, logging.Nop())

	return coord, collector
}

func counterValue(t *testing.T, c *metrics.Collector, name string) float64 {
	t.Helper()

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if mf.GetType() == dto.MetricType_GAUGE {
			return m.GetGauge().GetValue()
		}
		return m.GetCounter().GetValue()
	}
	t.Fatalf("Metric %s not found", name)
	return 0
}

func appendFile(t *testing.T, path, content string) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer file.Close()
	if _, err := file.WriteString(content); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func waitForCounter(t *testing.T, c *metrics.Collector, name string, want float64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if counterValue(t, c, name) == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s to reach %f, at %f", name, want, counterValue(t, c, name))
}

func TestPipelineScenario(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "arpwatch.log")
	appendFile(t, logFile, "")

	coord, collector := testCoordinator(t, logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	waitForState(t, coord, types.StateRunning)

	appendFile(t, logFile,
		"arpwatch: new station AA\n"+
			"arpwatch: station activity AA\n"+
			"arpwatch: new station BB\n"+
			"other: unrelated\n")

	waitForCounter(t, collector, "arpwatch_lines_read_total", 4)

	if got := counterValue(t, collector, "arpwatch_new_station_total"); got != 2 {
		t.Errorf("Expected arpwatch_new_station_total=2, got %f", got)
	}
	if got := counterValue(t, collector, "arpwatch_events_total"); got != 2 {
		t.Errorf("Expected arpwatch_events_total=2, got %f", got)
	}
	// "station activity" matches no rule but carries the daemon prefix.
	if got := counterValue(t, collector, "arpwatch_unrecognized_lines_total"); got != 1 {
		t.Errorf("Expected arpwatch_unrecognized_lines_total=1, got %f", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected clean drain, got %v", err)
	}
	if coord.State() != types.StateStopped {
		t.Errorf("Expected stopped state, got %s", coord.State())
	}
}

func waitForState(t *testing.T, coord *Coordinator, want types.PipelineState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if coord.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %s, at %s", want, coord.State())
}

func TestPipelineFirstMatchWins(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "arpwatch.log")
	appendFile(t, logFile, "")

	coord, collector := testCoordinator(t, logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	waitForState(t, coord, types.StateRunning)

	appendFile(t, logFile, "arpwatch: suppressed DECnet flip flop 10.0.0.1 eth0\n")

	waitForCounter(t, collector, "arpwatch_events_total", 1)

	if got := counterValue(t, collector, "arpwatch_suppressed_flip_flop_total"); got != 1 {
		t.Errorf("Expected arpwatch_suppressed_flip_flop_total=1, got %f", got)
	}
	if got := counterValue(t, collector, "arpwatch_flip_flop_total"); got != 0 {
		t.Errorf("Expected arpwatch_flip_flop_total=0 (no double count), got %f", got)
	}

	cancel()
	<-done
}

func TestPipelineFatalWhenFileNeverAppears(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "missing.log")

	coord, _ := testCoordinator(t, logFile)

	// Shrink the wait so the test is quick.
	coord.cfg.Follower.WaitTimeout = 100 * time.Millisecond

	err := coord.Run(context.Background())
	if err == nil {
		t.Fatal("Expected a fatal error for a missing log file")
	}
	if !errors.Is(err, follower.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if coord.State() != types.StateStopped {
		t.Errorf("Expected stopped state, got %s", coord.State())
	}
}

func TestPipelineConcurrentWritersMonotonicReads(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "arpwatch.log")
	appendFile(t, logFile, "")

	coord, collector := testCoordinator(t, logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	waitForState(t, coord, types.StateRunning)

	// Independent writers share one append-only file; a scraper polls
	// concurrently and must never observe a counter going backwards.
	var mu sync.Mutex
	appendLine := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			t.Errorf("Failed to open log: %v", err)
			return
		}
		defer f.Close()
		if _, err := f.WriteString(line); err != nil {
			t.Errorf("Failed to write log: %v", err)
		}
	}

	scrapeDone := make(chan struct{})
	go func() {
		defer close(scrapeDone)
		var last float64
		for i := 0; i < 20; i++ {
			v := counterValue(t, collector, "arpwatch_events_total")
			if v < last {
				t.Errorf("Counter went backwards: %f after %f", v, last)
			}
			last = v
			time.Sleep(20 * time.Millisecond)
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				appendLine(fmt.Sprintf("arpwatch: new station 10.0.%d.%d 0:1:2:3:4:5\n", w, i))
			}
		}(w)
	}
	wg.Wait()

	waitForCounter(t, collector, "arpwatch_new_station_total", 20)
	waitForCounter(t, collector, "arpwatch_events_total", 20)

	<-scrapeDone
	cancel()
	<-done
}

func TestPipelineSurvivesRotation(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "arpwatch.log")
	appendFile(t, logFile, "")

	coord, collector := testCoordinator(t, logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	waitForState(t, coord, types.StateRunning)

	appendFile(t, logFile, "arpwatch: new station 10.0.0.1\n")
	waitForCounter(t, collector, "arpwatch_new_station_total", 1)

	if err := os.Rename(logFile, logFile+".1"); err != nil {
		t.Fatalf("Failed to rotate: %v", err)
	}
	appendFile(t, logFile, "arpwatch: new station 10.0.0.2\n")

	waitForCounter(t, collector, "arpwatch_new_station_total", 2)

	if got := counterValue(t, collector, "arpwatch_log_rotations_total"); got != 1 {
		t.Errorf("Expected arpwatch_log_rotations_total=1, got %f", got)
	}

	cancel()
	<-done
}
