package benchmark

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/duoapp/duo/internal/config"
	"github.com/duoapp/duo/internal/store"
)

func TestComputeStats(t *testing.T) {
	var durations []time.Duration
	for i := 1; i <= 100; i++ {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	stats := ComputeStats(durations)
	if stats.Count != 100 || stats.Min != time.Millisecond || stats.Max != 100*time.Millisecond {
		t.Errorf("stats = %+v", stats)
	}
	if stats.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", stats.P50)
	}
	if stats.P95 != 96*time.Millisecond {
		t.Errorf("P95 = %v, want 96ms", stats.P95)
	}

	if got := ComputeStats(nil); got != (LatencyMetrics{}) {
		t.Errorf("ComputeStats(nil) = %+v, want zero", got)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatBytes(1536); got != "1.5 KB" {
		t.Errorf("FormatBytes(1536) = %q", got)
	}
	if got := FormatDuration(1500 * time.Microsecond); got != "1.50ms" {
		t.Errorf("FormatDuration(1.5ms) = %q", got)
	}
}

func TestRun_SQLite(t *testing.T) {
	g, err := store.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "bench.db"),
	})
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	defer g.Close()

	ctx := context.Background()
	if err := g.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	cfg := Config{Sessions: 4, Cycles: 5, Seed: 10}
	result, err := Run(ctx, g, config.DriverSQLite, cfg)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if !result.Success || result.ErrorCount != 0 {
		t.Fatalf("Run() reported %d errors", result.ErrorCount)
	}
	if want := cfg.Sessions * cfg.Cycles * len(Operations); result.Throughput.TotalCalls != want {
		t.Errorf("TotalCalls = %d, want %d", result.Throughput.TotalCalls, want)
	}
	for _, op := range Operations {
		if result.Latency[op].Count != cfg.Sessions*cfg.Cycles {
			t.Errorf("%s count = %d", op, result.Latency[op].Count)
		}
	}

	n, err := g.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Count() after run = %d, want 0 (run should clean up)", n)
	}

	var buf bytes.Buffer
	PrintResult(&buf, *result)
	if !strings.Contains(buf.String(), "Benchmark Results (sqlite)") {
		t.Errorf("PrintResult() output:\n%s", buf.String())
	}
}

type failingGateway struct{}

func (failingGateway) ListAll(context.Context) ([]store.Record, error) { return nil, errBench }
func (failingGateway) Insert(context.Context, string) (int64, error)  { return 0, errBench }
func (failingGateway) Update(context.Context, int64, string) error    { return errBench }
func (failingGateway) Delete(context.Context, int64) error            { return errBench }

var errBench = errors.New("down")

func TestRun_CountsErrors(t *testing.T) {
	result, err := Run(context.Background(), failingGateway{}, "fake", Config{Sessions: 2, Cycles: 3})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	// Failed inserts skip update and delete.
	if result.ErrorCount != 12 || result.Success {
		t.Errorf("ErrorCount = %d, Success = %v", result.ErrorCount, result.Success)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	if _, err := Run(context.Background(), failingGateway{}, "fake", Config{}); err == nil {
		t.Error("Run() with zero sessions should fail")
	}
}

func TestRun_SeedFailure(t *testing.T) {
	if _, err := Run(context.Background(), failingGateway{}, "fake", Config{Sessions: 1, Cycles: 1, Seed: 1}); err == nil {
		t.Error("Run() should fail when seeding fails")
	}
}
