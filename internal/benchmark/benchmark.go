// Package benchmark measures gateway round trips under concurrent sessions.
//
// Each simulated session runs add, list, rename and remove cycles against a
// shared store, the way several duo processes would. Every call opens and
// releases its own connection, so the numbers include connection checkout.
package benchmark

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"time"
)

// Config defines the parameters for a benchmark run.
type Config struct {
	// Sessions is the number of concurrent sessions to simulate
	Sessions int `json:"sessions"`

	// Cycles is how many add/list/rename/remove cycles each session runs
	Cycles int `json:"cycles"`

	// Seed is the number of records inserted before timing starts, so list
	// calls read a realistic table.
	Seed int `json:"seed"`
}

// DefaultConfig returns a benchmark configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Sessions: 8,
		Cycles:   25,
		Seed:     100,
	}
}

// Result captures all metrics from a benchmark run.
type Result struct {
	Config Config `json:"config"`
	Driver string `json:"driver"`

	// Per-operation latency, keyed by "insert", "list", "update", "delete".
	Latency map[string]LatencyMetrics `json:"latency"`

	Throughput ThroughputMetrics `json:"throughput"`
	Resources  ResourceMetrics   `json:"resources"`

	TotalDuration time.Duration `json:"total_duration"`
	ErrorCount    int           `json:"error_count"`
	ErrorRate     float64       `json:"error_rate"`
	Success       bool          `json:"success"`
}

// LatencyMetrics captures call latency statistics.
type LatencyMetrics struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	P50   time.Duration `json:"p50"`
	Mean  time.Duration `json:"mean"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// ThroughputMetrics captures calls-per-second metrics.
type ThroughputMetrics struct {
	CallsPerSecond float64 `json:"calls_per_second"`
	TotalCalls     int     `json:"total_calls"`
}

// ResourceMetrics captures memory usage.
type ResourceMetrics struct {
	MemoryBeforeBytes uint64 `json:"memory_before_bytes"`
	MemoryAfterBytes  uint64 `json:"memory_after_bytes"`
	MemoryPeakBytes   uint64 `json:"memory_peak_bytes"`
}

// ComputeStats calculates statistics from raw durations.
func ComputeStats(durations []time.Duration) LatencyMetrics {
	if len(durations) == 0 {
		return LatencyMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyMetrics{
		Count: len(sorted),
		Min:   sorted[0],
		P50:   sorted[len(sorted)*50/100],
		Mean:  sum / time.Duration(len(sorted)),
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Max:   sorted[len(sorted)-1],
	}
}

func memoryNow() (alloc, sys uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc, m.Sys
}

// FormatBytes formats bytes into a human-readable string.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration into a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// Operations in report order.
var Operations = []string{"insert", "list", "update", "delete"}

// PrintResult writes a formatted benchmark result.
func PrintResult(w io.Writer, result Result) {
	fmt.Fprintf(w, "\n=== Benchmark Results (%s) ===\n\n", result.Driver)

	fmt.Fprintf(w, "Configuration:\n")
	fmt.Fprintf(w, "  Sessions:          %d\n", result.Config.Sessions)
	fmt.Fprintf(w, "  Cycles/session:    %d\n", result.Config.Cycles)
	fmt.Fprintf(w, "  Seed records:      %d\n", result.Config.Seed)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Latency:           %10s %10s %10s %10s\n", "p50", "mean", "p95", "max")
	for _, op := range Operations {
		l := result.Latency[op]
		fmt.Fprintf(w, "  %-16s %10s %10s %10s %10s\n", op,
			FormatDuration(l.P50), FormatDuration(l.Mean), FormatDuration(l.P95), FormatDuration(l.Max))
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Throughput:\n")
	fmt.Fprintf(w, "  Calls/sec:         %.2f\n", result.Throughput.CallsPerSecond)
	fmt.Fprintf(w, "  Total Calls:       %d\n", result.Throughput.TotalCalls)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Resources:\n")
	fmt.Fprintf(w, "  Memory Before:     %s\n", FormatBytes(result.Resources.MemoryBeforeBytes))
	fmt.Fprintf(w, "  Memory After:      %s\n", FormatBytes(result.Resources.MemoryAfterBytes))
	fmt.Fprintf(w, "  Memory Peak:       %s\n", FormatBytes(result.Resources.MemoryPeakBytes))
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Overall:\n")
	fmt.Fprintf(w, "  Total Duration:    %s\n", FormatDuration(result.TotalDuration))
	fmt.Fprintf(w, "  Errors:            %d (%.2f%%)\n", result.ErrorCount, result.ErrorRate*100)
	fmt.Fprintf(w, "  Success:           %v\n", result.Success)
	fmt.Fprintf(w, "\n")
}
