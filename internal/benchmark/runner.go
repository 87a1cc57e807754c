package benchmark

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/duoapp/duo/internal/items"
)

// Run seeds the store, then runs cfg.Sessions goroutines that each execute
// cfg.Cycles add/list/rename/remove cycles through gw. Records created by the
// run are removed again; seed records are removed at the end as well.
func Run(ctx context.Context, gw items.Gateway, driver string, cfg Config) (*Result, error) {
	if cfg.Sessions <= 0 || cfg.Cycles <= 0 || cfg.Seed < 0 {
		return nil, fmt.Errorf("invalid benchmark config: sessions and cycles must be positive")
	}

	seeded := make([]int64, 0, cfg.Seed)
	defer func() {
		for _, id := range seeded {
			_ = gw.Delete(context.Background(), id)
		}
	}()
	for i := 0; i < cfg.Seed; i++ {
		id, err := gw.Insert(ctx, fmt.Sprintf("bench-seed-%d", i))
		if err != nil {
			return nil, fmt.Errorf("failed to seed: %w", err)
		}
		seeded = append(seeded, id)
	}

	memBefore, _ := memoryNow()

	type sample struct {
		op string
		d  time.Duration
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		samples = make(map[string][]time.Duration, len(Operations))
		errs    int
	)

	start := time.Now()
	for s := 0; s < cfg.Sessions; s++ {
		wg.Add(1)
		go func(session int) {
			defer wg.Done()

			local := make([]sample, 0, cfg.Cycles*len(Operations))
			localErrs := 0
			timed := func(op string, fn func() error) bool {
				t0 := time.Now()
				err := fn()
				local = append(local, sample{op, time.Since(t0)})
				if err != nil {
					localErrs++
					return false
				}
				return true
			}

			for c := 0; c < cfg.Cycles && ctx.Err() == nil; c++ {
				var id int64
				ok := timed("insert", func() error {
					var err error
					id, err = gw.Insert(ctx, fmt.Sprintf("bench-%d-%d", session, c))
					return err
				})
				timed("list", func() error {
					_, err := gw.ListAll(ctx)
					return err
				})
				if !ok {
					continue
				}
				timed("update", func() error {
					return gw.Update(ctx, id, fmt.Sprintf("bench-%d-%d-renamed", session, c))
				})
				timed("delete", func() error {
					return gw.Delete(ctx, id)
				})
			}

			mu.Lock()
			for _, smp := range local {
				samples[smp.op] = append(samples[smp.op], smp.d)
			}
			errs += localErrs
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	total := time.Since(start)

	memAfter, memSys := memoryNow()

	result := &Result{
		Config:        cfg,
		Driver:        driver,
		Latency:       make(map[string]LatencyMetrics, len(Operations)),
		TotalDuration: total,
		ErrorCount:    errs,
		Resources: ResourceMetrics{
			MemoryBeforeBytes: memBefore,
			MemoryAfterBytes:  memAfter,
			MemoryPeakBytes:   memSys,
		},
	}

	calls := 0
	for _, op := range Operations {
		result.Latency[op] = ComputeStats(samples[op])
		calls += len(samples[op])
	}
	result.Throughput = ThroughputMetrics{TotalCalls: calls}
	if total > 0 {
		result.Throughput.CallsPerSecond = float64(calls) / total.Seconds()
	}
	if calls > 0 {
		result.ErrorRate = float64(errs) / float64(calls)
	}
	result.Success = errs == 0 && ctx.Err() == nil

	return result, nil
}
