// Package dispatch implements waterfall dispatch: staggered, batched
// concurrent delivery that respects external rate limits and protects
// reputation-sensitive channels from throttling.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Options shape one waterfall run. Batch size and delay are outputs of the
// pre-execution risk simulation, not fixed constants.
type Options struct {
	BatchSize       int
	InterBatchDelay time.Duration

	// Limiter, when set, paces individual dispatches inside a batch
	// against the downstream service's rate budget.
	Limiter *rate.Limiter

	// BeforeBatch runs before every batch after the first; returning an
	// error halts the run between batches. The orchestrator uses it to
	// re-check the safety gate so an operator pause stops an in-flight
	// campaign. In-flight calls within a batch are not interrupted.
	BeforeBatch func(ctx context.Context) error
}

// ItemError records one failed dispatch without aborting its siblings.
type ItemError struct {
	Index int
	Err   error
}

// Report summarizes a waterfall run.
type Report struct {
	Items   int
	Batches int
	Errors  []ItemError
}

// Failed reports whether any item failed.
func (r Report) Failed() bool {
	return len(r.Errors) > 0
}

// Run partitions items into consecutive batches of opts.BatchSize, runs each
// batch's dispatches concurrently, and pauses opts.InterBatchDelay between
// batches. Errors are collected per item; a halted run (gate tripped,
// context canceled) returns the report so far plus the halting error.
func Run[T any](ctx context.Context, items []T, opts Options, dispatch func(ctx context.Context, index int, item T) error) (Report, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	report := Report{Items: len(items)}

	var mu sync.Mutex
	for start := 0; start < len(items); start += opts.BatchSize {
		if start > 0 {
			select {
			case <-time.After(opts.InterBatchDelay):
			case <-ctx.Done():
				return report, ctx.Err()
			}
			if opts.BeforeBatch != nil {
				if err := opts.BeforeBatch(ctx); err != nil {
					return report, fmt.Errorf("halted before batch %d: %w", report.Batches, err)
				}
			}
		}

		end := start + opts.BatchSize
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(ctx); err != nil {
					return report, err
				}
			}
			wg.Add(1)
			go func(index int, item T) {
				defer wg.Done()
				if err := dispatch(ctx, index, item); err != nil {
					mu.Lock()
					report.Errors = append(report.Errors, ItemError{Index: index, Err: err})
					mu.Unlock()
				}
			}(i, items[i])
		}
		wg.Wait()
		report.Batches++
	}

	return report, nil
}
