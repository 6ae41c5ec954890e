package orchestrator

import (
	"context"
	"log/slog"
	"sync"
)

// workerPool runs resumed executions and sweep requeues on a bounded set of
// workers. Background work is submitted here, never spawned ad hoc, so
// completion and failure stay observable.
type workerPool struct {
	tasks  chan func(ctx context.Context)
	wg     sync.WaitGroup
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newWorkerPool(workers, queueDepth int, logger *slog.Logger) *workerPool {
	if workers <= 0 {
		workers = 4
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &workerPool{
		tasks:  make(chan func(ctx context.Context), queueDepth),
		cancel: cancel,
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case task, ok := <-p.tasks:
					if !ok {
						return
					}
					task(ctx)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return p
}

// submit queues a task; returns false when the pool is shut down or the
// queue is full, so the caller can surface backpressure instead of silently
// dropping work. The mutex keeps the send ordered against close.
func (p *workerPool) submit(task func(ctx context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("worker pool shut down, task rejected")
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		p.logger.Warn("worker pool queue full, task rejected")
		return false
	}
}

func (p *workerPool) shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
