// Package dispatcher manages worker fan-out over the fetch task queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/truthscan/feedd/internal/ingest"
	"github.com/truthscan/feedd/internal/worker"
)

// Dispatcher fans out queue tasks to a fixed pool of fetch workers. The pool
// size is the hard concurrency ceiling: at most len(workers) fetches run at
// any instant.
type Dispatcher struct {
	queue   ingest.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue ingest.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task ingest.Task) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
