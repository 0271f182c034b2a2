// Package pool provides the shared, lazily-initialized worker pool used
// by the Chunked CTR Engine (§5, §9). The Whole-file Engine does not run
// on this pool; the Driver gives each multi-file whole-file batch a
// separate Pool of its own.
package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool bounds concurrent task execution to a fixed worker count. It wraps
// errgroup.Group with a concurrency limit rather than spawning one
// goroutine per task, so task submission is safe even for very large N
// (§4.E: "N tasks").
type Pool struct {
	workers int
}

// New returns a Pool sized to workers goroutines of concurrency.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Workers reports the pool's configured concurrency.
func (p *Pool) Workers() int {
	return p.workers
}

// Run submits each task to the pool and waits for all to complete,
// returning the first error encountered (§9: "the aggregator fuses errors
// deterministically (first wins)"). Submitted tasks may run concurrently
// up to the pool's worker count; ctx cancellation propagates to
// not-yet-started tasks.
func (p *Pool) Run(ctx context.Context, tasks []func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			return task(gctx)
		})
	}

	return g.Wait()
}

// Manager lazily constructs the single process-wide Pool under
// double-checked initialization (§5, §9): only the first caller pays
// construction cost. The manager does not run the autotuner itself.
type Manager struct {
	once sync.Once
	pool *Pool
}

// GetOrInit returns the shared Pool, constructing it with workers
// concurrency on first call. Subsequent calls ignore workers and return
// the already-initialized Pool — the pool is sized once, at process
// start, from the autotuner's result or explicit configuration.
func (m *Manager) GetOrInit(workers int) *Pool {
	m.once.Do(func() {
		m.pool = New(workers)
	})
	return m.pool
}
