package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool runs independent jobs on a bounded number of goroutines. A Pool is
// created for one batch of work and is done once Run returns.
type Pool struct {
	workers int
}

// NewPool creates a pool; workers <= 0 sizes it to the number of CPU cores.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int {
	return p.workers
}

// Run calls fn(ctx, i) for i in [0, n) with at most Workers calls in flight.
// The first error cancels the context passed to the remaining jobs, and jobs
// not yet started are skipped. Run waits for every started job.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
