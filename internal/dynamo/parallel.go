package dynamo

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// RunFunc executes one independent run of an ensemble.
type RunFunc func(ctx context.Context, idx int) (*Result, error)

// RunEnsemble executes n independent runs with at most workers in flight.
// Results are returned in index order. The first failing run cancels the
// remaining ones.
func RunEnsemble(ctx context.Context, n, workers int, run RunFunc) ([]*Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*Result, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		idx := i
		g.Go(func() error {
			res, err := run(gctx, idx)
			if err != nil {
				return err
			}
			results[idx] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
