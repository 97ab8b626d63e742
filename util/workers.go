package util

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach calls f for every index in [0, n) on at most workers goroutines and waits for
// all of them. workers <= 1 runs sequentially on the calling goroutine.
//
// f writes its results by index, so output order never depends on scheduling.
// The first error cancels the context passed to the remaining calls.
func ForEach(ctx context.Context, workers int, n int, f func(ctx context.Context, i int) error) error {
	if workers <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := f(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return f(gctx, i)
		})
	}
	return g.Wait()
}
