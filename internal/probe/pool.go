package probe

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach calls fn(ctx, i) for i in [0, n) with at most limit calls in flight
// and returns once every started call has finished.
//
// fn reports per-item failures through its own result slot; ForEach itself
// never aborts the batch. When ctx is cancelled, items that have not started
// are skipped and ForEach returns ctx.Err().
func ForEach(ctx context.Context, limit, n int, fn func(ctx context.Context, i int)) error {
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			fn(gctx, i)
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}
