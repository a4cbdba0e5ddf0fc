package stages

import (
	"context"

	"golang.org/x/sync/errgroup"

	"storyloom/internal/storyboard"
)

// forEachScene runs fn for every scene with at most workers calls in flight
// and returns the results in scene order. The first error cancels the rest;
// whatever fn returned before and alongside it is still in the slice.
func forEachScene[T any](ctx context.Context, scenes []storyboard.Scene, workers int, fn func(context.Context, storyboard.Scene) (T, error)) ([]T, error) {
	results := make([]T, len(scenes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for i, scene := range scenes {
		g.Go(func() error {
			out, err := fn(gctx, scene)
			results[i] = out
			return err
		})
	}
	err := g.Wait()
	return results, err
}
