package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

type ComputeFn[T any] func(ctx context.Context) (T, error)

// OnlyOne runs at most one computation per key at a time. Callers that arrive while a
// computation of their key is running share its result instead of starting another one.
type OnlyOne[T any] struct {
	group singleflight.Group
}

func NewOnlyOne[T any]() *OnlyOne[T] {
	return &OnlyOne[T]{}
}

// Compute runs fn for key or joins the running computation of key. The computation is not
// cancelled when a caller gives up: a caller whose ctx ends returns ctx.Err() and the others
// keep waiting for the result.
func (o *OnlyOne[T]) Compute(ctx context.Context, key string, fn ComputeFn[T]) (T, error) {
	ch := o.group.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
