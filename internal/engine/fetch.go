package engine

import (
	"context"
	"time"
)

type fetchResult[T any] struct {
	val T
	err error
}

// withTimeout runs fn under a deadline. When the deadline passes first the call is abandoned
// and whatever it returns later is dropped.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ch := make(chan fetchResult[T], 1)
	go func() {
		v, err := fn(cctx)
		ch <- fetchResult[T]{val: v, err: err}
	}()
	select {
	case r := <-ch:
		return r.val, r.err
	case <-cctx.Done():
		return zero, cctx.Err()
	}
}
