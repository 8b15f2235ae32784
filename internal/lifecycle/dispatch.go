package lifecycle

import (
	"context"
	"fmt"
)

// Callback receives the terminal outcome of a dispatched operation.
type Callback[T any] func(result T, err error)

// Dispatch runs fn on its own goroutine and invokes cb exactly once with the
// outcome. A nil cb is replaced by a no-op, which makes fire-and-forget a
// valid use. The returned channel is closed after cb returns.
//
// Example:
//
//	done := lifecycle.Dispatch(ctx, func(ctx context.Context) (*gateway.Server, error) {
//	    return orch.StartTracked(ctx, "web-1")
//	}, func(srv *gateway.Server, err error) { ... })
//	<-done
func Dispatch[T any](ctx context.Context, fn func(context.Context) (T, error), cb Callback[T]) <-chan struct{} {
	if cb == nil {
		cb = func(T, error) {}
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		result, err := invoke(ctx, fn)
		cb(result, err)
	}()

	return done
}

// invoke calls fn, converting a panic into an error so the callback still
// fires once.
func invoke[T any](ctx context.Context, fn func(context.Context) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result, err = zero, fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return fn(ctx)
}
