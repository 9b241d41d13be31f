package broker

import (
	"context"
	"fmt"
	"reflect"
)

type (
	// Handler processes payloads delivered from a queue.
	// Handle runs on the dispatch loop, so long-running work should be handed off.
	Handler interface {
		Handle(ctx context.Context, payload any) Result
	}

	// HandlerFunc adapts a function returning a Result to Handler.
	HandlerFunc func(ctx context.Context, payload any) Result
)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload any) Result {
	return f(ctx, payload)
}

// Func creates a handler from an error-returning function.
// See ResultOf for how the error maps to an outcome.
func Func(fn func(ctx context.Context, payload any) error) Handler {
	return HandlerFunc(func(ctx context.Context, payload any) Result {
		return ResultOf(fn(ctx, payload))
	})
}

// Typed creates a handler that accepts payloads of type T only.
// A payload of another type is rejected without retries.
//
// Example:
//
//	b.Subscribe("rate_limits", broker.Typed(func(ctx context.Context, ev SyncEvent) error {
//		return apply(ev)
//	}))
func Typed[T any](fn func(ctx context.Context, payload T) error) Handler {
	return HandlerFunc(func(ctx context.Context, payload any) Result {
		v, ok := payload.(T)
		if !ok {
			return Reject(fmt.Errorf("%w: want %s, got %T", ErrPayloadType, reflect.TypeFor[T](), payload))
		}
		return ResultOf(fn(ctx, v))
	})
}
