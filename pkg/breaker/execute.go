package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// ErrTimeout is returned to the fallback when a call exceeds the breaker timeout.
var ErrTimeout = fmt.Errorf("%w: call timed out", domain.ErrDownstreamUnavailable)

// Execute runs call through cb. The caller always gets a value: when the
// breaker is open, or the call fails or times out, fallback receives the cause
// and its result is returned instead.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, call func(context.Context) (T, error), fallback func(error) T) T {
	ticket, ok := cb.Allow()
	if !ok {
		return fallback(domain.ErrCircuitOpen)
	}

	v, err := invoke(ctx, cb.timeout, call)
	cb.Done(ticket, err)
	if err != nil {
		return fallback(err)
	}
	return v
}

type result[T any] struct {
	v   T
	err error
}

// invoke bounds call by timeout. A call that completes after the deadline has
// its result dropped on the floor.
func invoke[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result[T]{v: zero, err: fmt.Errorf("%w: panic: %v", domain.ErrDownstreamUnavailable, r)}
			}
		}()
		v, err := call(ctx)
		done <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}
