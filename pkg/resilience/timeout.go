// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"time"
)

// ErrTimeout marks an operation that exceeded its deadline.
var ErrTimeout = stderrors.New("operation exceeded timeout")

// WithTimeout runs fn under a derived deadline of d. A zero d runs fn with ctx
// unchanged. When the deadline expires the result wraps ErrTimeout and
// context.DeadlineExceeded; cancellation of the parent is returned untouched.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(tctx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil && stderrors.Is(tctx.Err(), context.DeadlineExceeded) {
			return zero, timeoutError{d: d, err: res.err}
		}
		return res.value, res.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, timeoutError{d: d, err: tctx.Err()}
	}
}

type timeoutError struct {
	d   time.Duration
	err error
}

func (e timeoutError) Error() string {
	return ErrTimeout.Error() + " (" + e.d.String() + "): " + e.err.Error()
}

func (e timeoutError) Unwrap() []error { return []error{ErrTimeout, e.err} }
