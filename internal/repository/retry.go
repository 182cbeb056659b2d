package repository

import (
	"context"
	"fmt"
)

// RetryRead runs a read and retries it once when isTransient reports the
// failure as transient. A second transient failure becomes ErrUnavailable.
func RetryRead[T any](ctx context.Context, isTransient func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil || !isTransient(err) {
		return v, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return v, ctxErr
	}
	v, err = fn(ctx)
	if err != nil && isTransient(err) {
		return v, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, err
}

// RetryMutation runs a mutation and retries it once only when safeToRetry
// guarantees the first attempt never reached the point of committing.
// Any other transient failure is reported as ErrUnavailable so the caller
// re-reads state instead of risking a second ticket.
func RetryMutation[T any](ctx context.Context, safeToRetry, isTransient func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil {
		return v, nil
	}
	if safeToRetry(err) && ctx.Err() == nil {
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
	}
	if isTransient(err) {
		return v, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, err
}
