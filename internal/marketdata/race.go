package marketdata

import (
	"context"
	"errors"
)

// FirstSuccess runs every attempt concurrently and returns the first
// successful result. The shared context is cancelled as soon as one attempt
// succeeds, so losers stop early. If every attempt fails the joined errors
// are returned.
func FirstSuccess[T any](ctx context.Context, attempts ...func(context.Context) (T, error)) (T, error) {
	var zero T
	if len(attempts) == 0 {
		return zero, errors.New("marketdata: no attempts")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		val T
		err error
	}
	results := make(chan result, len(attempts))
	for _, fn := range attempts {
		go func(fn func(context.Context) (T, error)) {
			v, err := fn(ctx)
			results <- result{v, err}
		}(fn)
	}

	errs := make([]error, 0, len(attempts))
	for range attempts {
		r := <-results
		if r.err == nil {
			return r.val, nil
		}
		errs = append(errs, r.err)
	}
	return zero, errors.Join(errs...)
}
