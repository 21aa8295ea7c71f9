package flow

import (
	"context"

	"github.com/goliatone/go-nodeflow"
	"golang.org/x/sync/errgroup"
)

// gather runs fn for every index in [0, n) concurrently and returns the
// results in index order.
//
// With a fail fast strategy the first failure is returned immediately and
// the remaining goroutines are left to finish on their own; their results
// are discarded. Any other strategy waits for every item and hands the
// collected failures, in index order, to strategy.HandleErrors.
func gather[R any](ctx context.Context, name string, n int, strategy ErrorStrategy, fn func(ctx context.Context, index int) (R, error)) ([]R, error) {
	results := make([]R, n)
	if n == 0 {
		return results, nil
	}

	errs := make([]error, n)
	first := make(chan error, 1)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			value, err := protect(ctx, name, i, fn)
			if err != nil {
				errs[i] = err
				select {
				case first <- err:
				default:
				}
				return err
			}
			results[i] = value
			return nil
		})
	}

	if isFailFast(strategy) {
		done := make(chan error, 1)
		go func() { done <- g.Wait() }()

		select {
		case err := <-first:
			return nil, err
		case err := <-done:
			if err != nil {
				return nil, err
			}
			return results, nil
		}
	}

	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return nil, strategy.HandleErrors(failed)
	}
	return results, nil
}

func protect[R any](ctx context.Context, name string, index int, fn func(ctx context.Context, index int) (R, error)) (value R, err error) {
	defer nodeflow.CapturePanic(name, &err)
	return fn(ctx, index)
}
