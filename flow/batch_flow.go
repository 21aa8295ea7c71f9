package flow

import (
	"context"

	"github.com/goliatone/go-nodeflow"
)

// SerialBatchFlow runs a wrapped unit, usually a Flow, once per parameter set
// produced by its lifecycle. Each iteration sees the wrapped unit's own
// parameters overlaid by the visit parameters and then by the batch set.
type SerialBatchFlow[S any] struct {
	base[S]
	inner Runnable[S]
	life  nodeflow.BatchFlowLifecycle[S]
}

func NewSerialBatchFlow[S any](inner Runnable[S], life nodeflow.BatchFlowLifecycle[S], opts ...Option) *SerialBatchFlow[S] {
	s := applyOptions(opts)
	if life == nil {
		life = nodeflow.BatchFlowFuncs[S]{}
	}
	return &SerialBatchFlow[S]{
		base:  newBase[S](s, "serial_batch_flow"),
		inner: inner,
		life:  life,
	}
}

// Inner returns the wrapped unit.
func (f *SerialBatchFlow[S]) Inner() Runnable[S] {
	return f.inner
}

func (f *SerialBatchFlow[S]) Run(ctx context.Context, shared S) (nodeflow.Action, error) {
	f.warnDetached()
	return f.RunWith(ctx, shared, f.Params())
}

func (f *SerialBatchFlow[S]) RunWith(ctx context.Context, shared S, params nodeflow.Params) (nodeflow.Action, error) {
	if f.inner == nil {
		return "", startMissing(f.name)
	}

	batches, err := f.life.Prep(ctx, shared, params)
	if err != nil {
		return "", err
	}

	visit := f.inner.Params().Merge(params)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return "", nodeflow.NewError(nodeflow.ErrContextCancelled, "", err, map[string]any{
				"unit":              f.name,
				"total_batches":     len(batches),
				"completed_batches": i,
			})
		}
		if _, err := f.inner.RunWith(ctx, shared, visit.Merge(batch)); err != nil {
			return "", err
		}
	}

	return f.life.Post(ctx, shared, batches)
}

// ParallelBatchFlow is SerialBatchFlow with every iteration started at once.
// Iterations share the same shared value, so it must be safe for concurrent
// use.
type ParallelBatchFlow[S any] struct {
	base[S]
	inner    Runnable[S]
	life     nodeflow.BatchFlowLifecycle[S]
	strategy ErrorStrategy
}

func NewParallelBatchFlow[S any](inner Runnable[S], life nodeflow.BatchFlowLifecycle[S], opts ...Option) *ParallelBatchFlow[S] {
	s := applyOptions(opts)
	if life == nil {
		life = nodeflow.BatchFlowFuncs[S]{}
	}
	return &ParallelBatchFlow[S]{
		base:     newBase[S](s, "parallel_batch_flow"),
		inner:    inner,
		life:     life,
		strategy: s.errorStrategy,
	}
}

// Inner returns the wrapped unit.
func (f *ParallelBatchFlow[S]) Inner() Runnable[S] {
	return f.inner
}

func (f *ParallelBatchFlow[S]) Run(ctx context.Context, shared S) (nodeflow.Action, error) {
	f.warnDetached()
	return f.RunWith(ctx, shared, f.Params())
}

func (f *ParallelBatchFlow[S]) RunWith(ctx context.Context, shared S, params nodeflow.Params) (nodeflow.Action, error) {
	if f.inner == nil {
		return "", startMissing(f.name)
	}

	batches, err := f.life.Prep(ctx, shared, params)
	if err != nil {
		return "", err
	}

	visit := f.inner.Params().Merge(params)
	_, err = gather(ctx, f.name, len(batches), f.strategy, func(ctx context.Context, i int) (nodeflow.Action, error) {
		return f.inner.RunWith(ctx, shared, visit.Merge(batches[i]))
	})
	if err != nil {
		return "", err
	}

	return f.life.Post(ctx, shared, batches)
}

func startMissing(name string) error {
	return nodeflow.NewError(nodeflow.ErrStartMissing, name+" wraps no unit", nil, map[string]any{
		"flow": name,
	})
}
