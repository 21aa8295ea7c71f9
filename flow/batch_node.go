package flow

import (
	"context"

	"github.com/goliatone/go-nodeflow"
	"github.com/goliatone/go-nodeflow/runner"
)

// SerialBatchNode runs Exec once per item produced by Prep, one item at a
// time and in order. Each item gets its own retry budget and fallback.
type SerialBatchNode[S, I, R any] struct {
	base[S]
	life    nodeflow.BatchLifecycle[S, I, R]
	handler *runner.Handler
}

func NewSerialBatchNode[S, I, R any](life nodeflow.BatchLifecycle[S, I, R], opts ...Option) *SerialBatchNode[S, I, R] {
	s := applyOptions(opts)
	return &SerialBatchNode[S, I, R]{
		base:    newBase[S](s, nodeflow.TypeName(life)),
		life:    life,
		handler: s.handler(),
	}
}

func (n *SerialBatchNode[S, I, R]) Run(ctx context.Context, shared S) (nodeflow.Action, error) {
	n.warnDetached()
	return n.RunWith(ctx, shared, n.Params())
}

func (n *SerialBatchNode[S, I, R]) RunWith(ctx context.Context, shared S, params nodeflow.Params) (nodeflow.Action, error) {
	if n.life == nil {
		return "", missingLifecycle(n.name)
	}

	items, err := n.life.Prep(ctx, shared, params)
	if err != nil {
		return "", err
	}

	fallback := fallbackOf[I, R](n.life)
	results := make([]R, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return "", nodeflow.NewError(nodeflow.ErrContextCancelled, "", err, map[string]any{
				"unit":            n.name,
				"total_items":     len(items),
				"completed_items": i,
			})
		}
		result, err := execute(ctx, n.handler, n.life.Exec, fallback, item)
		if err != nil {
			return "", err
		}
		results[i] = result
	}

	return n.life.Post(ctx, shared, items, results)
}

// ParallelBatchNode runs Exec for every item concurrently. Results reach
// Post in item order regardless of completion order.
type ParallelBatchNode[S, I, R any] struct {
	base[S]
	life     nodeflow.BatchLifecycle[S, I, R]
	handler  *runner.Handler
	strategy ErrorStrategy
}

func NewParallelBatchNode[S, I, R any](life nodeflow.BatchLifecycle[S, I, R], opts ...Option) *ParallelBatchNode[S, I, R] {
	s := applyOptions(opts)
	return &ParallelBatchNode[S, I, R]{
		base:     newBase[S](s, nodeflow.TypeName(life)),
		life:     life,
		handler:  s.handler(),
		strategy: s.errorStrategy,
	}
}

func (n *ParallelBatchNode[S, I, R]) Run(ctx context.Context, shared S) (nodeflow.Action, error) {
	n.warnDetached()
	return n.RunWith(ctx, shared, n.Params())
}

func (n *ParallelBatchNode[S, I, R]) RunWith(ctx context.Context, shared S, params nodeflow.Params) (nodeflow.Action, error) {
	if n.life == nil {
		return "", missingLifecycle(n.name)
	}

	items, err := n.life.Prep(ctx, shared, params)
	if err != nil {
		return "", err
	}

	fallback := fallbackOf[I, R](n.life)
	results, err := gather(ctx, n.name, len(items), n.strategy, func(ctx context.Context, i int) (R, error) {
		return execute(ctx, n.handler, n.life.Exec, fallback, items[i])
	})
	if err != nil {
		return "", err
	}

	return n.life.Post(ctx, shared, items, results)
}
