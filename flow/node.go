package flow

import (
	"context"

	"github.com/goliatone/go-nodeflow"
	"github.com/goliatone/go-nodeflow/runner"
)

// Node runs a single Lifecycle per visit: Prep, then Exec under the retry
// policy, then Post. When every Exec attempt fails and the lifecycle
// implements nodeflow.Fallback, its result replaces the failure.
type Node[S, P, R any] struct {
	base[S]
	life    nodeflow.Lifecycle[S, P, R]
	handler *runner.Handler
}

// NewNode wraps life. The default name is derived from the lifecycle type.
func NewNode[S, P, R any](life nodeflow.Lifecycle[S, P, R], opts ...Option) *Node[S, P, R] {
	s := applyOptions(opts)
	return &Node[S, P, R]{
		base:    newBase[S](s, nodeflow.TypeName(life)),
		life:    life,
		handler: s.handler(),
	}
}

// Run invokes the node once with its own parameters.
func (n *Node[S, P, R]) Run(ctx context.Context, shared S) (nodeflow.Action, error) {
	n.warnDetached()
	return n.RunWith(ctx, shared, n.Params())
}

func (n *Node[S, P, R]) RunWith(ctx context.Context, shared S, params nodeflow.Params) (nodeflow.Action, error) {
	if n.life == nil {
		return "", missingLifecycle(n.name)
	}

	prep, err := n.life.Prep(ctx, shared, params)
	if err != nil {
		return "", err
	}

	result, err := execute(ctx, n.handler, n.life.Exec, fallbackOf[P, R](n.life), prep)
	if err != nil {
		return "", err
	}

	return n.life.Post(ctx, shared, prep, result)
}

// execute runs exec under h, exposing the attempt index through the context,
// and hands a final failure to fallback when there is one. A failure left by
// a cancelled ctx skips the fallback.
func execute[P, R any](ctx context.Context, h *runner.Handler, exec func(context.Context, P) (R, error), fallback nodeflow.Fallback[P, R], in P) (R, error) {
	result, _, err := runner.Do(ctx, h, func(ctx context.Context, attempt int) (R, error) {
		return exec(withAttempt(ctx, attempt), in)
	})
	if err == nil {
		return result, nil
	}
	if fallback == nil || ctx.Err() != nil {
		var zero R
		return zero, err
	}
	return fallback.ExecFallback(ctx, in, err)
}

func fallbackOf[P, R any](v any) nodeflow.Fallback[P, R] {
	fb, _ := v.(nodeflow.Fallback[P, R])
	return fb
}

func missingLifecycle(name string) error {
	return nodeflow.NewError(nodeflow.ErrGraphInvalid, name+" has no lifecycle", nil, map[string]any{
		"unit": name,
	})
}
