package nodeflow

import (
	"context"
	"reflect"
	"regexp"
	"strings"
)

// Lifecycle is the three phase contract of a single unit.
// Prep reads the shared value and the visit parameters, Exec does the work
// (it never sees the shared value and is the only retried phase), Post writes
// results back and picks the outcome label.
type Lifecycle[S any, P any, R any] interface {
	Prep(ctx context.Context, shared S, params Params) (P, error)
	Exec(ctx context.Context, prep P) (R, error)
	Post(ctx context.Context, shared S, prep P, result R) (Action, error)
}

// Fallback is optionally implemented by lifecycles that can substitute a
// result once every Exec attempt has failed.
type Fallback[P any, R any] interface {
	ExecFallback(ctx context.Context, prep P, err error) (R, error)
}

// BatchLifecycle is the contract of batch units: Prep produces the items,
// Exec runs once per item and Post receives every result in item order.
type BatchLifecycle[S any, I any, R any] interface {
	Prep(ctx context.Context, shared S, params Params) ([]I, error)
	Exec(ctx context.Context, item I) (R, error)
	Post(ctx context.Context, shared S, items []I, results []R) (Action, error)
}

// FlowLifecycle brackets a flow traversal. Post receives the last action
// produced inside the flow.
type FlowLifecycle[S any] interface {
	Prep(ctx context.Context, shared S, params Params) (any, error)
	Post(ctx context.Context, shared S, prep any, last Action) (Action, error)
}

// BatchFlowLifecycle produces one parameter set per iteration of a batch flow.
type BatchFlowLifecycle[S any] interface {
	Prep(ctx context.Context, shared S, params Params) ([]Params, error)
	Post(ctx context.Context, shared S, batches []Params) (Action, error)
}

// LifecycleBase provides no-op phases so implementations only override what
// they need. Its ExecFallback returns the error unchanged.
type LifecycleBase[S any, P any, R any] struct{}

func (LifecycleBase[S, P, R]) Prep(context.Context, S, Params) (P, error) {
	var zero P
	return zero, nil
}

func (LifecycleBase[S, P, R]) Exec(context.Context, P) (R, error) {
	var zero R
	return zero, nil
}

func (LifecycleBase[S, P, R]) Post(context.Context, S, P, R) (Action, error) {
	return "", nil
}

func (LifecycleBase[S, P, R]) ExecFallback(_ context.Context, _ P, err error) (R, error) {
	var zero R
	return zero, err
}

// NodeFuncs is an adapter that lets you use functions as a Lifecycle.
// Nil phases behave like LifecycleBase.
type NodeFuncs[S any, P any, R any] struct {
	PrepFn     func(ctx context.Context, shared S, params Params) (P, error)
	ExecFn     func(ctx context.Context, prep P) (R, error)
	PostFn     func(ctx context.Context, shared S, prep P, result R) (Action, error)
	FallbackFn func(ctx context.Context, prep P, err error) (R, error)
}

func (f NodeFuncs[S, P, R]) Prep(ctx context.Context, shared S, params Params) (P, error) {
	if f.PrepFn == nil {
		var zero P
		return zero, nil
	}
	return f.PrepFn(ctx, shared, params)
}

func (f NodeFuncs[S, P, R]) Exec(ctx context.Context, prep P) (R, error) {
	if f.ExecFn == nil {
		var zero R
		return zero, nil
	}
	return f.ExecFn(ctx, prep)
}

func (f NodeFuncs[S, P, R]) Post(ctx context.Context, shared S, prep P, result R) (Action, error) {
	if f.PostFn == nil {
		return "", nil
	}
	return f.PostFn(ctx, shared, prep, result)
}

func (f NodeFuncs[S, P, R]) ExecFallback(ctx context.Context, prep P, err error) (R, error) {
	if f.FallbackFn == nil {
		var zero R
		return zero, err
	}
	return f.FallbackFn(ctx, prep, err)
}

// BatchFuncs is the function adapter for BatchLifecycle.
type BatchFuncs[S any, I any, R any] struct {
	PrepFn     func(ctx context.Context, shared S, params Params) ([]I, error)
	ExecFn     func(ctx context.Context, item I) (R, error)
	PostFn     func(ctx context.Context, shared S, items []I, results []R) (Action, error)
	FallbackFn func(ctx context.Context, item I, err error) (R, error)
}

func (f BatchFuncs[S, I, R]) Prep(ctx context.Context, shared S, params Params) ([]I, error) {
	if f.PrepFn == nil {
		return nil, nil
	}
	return f.PrepFn(ctx, shared, params)
}

func (f BatchFuncs[S, I, R]) Exec(ctx context.Context, item I) (R, error) {
	if f.ExecFn == nil {
		var zero R
		return zero, nil
	}
	return f.ExecFn(ctx, item)
}

func (f BatchFuncs[S, I, R]) Post(ctx context.Context, shared S, items []I, results []R) (Action, error) {
	if f.PostFn == nil {
		return "", nil
	}
	return f.PostFn(ctx, shared, items, results)
}

func (f BatchFuncs[S, I, R]) ExecFallback(ctx context.Context, item I, err error) (R, error) {
	if f.FallbackFn == nil {
		var zero R
		return zero, err
	}
	return f.FallbackFn(ctx, item, err)
}

// FlowFuncs is the function adapter for FlowLifecycle. A nil PostFn returns
// the last inner action.
type FlowFuncs[S any] struct {
	PrepFn func(ctx context.Context, shared S, params Params) (any, error)
	PostFn func(ctx context.Context, shared S, prep any, last Action) (Action, error)
}

func (f FlowFuncs[S]) Prep(ctx context.Context, shared S, params Params) (any, error) {
	if f.PrepFn == nil {
		return nil, nil
	}
	return f.PrepFn(ctx, shared, params)
}

func (f FlowFuncs[S]) Post(ctx context.Context, shared S, prep any, last Action) (Action, error) {
	if f.PostFn == nil {
		return last, nil
	}
	return f.PostFn(ctx, shared, prep, last)
}

// BatchFlowFuncs is the function adapter for BatchFlowLifecycle.
type BatchFlowFuncs[S any] struct {
	PrepFn func(ctx context.Context, shared S, params Params) ([]Params, error)
	PostFn func(ctx context.Context, shared S, batches []Params) (Action, error)
}

func (f BatchFlowFuncs[S]) Prep(ctx context.Context, shared S, params Params) ([]Params, error) {
	if f.PrepFn == nil {
		return nil, nil
	}
	return f.PrepFn(ctx, shared, params)
}

func (f BatchFlowFuncs[S]) Post(ctx context.Context, shared S, batches []Params) (Action, error) {
	if f.PostFn == nil {
		return "", nil
	}
	return f.PostFn(ctx, shared, batches)
}

// StaticBatches returns a BatchFlowLifecycle that always yields the given
// parameter sets.
func StaticBatches[S any](batches ...Params) BatchFlowFuncs[S] {
	return BatchFlowFuncs[S]{
		PrepFn: func(context.Context, S, Params) ([]Params, error) {
			out := make([]Params, len(batches))
			for i, b := range batches {
				out[i] = b.Clone()
			}
			return out, nil
		},
	}
}

// TypeName returns a snake cased, package qualified name for v, used as the
// default unit name.
func TypeName(v any) string {
	if v == nil {
		return "unknown_type"
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return "unknown_type"
	}

	if named, ok := v.(interface{ Name() string }); ok {
		if name := strings.TrimSpace(named.Name()); name != "" {
			return name
		}
	}

	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	typeName := t.Name()
	if idx := strings.Index(typeName, "["); idx >= 0 {
		// generic instantiation, drop the type arguments
		typeName = typeName[:idx]
	}
	if typeName == "" {
		typeName = t.Kind().String()
	}

	pkgPath := t.PkgPath()
	if pkgPath != "" {
		parts := strings.Split(pkgPath, "/")
		pkgPath = parts[len(parts)-1]
	}

	name := toSnakeCase(typeName)
	if pkgPath == "" {
		return name
	}
	return pkgPath + "::" + name
}

var snakeBoundary = regexp.MustCompile("([a-z0-9])([A-Z])")

func toSnakeCase(s string) string {
	return strings.ToLower(snakeBoundary.ReplaceAllString(s, "${1}_${2}"))
}
