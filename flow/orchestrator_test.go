package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-nodeflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowCountdownScenario(t *testing.T) {
	s := nodeflow.NewStore(map[string]any{"current": 10})

	action, err := countdown().Run(context.Background(), s)
	require.NoError(t, err)

	current, _ := nodeflow.StoreValue[int](s, "current")
	assert.Equal(t, -2, current)
	assert.Equal(t, nodeflow.Action("negative"), action)
}

func TestFlowSequentialChain(t *testing.T) {
	a := traceNode("a", "")
	b := traceNode("b", nodeflow.DefaultAction)
	c := traceNode("c", "")
	a.Next(b).Next(c)

	s := nodeflow.NewStore(nil)
	_, err := NewFlow[store](a).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, traceOf(s))
}

func TestFlowBranching(t *testing.T) {
	tests := []struct {
		value int
		want  []any
	}{
		{value: 5, want: []any{"check", "pos", "pos_tail"}},
		{value: -5, want: []any{"check", "neg"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.value), func(t *testing.T) {
			check := NewNode[store, any, any](nodeflow.NodeFuncs[store, any, any]{
				PostFn: func(_ context.Context, s store, _ any, _ any) (nodeflow.Action, error) {
					s.Append("trace", "check")
					if v, _ := nodeflow.StoreValue[int](s, "value"); v >= 0 {
						return "positive", nil
					}
					return "negative", nil
				},
			}, WithName("check"))
			check.On("positive", traceNode("pos", "")).Next(traceNode("pos_tail", ""))
			check.On("negative", traceNode("neg", ""))

			s := nodeflow.NewStore(map[string]any{"value": tt.value})
			_, err := NewFlow[store](check).Run(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, traceOf(s))
		})
	}
}

func TestFlowCycleTerminatesAtThreshold(t *testing.T) {
	dec := intNode("dec", "counter", func(v int) int { return v - 1 }, func(v int) nodeflow.Action {
		if v > 3 {
			return "again"
		}
		return "stop"
	})
	dec.On("again", dec)

	s := nodeflow.NewStore(map[string]any{"counter": 10})
	action, err := NewFlow[store](dec).Run(context.Background(), s)
	require.NoError(t, err)

	counter, _ := nodeflow.StoreValue[int](s, "counter")
	assert.Equal(t, 3, counter)
	assert.Equal(t, nodeflow.Action("stop"), action)
}

func TestFlowUnmatchedActionEndsWithWarning(t *testing.T) {
	logger := &captureLogger{}
	a := traceNode("a", "unknown")
	a.On("known", traceNode("b", ""))

	s := nodeflow.NewStore(nil)
	action, err := NewFlow[store](a, WithLogger(logger)).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, nodeflow.Action("unknown"), action)
	assert.Equal(t, []any{"a"}, traceOf(s))
	warnings := logger.withLevel("WARN")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"unknown"`)
	assert.Contains(t, warnings[0], "known")
}

func TestFlowTerminalUnitWithoutSuccessorsDoesNotWarn(t *testing.T) {
	logger := &captureLogger{}
	_, err := NewFlow[store](traceNode("only", "whatever"), WithLogger(logger)).Run(context.Background(), nodeflow.NewStore(nil))
	require.NoError(t, err)
	assert.Empty(t, logger.withLevel("WARN"))
}

func TestFlowLogsRunFields(t *testing.T) {
	logger := &captureLogger{}
	_, err := NewFlow[store](traceNode("a", ""), WithName("traced"), WithLogger(logger)).Run(context.Background(), nodeflow.NewStore(nil))
	require.NoError(t, err)

	assert.Equal(t, "traced", logger.fields["flow"])
	assert.NotEmpty(t, logger.fields["run_id"])
	assert.NotEmpty(t, logger.withLevel("DEBUG"))
}

func TestNestedFlowAsNode(t *testing.T) {
	unit1 := intNode("unit1", "v", func(v int) int { return v + 1 }, nil)
	unit2 := intNode("unit2", "v", func(v int) int { return v * 10 }, nil)
	unit1.Next(unit2)
	f1 := NewFlow[store](unit1, WithName("f1"))

	direct := nodeflow.NewStore(map[string]any{"v": 1})
	_, err := f1.Run(context.Background(), direct)
	require.NoError(t, err)

	f2 := NewFlow[store](f1, WithName("f2"))
	f3 := NewFlow[store](f2, WithName("f3"))

	nested := nodeflow.NewStore(map[string]any{"v": 1})
	_, err = f3.Run(context.Background(), nested)
	require.NoError(t, err)

	assert.Equal(t, direct.Snapshot(), nested.Snapshot())
	v, _ := nodeflow.StoreValue[int](nested, "v")
	assert.Equal(t, 20, v)
}

func TestNestedFlowRoutesOnLastInnerAction(t *testing.T) {
	inner := NewFlow[store](traceNode("inner", "escalate"), WithName("inner_flow"))
	inner.On("escalate", traceNode("escalated", ""))
	inner.Next(traceNode("normal", ""))

	s := nodeflow.NewStore(nil)
	_, err := NewFlow[store](inner).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []any{"inner", "escalated"}, traceOf(s))
}

func TestFlowLifecycleWrapsTraversal(t *testing.T) {
	var order []string
	f := NewFlow[store](traceNode("a", "inner_done")).WithLifecycle(nodeflow.FlowFuncs[store]{
		PrepFn: func(_ context.Context, _ store, params nodeflow.Params) (any, error) {
			order = append(order, "prep:"+params.String("tag"))
			return "token", nil
		},
		PostFn: func(_ context.Context, s store, prep any, last nodeflow.Action) (nodeflow.Action, error) {
			order = append(order, fmt.Sprintf("post:%v:%s:%d", prep, last, len(traceOf(s))))
			return "overridden", nil
		},
	})
	f.SetParams(nodeflow.Params{"tag": "x"})

	action, err := f.Run(context.Background(), nodeflow.NewStore(nil))
	require.NoError(t, err)
	assert.Equal(t, nodeflow.Action("overridden"), action)
	assert.Equal(t, []string{"prep:x", "post:token:inner_done:1"}, order)
}

func TestFlowParamsOverrideNodeParams(t *testing.T) {
	var seen []nodeflow.Params
	node := NewNode[store, nodeflow.Params, any](nodeflow.NodeFuncs[store, nodeflow.Params, any]{
		PrepFn: func(_ context.Context, _ store, params nodeflow.Params) (nodeflow.Params, error) {
			seen = append(seen, params)
			return params, nil
		},
	}, WithParams(nodeflow.Params{"own": 1, "shared": "node"}))

	f := NewFlow[store](node, WithParams(nodeflow.Params{"shared": "flow", "extra": true}))
	_, err := f.Run(context.Background(), nodeflow.NewStore(nil))
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, nodeflow.Params{"own": 1, "shared": "flow", "extra": true}, seen[0])
	assert.Equal(t, nodeflow.Params{"own": 1, "shared": "node"}, node.Params())
}

func TestFlowStartMissing(t *testing.T) {
	_, err := NewFlow[store](nil, WithName("empty")).Run(context.Background(), nodeflow.NewStore(nil))
	require.Error(t, err)
	assert.True(t, nodeflow.HasCode(err, nodeflow.ErrCodeStartMissing))
}

func TestFlowMaxSteps(t *testing.T) {
	loop := traceNode("loop", "")
	loop.Next(loop)

	s := nodeflow.NewStore(nil)
	_, err := NewFlow[store](loop, WithMaxSteps(5)).Run(context.Background(), s)
	require.Error(t, err)
	assert.True(t, nodeflow.HasCode(err, nodeflow.ErrCodeMaxSteps))
	assert.Len(t, traceOf(s), 5)

	var ge *goerrors.Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 5, ge.Metadata["max_steps"])
}

func TestFlowStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := NewNode[store, any, any](nodeflow.NodeFuncs[store, any, any]{
		PostFn: func(_ context.Context, s store, _ any, _ any) (nodeflow.Action, error) {
			s.Append("trace", "first")
			cancel()
			return "", nil
		},
	})
	first.Next(traceNode("second", ""))

	s := nodeflow.NewStore(nil)
	_, err := NewFlow[store](first).Run(ctx, s)
	require.Error(t, err)
	assert.True(t, nodeflow.HasCode(err, nodeflow.ErrCodeContextCancelled))
	assert.Equal(t, []any{"first"}, traceOf(s))
}

func TestFlowPropagatesOriginalErrorThroughNesting(t *testing.T) {
	boom := errors.New("deep failure")
	failing := NewNode[store, any, any](nodeflow.NodeFuncs[store, any, any]{
		ExecFn: func(context.Context, any) (any, error) { return nil, boom },
	})
	after := traceNode("after", "")
	failing.Next(after)

	var outer Runnable[store] = NewFlow[store](failing)
	for i := 0; i < 4; i++ {
		outer = NewFlow[store](outer)
	}

	s := nodeflow.NewStore(nil)
	_, err := outer.Run(context.Background(), s)
	assert.Same(t, boom, err)
	assert.Empty(t, traceOf(s))
}

func TestFlowExposesRunID(t *testing.T) {
	var ids []string
	probe := NewNode[store, any, any](nodeflow.NodeFuncs[store, any, any]{
		PrepFn: func(ctx context.Context, _ store, _ nodeflow.Params) (any, error) {
			ids = append(ids, RunIDFromContext(ctx))
			return nil, nil
		},
	})
	f := NewFlow[store](probe)

	_, err := f.Run(context.Background(), nodeflow.NewStore(nil))
	require.NoError(t, err)
	_, err = f.Run(context.Background(), nodeflow.NewStore(nil))
	require.NoError(t, err)

	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}
