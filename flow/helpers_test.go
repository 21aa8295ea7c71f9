package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-nodeflow"
)

type store = *nodeflow.Store

type captureLogger struct {
	mu     sync.Mutex
	lines  []string
	fields map[string]any
}

func (c *captureLogger) record(level, msg string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	c.lines = append(c.lines, level+" "+msg)
}

func (c *captureLogger) Trace(msg string, args ...any) { c.record("TRACE", msg, args...) }
func (c *captureLogger) Debug(msg string, args ...any) { c.record("DEBUG", msg, args...) }
func (c *captureLogger) Info(msg string, args ...any)  { c.record("INFO", msg, args...) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.record("WARN", msg, args...) }
func (c *captureLogger) Error(msg string, args ...any) { c.record("ERROR", msg, args...) }
func (c *captureLogger) Fatal(msg string, args ...any) { c.record("FATAL", msg, args...) }

func (c *captureLogger) WithContext(context.Context) Logger { return c }

func (c *captureLogger) WithFields(fields map[string]any) Logger {
	c.mu.Lock()
	c.fields = mergeFields(c.fields, fields)
	c.mu.Unlock()
	return c
}

func (c *captureLogger) withLevel(level string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, line := range c.lines {
		if strings.HasPrefix(line, level+" ") {
			out = append(out, line)
		}
	}
	return out
}

// intNode builds a node that applies fn to the int stored under key and
// routes with route.
func intNode(name, key string, fn func(int) int, route func(int) nodeflow.Action, opts ...Option) *Node[store, int, int] {
	opts = append([]Option{WithName(name)}, opts...)
	return NewNode[store, int, int](nodeflow.NodeFuncs[store, int, int]{
		PrepFn: func(_ context.Context, s store, _ nodeflow.Params) (int, error) {
			v, _ := nodeflow.StoreValue[int](s, key)
			return v, nil
		},
		ExecFn: func(_ context.Context, v int) (int, error) {
			return fn(v), nil
		},
		PostFn: func(_ context.Context, s store, _ int, result int) (nodeflow.Action, error) {
			s.Set(key, result)
			if route == nil {
				return "", nil
			}
			return route(result), nil
		},
	}, opts...)
}

// traceNode appends its name to the "trace" list and returns action.
func traceNode(name string, action nodeflow.Action) *Node[store, any, any] {
	return NewNode[store, any, any](nodeflow.NodeFuncs[store, any, any]{
		PostFn: func(_ context.Context, s store, _ any, _ any) (nodeflow.Action, error) {
			s.Append("trace", name)
			return action, nil
		},
	}, WithName(name))
}

func traceOf(s store) []any {
	v, _ := nodeflow.StoreValue[[]any](s, "trace")
	return v
}

// countdown builds the subtract3 / check cycle.
func countdown(opts ...Option) *Flow[store] {
	subtract := intNode("subtract3", "current", func(v int) int { return v - 3 }, nil)
	check := NewNode[store, int, nodeflow.Action](nodeflow.NodeFuncs[store, int, nodeflow.Action]{
		PrepFn: func(_ context.Context, s store, _ nodeflow.Params) (int, error) {
			v, _ := nodeflow.StoreValue[int](s, "current")
			return v, nil
		},
		ExecFn: func(_ context.Context, v int) (nodeflow.Action, error) {
			if v >= 0 {
				return "positive", nil
			}
			return "negative", nil
		},
		PostFn: func(_ context.Context, _ store, _ int, action nodeflow.Action) (nodeflow.Action, error) {
			return action, nil
		},
	}, WithName("check"))

	subtract.Next(check)
	check.On("positive", subtract)

	return NewFlow[store](subtract, append([]Option{WithName("countdown")}, opts...)...)
}
