package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-nodeflow"
	"github.com/goliatone/go-nodeflow/flow"
)

type store = *nodeflow.Store

// builtins returns the node factories and batch sources available to graph
// files run by the CLI. Every built-in reads its parameters at visit time, so
// batch parameters override the values declared on the node.
func builtins(logger flow.Logger) (*flow.NodeRegistry[store], error) {
	reg := flow.NewNodeRegistry[store]()
	factories := map[string]flow.NodeFactory[store]{
		"set":            setNode,
		"add":            addNode,
		"compare":        compareNode,
		"append":         appendNode,
		"log":            logNode(logger),
		"scale":          scaleNode(false),
		"parallel_scale": scaleNode(true),
		"fail":           failNode,
	}
	for name, factory := range factories {
		if err := reg.Register(name, factory); err != nil {
			return nil, err
		}
	}
	if err := reg.RegisterBatchSource("from_store", fromStore()); err != nil {
		return nil, err
	}
	return reg, nil
}

// setNode writes params "value" under params "key" and returns params
// "action".
func setNode(_ flow.NodeDefinition, opts ...flow.Option) (flow.Runnable[store], error) {
	return flow.NewNode[store, nodeflow.Params, any](nodeflow.NodeFuncs[store, nodeflow.Params, any]{
		PrepFn: passParams,
		PostFn: func(_ context.Context, s store, p nodeflow.Params, _ any) (nodeflow.Action, error) {
			key, err := requireKey(p)
			if err != nil {
				return "", err
			}
			v, _ := p.Get("value")
			s.Set(key, v)
			return nodeflow.Action(p.String("action")), nil
		},
	}, opts...), nil
}

type addInput struct {
	key     string
	current any
	by      float64
}

// addNode adds params "by" to the number under params "key" and routes
// "positive", "negative" or "zero" on the result.
func addNode(_ flow.NodeDefinition, opts ...flow.Option) (flow.Runnable[store], error) {
	return flow.NewNode[store, addInput, any](nodeflow.NodeFuncs[store, addInput, any]{
		PrepFn: func(_ context.Context, s store, p nodeflow.Params) (addInput, error) {
			key, err := requireKey(p)
			if err != nil {
				return addInput{}, err
			}
			by, ok := p.Float("by")
			if !ok {
				return addInput{}, paramError("by", "a number")
			}
			current, _ := s.Get(key)
			return addInput{key: key, current: current, by: by}, nil
		},
		ExecFn: func(_ context.Context, in addInput) (any, error) {
			return addNumber(in.current, in.by)
		},
		PostFn: func(_ context.Context, s store, in addInput, result any) (nodeflow.Action, error) {
			s.Set(in.key, result)
			f, _ := nodeflow.ToFloat(result)
			switch {
			case f > 0:
				return "positive", nil
			case f < 0:
				return "negative", nil
			default:
				return "zero", nil
			}
		},
	}, opts...), nil
}

type comparison struct {
	op    string
	left  any
	right any
}

// compareNode compares the value under params "key" with params "value"
// using params "op" and routes "true" or "false".
func compareNode(_ flow.NodeDefinition, opts ...flow.Option) (flow.Runnable[store], error) {
	return flow.NewNode[store, comparison, bool](nodeflow.NodeFuncs[store, comparison, bool]{
		PrepFn: func(_ context.Context, s store, p nodeflow.Params) (comparison, error) {
			key, err := requireKey(p)
			if err != nil {
				return comparison{}, err
			}
			left, _ := s.Get(key)
			right, _ := p.Get("value")
			op := p.String("op")
			if op == "" {
				op = "eq"
			}
			return comparison{op: op, left: left, right: right}, nil
		},
		ExecFn: func(_ context.Context, c comparison) (bool, error) {
			return compare(c.op, c.left, c.right)
		},
		PostFn: func(_ context.Context, _ store, _ comparison, ok bool) (nodeflow.Action, error) {
			if ok {
				return "true", nil
			}
			return "false", nil
		},
	}, opts...), nil
}

// appendNode appends params "value" to the list under params "key".
func appendNode(_ flow.NodeDefinition, opts ...flow.Option) (flow.Runnable[store], error) {
	return flow.NewNode[store, nodeflow.Params, any](nodeflow.NodeFuncs[store, nodeflow.Params, any]{
		PrepFn: passParams,
		PostFn: func(_ context.Context, s store, p nodeflow.Params, _ any) (nodeflow.Action, error) {
			key, err := requireKey(p)
			if err != nil {
				return "", err
			}
			v, _ := p.Get("value")
			s.Append(key, v)
			return nodeflow.Action(p.String("action")), nil
		},
	}, opts...), nil
}

// logNode logs params "message" with the store values named in params
// "keys" as fields.
func logNode(logger flow.Logger) flow.NodeFactory[store] {
	return func(_ flow.NodeDefinition, opts ...flow.Option) (flow.Runnable[store], error) {
		return flow.NewNode[store, map[string]any, any](nodeflow.NodeFuncs[store, map[string]any, any]{
			PrepFn: func(_ context.Context, s store, p nodeflow.Params) (map[string]any, error) {
				fields := map[string]any{}
				for _, key := range stringList(p["keys"]) {
					if v, ok := s.Get(key); ok {
						fields[key] = v
					}
				}
				fields["message"] = p.String("message")
				return fields, nil
			},
			ExecFn: func(_ context.Context, fields map[string]any) (any, error) {
				msg, _ := fields["message"].(string)
				delete(fields, "message")
				out := logger
				if fl, ok := logger.(flow.FieldsLogger); ok && len(fields) > 0 {
					out = fl.WithFields(fields)
				}
				out.Info(msg)
				return nil, nil
			},
		}, opts...), nil
	}
}

type scaleItem struct {
	value  float64
	factor float64
	to     string
}

// scaleNode multiplies every number of the list under params "from" by
// params "factor" and stores the results under params "to", one batch item
// per element. An empty list leaves the store untouched.
func scaleNode(parallel bool) flow.NodeFactory[store] {
	return func(_ flow.NodeDefinition, opts ...flow.Option) (flow.Runnable[store], error) {
		life := nodeflow.BatchFuncs[store, scaleItem, float64]{
			PrepFn: func(_ context.Context, s store, p nodeflow.Params) ([]scaleItem, error) {
				from, err := requireParam(p, "from")
				if err != nil {
					return nil, err
				}
				factor, ok := p.Float("factor")
				if !ok {
					return nil, paramError("factor", "a number")
				}
				to := p.String("to")
				if to == "" {
					to = from
				}
				raw, _ := s.Get(from)
				values, err := numberList(raw)
				if err != nil {
					return nil, err
				}
				items := make([]scaleItem, len(values))
				for i, v := range values {
					items[i] = scaleItem{value: v, factor: factor, to: to}
				}
				return items, nil
			},
			ExecFn: func(_ context.Context, item scaleItem) (float64, error) {
				return item.value * item.factor, nil
			},
			PostFn: func(_ context.Context, s store, items []scaleItem, results []float64) (nodeflow.Action, error) {
				if len(items) == 0 {
					return "", nil
				}
				out := make([]any, len(results))
				for i, r := range results {
					out[i] = r
				}
				s.Set(items[0].to, out)
				return "", nil
			},
		}
		if parallel {
			return flow.NewParallelBatchNode[store, scaleItem, float64](life, opts...), nil
		}
		return flow.NewSerialBatchNode[store, scaleItem, float64](life, opts...), nil
	}
}

// failNode always fails with params "message". When params "fallback" is
// set the fallback stores it under params "key" and routes "recovered".
func failNode(_ flow.NodeDefinition, opts ...flow.Option) (flow.Runnable[store], error) {
	return flow.NewNode[store, nodeflow.Params, any](nodeflow.NodeFuncs[store, nodeflow.Params, any]{
		PrepFn: passParams,
		ExecFn: func(_ context.Context, p nodeflow.Params) (any, error) {
			msg := p.String("message")
			if msg == "" {
				msg = "node failed"
			}
			return nil, errors.New(msg, errors.CategoryHandler).WithTextCode("NODE_FAILED")
		},
		FallbackFn: func(_ context.Context, p nodeflow.Params, err error) (any, error) {
			v, ok := p.Get("fallback")
			if !ok {
				return nil, err
			}
			return v, nil
		},
		PostFn: func(_ context.Context, s store, p nodeflow.Params, result any) (nodeflow.Action, error) {
			key := p.String("key")
			if key == "" {
				key = "fallback"
			}
			s.Set(key, result)
			return "recovered", nil
		},
	}, opts...), nil
}

// fromStore yields one batch per element of the list stored under params
// "batch_key". Map elements become the batch parameters, other elements
// are exposed as "value".
func fromStore() nodeflow.BatchFlowFuncs[store] {
	return nodeflow.BatchFlowFuncs[store]{
		PrepFn: func(_ context.Context, s store, p nodeflow.Params) ([]nodeflow.Params, error) {
			key, err := requireParam(p, "batch_key")
			if err != nil {
				return nil, err
			}
			raw, _ := s.Get(key)
			items, ok := raw.([]any)
			if !ok && raw != nil {
				return nil, errors.New(fmt.Sprintf("store key %s is not a list", key), errors.CategoryBadInput).
					WithTextCode("BATCH_SOURCE_INVALID").
					WithMetadata(map[string]any{"key": key})
			}
			batches := make([]nodeflow.Params, 0, len(items))
			for _, item := range items {
				if m, ok := item.(map[string]any); ok {
					batches = append(batches, nodeflow.Params(m).Clone())
					continue
				}
				batches = append(batches, nodeflow.Params{"value": item})
			}
			return batches, nil
		},
	}
}

func passParams(_ context.Context, _ store, p nodeflow.Params) (nodeflow.Params, error) {
	return p, nil
}

func requireKey(p nodeflow.Params) (string, error) {
	return requireParam(p, "key")
}

func requireParam(p nodeflow.Params, name string) (string, error) {
	v := p.String(name)
	if v == "" {
		return "", paramError(name, "set")
	}
	return v, nil
}

func paramError(name, want string) error {
	return errors.New(fmt.Sprintf("param %s must be %s", name, want), errors.CategoryBadInput).
		WithTextCode("NODE_PARAM_INVALID").
		WithMetadata(map[string]any{"param": name})
}

// addNumber keeps integers integral when both operands are whole numbers.
func addNumber(current any, by float64) (any, error) {
	whole := by == math.Trunc(by)
	switch v := current.(type) {
	case nil:
		if whole {
			return int(by), nil
		}
		return by, nil
	case int:
		if whole {
			return v + int(by), nil
		}
	}
	f, ok := nodeflow.ToFloat(current)
	if !ok {
		return nil, errors.New(fmt.Sprintf("cannot add to %T", current), errors.CategoryBadInput).
			WithTextCode("NODE_PARAM_INVALID")
	}
	return f + by, nil
}

func compare(op string, left, right any) (bool, error) {
	lf, lok := nodeflow.ToFloat(left)
	rf, rok := nodeflow.ToFloat(right)
	if lok && rok {
		switch op {
		case "lt":
			return lf < rf, nil
		case "lte":
			return lf <= rf, nil
		case "eq":
			return lf == rf, nil
		case "ne":
			return lf != rf, nil
		case "gte":
			return lf >= rf, nil
		case "gt":
			return lf > rf, nil
		}
	} else {
		ls, rs := fmt.Sprint(left), fmt.Sprint(right)
		switch op {
		case "eq":
			return ls == rs, nil
		case "ne":
			return ls != rs, nil
		case "lt", "lte", "gte", "gt":
			return false, errors.New(fmt.Sprintf("operator %s needs numbers", op), errors.CategoryBadInput).
				WithTextCode("NODE_PARAM_INVALID")
		}
	}
	return false, paramError("op", "one of lt, lte, eq, ne, gte, gt")
}

func numberList(raw any) ([]float64, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, paramError("from", "the key of a list")
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := nodeflow.ToFloat(item)
		if !ok {
			return nil, paramError("from", "the key of a list of numbers")
		}
		out[i] = f
	}
	return out, nil
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return strings.Split(t, ",")
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}
