package flow

import (
	"context"
	"fmt"

	"github.com/goliatone/go-nodeflow"
	"github.com/google/uuid"
)

// Flow walks a graph of units. Starting at its start unit it runs each unit
// with the merged visit parameters, then follows the successor registered
// for the returned action. The traversal ends when no successor matches.
//
// A Flow is itself a Runnable and can be used as a unit of another Flow. By
// default its own outcome is the last action produced inside it, so the
// enclosing flow routes on that label.
type Flow[S any] struct {
	base[S]
	start    Runnable[S]
	life     nodeflow.FlowLifecycle[S]
	maxSteps int
}

// NewFlow returns a flow starting at start. start may be nil and set later
// with SetStart.
func NewFlow[S any](start Runnable[S], opts ...Option) *Flow[S] {
	s := applyOptions(opts)
	return &Flow[S]{
		base:     newBase[S](s, "flow"),
		start:    start,
		life:     nodeflow.FlowFuncs[S]{},
		maxSteps: s.maxSteps,
	}
}

// SetStart replaces the start unit and returns it, so chains can begin with
// f.SetStart(a).Next(b).
func (f *Flow[S]) SetStart(start Runnable[S]) Runnable[S] {
	f.start = start
	return start
}

// StartUnit returns the current start unit.
func (f *Flow[S]) StartUnit() Runnable[S] {
	return f.start
}

// WithLifecycle installs prep and post hooks around the traversal.
func (f *Flow[S]) WithLifecycle(life nodeflow.FlowLifecycle[S]) *Flow[S] {
	if life == nil {
		life = nodeflow.FlowFuncs[S]{}
	}
	f.life = life
	return f
}

// Run traverses the graph once with the flow's own parameters.
func (f *Flow[S]) Run(ctx context.Context, shared S) (nodeflow.Action, error) {
	f.warnDetached()
	return f.RunWith(ctx, shared, f.Params())
}

func (f *Flow[S]) RunWith(ctx context.Context, shared S, params nodeflow.Params) (nodeflow.Action, error) {
	prep, err := f.life.Prep(ctx, shared, params)
	if err != nil {
		return "", err
	}

	last, err := f.orchestrate(ctx, shared, params)
	if err != nil {
		return "", err
	}

	return f.life.Post(ctx, shared, prep, last)
}

// orchestrate runs the traversal and returns the last action produced. Unit
// errors are returned unchanged.
func (f *Flow[S]) orchestrate(ctx context.Context, shared S, params nodeflow.Params) (nodeflow.Action, error) {
	if f.start == nil {
		return "", nodeflow.NewError(nodeflow.ErrStartMissing, fmt.Sprintf("flow %s has no start unit", f.name), nil, map[string]any{
			"flow": f.name,
		})
	}

	runID := uuid.NewString()
	fields := map[string]any{
		"flow":   f.name,
		"run_id": runID,
	}
	if parent := RunIDFromContext(ctx); parent != "" {
		fields["parent_run_id"] = parent
	}
	logger := withLoggerFields(f.logger, fields)
	ctx = withRunID(ctx, runID)

	current := f.start
	var last nodeflow.Action
	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return "", nodeflow.NewError(nodeflow.ErrContextCancelled, "", err, map[string]any{
				"flow":   f.name,
				"run_id": runID,
				"step":   step,
				"unit":   current.Name(),
			})
		}
		if f.maxSteps > 0 && step >= f.maxSteps {
			return "", nodeflow.NewError(nodeflow.ErrMaxSteps, fmt.Sprintf("flow %s exceeded %d steps", f.name, f.maxSteps), nil, map[string]any{
				"flow":      f.name,
				"run_id":    runID,
				"max_steps": f.maxSteps,
				"unit":      current.Name(),
			})
		}

		action, err := current.RunWith(ctx, shared, current.Params().Merge(params))
		if err != nil {
			logger.Debug("step %d: %s failed: %v", step, current.Name(), err)
			return "", err
		}
		last = action
		logger.Debug("step %d: %s -> %s", step, current.Name(), action.OrDefault())

		next, ok := current.Successor(action)
		if !ok {
			if successors := current.Successors(); len(successors) > 0 {
				logger.Warn("flow ends: action %q not found among %v of %s", action.OrDefault(), sortedActions(successors), current.Name())
			}
			return last, nil
		}
		current = next
	}
}

func sortedActions[S any](successors map[nodeflow.Action]Runnable[S]) []nodeflow.Action {
	t := Transitions[S]{successors: successors}
	return t.Actions()
}
