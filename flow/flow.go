package flow

import (
	"context"
	"sort"

	"github.com/goliatone/go-nodeflow"
)

// Runnable is the common contract for every unit in a graph: single nodes,
// batch nodes, flows and batch flows. A Flow is itself a Runnable, which is
// what allows flows to nest.
type Runnable[S any] interface {
	Name() string
	Params() nodeflow.Params
	SetParams(params nodeflow.Params)

	// Next registers next under the default action and returns it.
	Next(next Runnable[S]) Runnable[S]
	// On registers next under action and returns it.
	On(action nodeflow.Action, next Runnable[S]) Runnable[S]
	Successor(action nodeflow.Action) (Runnable[S], bool)
	Successors() map[nodeflow.Action]Runnable[S]

	// Run invokes the unit with its own parameters. It never follows
	// successors; only a Flow does.
	Run(ctx context.Context, shared S) (nodeflow.Action, error)
	// RunWith invokes the unit for a single visit with the given parameter
	// set. The unit definition is not modified, so the same unit can be
	// visited repeatedly and concurrently.
	RunWith(ctx context.Context, shared S, params nodeflow.Params) (nodeflow.Action, error)
}

// Transitions is the per-unit table from outcome label to successor. It is
// written while the graph is built and only read while it runs.
type Transitions[S any] struct {
	successors map[nodeflow.Action]Runnable[S]
	logger     Logger
	owner      string
}

// Next registers next as the default successor.
func (t *Transitions[S]) Next(next Runnable[S]) Runnable[S] {
	return t.On(nodeflow.DefaultAction, next)
}

// On registers next for action, replacing any previous successor for the
// same action. A nil successor removes the action.
func (t *Transitions[S]) On(action nodeflow.Action, next Runnable[S]) Runnable[S] {
	action = action.OrDefault()
	if next == nil {
		delete(t.successors, action)
		return nil
	}
	if t.successors == nil {
		t.successors = make(map[nodeflow.Action]Runnable[S])
	}
	if prev, exists := t.successors[action]; exists && prev != next {
		normalizeLogger(t.logger).Warn("%s: overwriting successor for action %q", t.owner, action)
	}
	t.successors[action] = next
	return next
}

// Successor returns the successor for action, routing the empty action as
// the default one.
func (t *Transitions[S]) Successor(action nodeflow.Action) (Runnable[S], bool) {
	next, ok := t.successors[action.OrDefault()]
	return next, ok
}

// Successors returns a copy of the table.
func (t *Transitions[S]) Successors() map[nodeflow.Action]Runnable[S] {
	out := make(map[nodeflow.Action]Runnable[S], len(t.successors))
	for k, v := range t.successors {
		out[k] = v
	}
	return out
}

// Actions returns the registered actions sorted.
func (t *Transitions[S]) Actions() []nodeflow.Action {
	actions := make([]nodeflow.Action, 0, len(t.successors))
	for a := range t.successors {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

func (t *Transitions[S]) hasSuccessors() bool {
	return len(t.successors) > 0
}

// base carries what every Runnable shares: name, own parameters, logger and
// the transition table.
type base[S any] struct {
	Transitions[S]
	name   string
	params nodeflow.Params
	logger Logger
}

func newBase[S any](s settings, defaultName string) base[S] {
	name := s.name
	if name == "" {
		name = defaultName
	}
	return base[S]{
		Transitions: Transitions[S]{logger: s.logger, owner: name},
		name:        name,
		params:      s.params.Clone(),
		logger:      s.logger,
	}
}

func (b *base[S]) Name() string {
	return b.name
}

// Params returns a copy of the unit's own parameters.
func (b *base[S]) Params() nodeflow.Params {
	return b.params.Clone()
}

// SetParams replaces the unit's own parameters. Call it while building the
// graph, not while it runs.
func (b *base[S]) SetParams(params nodeflow.Params) {
	b.params = params.Clone()
}

func (b *base[S]) warnDetached() {
	if b.hasSuccessors() {
		b.logger.Warn("%s has successors but Run does not follow them, wrap it in a Flow", b.name)
	}
}
