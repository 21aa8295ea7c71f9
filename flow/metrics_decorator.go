package flow

import (
	"context"
	"time"

	"github.com/goliatone/go-nodeflow"
)

type MetricsRecorder interface {
	RecordDuration(name string, duration time.Duration)
	RecordError(name string)
	RecordSuccess(name string)
}

// Instrumented records the duration and outcome of every visit of the
// wrapped unit under the unit's name. Transitions are delegated to the
// wrapped unit, so instrument a unit before wiring it into a graph.
type Instrumented[S any] struct {
	Runnable[S]
	recorder MetricsRecorder
}

// Instrument wraps r with recorder. A nil recorder returns r unchanged.
func Instrument[S any](r Runnable[S], recorder MetricsRecorder) Runnable[S] {
	if r == nil || recorder == nil {
		return r
	}
	return &Instrumented[S]{Runnable: r, recorder: recorder}
}

// Unwrap returns the instrumented unit.
func (m *Instrumented[S]) Unwrap() Runnable[S] {
	return m.Runnable
}

func (m *Instrumented[S]) Run(ctx context.Context, shared S) (nodeflow.Action, error) {
	return m.RunWith(ctx, shared, m.Params())
}

func (m *Instrumented[S]) RunWith(ctx context.Context, shared S, params nodeflow.Params) (nodeflow.Action, error) {
	start := time.Now()
	action, err := m.Runnable.RunWith(ctx, shared, params)

	name := m.Name()
	m.recorder.RecordDuration(name, time.Since(start))
	if err != nil {
		m.recorder.RecordError(name)
	} else {
		m.recorder.RecordSuccess(name)
	}

	return action, err
}
