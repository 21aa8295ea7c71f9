package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-nodeflow"
	"github.com/goliatone/go-nodeflow/flow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ flow.MetricsRecorder = (*PrometheusRecorder)(nil)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(WithRegisterer(reg), WithNamespace("test"))
	require.NoError(t, err)

	rec.RecordDuration("load", 20*time.Millisecond)
	rec.RecordSuccess("load")
	rec.RecordSuccess("load")
	rec.RecordError("save")

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.successes.WithLabelValues("load")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.errors.WithLabelValues("save")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.duration))
}

func TestPrometheusRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusRecorder(WithRegisterer(reg))
	require.NoError(t, err)

	_, err = NewPrometheusRecorder(WithRegisterer(reg))
	assert.Error(t, err)
}

func TestPrometheusRecorderInstrumentsFlow(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(WithRegisterer(reg), WithSubsystem("graph"), WithBuckets(0.001, 0.01, 0.1))
	require.NoError(t, err)

	boom := errors.New("boom")
	ok := flow.Instrument[*nodeflow.Store](flow.NewNode[*nodeflow.Store, any, any](nodeflow.NodeFuncs[*nodeflow.Store, any, any]{
		PostFn: func(context.Context, *nodeflow.Store, any, any) (nodeflow.Action, error) {
			return "fail", nil
		},
	}, flow.WithName("first")), rec)
	failing := flow.Instrument[*nodeflow.Store](flow.NewNode[*nodeflow.Store, any, any](nodeflow.NodeFuncs[*nodeflow.Store, any, any]{
		ExecFn: func(context.Context, any) (any, error) { return nil, boom },
	}, flow.WithName("second")), rec)
	ok.On("fail", failing)

	_, err = flow.NewFlow[*nodeflow.Store](ok).Run(context.Background(), nodeflow.NewStore(nil))
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.successes.WithLabelValues("first")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.errors.WithLabelValues("second")))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.errors.WithLabelValues("first")))
}
