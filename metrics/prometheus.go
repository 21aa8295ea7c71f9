// Package metrics exposes flow.MetricsRecorder implementations backed by
// Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const unitLabel = "unit"

// PrometheusRecorder records unit visits as a duration histogram plus
// success and error counters, all labeled by unit name.
type PrometheusRecorder struct {
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	successes *prometheus.CounterVec
}

// Option configures a PrometheusRecorder.
type Option func(*config)

type config struct {
	namespace  string
	subsystem  string
	buckets    []float64
	registerer prometheus.Registerer
}

// WithNamespace sets the metric namespace. Defaults to "nodeflow".
func WithNamespace(ns string) Option {
	return func(c *config) {
		c.namespace = ns
	}
}

// WithSubsystem sets the metric subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *config) {
		c.subsystem = subsystem
	}
}

// WithBuckets overrides the histogram buckets, in seconds.
func WithBuckets(buckets ...float64) Option {
	return func(c *config) {
		if len(buckets) > 0 {
			c.buckets = buckets
		}
	}
}

// WithRegisterer registers the collectors with r instead of the default
// registerer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *config) {
		if r != nil {
			c.registerer = r
		}
	}
}

// NewPrometheusRecorder creates the collectors and registers them.
func NewPrometheusRecorder(opts ...Option) (*PrometheusRecorder, error) {
	cfg := config{
		namespace:  "nodeflow",
		buckets:    prometheus.DefBuckets,
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	r := &PrometheusRecorder{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.namespace,
				Subsystem: cfg.subsystem,
				Name:      "unit_duration_seconds",
				Help:      "Duration of unit visits in seconds",
				Buckets:   cfg.buckets,
			},
			[]string{unitLabel},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.namespace,
				Subsystem: cfg.subsystem,
				Name:      "unit_errors_total",
				Help:      "Total number of unit visits that returned an error",
			},
			[]string{unitLabel},
		),
		successes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.namespace,
				Subsystem: cfg.subsystem,
				Name:      "unit_successes_total",
				Help:      "Total number of unit visits that completed",
			},
			[]string{unitLabel},
		),
	}

	for _, c := range []prometheus.Collector{r.duration, r.errors, r.successes} {
		if err := cfg.registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) RecordDuration(name string, duration time.Duration) {
	r.duration.WithLabelValues(name).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordError(name string) {
	r.errors.WithLabelValues(name).Inc()
}

func (r *PrometheusRecorder) RecordSuccess(name string) {
	r.successes.WithLabelValues(name).Inc()
}
