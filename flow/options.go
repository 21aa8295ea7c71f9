package flow

import (
	"time"

	"github.com/goliatone/go-nodeflow"
	"github.com/goliatone/go-nodeflow/runner"
)

// Option configures any unit or flow. Options that do not apply to the
// constructed type are ignored, e.g. WithMaxSteps on a Node.
type Option func(*settings)

type settings struct {
	name          string
	params        nodeflow.Params
	logger        Logger
	runnerOpts    []runner.Option
	errorStrategy ErrorStrategy
	maxSteps      int
}

func applyOptions(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	s.logger = normalizeLogger(s.logger)
	if s.errorStrategy == nil {
		s.errorStrategy = FailFastStrategy{}
	}
	return s
}

// handler builds the retry handler for the unit. Runner output is demoted so
// retried attempts log at debug and exhausted attempts at warn.
func (s settings) handler() *runner.Handler {
	opts := make([]runner.Option, 0, len(s.runnerOpts)+1)
	opts = append(opts, runner.WithLogger(runnerLogger{logger: s.logger}))
	opts = append(opts, s.runnerOpts...)
	return runner.NewHandler(opts...)
}

// WithName sets the unit name used in logs and metrics.
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}

// WithParams sets the unit's own parameter set.
func WithParams(params nodeflow.Params) Option {
	return func(s *settings) {
		s.params = params.Clone()
	}
}

func WithLogger(logger Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithMaxAttempts sets the total number of Exec attempts (the retry budget).
func WithMaxAttempts(n int) Option {
	return WithRunnerOptions(runner.WithMaxAttempts(n))
}

// WithWait sets the fixed delay between Exec attempts.
func WithWait(d time.Duration) Option {
	return WithRunnerOptions(runner.WithDelay(d))
}

// WithRetryStrategy replaces the fixed delay with a custom strategy.
func WithRetryStrategy(strategy runner.RetryStrategy) Option {
	return WithRunnerOptions(runner.WithRetryStrategy(strategy))
}

// WithRunnerOptions passes raw runner options to the unit's retry handler.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(s *settings) {
		s.runnerOpts = append(s.runnerOpts, opts...)
	}
}

// WithErrorStrategy selects how parallel variants report item failures.
func WithErrorStrategy(strategy ErrorStrategy) Option {
	return func(s *settings) {
		s.errorStrategy = strategy
	}
}

// WithMaxSteps bounds the number of units a single flow traversal may visit.
// Zero means unbounded.
func WithMaxSteps(n int) Option {
	return func(s *settings) {
		if n < 0 {
			n = 0
		}
		s.maxSteps = n
	}
}

type runnerLogger struct {
	logger Logger
}

func (r runnerLogger) Info(msg string, args ...any)  { r.logger.Debug(msg, args...) }
func (r runnerLogger) Error(msg string, args ...any) { r.logger.Warn(msg, args...) }
