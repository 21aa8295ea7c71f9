package cron

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-nodeflow"
	"github.com/goliatone/go-nodeflow/flow"
	"github.com/goliatone/go-nodeflow/runner"

	rcron "github.com/robfig/cron/v3"
)

// Logger interface shared across packages
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// JobConfig defines scheduling options for a job.
type JobConfig struct {
	// Expression is the cron expression, used by ScheduleCron only.
	Expression string `json:"expression" yaml:"expression"`
	// MaxRuns completes the handle after that many runs. Zero is unbounded.
	MaxRuns int `json:"max_runs,omitempty" yaml:"max_runs,omitempty"`
	// MaxAttempts is the retry budget of each run.
	MaxAttempts int           `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	Wait        time.Duration `json:"wait,omitempty" yaml:"wait,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// ContinueOnError keeps a recurring job scheduled after a failed run.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`
}

// Scheduler wraps cron functionality.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger    Logger
	parser    Parser
	logWriter io.Writer
	logLevel  LogLevel

	ctx    context.Context
	cancel context.CancelFunc

	nextHandleID int64
	handles      map[int64]*cronSubscription
}

// NewScheduler creates a new scheduler instance with the provided options.
func NewScheduler(opts ...Option) *Scheduler {
	cs := &Scheduler{
		location: time.Local,
		parser:   DefaultParser,
		logLevel: LogLevelError,
		errorHandler: func(err error) {
			log.Printf("error: %v\n", err)
		},
		handles: make(map[int64]*cronSubscription),
	}
	cs.ctx, cs.cancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		if opt != nil {
			opt(cs)
		}
	}

	cs.cron = rcron.New(cs.build()...)
	return cs
}

func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// ScheduleCron schedules a recurring job by cron expression.
func (s *Scheduler) ScheduleCron(cfg JobConfig, job Job) (Handle, error) {
	if cfg.Expression == "" {
		return nil, errors.New("cron expression cannot be empty", errors.CategoryBadInput).
			WithTextCode("CRON_EXPRESSION_EMPTY")
	}
	run, err := s.buildRunnable(cfg, job)
	if err != nil {
		return nil, err
	}

	sub := s.newHandle(cfg.MaxRuns)
	entry := rcron.FuncJob(func() {
		if isTerminalStatus(sub.Status()) {
			return
		}

		sub.setStatus(ScheduleStatusRunning, nil)
		err := run()
		if sub.recordRun() {
			s.removeHandle(sub.id)
			sub.setTerminal(ScheduleStatusCompleted, err)
			if err != nil {
				s.errorHandler(err)
			}
			return
		}
		if err != nil {
			s.errorHandler(err)
			if !cfg.ContinueOnError {
				s.removeHandle(sub.id)
				sub.setTerminal(ScheduleStatusFailed, err)
				return
			}
		}

		if !isTerminalStatus(sub.Status()) {
			sub.setStatus(ScheduleStatusIdle, err)
		}
	})

	entryID, err := s.cron.AddJob(cfg.Expression, entry)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to add job").
			WithTextCode("CRON_EXPRESSION_INVALID").
			WithMetadata(map[string]any{"expression": cfg.Expression})
	}
	sub.entryID = int(entryID)
	s.storeHandle(sub)
	return sub, nil
}

// ScheduleAfter schedules one execution after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, cfg JobConfig, job Job) (Handle, error) {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(time.Now().Add(delay), cfg, job)
}

// ScheduleAt schedules one execution at a specific time.
func (s *Scheduler) ScheduleAt(at time.Time, cfg JobConfig, job Job) (Handle, error) {
	run, err := s.buildRunnable(cfg, job)
	if err != nil {
		return nil, err
	}

	sub := s.newHandle(1)
	s.storeHandle(sub)

	go func() {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-sub.Done():
			return
		}

		if isTerminalStatus(sub.Status()) {
			return
		}
		sub.setStatus(ScheduleStatusRunning, nil)
		err := run()
		sub.recordRun()
		s.removeStoredHandle(sub.id)
		if err != nil {
			sub.setTerminal(ScheduleStatusFailed, err)
			s.errorHandler(err)
			return
		}
		sub.setTerminal(ScheduleStatusCompleted, nil)
	}()

	return sub, nil
}

// FlowJob adapts r into a Job. Every run gets a fresh shared value from
// newShared; report, when set, receives it together with the outcome.
func FlowJob[S any](r flow.Runnable[S], newShared func() S, report func(shared S, action nodeflow.Action, err error)) Job {
	return func(ctx context.Context) error {
		var shared S
		if newShared != nil {
			shared = newShared()
		}
		action, err := r.Run(ctx, shared)
		if report != nil {
			report(shared, action, err)
		}
		return err
	}
}

// Start begins executing scheduled cron jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop cancels the context of running jobs, waits for them to return and
// marks active handles as stopped. A stopped scheduler cannot be restarted.
func (s *Scheduler) Stop(_ context.Context) error {
	s.cancel()
	<-s.cron.Stop().Done()

	var handles []*cronSubscription
	s.mu.Lock()
	for _, handle := range s.handles {
		handles = append(handles, handle)
	}
	s.handles = make(map[int64]*cronSubscription)
	s.mu.Unlock()

	for _, handle := range handles {
		if handle == nil {
			continue
		}
		if handle.entryID > 0 {
			s.cron.Remove(rcron.EntryID(handle.entryID))
		}
		if isTerminalStatus(handle.Status()) {
			continue
		}
		handle.setTerminal(ScheduleStatusStopped, nil)
	}
	return nil
}

func (s *Scheduler) removeHandle(id int64) {
	handle := s.removeStoredHandle(id)
	if handle == nil {
		return
	}
	if handle.entryID > 0 {
		s.cron.Remove(rcron.EntryID(handle.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *cronSubscription {
	if s == nil || id == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := s.handles[id]
	delete(s.handles, id)
	return handle
}

func (s *Scheduler) storeHandle(handle *cronSubscription) {
	if s == nil || handle == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles == nil {
		s.handles = make(map[int64]*cronSubscription)
	}
	s.handles[handle.id] = handle
}

func (s *Scheduler) newHandle(maxRuns int) *cronSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	return &cronSubscription{
		scheduler: s,
		id:        s.nextHandleID,
		status:    ScheduleStatusScheduled,
		maxRuns:   maxRuns,
		done:      make(chan struct{}),
	}
}

func isTerminalStatus(status ScheduleStatus) bool {
	switch status {
	case ScheduleStatusCompleted, ScheduleStatusCanceled, ScheduleStatusFailed, ScheduleStatusStopped:
		return true
	default:
		return false
	}
}

// buildRunnable wraps job with the retry policy and timeout of cfg. Panics
// inside the job surface as errors.
func (s *Scheduler) buildRunnable(cfg JobConfig, job Job) (func() error, error) {
	if job == nil {
		return nil, errors.New("job cannot be nil", errors.CategoryBadInput).
			WithTextCode("CRON_JOB_MISSING")
	}
	h := runner.NewHandler(makeRunnerOptions(s, cfg)...)

	return func() error {
		ctx := s.ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		_, _, err := runner.Do(ctx, h, func(ctx context.Context, _ int) (struct{}, error) {
			return struct{}{}, protect(ctx, job)
		})
		return err
	}, nil
}

func protect(ctx context.Context, job Job) (err error) {
	defer nodeflow.CapturePanic("cron.job", &err)
	return job(ctx)
}

func makeRunnerOptions(s *Scheduler, cfg JobConfig) []runner.Option {
	runnerOpts := []runner.Option{
		runner.WithMaxAttempts(cfg.MaxAttempts),
	}
	if cfg.Wait > 0 {
		runnerOpts = append(runnerOpts, runner.WithDelay(cfg.Wait))
	}
	if s.logger != nil {
		runnerOpts = append(runnerOpts, runner.WithLogger(s.logger))
	}
	return runnerOpts
}

func makeLogger(out io.Writer, level LogLevel) rcron.Logger {
	stdLogger := log.New(out, "cron: ", log.LstdFlags)
	cronLogger := rcron.PrintfLogger(stdLogger)
	if level >= LogLevelDebug {
		cronLogger = rcron.VerbosePrintfLogger(stdLogger)
	}
	return cronLogger
}

// build converts implementation-agnostic options to rcron options.
func (s *Scheduler) build() []rcron.Option {
	opts := make([]rcron.Option, 0)

	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	switch s.parser {
	case StandardParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	case SecondsParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}

	if s.errorHandler != nil {
		opts = append(opts, rcron.WithChain(
			rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler}),
		))
	}

	var cronLogger rcron.Logger
	switch {
	case s.logger != nil:
		cronLogger = &loggerAdapter{logger: s.logger, level: s.logLevel}
	case s.logWriter != nil:
		cronLogger = makeLogger(s.logWriter, s.logLevel)
	default:
		if s.logLevel > LogLevelSilent {
			cronLogger = makeLogger(os.Stdout, s.logLevel)
		}
	}

	if cronLogger != nil {
		opts = append(opts, rcron.WithLogger(cronLogger))
	}

	return opts
}
