package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-nodeflow"
	"github.com/goliatone/go-nodeflow/cron"
	"github.com/goliatone/go-nodeflow/flow"
	"github.com/goliatone/go-nodeflow/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// metricsRecorderName is the recorder graph files reference with
// `metrics: prometheus`.
const metricsRecorderName = "prometheus"

type ValidateCmd struct {
	File string `arg:"" type:"existingfile" help:"Graph file (YAML or JSON)."`
}

func (c *ValidateCmd) Run(e *env) error {
	cfg, err := flow.LoadGraphSet(c.File)
	if err != nil {
		return err
	}
	for _, id := range cfg.IDs() {
		def, _ := cfg.Graph(id)
		fmt.Fprintf(e.out, "%s\t%s\t%d nodes\n", id, def.KindOrDefault(), len(def.Nodes))
	}
	return nil
}

// GraphFlags are shared by the commands that execute a graph.
type GraphFlags struct {
	File       string   `arg:"" type:"existingfile" help:"Graph file (YAML or JSON)."`
	Graph      string   `short:"g" help:"Graph id to run. Defaults to the first graph."`
	Set        []string `short:"s" sep:"none" placeholder:"KEY=VALUE" help:"Initial store value, VALUE is parsed as YAML. Repeatable."`
	MetricsOut string   `name:"metrics-out" type:"path" help:"Write Prometheus metrics to this file when done."`
}

type graphRuntime struct {
	unit     flow.Runnable[store]
	initial  map[string]any
	registry *prometheus.Registry
}

func (g GraphFlags) load(e *env) (*graphRuntime, error) {
	cfg, err := flow.LoadGraphSet(g.File)
	if err != nil {
		return nil, err
	}
	id := g.Graph
	if id == "" {
		ids := cfg.IDs()
		if len(ids) == 0 {
			return nil, nodeflow.NewError(nodeflow.ErrGraphInvalid, "graph file declares no graphs", nil, nil)
		}
		id = ids[0]
	}

	initial, err := parseAssignments(g.Set)
	if err != nil {
		return nil, err
	}

	nodes, err := builtins(e.logger)
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewPrometheusRecorder(metrics.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	recorders := flow.NewMetricsRecorderRegistry()
	if err := recorders.Register(metricsRecorderName, recorder); err != nil {
		return nil, err
	}

	graphs, err := flow.BuildGraphs(cfg, flow.BuildContext[store]{
		Nodes:     nodes,
		Recorders: recorders,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}
	unit, ok := graphs[id]
	if !ok {
		return nil, nodeflow.NewError(nodeflow.ErrNodeNotFound, fmt.Sprintf("graph %s not found", id), nil, map[string]any{"graph": id})
	}
	return &graphRuntime{unit: unit, initial: initial, registry: registry}, nil
}

func (g GraphFlags) writeMetrics(rt *graphRuntime) error {
	if g.MetricsOut == "" {
		return nil
	}
	return prometheus.WriteToTextfile(g.MetricsOut, rt.registry)
}

type RunCmd struct {
	GraphFlags `embed:""`
}

type runReport struct {
	Action string         `yaml:"action"`
	Store  map[string]any `yaml:"store"`
}

func (c *RunCmd) Run(e *env) error {
	rt, err := c.load(e)
	if err != nil {
		return err
	}
	s := nodeflow.NewStore(rt.initial)
	action, runErr := rt.unit.Run(e.ctx, s)

	if err := c.writeMetrics(rt); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return writeReport(e, action, s)
}

type ScheduleCmd struct {
	GraphFlags `embed:""`
	Spec       string `required:"" help:"Cron expression, e.g. \"@every 10s\"."`
	Times      int    `default:"0" help:"Stop after this many runs. Zero runs until interrupted."`
	Seconds    bool   `help:"Accept a leading seconds field in the cron expression."`
}

func (c *ScheduleCmd) Run(e *env) error {
	rt, err := c.load(e)
	if err != nil {
		return err
	}

	opts := []cron.Option{
		cron.WithLogger(e.logger),
		cron.WithLogLevel(cron.LogLevelError),
		cron.WithErrorHandler(func(err error) {
			e.logger.Error("scheduled run failed: %v", err)
		}),
	}
	if c.Seconds {
		opts = append(opts, cron.WithParser(cron.SecondsParser))
	}
	scheduler := cron.NewScheduler(opts...)

	var mu sync.Mutex
	job := cron.FlowJob(rt.unit, func() store {
		return nodeflow.NewStore(rt.initial)
	}, func(s store, action nodeflow.Action, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if werr := writeReport(e, action, s); werr != nil {
			e.logger.Warn("write report: %v", werr)
		}
	})

	handle, err := scheduler.ScheduleCron(cron.JobConfig{
		Expression:      c.Spec,
		MaxRuns:         c.Times,
		ContinueOnError: true,
	}, job)
	if err != nil {
		return err
	}
	if err := scheduler.Start(e.ctx); err != nil {
		return err
	}

	select {
	case <-handle.Done():
	case <-e.ctx.Done():
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		return err
	}
	e.logger.Info("schedule finished after %d runs", handle.Runs())
	return c.writeMetrics(rt)
}

type NodesCmd struct{}

func (c *NodesCmd) Run(e *env) error {
	reg, err := builtins(e.logger)
	if err != nil {
		return err
	}
	for _, name := range reg.Names() {
		fmt.Fprintln(e.out, name)
	}
	return nil
}

func writeReport(e *env, action nodeflow.Action, s store) error {
	data, err := yaml.Marshal(runReport{Action: action.String(), Store: s.Snapshot()})
	if err != nil {
		return err
	}
	if _, err := e.out.Write(data); err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.out, "---")
	return err
}

// parseAssignments turns KEY=VALUE pairs into store values, decoding each
// value as YAML so numbers and lists keep their types.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.New(fmt.Sprintf("invalid assignment %q, want KEY=VALUE", pair), errors.CategoryBadInput).
				WithTextCode("CLI_ASSIGNMENT_INVALID")
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, fmt.Sprintf("decode value of %s", key)).
				WithTextCode("CLI_ASSIGNMENT_INVALID")
		}
		out[key] = value
	}
	return out, nil
}
