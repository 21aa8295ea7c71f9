package flow

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-nodeflow"
)

const (
	KindFlow              = "flow"
	KindSerialBatchFlow   = "serial_batch_flow"
	KindParallelBatchFlow = "parallel_batch_flow"
)

// GraphSet represents a collection of graphs loaded from config.
type GraphSet struct {
	Version  int               `json:"version" yaml:"version"`
	Graphs   []GraphDefinition `json:"graphs" yaml:"graphs"`
	Defaults NodeOptions       `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Meta     map[string]any    `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// GraphDefinition describes one graph. Batch kinds run the graph's nodes once
// per parameter set, taken from Batches or from a registered BatchSource.
type GraphDefinition struct {
	ID            string           `json:"id" yaml:"id"`
	Kind          string           `json:"kind,omitempty" yaml:"kind,omitempty"`
	Start         string           `json:"start,omitempty" yaml:"start,omitempty"`
	Params        map[string]any   `json:"params,omitempty" yaml:"params,omitempty"`
	MaxSteps      int              `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
	Batches       []map[string]any `json:"batches,omitempty" yaml:"batches,omitempty"`
	BatchSource   string           `json:"batch_source,omitempty" yaml:"batch_source,omitempty"`
	ErrorStrategy string           `json:"error_strategy,omitempty" yaml:"error_strategy,omitempty"`
	Metrics       string           `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Nodes         []NodeDefinition `json:"nodes" yaml:"nodes"`
}

// NodeDefinition describes one unit of a graph. Exactly one of Use (a
// registered factory) or Flow (another graph of the set) is required.
type NodeDefinition struct {
	ID          string         `json:"id" yaml:"id"`
	Use         string         `json:"use,omitempty" yaml:"use,omitempty"`
	Flow        string         `json:"flow,omitempty" yaml:"flow,omitempty"`
	Params      map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	NodeOptions `json:",inline" yaml:",inline"`
	Next        map[string]string `json:"next,omitempty" yaml:"next,omitempty"`
}

// NodeOptions captures the per-node runtime settings. Zero values inherit
// from GraphSet.Defaults, so a node cannot reset a non-zero default back to
// zero.
type NodeOptions struct {
	// MaxAttempts of 1 disables retries even when the defaults enable them.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// Wait of 0 (or omitted) keeps the default wait. Lower the default
	// instead of the node when some nodes must retry without a delay.
	Wait          time.Duration `json:"wait,omitempty" yaml:"wait,omitempty"`
	ErrorStrategy string        `json:"error_strategy,omitempty" yaml:"error_strategy,omitempty"`
	Metrics       string        `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Validate performs structural validation, including every cross reference
// between graphs and nodes.
func (c GraphSet) Validate() error {
	if err := c.Defaults.validate("defaults"); err != nil {
		return err
	}
	graphs := make(map[string]struct{}, len(c.Graphs))
	for idx, def := range c.Graphs {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("graph[%d]: %w", idx, err)
		}
		if _, exists := graphs[def.ID]; exists {
			return invalid(fmt.Sprintf("duplicate graph %s", def.ID), map[string]any{"graph": def.ID})
		}
		graphs[def.ID] = struct{}{}
	}
	for _, def := range c.Graphs {
		for _, node := range def.Nodes {
			if node.Flow == "" {
				continue
			}
			if _, ok := graphs[node.Flow]; !ok {
				return notFound(fmt.Sprintf("node %s of graph %s references unknown graph %s", node.ID, def.ID, node.Flow), map[string]any{
					"graph": def.ID,
					"node":  node.ID,
					"ref":   node.Flow,
				})
			}
		}
	}
	return nil
}

// Graph returns the definition with the given id.
func (c GraphSet) Graph(id string) (GraphDefinition, bool) {
	for _, def := range c.Graphs {
		if def.ID == id {
			return def, true
		}
	}
	return GraphDefinition{}, false
}

// IDs returns the graph ids in declaration order.
func (c GraphSet) IDs() []string {
	ids := make([]string, 0, len(c.Graphs))
	for _, def := range c.Graphs {
		ids = append(ids, def.ID)
	}
	return ids
}

// KindOrDefault returns the graph kind, defaulting to a plain flow.
func (d GraphDefinition) KindOrDefault() string {
	if k := strings.TrimSpace(d.Kind); k != "" {
		return k
	}
	return KindFlow
}

// StartID returns the start node id, defaulting to the first node.
func (d GraphDefinition) StartID() string {
	if d.Start != "" {
		return d.Start
	}
	if len(d.Nodes) > 0 {
		return d.Nodes[0].ID
	}
	return ""
}

// Validate checks required fields and node references inside the graph.
func (d GraphDefinition) Validate() error {
	meta := map[string]any{"graph": d.ID}
	if err := validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.Kind, validation.In(KindFlow, KindSerialBatchFlow, KindParallelBatchFlow)),
		validation.Field(&d.MaxSteps, validation.Min(0)),
		validation.Field(&d.Nodes, validation.Required),
	); err != nil {
		return invalidFrom(fmt.Sprintf("graph %s", d.ID), err, meta)
	}

	switch d.KindOrDefault() {
	case KindFlow:
		if len(d.Batches) > 0 || d.BatchSource != "" {
			return invalid(fmt.Sprintf("graph %s: batches require a batch kind", d.ID), meta)
		}
	default:
		if len(d.Batches) > 0 && d.BatchSource != "" {
			return invalid(fmt.Sprintf("graph %s: batches and batch_source are exclusive", d.ID), meta)
		}
	}

	if _, err := ParseErrorStrategy(d.ErrorStrategy); err != nil {
		return err
	}

	nodes := make(map[string]struct{}, len(d.Nodes))
	for _, node := range d.Nodes {
		if err := node.Validate(); err != nil {
			return fmt.Errorf("graph %s: %w", d.ID, err)
		}
		if _, exists := nodes[node.ID]; exists {
			return invalid(fmt.Sprintf("graph %s: duplicate node %s", d.ID, node.ID), meta)
		}
		nodes[node.ID] = struct{}{}
	}

	if _, ok := nodes[d.StartID()]; !ok {
		return notFound(fmt.Sprintf("graph %s: start node %s not found", d.ID, d.Start), meta)
	}
	for _, node := range d.Nodes {
		for action, target := range node.Next {
			if _, ok := nodes[target]; !ok {
				return notFound(fmt.Sprintf("graph %s: node %s routes %q to unknown node %s", d.ID, node.ID, action, target), map[string]any{
					"graph":  d.ID,
					"node":   node.ID,
					"action": action,
					"ref":    target,
				})
			}
		}
	}
	return nil
}

// Validate checks a single node definition.
func (n NodeDefinition) Validate() error {
	meta := map[string]any{"node": n.ID}
	if err := validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required),
		validation.Field(&n.Use, validation.When(n.Flow == "", validation.Required.Error("use or flow is required"))),
		validation.Field(&n.Flow, validation.When(n.Use != "", validation.Empty.Error("use and flow are exclusive"))),
	); err != nil {
		return invalidFrom(fmt.Sprintf("node %s", n.ID), err, meta)
	}
	return n.NodeOptions.validate(n.ID)
}

func (o NodeOptions) validate(owner string) error {
	if err := validation.ValidateStruct(&o,
		validation.Field(&o.MaxAttempts, validation.Min(0)),
		validation.Field(&o.Wait, validation.Min(time.Duration(0))),
	); err != nil {
		return invalidFrom(owner, err, map[string]any{"node": owner})
	}
	if _, err := ParseErrorStrategy(o.ErrorStrategy); err != nil {
		return err
	}
	return nil
}

func mergeNodeOptions(base NodeOptions, overrides ...NodeOptions) NodeOptions {
	out := base
	for _, opt := range overrides {
		if opt.MaxAttempts > 0 {
			out.MaxAttempts = opt.MaxAttempts
		}
		if opt.Wait > 0 {
			out.Wait = opt.Wait
		}
		if opt.ErrorStrategy != "" {
			out.ErrorStrategy = opt.ErrorStrategy
		}
		if opt.Metrics != "" {
			out.Metrics = opt.Metrics
		}
	}
	return out
}

func invalid(message string, metadata map[string]any) error {
	return nodeflow.NewError(nodeflow.ErrGraphInvalid, message, nil, metadata)
}

func invalidFrom(owner string, source error, metadata map[string]any) error {
	return nodeflow.NewError(nodeflow.ErrGraphInvalid, fmt.Sprintf("%s: %v", owner, source), source, metadata)
}

func notFound(message string, metadata map[string]any) error {
	return nodeflow.NewError(nodeflow.ErrNodeNotFound, message, nil, metadata)
}
