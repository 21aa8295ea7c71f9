package flow

import (
	"fmt"
	"os"

	"github.com/goliatone/go-nodeflow"
	"gopkg.in/yaml.v3"
)

// BuildContext bundles the registries needed to construct graphs from config.
type BuildContext[S any] struct {
	Nodes     *NodeRegistry[S]
	Recorders *MetricsRecorderRegistry
	Logger    Logger
}

// ParseGraphSet parses JSON or YAML into a validated GraphSet.
func ParseGraphSet(data []byte) (GraphSet, error) {
	var cfg GraphSet
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		// yaml can handle JSON too, so a single attempt is fine
		return cfg, nodeflow.NewError(nodeflow.ErrGraphInvalid, "parse graph set: "+err.Error(), err, nil)
	}
	return cfg, cfg.Validate()
}

// LoadGraphSet reads and parses a graph set file.
func LoadGraphSet(path string) (GraphSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GraphSet{}, err
	}
	cfg, err := ParseGraphSet(data)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// MarshalGraphSet renders a GraphSet as YAML (useful for fixtures).
func MarshalGraphSet(cfg GraphSet) ([]byte, error) {
	return yaml.Marshal(cfg)
}

type builtGraph[S any] struct {
	def   GraphDefinition
	inner *Flow[S]
	unit  Runnable[S]
}

// BuildGraphs constructs every graph of cfg and returns them by id. Graphs
// are created before their nodes, so nodes may reference any graph of the
// set, including the one they belong to.
func BuildGraphs[S any](cfg GraphSet, bctx BuildContext[S]) (map[string]Runnable[S], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	graphs := make(map[string]*builtGraph[S], len(cfg.Graphs))
	for _, def := range cfg.Graphs {
		g, err := buildGraphShell(def, bctx)
		if err != nil {
			return nil, fmt.Errorf("build graph %s: %w", def.ID, err)
		}
		graphs[def.ID] = g
	}

	for _, def := range cfg.Graphs {
		if err := buildGraphNodes(def, cfg.Defaults, graphs, bctx); err != nil {
			return nil, fmt.Errorf("build graph %s: %w", def.ID, err)
		}
	}

	out := make(map[string]Runnable[S], len(graphs))
	for id, g := range graphs {
		out[id] = g.unit
	}
	return out, nil
}

func buildGraphShell[S any](def GraphDefinition, bctx BuildContext[S]) (*builtGraph[S], error) {
	inner := NewFlow[S](nil,
		WithName(def.ID),
		WithParams(def.Params),
		WithMaxSteps(def.MaxSteps),
		WithLogger(bctx.Logger),
	)
	g := &builtGraph[S]{def: def, inner: inner, unit: inner}

	if kind := def.KindOrDefault(); kind != KindFlow {
		life, err := batchLifecycle(def, bctx.Nodes)
		if err != nil {
			return nil, err
		}
		strategy, err := ParseErrorStrategy(def.ErrorStrategy)
		if err != nil {
			return nil, err
		}
		opts := []Option{
			WithName(def.ID),
			WithParams(def.Params),
			WithLogger(bctx.Logger),
			WithErrorStrategy(strategy),
		}
		if kind == KindParallelBatchFlow {
			g.unit = NewParallelBatchFlow[S](inner, life, opts...)
		} else {
			g.unit = NewSerialBatchFlow[S](inner, life, opts...)
		}
	}

	if def.Metrics != "" {
		recorder, err := lookupRecorder(def.Metrics, bctx.Recorders)
		if err != nil {
			return nil, err
		}
		g.unit = Instrument(g.unit, recorder)
	}
	return g, nil
}

func batchLifecycle[S any](def GraphDefinition, reg *NodeRegistry[S]) (nodeflow.BatchFlowLifecycle[S], error) {
	if def.BatchSource != "" {
		life, ok := reg.LookupBatchSource(def.BatchSource)
		if !ok {
			return nil, notFound(fmt.Sprintf("batch source %s not found", def.BatchSource), map[string]any{
				"graph": def.ID,
				"ref":   def.BatchSource,
			})
		}
		return life, nil
	}
	batches := make([]nodeflow.Params, 0, len(def.Batches))
	for _, b := range def.Batches {
		batches = append(batches, nodeflow.Params(b))
	}
	return nodeflow.StaticBatches[S](batches...), nil
}

func buildGraphNodes[S any](def GraphDefinition, defaults NodeOptions, graphs map[string]*builtGraph[S], bctx BuildContext[S]) error {
	units := make(map[string]Runnable[S], len(def.Nodes))
	for _, nd := range def.Nodes {
		unit, err := buildNode(nd, defaults, graphs, bctx)
		if err != nil {
			return fmt.Errorf("node %s: %w", nd.ID, err)
		}
		units[nd.ID] = unit
	}

	for _, nd := range def.Nodes {
		for action, target := range nd.Next {
			units[nd.ID].On(nodeflow.Action(action), units[target])
		}
	}

	graphs[def.ID].inner.SetStart(units[def.StartID()])
	return nil
}

func buildNode[S any](nd NodeDefinition, defaults NodeOptions, graphs map[string]*builtGraph[S], bctx BuildContext[S]) (Runnable[S], error) {
	opts := mergeNodeOptions(defaults, nd.NodeOptions)

	var unit Runnable[S]
	if nd.Flow != "" {
		// a fresh wrapper per reference keeps each node's transitions apart
		target := graphs[nd.Flow]
		unit = NewFlow[S](target.unit,
			WithName(nd.ID),
			WithParams(nd.Params),
			WithLogger(bctx.Logger),
		)
	} else {
		factory, ok := bctx.Nodes.Lookup(nd.Use)
		if !ok {
			return nil, notFound(fmt.Sprintf("node factory %s not found", nd.Use), map[string]any{
				"node": nd.ID,
				"ref":  nd.Use,
			})
		}
		strategy, err := ParseErrorStrategy(opts.ErrorStrategy)
		if err != nil {
			return nil, err
		}
		unitOpts := []Option{
			WithName(nd.ID),
			WithParams(nd.Params),
			WithLogger(bctx.Logger),
			WithErrorStrategy(strategy),
		}
		if opts.MaxAttempts > 0 {
			unitOpts = append(unitOpts, WithMaxAttempts(opts.MaxAttempts))
		}
		if opts.Wait > 0 {
			unitOpts = append(unitOpts, WithWait(opts.Wait))
		}
		unit, err = factory(nd, unitOpts...)
		if err != nil {
			return nil, err
		}
		if unit == nil {
			return nil, invalid(fmt.Sprintf("node factory %s returned no unit", nd.Use), map[string]any{
				"node": nd.ID,
				"ref":  nd.Use,
			})
		}
	}

	if opts.Metrics != "" {
		recorder, err := lookupRecorder(opts.Metrics, bctx.Recorders)
		if err != nil {
			return nil, err
		}
		unit = Instrument(unit, recorder)
	}
	return unit, nil
}

func lookupRecorder(name string, reg *MetricsRecorderRegistry) (MetricsRecorder, error) {
	recorder, ok := reg.Lookup(name)
	if !ok {
		return nil, notFound(fmt.Sprintf("metrics recorder %s not found", name), map[string]any{
			"ref": name,
		})
	}
	return recorder, nil
}
