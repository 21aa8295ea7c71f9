package flow

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-nodeflow"
)

// NodeFactory builds a unit from its graph definition. opts carry the name,
// parameters, retry policy and logger resolved by the builder and should be
// passed on to the unit constructor.
type NodeFactory[S any] func(def NodeDefinition, opts ...Option) (Runnable[S], error)

// NodeRegistry stores named node factories and batch sources used when
// building graphs from config.
type NodeRegistry[S any] struct {
	factories  map[string]NodeFactory[S]
	batches    map[string]nodeflow.BatchFlowLifecycle[S]
	namespacer func(string, string) string
}

// NewNodeRegistry creates an empty registry.
func NewNodeRegistry[S any]() *NodeRegistry[S] {
	return &NodeRegistry[S]{
		factories:  make(map[string]NodeFactory[S]),
		batches:    make(map[string]nodeflow.BatchFlowLifecycle[S]),
		namespacer: defaultNamespace,
	}
}

// SetNamespacer customizes how IDs are namespaced.
func (r *NodeRegistry[S]) SetNamespacer(fn func(string, string) string) {
	if fn != nil {
		r.namespacer = fn
	}
}

// Register stores a factory by id.
func (r *NodeRegistry[S]) Register(id string, f NodeFactory[S]) error {
	return r.RegisterNamespaced("", id, f)
}

// RegisterNamespaced stores a factory using a namespace + id.
func (r *NodeRegistry[S]) RegisterNamespaced(namespace, id string, f NodeFactory[S]) error {
	if id == "" || f == nil {
		return nil
	}
	if r.factories == nil {
		r.factories = make(map[string]NodeFactory[S])
	}
	key := r.key(namespace, id)
	if _, exists := r.factories[key]; exists {
		return conflict("node factory", key)
	}
	r.factories[key] = f
	return nil
}

// Lookup returns a factory by id.
func (r *NodeRegistry[S]) Lookup(id string) (NodeFactory[S], bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.factories[id]
	return f, ok
}

// Names returns the registered factory ids sorted.
func (r *NodeRegistry[S]) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.factories))
	for k := range r.factories {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// RegisterBatchSource stores a batch flow lifecycle that graphs can name as
// their batch_source.
func (r *NodeRegistry[S]) RegisterBatchSource(id string, life nodeflow.BatchFlowLifecycle[S]) error {
	if id == "" || life == nil {
		return nil
	}
	if r.batches == nil {
		r.batches = make(map[string]nodeflow.BatchFlowLifecycle[S])
	}
	key := r.key("", id)
	if _, exists := r.batches[key]; exists {
		return conflict("batch source", key)
	}
	r.batches[key] = life
	return nil
}

// LookupBatchSource returns a batch source by id.
func (r *NodeRegistry[S]) LookupBatchSource(id string) (nodeflow.BatchFlowLifecycle[S], bool) {
	if r == nil {
		return nil, false
	}
	life, ok := r.batches[id]
	return life, ok
}

func (r *NodeRegistry[S]) key(namespace, id string) string {
	if r.namespacer == nil {
		return id
	}
	return r.namespacer(namespace, id)
}

func conflict(kind, key string) error {
	return nodeflow.NewError(nodeflow.ErrRegistryConflict, fmt.Sprintf("%s %s already registered", kind, key), nil, map[string]any{
		"kind": kind,
		"key":  key,
	})
}
