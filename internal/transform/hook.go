// Package transform implements the sink-side record->records pipeline.
// A Hook is pure with respect to its input record; the sink applies
// outputs in input order regardless of how a hook orders its own
// output slice, per spec.md §4.6.
package transform

import (
	"fmt"

	"github.com/streamkeep/pgcdc/pkg/event"
)

// Hook maps one event to zero or more derived events.
type Hook func(event.ReplicationEvent) ([]event.ReplicationEvent, error)

// Identity is the default hook: every event passes through unchanged.
func Identity(e event.ReplicationEvent) ([]event.ReplicationEvent, error) {
	return []event.ReplicationEvent{e}, nil
}

// Chain composes hooks left to right: each hook's output events are
// fed individually into the next hook, and all outputs are
// concatenated. An empty chain behaves like Identity.
func Chain(hooks ...Hook) Hook {
	if len(hooks) == 0 {
		return Identity
	}
	return func(e event.ReplicationEvent) ([]event.ReplicationEvent, error) {
		stage := []event.ReplicationEvent{e}
		for _, h := range hooks {
			var next []event.ReplicationEvent
			for _, ev := range stage {
				out, err := h(ev)
				if err != nil {
					return nil, err
				}
				next = append(next, out...)
			}
			stage = next
			if len(stage) == 0 {
				break
			}
		}
		return stage, nil
	}
}

// Config names one configured hook in a transform_chain, in the shape
// pkg/config decodes from YAML/env via mapstructure.
type Config struct {
	Type   string                 `mapstructure:"type"`
	Params map[string]interface{} `mapstructure:"params"`
}

// Factory builds a Hook from its configured params.
type Factory func(params map[string]interface{}, deps Deps) (Hook, error)

// Deps are the dependencies builtin factories need beyond their own
// params: the schema cache, to resolve a row event's table identity.
type Deps struct {
	Schema SchemaResolver
}

// SchemaResolver is the subset of schemacache.Cache the builtins need.
type SchemaResolver interface {
	Get(relID uint32) (event.RelationBody, bool)
}

// Registry maps a transform_chain entry's "type" to the Factory that
// builds it.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// RegisterBuiltins registers the filter/extract/replace hooks shipped
// with this package.
func (r *Registry) RegisterBuiltins() {
	r.Register("filter", newFilterHook)
	r.Register("extract", newExtractHook)
	r.Register("replace", newReplaceHook)
}

// Build resolves a configured transform_chain into a single composed
// Hook.
func (r *Registry) Build(configs []Config, deps Deps) (Hook, error) {
	hooks := make([]Hook, 0, len(configs))
	for _, c := range configs {
		factory, ok := r.factories[c.Type]
		if !ok {
			return nil, fmt.Errorf("transform: unknown hook type %q", c.Type)
		}
		h, err := factory(c.Params, deps)
		if err != nil {
			return nil, fmt.Errorf("transform: build %q: %w", c.Type, err)
		}
		hooks = append(hooks, h)
	}
	return Chain(hooks...), nil
}
