package yaml

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/ohler55/ojg/jp"

	"github.com/agentstation/nodeflow"
	"github.com/agentstation/nodeflow/script"
)

// StepBuilder turns a node definition into a compute step. Builders should
// validate their configuration eagerly so a broken definition fails at build
// time, not mid-run.
type StepBuilder func(def *NodeDefinition) (nodeflow.StepFunc, error)

// Loader builds runnable graphs from definitions and collects sink results.
type Loader struct {
	steps map[string]StepBuilder

	mu      sync.Mutex
	results map[string]map[string]any
}

// NewLoader creates a loader with the built-in step types registered.
func NewLoader() *Loader {
	l := &Loader{
		steps:   make(map[string]StepBuilder),
		results: make(map[string]map[string]any),
	}
	l.RegisterStep("const", constStep)
	l.RegisterStep("lua", luaStep)
	l.RegisterStep("jsonpath", jsonPathStep)
	return l
}

// RegisterStep adds or replaces a step type.
func (l *Loader) RegisterStep(typ string, b StepBuilder) {
	l.steps[typ] = b
}

// Build constructs a graph builder from a parsed definition. Sinks deposit
// their resolved input values into the loader's results map, keyed by sink
// name.
func (l *Loader) Build(def *GraphDefinition) (*nodeflow.Builder, error) {
	b := nodeflow.NewBuilder(def.Name)

	for _, s := range def.Sources {
		if _, err := b.Source(s.Name, s.Values); err != nil {
			return nil, err
		}
	}

	for i := range def.Nodes {
		nd := &def.Nodes[i]
		sb, ok := l.steps[nd.Step.Type]
		if !ok {
			return nil, fmt.Errorf("yaml: node %q: unknown step type %q", nd.Name, nd.Step.Type)
		}
		step, err := sb(nd)
		if err != nil {
			return nil, fmt.Errorf("yaml: node %q: %w", nd.Name, err)
		}
		if _, err := b.Transform(nd.Name, toInputs(nd.Inputs), step, nd.Outputs); err != nil {
			return nil, err
		}
	}

	for _, sd := range def.Sinks {
		name := sd.Name
		sink := func(ctx context.Context, in map[string]any) error {
			l.mu.Lock()
			l.results[name] = in
			l.mu.Unlock()
			return nil
		}
		if _, err := b.Sink(name, toInputs(sd.Inputs), sink); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Results returns a copy of the sink results collected by the last run.
func (l *Loader) Results() map[string]map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]map[string]any, len(l.results))
	for name, vals := range l.results {
		out[name] = maps.Clone(vals)
	}
	return out
}

func toInputs(specs []InputSpec) []nodeflow.Input {
	inputs := make([]nodeflow.Input, len(specs))
	for i, s := range specs {
		inputs[i] = nodeflow.Input{Node: s.Node, Key: s.Key}
	}
	return inputs
}

// constStep emits fixed values regardless of inputs.
func constStep(def *NodeDefinition) (nodeflow.StepFunc, error) {
	if len(def.Step.Values) == 0 {
		return nil, fmt.Errorf("const step requires values")
	}
	vals := maps.Clone(def.Step.Values)
	return func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		return maps.Clone(vals), nil
	}, nil
}

// luaStep runs a sandboxed Lua exec function over the resolved inputs.
func luaStep(def *NodeDefinition) (nodeflow.StepFunc, error) {
	if def.Step.Script == "" {
		return nil, fmt.Errorf("lua step requires a script")
	}
	if err := script.Validate(def.Step.Script); err != nil {
		return nil, err
	}
	return script.Step(def.Step.Script), nil
}

// jsonPathStep evaluates a JSONPath expression over the resolved input map
// and writes the match to the node's single output key. The expression is
// parsed at build time so a malformed path fails before the run starts.
func jsonPathStep(def *NodeDefinition) (nodeflow.StepFunc, error) {
	if def.Step.Path == "" {
		return nil, fmt.Errorf("jsonpath step requires a path")
	}
	expr, err := jp.ParseString(def.Step.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath expression: %w", err)
	}
	if len(def.Outputs) != 1 {
		return nil, fmt.Errorf("jsonpath step requires exactly one output key, got %d", len(def.Outputs))
	}
	key := def.Outputs[0]
	return func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		results := expr.Get(map[string]any(inputs))
		var v any
		switch len(results) {
		case 0:
			v = nil
		case 1:
			v = results[0]
		default:
			v = results
		}
		return map[string]any{key: v}, nil
	}, nil
}
