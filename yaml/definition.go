// Package yaml loads declarative graph definitions and builds runnable
// nodeflow graphs from them. A definition names sources (fixed initial
// values), transform nodes (a compute step plus input specs and output
// keys) and sinks. Compute steps are pluggable by type; the built-in types
// are const, lua and jsonpath.
//
// Nodes are constructed in file order, so a node may only reference nodes
// defined before it — the same rule the programmatic builder enforces.
package yaml

import (
	"errors"
	"fmt"

	goyaml "github.com/goccy/go-yaml"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDefinition wraps schema and structural validation failures.
var ErrInvalidDefinition = errors.New("yaml: invalid graph definition")

// GraphDefinition is the top-level document.
type GraphDefinition struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Version     string             `yaml:"version,omitempty"`
	Sources     []SourceDefinition `yaml:"sources"`
	Nodes       []NodeDefinition   `yaml:"nodes,omitempty"`
	Sinks       []SinkDefinition   `yaml:"sinks,omitempty"`
}

// SourceDefinition declares a source node and its initial values.
type SourceDefinition struct {
	Name   string         `yaml:"name"`
	Values map[string]any `yaml:"values"`
}

// InputSpec references one value produced by another node.
type InputSpec struct {
	Node string `yaml:"node"`
	Key  string `yaml:"key"`
}

// NodeDefinition declares a transform node.
type NodeDefinition struct {
	Name    string         `yaml:"name"`
	Inputs  []InputSpec    `yaml:"inputs"`
	Outputs []string       `yaml:"outputs"`
	Step    StepDefinition `yaml:"step"`
}

// StepDefinition selects and configures a compute step.
type StepDefinition struct {
	Type   string         `yaml:"type"`
	Script string         `yaml:"script,omitempty"` // lua
	Path   string         `yaml:"path,omitempty"`   // jsonpath
	Values map[string]any `yaml:"values,omitempty"` // const
}

// SinkDefinition declares a sink node.
type SinkDefinition struct {
	Name   string      `yaml:"name"`
	Inputs []InputSpec `yaml:"inputs"`
}

// graphSchema validates the raw document before it is decoded into structs.
var graphSchema = map[string]any{
	"type":                 "object",
	"required":             []any{"name", "sources"},
	"additionalProperties": false,
	"properties": map[string]any{
		"name":        map[string]any{"type": "string", "minLength": 1},
		"description": map[string]any{"type": "string"},
		"version":     map[string]any{"type": "string"},
		"sources": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"required":             []any{"name", "values"},
				"additionalProperties": false,
				"properties": map[string]any{
					"name":   map[string]any{"type": "string", "minLength": 1},
					"values": map[string]any{"type": "object", "minProperties": 1},
				},
			},
		},
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"required":             []any{"name", "inputs", "outputs", "step"},
				"additionalProperties": false,
				"properties": map[string]any{
					"name":    map[string]any{"type": "string", "minLength": 1},
					"inputs":  inputsSchema,
					"outputs": map[string]any{"type": "array", "minItems": 1, "items": map[string]any{"type": "string"}},
					"step": map[string]any{
						"type":     "object",
						"required": []any{"type"},
						"properties": map[string]any{
							"type":   map[string]any{"type": "string", "enum": []any{"const", "lua", "jsonpath"}},
							"script": map[string]any{"type": "string"},
							"path":   map[string]any{"type": "string"},
							"values": map[string]any{"type": "object"},
						},
					},
				},
			},
		},
		"sinks": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"required":             []any{"name", "inputs"},
				"additionalProperties": false,
				"properties": map[string]any{
					"name":   map[string]any{"type": "string", "minLength": 1},
					"inputs": inputsSchema,
				},
			},
		},
	},
}

var inputsSchema = map[string]any{
	"type":     "array",
	"minItems": 1,
	"items": map[string]any{
		"type":                 "object",
		"required":             []any{"node", "key"},
		"additionalProperties": false,
		"properties": map[string]any{
			"node": map[string]any{"type": "string", "minLength": 1},
			"key":  map[string]any{"type": "string", "minLength": 1},
		},
	},
}

// Parse decodes and validates a graph definition. The raw document is
// checked against the JSON schema first so error messages point at the
// offending field rather than a decoding artifact.
func Parse(data []byte) (*GraphDefinition, error) {
	var raw map[string]any
	if err := goyaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("yaml: parse: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	var def GraphDefinition
	if err := goyaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("yaml: decode: %w", err)
	}
	return &def, nil
}

func validateSchema(raw map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(graphSchema)
	docLoader := gojsonschema.NewGoLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("yaml: schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, msgs)
	}
	return nil
}
