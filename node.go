package nodeflow

import (
	"context"
	"fmt"
)

// Kind identifies a node variant. The set is closed: dispatch over kinds is
// exhaustive rather than extensible.
type Kind int

const (
	KindSource Kind = iota
	KindTransform
	KindSink
	KindCondition
	KindMultiCondition
	KindLoop
	KindSubgraph
	KindSubtask
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindTransform:
		return "transform"
	case KindSink:
		return "sink"
	case KindCondition:
		return "condition"
	case KindMultiCondition:
		return "multi-condition"
	case KindLoop:
		return "loop"
	case KindSubgraph:
		return "subgraph"
	case KindSubtask:
		return "subtask"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Input identifies one value a node reads: the producing node's name and
// the output key on that node.
type Input struct {
	Node string
	Key  string
}

// StepFunc is a type-erased compute step. It receives the resolved input
// values keyed by input key and must return exactly the node's declared
// output keys.
type StepFunc func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// SinkFunc consumes resolved values for side effects.
type SinkFunc func(ctx context.Context, inputs map[string]any) error

// Predicate computes a branch index from resolved inputs.
type Predicate func(ctx context.Context, inputs map[string]any) (int, error)

// MultiPredicate computes a set of branch indices from resolved inputs.
type MultiPredicate func(ctx context.Context, inputs map[string]any) ([]int, error)

// LoopPredicate decides whether a loop continues. Index 0 continues with
// another body iteration; any other index exits. Cross-iteration state lives
// in an externally owned Cell, not in graph channels.
type LoopPredicate func(ctx context.Context) (int, error)

// BuildFunc populates a nested builder.
type BuildFunc func(b *Builder) error

// LoopBodyFunc populates a fresh nested builder for one loop iteration. The
// inputs map holds the loop's resolved input values; it is the same map on
// every iteration, a direct consequence of single-assignment channels.
type LoopBodyFunc func(b *Builder, inputs map[string]any) error

// Node is a named computation unit with keyed inputs and outputs.
type Node struct {
	name   string
	kind   Kind
	inputs []Input
	bound  []*Channel[any]
	out    *Outputs
}

// Name returns the node's unique name within its builder.
func (n *Node) Name() string { return n.name }

// Kind returns the node variant.
func (n *Node) Kind() Kind { return n.kind }

// Inputs returns the node's input specs in declaration order.
func (n *Node) Inputs() []Input {
	inputs := make([]Input, len(n.inputs))
	copy(inputs, n.inputs)
	return inputs
}

// Outputs returns the node's output registry.
func (n *Node) Outputs() *Outputs { return n.out }

// resolve blocks until every bound input channel is fulfilled and returns
// the values keyed by input key. Two inputs sharing a key overwrite each
// other; keys are expected to be distinct per node.
func (n *Node) resolve(ctx context.Context) (map[string]any, error) {
	vals := make(map[string]any, len(n.inputs))
	for i, in := range n.inputs {
		v, err := n.bound[i].Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("input %s.%s: %w", in.Node, in.Key, err)
		}
		vals[in.Key] = v
	}
	return vals, nil
}
