package nodeflow

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentstation/nodeflow/exec"
)

// Builder owns the node registry of one graph and translates nodes into
// scheduler tasks with inferred precedence edges. Dependency inference is
// purely structural: node B reading key K written by node A implies exactly
// one scheduling edge A -> B, however many keys B reads from A.
//
// Builders nest: loop bodies and dynamic subtasks construct fresh child
// builders at run time, which the parent retains until the run ends so the
// composed tasks stay alive for the scheduler.
type Builder struct {
	name   string
	tf     *exec.Taskflow
	parent *Builder

	nodes    map[string]*Node
	tasks    map[string]exec.Task
	adapters map[string]exec.Task

	mu     sync.Mutex
	nested []*Builder
}

// NewBuilder creates an empty graph builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:     name,
		tf:       exec.NewTaskflow(name),
		nodes:    make(map[string]*Node),
		tasks:    make(map[string]exec.Task),
		adapters: make(map[string]exec.Task),
	}
}

// Name returns the builder's name.
func (b *Builder) Name() string { return b.name }

// Node returns the registered node with the given name, searching enclosing
// builders for nested graphs.
func (b *Builder) Node(name string) (*Node, bool) {
	return b.lookup(name)
}

func (b *Builder) lookup(name string) (*Node, bool) {
	for cur := b; cur != nil; cur = cur.parent {
		if n, ok := cur.nodes[name]; ok {
			return n, true
		}
	}
	return nil, false
}

func (b *Builder) checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrDuplicateNode)
	}
	if _, exists := b.nodes[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, name)
	}
	return nil
}

func (b *Builder) add(n *Node, t exec.Task) {
	b.nodes[n.name] = n
	b.tasks[n.name] = t
}

// nest creates a child builder retained for the lifetime of the run.
func (b *Builder) nest(name string) *Builder {
	nb := &Builder{
		name:     name,
		tf:       exec.NewTaskflow(name),
		parent:   b,
		nodes:    make(map[string]*Node),
		tasks:    make(map[string]exec.Task),
		adapters: make(map[string]exec.Task),
	}
	b.mu.Lock()
	b.nested = append(b.nested, nb)
	b.mu.Unlock()
	return nb
}

// bindInputs resolves each input spec to its channel and collects the
// deduplicated set of local producer tasks for precedence wiring. A producer
// living in an enclosing builder contributes no edge: its task belongs to a
// different taskflow and the read synchronizes through the channel at run
// time. Condition producers contribute no edge either — an edge out of a
// condition task is a conditional successor slot, not an ordering
// constraint, so a reader of the "result" key synchronizes through the
// channel alone.
func (b *Builder) bindInputs(target string, inputs []Input) ([]*Channel[any], []exec.Task, error) {
	bound := make([]*Channel[any], len(inputs))
	var preds []exec.Task
	seen := make(map[string]bool, len(inputs))
	for i, in := range inputs {
		src, ok := b.lookup(in.Node)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q (input of %q)", ErrNodeNotFound, in.Node, target)
		}
		ch, err := src.out.Channel(in.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("input of %q from node %q: %w", target, in.Node, err)
		}
		bound[i] = ch
		if src.kind == KindCondition || src.kind == KindMultiCondition {
			continue
		}
		if t, ok := b.tasks[in.Node]; ok && !seen[in.Node] {
			seen[in.Node] = true
			preds = append(preds, t)
		}
	}
	return bound, preds, nil
}

// Source adds a node with no inputs that emits a fixed initial value set.
// The output keys are the value map's keys.
func (b *Builder) Source(name string, values map[string]any) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	vals := maps.Clone(values)
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	out, err := newOutputs(keys)
	if err != nil {
		return exec.Task{}, fmt.Errorf("source %q: %w", name, err)
	}
	n := &Node{name: name, kind: KindSource, out: out}
	task := b.tf.Emplace(name, func(*exec.Runtime) error {
		for k, v := range vals {
			if err := out.put(k, v); err != nil {
				return err
			}
		}
		return nil
	})
	b.add(n, task)
	return task, nil
}

// Transform adds a type-erased node: the step receives the resolved input
// values and must return exactly the declared output keys. A missing or
// undeclared key fails the node's task and fulfils no channel.
func (b *Builder) Transform(name string, inputs []Input, step StepFunc, outputKeys []string) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	out, err := newOutputs(outputKeys)
	if err != nil {
		return exec.Task{}, fmt.Errorf("transform %q: %w", name, err)
	}
	bound, preds, err := b.bindInputs(name, inputs)
	if err != nil {
		return exec.Task{}, err
	}
	n := &Node{name: name, kind: KindTransform, inputs: cloneInputs(inputs), bound: bound, out: out}
	task := b.tf.Emplace(name, func(rt *exec.Runtime) error {
		ctx := rt.Context()
		in, err := n.resolve(ctx)
		if err != nil {
			return err
		}
		res, err := step(ctx, in)
		if err != nil {
			return err
		}
		return out.fulfill(res)
	})
	for _, p := range preds {
		p.Precede(task)
	}
	b.add(n, task)
	return task, nil
}

// Sink adds a node that consumes resolved values for side effects and
// produces nothing. A nil callback discards the values.
func (b *Builder) Sink(name string, inputs []Input, fn SinkFunc) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	bound, preds, err := b.bindInputs(name, inputs)
	if err != nil {
		return exec.Task{}, err
	}
	out, _ := newOutputs(nil)
	n := &Node{name: name, kind: KindSink, inputs: cloneInputs(inputs), bound: bound, out: out}
	task := b.tf.Emplace(name, func(rt *exec.Runtime) error {
		ctx := rt.Context()
		in, err := n.resolve(ctx)
		if err != nil {
			return err
		}
		if fn == nil {
			return nil
		}
		return fn(ctx, in)
	})
	for _, p := range preds {
		p.Precede(task)
	}
	b.add(n, task)
	return task, nil
}

// Run builds nothing further; it hands the graph to the executor and blocks
// until completion.
func (b *Builder) Run(ctx context.Context, e *exec.Executor) error {
	return e.Run(ctx, b.tf)
}

// RunAsync hands the graph to the executor and returns immediately.
func (b *Builder) RunAsync(ctx context.Context, e *exec.Executor) *exec.Future {
	return e.RunAsync(ctx, b.tf)
}

// Dump writes a GraphViz dot rendering of the graph, including statically
// composed subgraphs and any nested graphs constructed so far by loops and
// subtasks.
func (b *Builder) Dump(w io.Writer) error {
	if err := b.tf.Dump(w); err != nil {
		return err
	}
	b.mu.Lock()
	nested := make([]*Builder, len(b.nested))
	copy(nested, b.nested)
	b.mu.Unlock()
	for _, nb := range nested {
		if err := nb.Dump(w); err != nil {
			return err
		}
	}
	return nil
}

// RunConcurrent runs independent graphs in parallel on one executor and
// returns the first error.
func RunConcurrent(ctx context.Context, e *exec.Executor, builders ...*Builder) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range builders {
		b := b
		g.Go(func() error {
			if err := b.Run(gctx, e); err != nil {
				return fmt.Errorf("graph %s: %w", b.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func cloneInputs(inputs []Input) []Input {
	out := make([]Input, len(inputs))
	copy(out, inputs)
	return out
}
