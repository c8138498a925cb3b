package nodeflow

import (
	"fmt"

	"github.com/agentstation/nodeflow/exec"
)

// Condition adds a branching node. The predicate computes one branch index
// from the resolved inputs; exactly the successor at that index runs and the
// rest are skipped. The chosen index is exposed on the node's "result"
// output key.
func (b *Builder) Condition(name string, inputs []Input, pred Predicate, successors []exec.Task) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	out, err := newOutputs([]string{"result"})
	if err != nil {
		return exec.Task{}, err
	}
	bound, preds, err := b.bindInputs(name, inputs)
	if err != nil {
		return exec.Task{}, err
	}
	n := &Node{name: name, kind: KindCondition, inputs: cloneInputs(inputs), bound: bound, out: out}
	task := b.tf.EmplaceCondition(name, func(rt *exec.Runtime) (int, error) {
		ctx := rt.Context()
		in, err := n.resolve(ctx)
		if err != nil {
			return 0, err
		}
		idx, err := pred(ctx, in)
		if err != nil {
			return 0, err
		}
		if err := out.put("result", idx); err != nil {
			return 0, err
		}
		return idx, nil
	})
	for _, p := range preds {
		p.Precede(task)
	}
	task.Precede(successors...)
	b.add(n, task)
	return task, nil
}

// MultiCondition adds a parallel-branching node. The predicate computes a
// set of branch indices; exactly that subset of successors runs, in
// parallel. The chosen index set is exposed on the "result" output key.
func (b *Builder) MultiCondition(name string, inputs []Input, pred MultiPredicate, successors []exec.Task) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	out, err := newOutputs([]string{"result"})
	if err != nil {
		return exec.Task{}, err
	}
	bound, preds, err := b.bindInputs(name, inputs)
	if err != nil {
		return exec.Task{}, err
	}
	n := &Node{name: name, kind: KindMultiCondition, inputs: cloneInputs(inputs), bound: bound, out: out}
	task := b.tf.EmplaceMultiCondition(name, func(rt *exec.Runtime) ([]int, error) {
		ctx := rt.Context()
		in, err := n.resolve(ctx)
		if err != nil {
			return nil, err
		}
		idxs, err := pred(ctx, in)
		if err != nil {
			return nil, err
		}
		if err := out.put("result", idxs); err != nil {
			return nil, err
		}
		return idxs, nil
	})
	for _, p := range preds {
		p.Precede(task)
	}
	task.Precede(successors...)
	b.add(n, task)
	return task, nil
}

// Loop adds an iterative construct encoded as three tasks: body, condition
// and exit. The body runs first and always precedes the condition; the
// condition dispatches back to the body while the predicate returns 0 and to
// the exit graph (at most once) otherwise.
//
// Channels are single-assignment, so the body cannot reuse nodes across
// iterations: every invocation constructs a brand-new nested builder and
// node set and runs it to completion on the same executor. State that must
// survive iterations is carried through an externally owned Cell shared by
// the body and predicate closures; body and predicate run strictly one at a
// time, and keeping access to that cell sequential is the caller's contract.
//
// The returned task completes when the loop exits, for wiring downstream
// ordering.
func (b *Builder) Loop(name string, inputs []Input, body LoopBodyFunc, pred LoopPredicate, exit BuildFunc) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	bound, preds, err := b.bindInputs(name, inputs)
	if err != nil {
		return exec.Task{}, err
	}
	out, _ := newOutputs(nil)
	n := &Node{name: name, kind: KindLoop, inputs: cloneInputs(inputs), bound: bound, out: out}

	// init anchors upstream edges and resolves the loop's inputs once; the
	// values cannot change between iterations.
	var resolved map[string]any
	init := b.tf.Emplace(name+".init", func(rt *exec.Runtime) error {
		var err error
		resolved, err = n.resolve(rt.Context())
		return err
	})

	iteration := 0
	bodyTask := b.tf.Emplace(name+".body", func(rt *exec.Runtime) error {
		nb := b.nest(fmt.Sprintf("%s.body.%d", name, iteration))
		iteration++
		if err := body(nb, resolved); err != nil {
			return fmt.Errorf("loop %q body: %w", name, err)
		}
		return rt.Corun(nb.tf)
	})

	condTask := b.tf.EmplaceCondition(name+".cond", func(rt *exec.Runtime) (int, error) {
		idx, err := pred(rt.Context())
		if err != nil {
			return 0, err
		}
		if idx == 0 {
			return 0, nil
		}
		return 1, nil
	})

	exitBuilder := b.child(name + ".exit")
	if exit != nil {
		if err := exit(exitBuilder); err != nil {
			return exec.Task{}, fmt.Errorf("loop %q exit: %w", name, err)
		}
	}
	exitTask := b.tf.ComposedOf(name+".exit", exitBuilder.tf)

	for _, p := range preds {
		p.Precede(init)
	}
	init.Precede(bodyTask)
	bodyTask.Precede(condTask)
	condTask.Precede(bodyTask, exitTask)

	b.add(n, exitTask)
	return exitTask, nil
}

// Subgraph builds a nested graph once at construction time and composes it
// into the parent as a single schedulable unit of fixed shape.
func (b *Builder) Subgraph(name string, build BuildFunc) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	nb := b.child(name)
	if err := build(nb); err != nil {
		return exec.Task{}, fmt.Errorf("subgraph %q: %w", name, err)
	}
	task := b.tf.ComposedOf(name, nb.tf)
	out, _ := newOutputs(nil)
	b.add(&Node{name: name, kind: KindSubgraph, out: out}, task)
	return task, nil
}

// Subtask builds a nested graph fresh on every invocation and runs it to
// completion via nested execution. Use it when per-invocation inputs change
// the graph's shape or when fresh single-assignment channels are required.
// Dependencies of the nested nodes on outer channels are resolved at run
// time through blocking reads, not surfaced as static edges in the outer
// graph.
func (b *Builder) Subtask(name string, build BuildFunc) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	invocation := 0
	task := b.tf.Emplace(name, func(rt *exec.Runtime) error {
		nb := b.nest(fmt.Sprintf("%s.%d", name, invocation))
		invocation++
		if err := build(nb); err != nil {
			return fmt.Errorf("subtask %q: %w", name, err)
		}
		return rt.Corun(nb.tf)
	})
	out, _ := newOutputs(nil)
	b.add(&Node{name: name, kind: KindSubtask, out: out}, task)
	return task, nil
}

// child creates a nested builder whose taskflow is referenced by a composed
// task; the composition keeps it alive, so it is not added to the retained
// list used for dumping dynamic graphs.
func (b *Builder) child(name string) *Builder {
	return &Builder{
		name:     name,
		tf:       exec.NewTaskflow(name),
		parent:   b,
		nodes:    make(map[string]*Node),
		tasks:    make(map[string]exec.Task),
		adapters: make(map[string]exec.Task),
	}
}

// Cell carries mutable state across loop iterations: the single seam where
// the acyclic single-assignment model cannot express iteration internally.
// It is deliberately unsynchronized; the loop encoding runs body and
// predicate strictly one at a time, and any other sharing is the caller's
// responsibility.
type Cell[T any] struct {
	v T
}

// NewCell creates a cell holding v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{v: v}
}

// Get returns the current value.
func (c *Cell[T]) Get() T { return c.v }

// Set replaces the current value.
func (c *Cell[T]) Set(v T) { c.v = v }
