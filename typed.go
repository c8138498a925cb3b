package nodeflow

import (
	"context"
	"fmt"

	"github.com/agentstation/nodeflow/exec"
)

// typedInput bridges a type-erased producer channel into the typed world.
// The builder generates an adapter task that performs the single validated
// downcast and fulfils a typed channel, wired producer -> adapter ->
// consumer; a bad cast fails the adapter with ErrTypeMismatch and the
// consumer's typed channel stays unfulfilled.
func typedInput[T any](b *Builder, consumer string, in Input) (*Channel[T], exec.Task, error) {
	src, ok := b.lookup(in.Node)
	if !ok {
		return nil, exec.Task{}, fmt.Errorf("%w: %q (input of %q)", ErrNodeNotFound, in.Node, consumer)
	}
	anyCh, err := src.out.Channel(in.Key)
	if err != nil {
		return nil, exec.Task{}, fmt.Errorf("input of %q from node %q: %w", consumer, in.Node, err)
	}
	ch := NewChannel[T]()
	name := fmt.Sprintf("%s.%s~%s", in.Node, in.Key, consumer)
	task := b.tf.Emplace(name, func(rt *exec.Runtime) error {
		v, err := GetAs[T](rt.Context(), anyCh)
		if err != nil {
			return fmt.Errorf("adapting %s.%s for %s: %w", in.Node, in.Key, consumer, err)
		}
		return ch.Put(v)
	})
	if t, ok := b.tasks[in.Node]; ok {
		t.Precede(task)
	}
	b.adapters[name] = task
	return ch, task, nil
}

// addTyped registers a typed transform node and wires its adapters.
func addTyped(b *Builder, n *Node, task exec.Task, adapters []exec.Task) {
	for _, a := range adapters {
		a.Precede(task)
	}
	b.add(n, task)
}

// Transform1 adds a typed node with one input and one output. The output
// value type is fixed by the compute function's return type at construction;
// nothing is guessed at run time.
func Transform1[A, R any](b *Builder, name string, in Input, fn func(context.Context, A) (R, error), outKey string) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	out, err := newOutputs([]string{outKey})
	if err != nil {
		return exec.Task{}, err
	}
	chA, tA, err := typedInput[A](b, name, in)
	if err != nil {
		return exec.Task{}, err
	}
	n := &Node{name: name, kind: KindTransform, inputs: []Input{in}, out: out}
	task := b.tf.Emplace(name, func(rt *exec.Runtime) error {
		ctx := rt.Context()
		a, err := chA.Get(ctx)
		if err != nil {
			return err
		}
		r, err := fn(ctx, a)
		if err != nil {
			return err
		}
		return out.put(outKey, r)
	})
	addTyped(b, n, task, []exec.Task{tA})
	return task, nil
}

// Transform2 adds a typed node with two inputs and one output.
func Transform2[A, B, R any](b *Builder, name string, in1, in2 Input, fn func(context.Context, A, B) (R, error), outKey string) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	out, err := newOutputs([]string{outKey})
	if err != nil {
		return exec.Task{}, err
	}
	chA, tA, err := typedInput[A](b, name, in1)
	if err != nil {
		return exec.Task{}, err
	}
	chB, tB, err := typedInput[B](b, name, in2)
	if err != nil {
		return exec.Task{}, err
	}
	n := &Node{name: name, kind: KindTransform, inputs: []Input{in1, in2}, out: out}
	task := b.tf.Emplace(name, func(rt *exec.Runtime) error {
		ctx := rt.Context()
		a, err := chA.Get(ctx)
		if err != nil {
			return err
		}
		v, err := chB.Get(ctx)
		if err != nil {
			return err
		}
		r, err := fn(ctx, a, v)
		if err != nil {
			return err
		}
		return out.put(outKey, r)
	})
	addTyped(b, n, task, []exec.Task{tA, tB})
	return task, nil
}

// Transform3 adds a typed node with three inputs and one output.
func Transform3[A, B, C, R any](b *Builder, name string, in1, in2, in3 Input, fn func(context.Context, A, B, C) (R, error), outKey string) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	out, err := newOutputs([]string{outKey})
	if err != nil {
		return exec.Task{}, err
	}
	chA, tA, err := typedInput[A](b, name, in1)
	if err != nil {
		return exec.Task{}, err
	}
	chB, tB, err := typedInput[B](b, name, in2)
	if err != nil {
		return exec.Task{}, err
	}
	chC, tC, err := typedInput[C](b, name, in3)
	if err != nil {
		return exec.Task{}, err
	}
	n := &Node{name: name, kind: KindTransform, inputs: []Input{in1, in2, in3}, out: out}
	task := b.tf.Emplace(name, func(rt *exec.Runtime) error {
		ctx := rt.Context()
		a, err := chA.Get(ctx)
		if err != nil {
			return err
		}
		v, err := chB.Get(ctx)
		if err != nil {
			return err
		}
		w, err := chC.Get(ctx)
		if err != nil {
			return err
		}
		r, err := fn(ctx, a, v, w)
		if err != nil {
			return err
		}
		return out.put(outKey, r)
	})
	addTyped(b, n, task, []exec.Task{tA, tB, tC})
	return task, nil
}

// Split adds a typed node with one input and two outputs, mapped in declared
// order to the two output keys.
func Split[A, R1, R2 any](b *Builder, name string, in Input, fn func(context.Context, A) (R1, R2, error), outKey1, outKey2 string) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	out, err := newOutputs([]string{outKey1, outKey2})
	if err != nil {
		return exec.Task{}, err
	}
	chA, tA, err := typedInput[A](b, name, in)
	if err != nil {
		return exec.Task{}, err
	}
	n := &Node{name: name, kind: KindTransform, inputs: []Input{in}, out: out}
	task := b.tf.Emplace(name, func(rt *exec.Runtime) error {
		ctx := rt.Context()
		a, err := chA.Get(ctx)
		if err != nil {
			return err
		}
		r1, r2, err := fn(ctx, a)
		if err != nil {
			return err
		}
		if err := out.put(outKey1, r1); err != nil {
			return err
		}
		return out.put(outKey2, r2)
	})
	addTyped(b, n, task, []exec.Task{tA})
	return task, nil
}

// Sink1 adds a typed sink with one input.
func Sink1[A any](b *Builder, name string, in Input, fn func(context.Context, A) error) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	chA, tA, err := typedInput[A](b, name, in)
	if err != nil {
		return exec.Task{}, err
	}
	out, _ := newOutputs(nil)
	n := &Node{name: name, kind: KindSink, inputs: []Input{in}, out: out}
	task := b.tf.Emplace(name, func(rt *exec.Runtime) error {
		ctx := rt.Context()
		a, err := chA.Get(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, a)
	})
	addTyped(b, n, task, []exec.Task{tA})
	return task, nil
}

// Sink2 adds a typed sink with two inputs.
func Sink2[A, B any](b *Builder, name string, in1, in2 Input, fn func(context.Context, A, B) error) (exec.Task, error) {
	if err := b.checkName(name); err != nil {
		return exec.Task{}, err
	}
	chA, tA, err := typedInput[A](b, name, in1)
	if err != nil {
		return exec.Task{}, err
	}
	chB, tB, err := typedInput[B](b, name, in2)
	if err != nil {
		return exec.Task{}, err
	}
	out, _ := newOutputs(nil)
	n := &Node{name: name, kind: KindSink, inputs: []Input{in1, in2}, out: out}
	task := b.tf.Emplace(name, func(rt *exec.Runtime) error {
		ctx := rt.Context()
		a, err := chA.Get(ctx)
		if err != nil {
			return err
		}
		v, err := chB.Get(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, a, v)
	})
	addTyped(b, n, task, []exec.Task{tA, tB})
	return task, nil
}
