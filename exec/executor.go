// Package exec provides the task scheduler underneath nodeflow graphs: a
// directed task graph with precedence edges, integer-indexed conditional
// edges, statically composed subgraphs, and nested synchronous execution.
//
// Scheduling is cooperative: a task becomes ready when every strong
// predecessor has completed, or when a condition task selects it. Ready
// tasks run on their own goroutines, so Go's runtime supplies the
// work-stealing worker pool, and a task may genuinely block (for example on
// an unready value channel) without stalling unrelated work.
//
// Join counters are re-armed each time a task starts executing, which is
// what lets a condition task dispatch back to an earlier task and encode a
// loop on an otherwise acyclic graph.
package exec

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrNoRootTask is returned when a non-empty taskflow has no task that can
// start: every task has at least one predecessor.
var ErrNoRootTask = errors.New("exec: taskflow has no root task")

// Logger provides structured logging for task dispatch.
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// Executor runs taskflows. It is safe for concurrent use; distinct taskflows
// may run in parallel on the same executor.
type Executor struct {
	logger Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger adds debug logging of task dispatch.
func WithLogger(l Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the taskflow and blocks until every dispatched task has
// finished. The first task error cancels the run context, unwinding tasks
// blocked on unready channels, and is returned.
func (e *Executor) Run(ctx context.Context, tf *Taskflow) error {
	return e.run(ctx, tf)
}

// RunAsync starts the taskflow and returns immediately.
func (e *Executor) RunAsync(ctx context.Context, tf *Taskflow) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		f.err = e.run(ctx, tf)
		close(f.done)
	}()
	return f
}

// Future is the handle to an asynchronous run.
type Future struct {
	done chan struct{}
	err  error
}

// Wait blocks until the run completes and returns its error.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

// Runtime is handed to every task callable. It carries the run context and
// allows nested synchronous execution on the same executor.
type Runtime struct {
	exec *Executor
	ctx  context.Context
}

// Context returns the run context. It is cancelled when any task in the run
// fails.
func (rt *Runtime) Context() context.Context { return rt.ctx }

// Corun executes a nested taskflow from inside a running task and blocks
// until it completes.
func (rt *Runtime) Corun(tf *Taskflow) error {
	return rt.exec.run(rt.ctx, tf)
}

type run struct {
	exec *Executor
	g    *errgroup.Group
	ctx  context.Context
}

func (e *Executor) run(ctx context.Context, tf *Taskflow) error {
	if tf.Empty() {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	r := &run{exec: e, g: g, ctx: gctx}

	for _, t := range tf.tasks {
		atomic.StoreInt64(&t.join, int64(t.strongPreds))
	}

	roots := 0
	for _, t := range tf.tasks {
		if t.strongPreds == 0 && t.weakPreds == 0 {
			r.spawn(t)
			roots++
		}
	}
	if roots == 0 {
		return fmt.Errorf("%w: %q", ErrNoRootTask, tf.name)
	}

	return g.Wait()
}

func (r *run) spawn(t *taskNode) {
	r.g.Go(func() error {
		return r.invoke(t)
	})
}

func (r *run) invoke(t *taskNode) error {
	select {
	case <-r.ctx.Done():
		return r.ctx.Err()
	default:
	}

	// Re-arm for a possible conditional re-dispatch (loop back-edge).
	atomic.StoreInt64(&t.join, int64(t.strongPreds))

	if lg := r.exec.logger; lg != nil {
		lg.Debug(r.ctx, "running task", "task", t.name, "kind", t.kind.String())
	}

	rt := &Runtime{exec: r.exec, ctx: r.ctx}

	switch t.kind {
	case taskCondition:
		idx, err := t.condFn(rt)
		if err != nil {
			return fmt.Errorf("task %q: %w", t.name, err)
		}
		if idx < 0 || idx >= len(t.weak) {
			return fmt.Errorf("exec: task %q selected branch %d, have %d successors", t.name, idx, len(t.weak))
		}
		r.spawn(t.weak[idx])
		return nil

	case taskMultiCondition:
		idxs, err := t.multiFn(rt)
		if err != nil {
			return fmt.Errorf("task %q: %w", t.name, err)
		}
		seen := make(map[int]bool, len(idxs))
		for _, idx := range idxs {
			if idx < 0 || idx >= len(t.weak) {
				return fmt.Errorf("exec: task %q selected branch %d, have %d successors", t.name, idx, len(t.weak))
			}
			if seen[idx] {
				continue
			}
			seen[idx] = true
			r.spawn(t.weak[idx])
		}
		return nil

	case taskModule:
		if err := r.exec.run(r.ctx, t.module); err != nil {
			return fmt.Errorf("module %q: %w", t.name, err)
		}

	default:
		if err := t.fn(rt); err != nil {
			return fmt.Errorf("task %q: %w", t.name, err)
		}
	}

	for _, s := range t.strong {
		if atomic.AddInt64(&s.join, -1) == 0 {
			r.spawn(s)
		}
	}
	return nil
}
