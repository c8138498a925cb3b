package exec

import "fmt"

type taskKind int

const (
	taskStatic taskKind = iota
	taskCondition
	taskMultiCondition
	taskModule
)

func (k taskKind) String() string {
	switch k {
	case taskStatic:
		return "static"
	case taskCondition:
		return "condition"
	case taskMultiCondition:
		return "multi-condition"
	case taskModule:
		return "module"
	default:
		return fmt.Sprintf("taskKind(%d)", int(k))
	}
}

// taskNode is the scheduler's view of one unit of work. Successors reached
// through strong edges are dispatched when their join counter drains;
// successors reached through weak edges are dispatched directly by a
// condition task selecting their index.
type taskNode struct {
	name string
	kind taskKind

	fn      func(*Runtime) error
	condFn  func(*Runtime) (int, error)
	multiFn func(*Runtime) ([]int, error)
	module  *Taskflow

	strong []*taskNode // strong successors, join-counted
	weak   []*taskNode // ordered conditional successors

	strongPreds int
	weakPreds   int
	join        int64 // remaining strong predecessors, accessed atomically
}

// Task is a lightweight handle to a task inside a Taskflow, used to wire
// precedence. The zero Task is invalid.
type Task struct {
	n *taskNode
}

// Name returns the task's name.
func (t Task) Name() string { return t.n.name }

// Precede wires t before each of the given tasks. When t is a condition or
// multi-condition task the edges are conditional: the list order defines the
// 0-based branch indices and the successors run only when selected.
func (t Task) Precede(succs ...Task) {
	for _, s := range succs {
		switch t.n.kind {
		case taskCondition, taskMultiCondition:
			t.n.weak = append(t.n.weak, s.n)
			s.n.weakPreds++
		default:
			t.n.strong = append(t.n.strong, s.n)
			s.n.strongPreds++
		}
	}
}

// Succeed wires t after each of the given tasks.
func (t Task) Succeed(preds ...Task) {
	for _, p := range preds {
		p.Precede(t)
	}
}

// Taskflow is a named graph of tasks with precedence and conditional edges.
// A Taskflow must not be run concurrently with itself: join counters live on
// the tasks.
type Taskflow struct {
	name  string
	tasks []*taskNode
}

// NewTaskflow creates an empty task graph.
func NewTaskflow(name string) *Taskflow {
	return &Taskflow{name: name}
}

// Name returns the taskflow's name.
func (tf *Taskflow) Name() string { return tf.name }

// Empty reports whether the taskflow has no tasks.
func (tf *Taskflow) Empty() bool { return len(tf.tasks) == 0 }

func (tf *Taskflow) add(n *taskNode) Task {
	tf.tasks = append(tf.tasks, n)
	return Task{n: n}
}

// Emplace adds a plain task executing fn.
func (tf *Taskflow) Emplace(name string, fn func(*Runtime) error) Task {
	return tf.add(&taskNode{name: name, kind: taskStatic, fn: fn})
}

// EmplaceCondition adds a condition task. The returned index selects which
// of the task's ordered successors runs; everything else is skipped.
func (tf *Taskflow) EmplaceCondition(name string, fn func(*Runtime) (int, error)) Task {
	return tf.add(&taskNode{name: name, kind: taskCondition, condFn: fn})
}

// EmplaceMultiCondition adds a multi-condition task. Every returned index is
// dispatched; the selected successors run in parallel. Duplicate indices
// collapse to a single dispatch.
func (tf *Taskflow) EmplaceMultiCondition(name string, fn func(*Runtime) ([]int, error)) Task {
	return tf.add(&taskNode{name: name, kind: taskMultiCondition, multiFn: fn})
}

// ComposedOf embeds a fully built nested taskflow as a single task. The
// nested graph runs to completion when the task is dispatched. The taskflow
// retains the nested graph for the lifetime of the composition.
func (tf *Taskflow) ComposedOf(name string, sub *Taskflow) Task {
	return tf.add(&taskNode{name: name, kind: taskModule, module: sub})
}
