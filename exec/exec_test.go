package exec_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/agentstation/nodeflow/exec"
)

// trace records task completions in order.
type trace struct {
	mu    sync.Mutex
	order []string
}

func (tr *trace) add(name string) {
	tr.mu.Lock()
	tr.order = append(tr.order, name)
	tr.mu.Unlock()
}

func (tr *trace) task(name string) func(*exec.Runtime) error {
	return func(*exec.Runtime) error {
		tr.add(name)
		return nil
	}
}

func (tr *trace) index(name string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for i, n := range tr.order {
		if n == name {
			return i
		}
	}
	return -1
}

func (tr *trace) count(name string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	c := 0
	for _, n := range tr.order {
		if n == name {
			c++
		}
	}
	return c
}

func TestRunRespectsPrecedence(t *testing.T) {
	tr := &trace{}
	tf := exec.NewTaskflow("chain")
	a := tf.Emplace("a", tr.task("a"))
	b := tf.Emplace("b", tr.task("b"))
	c := tf.Emplace("c", tr.task("c"))
	a.Precede(b)
	b.Precede(c)

	if err := exec.NewExecutor().Run(context.Background(), tf); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := tr.order; len(got) != 3 {
		t.Fatalf("ran %d tasks, want 3: %v", len(got), got)
	}
	if tr.index("a") > tr.index("b") || tr.index("b") > tr.index("c") {
		t.Errorf("tasks ran out of order: %v", tr.order)
	}
}

func TestRunJoinsFanIn(t *testing.T) {
	tr := &trace{}
	tf := exec.NewTaskflow("fanin")
	a := tf.Emplace("a", tr.task("a"))
	b := tf.Emplace("b", tr.task("b"))
	join := tf.Emplace("join", tr.task("join"))
	join.Succeed(a, b)

	if err := exec.NewExecutor().Run(context.Background(), tf); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if ji := tr.index("join"); ji < tr.index("a") || ji < tr.index("b") {
		t.Errorf("join ran before a predecessor: %v", tr.order)
	}
	if got := tr.count("join"); got != 1 {
		t.Errorf("join ran %d times, want 1", got)
	}
}

func TestConditionSelectsOneBranch(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		ran     string
		skipped string
	}{
		{name: "first branch", index: 0, ran: "s0", skipped: "s1"},
		{name: "second branch", index: 1, ran: "s1", skipped: "s0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &trace{}
			tf := exec.NewTaskflow("branch")
			cond := tf.EmplaceCondition("cond", func(*exec.Runtime) (int, error) {
				return tt.index, nil
			})
			s0 := tf.Emplace("s0", tr.task("s0"))
			s1 := tf.Emplace("s1", tr.task("s1"))
			cond.Precede(s0, s1)

			if err := exec.NewExecutor().Run(context.Background(), tf); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if tr.count(tt.ran) != 1 {
				t.Errorf("branch %s ran %d times, want 1", tt.ran, tr.count(tt.ran))
			}
			if tr.count(tt.skipped) != 0 {
				t.Errorf("branch %s ran, want skipped", tt.skipped)
			}
		})
	}
}

func TestConditionIndexOutOfRange(t *testing.T) {
	tf := exec.NewTaskflow("branch")
	cond := tf.EmplaceCondition("cond", func(*exec.Runtime) (int, error) {
		return 2, nil
	})
	s0 := tf.Emplace("s0", func(*exec.Runtime) error { return nil })
	cond.Precede(s0)

	err := exec.NewExecutor().Run(context.Background(), tf)
	if err == nil {
		t.Fatal("Run() error = nil, want branch range error")
	}
}

func TestMultiConditionDispatchesSet(t *testing.T) {
	tr := &trace{}
	tf := exec.NewTaskflow("multi")
	// Duplicate index in the result must collapse to one dispatch.
	mc := tf.EmplaceMultiCondition("mc", func(*exec.Runtime) ([]int, error) {
		return []int{0, 2, 0}, nil
	})
	s0 := tf.Emplace("s0", tr.task("s0"))
	s1 := tf.Emplace("s1", tr.task("s1"))
	s2 := tf.Emplace("s2", tr.task("s2"))
	mc.Precede(s0, s1, s2)

	if err := exec.NewExecutor().Run(context.Background(), tf); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if tr.count("s0") != 1 || tr.count("s2") != 1 {
		t.Errorf("selected branches ran %d/%d times, want 1/1", tr.count("s0"), tr.count("s2"))
	}
	if tr.count("s1") != 0 {
		t.Error("unselected branch s1 ran")
	}
}

func TestConditionLoopBackEdge(t *testing.T) {
	tr := &trace{}
	counter := 0
	tf := exec.NewTaskflow("loop")
	init := tf.Emplace("init", tr.task("init"))
	body := tf.Emplace("body", func(*exec.Runtime) error {
		tr.add("body")
		counter++
		return nil
	})
	cond := tf.EmplaceCondition("cond", func(*exec.Runtime) (int, error) {
		if counter < 3 {
			return 0, nil
		}
		return 1, nil
	})
	done := tf.Emplace("done", tr.task("done"))

	init.Precede(body)
	body.Precede(cond)
	cond.Precede(body, done)

	if err := exec.NewExecutor().Run(context.Background(), tf); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if counter != 3 {
		t.Errorf("body ran %d times, want 3", counter)
	}
	if tr.count("done") != 1 {
		t.Errorf("done ran %d times, want 1", tr.count("done"))
	}
}

func TestComposedOfRunsNestedGraph(t *testing.T) {
	tr := &trace{}
	sub := exec.NewTaskflow("sub")
	sa := sub.Emplace("sub.a", tr.task("sub.a"))
	sb := sub.Emplace("sub.b", tr.task("sub.b"))
	sa.Precede(sb)

	tf := exec.NewTaskflow("outer")
	before := tf.Emplace("before", tr.task("before"))
	module := tf.ComposedOf("module", sub)
	after := tf.Emplace("after", tr.task("after"))
	before.Precede(module)
	module.Precede(after)

	if err := exec.NewExecutor().Run(context.Background(), tf); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The module blocks its successors until the whole nested graph is done.
	if ai := tr.index("after"); ai < tr.index("sub.a") || ai < tr.index("sub.b") {
		t.Errorf("after ran before the nested graph finished: %v", tr.order)
	}
	if bi := tr.index("sub.a"); bi < tr.index("before") {
		t.Errorf("nested graph started before its predecessor: %v", tr.order)
	}
}

func TestCorunNestedExecution(t *testing.T) {
	tr := &trace{}
	nested := exec.NewTaskflow("nested")
	nested.Emplace("inner", tr.task("inner"))

	tf := exec.NewTaskflow("outer")
	tf.Emplace("driver", func(rt *exec.Runtime) error {
		if err := rt.Corun(nested); err != nil {
			return err
		}
		// Corun is synchronous: the nested graph has finished here.
		if tr.count("inner") != 1 {
			return errors.New("nested graph not complete after Corun")
		}
		tr.add("driver")
		return nil
	})

	if err := exec.NewExecutor().Run(context.Background(), tf); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if tr.index("inner") > tr.index("driver") {
		t.Errorf("inner ran after driver: %v", tr.order)
	}
}

func TestRunAsync(t *testing.T) {
	tr := &trace{}
	tf := exec.NewTaskflow("async")
	tf.Emplace("a", tr.task("a"))

	f := exec.NewExecutor().RunAsync(context.Background(), tf)
	if err := f.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if tr.count("a") != 1 {
		t.Error("task did not run")
	}
}

func TestRunEmptyTaskflow(t *testing.T) {
	if err := exec.NewExecutor().Run(context.Background(), exec.NewTaskflow("empty")); err != nil {
		t.Errorf("Run() on empty taskflow = %v, want nil", err)
	}
}

func TestRunNoRootTask(t *testing.T) {
	tf := exec.NewTaskflow("cycle")
	a := tf.Emplace("a", func(*exec.Runtime) error { return nil })
	b := tf.Emplace("b", func(*exec.Runtime) error { return nil })
	a.Precede(b)
	b.Precede(a)

	err := exec.NewExecutor().Run(context.Background(), tf)
	if !errors.Is(err, exec.ErrNoRootTask) {
		t.Errorf("Run() error = %v, want ErrNoRootTask", err)
	}
}

func TestTaskErrorStopsSuccessors(t *testing.T) {
	tr := &trace{}
	boom := errors.New("boom")
	tf := exec.NewTaskflow("failing")
	a := tf.Emplace("a", func(*exec.Runtime) error { return boom })
	b := tf.Emplace("b", tr.task("b"))
	a.Precede(b)

	err := exec.NewExecutor().Run(context.Background(), tf)
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want wrapped boom", err)
	}
	if !strings.Contains(err.Error(), `"a"`) {
		t.Errorf("error does not name the failing task: %v", err)
	}
	if tr.count("b") != 0 {
		t.Error("successor of a failed task ran")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tf := exec.NewTaskflow("cancelled")
	ran := false
	tf.Emplace("a", func(*exec.Runtime) error {
		ran = true
		return nil
	})

	err := exec.NewExecutor().Run(ctx, tf)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("task ran on a cancelled context")
	}
}

func TestDump(t *testing.T) {
	sub := exec.NewTaskflow("inner")
	sub.Emplace("leaf", func(*exec.Runtime) error { return nil })

	tf := exec.NewTaskflow("outer")
	a := tf.Emplace("a", func(*exec.Runtime) error { return nil })
	cond := tf.EmplaceCondition("gate", func(*exec.Runtime) (int, error) { return 0, nil })
	s0 := tf.Emplace("s0", func(*exec.Runtime) error { return nil })
	s1 := tf.Emplace("s1", func(*exec.Runtime) error { return nil })
	mod := tf.ComposedOf("mod", sub)
	a.Precede(cond)
	cond.Precede(s0, s1)
	s0.Precede(mod)

	var sb strings.Builder
	if err := tf.Dump(&sb); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		`label="Taskflow: outer"`,
		`label="Taskflow: inner"`,
		`"gate" shape=diamond`,
		`"mod" shape=box3d`,
		`[style=dashed label="0"]`,
		`[style=dashed label="1"]`,
		`"leaf"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump() output missing %s:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "style=dashed"); got != 2 {
		t.Errorf("Dump() has %d conditional edges, want 2", got)
	}
}

func TestTaskNames(t *testing.T) {
	tf := exec.NewTaskflow("named")
	a := tf.Emplace("alpha", func(*exec.Runtime) error { return nil })
	if a.Name() != "alpha" {
		t.Errorf("Name() = %q, want alpha", a.Name())
	}
	if tf.Name() != "named" {
		t.Errorf("taskflow Name() = %q, want named", tf.Name())
	}
}

func ExampleTaskflow_Dump() {
	tf := exec.NewTaskflow("pipeline")
	fetch := tf.Emplace("fetch", func(*exec.Runtime) error { return nil })
	parse := tf.Emplace("parse", func(*exec.Runtime) error { return nil })
	fetch.Precede(parse)

	var sb strings.Builder
	if err := tf.Dump(&sb); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Print(sb.String())
	// Output:
	// digraph Taskflow {
	// subgraph cluster_0 {
	// label="Taskflow: pipeline";
	// p0 [label="fetch"];
	// p1 [label="parse"];
	// p0 -> p1;
	// }
	// }
}
