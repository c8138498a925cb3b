package nodeflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agentstation/nodeflow"
	"github.com/agentstation/nodeflow/exec"
)

func TestTransform1(t *testing.T) {
	b := nodeflow.NewBuilder("typed")
	if _, err := b.Source("a", map[string]any{"x": 3.5}); err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	inc := func(ctx context.Context, x float64) (float64, error) { return x + 1, nil }
	if _, err := nodeflow.Transform1(b, "inc", nodeflow.Input{Node: "a", Key: "x"}, inc, "b"); err != nil {
		t.Fatalf("Transform1() error = %v", err)
	}
	var got float64
	probe := func(ctx context.Context, v float64) error {
		got = v
		return nil
	}
	if _, err := nodeflow.Sink1(b, "out", nodeflow.Input{Node: "inc", Key: "b"}, probe); err != nil {
		t.Fatalf("Sink1() error = %v", err)
	}

	if err := b.Run(context.Background(), exec.NewExecutor()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != 4.5 {
		t.Errorf("sink observed %v, want 4.5", got)
	}
}

func TestTransform2MixedTypes(t *testing.T) {
	b := nodeflow.NewBuilder("typed2")
	if _, err := b.Source("a", map[string]any{"name": "x", "count": 3}); err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	repeat := func(ctx context.Context, s string, n int) (string, error) {
		return strings.Repeat(s, n), nil
	}
	_, err := nodeflow.Transform2(b, "rep",
		nodeflow.Input{Node: "a", Key: "name"},
		nodeflow.Input{Node: "a", Key: "count"},
		repeat, "out")
	if err != nil {
		t.Fatalf("Transform2() error = %v", err)
	}

	if err := b.Run(context.Background(), exec.NewExecutor()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	n, _ := b.Node("rep")
	ch, _ := n.Outputs().Channel("out")
	v, ok := ch.TryGet()
	if !ok || v != "xxx" {
		t.Errorf("out = %v, %v, want xxx", v, ok)
	}
}

func TestTransform3(t *testing.T) {
	b := nodeflow.NewBuilder("typed3")
	if _, err := b.Source("a", map[string]any{"x": 1, "y": 2, "z": 3}); err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	sum := func(ctx context.Context, x, y, z int) (int, error) { return x + y + z, nil }
	_, err := nodeflow.Transform3(b, "sum",
		nodeflow.Input{Node: "a", Key: "x"},
		nodeflow.Input{Node: "a", Key: "y"},
		nodeflow.Input{Node: "a", Key: "z"},
		sum, "total")
	if err != nil {
		t.Fatalf("Transform3() error = %v", err)
	}

	if err := b.Run(context.Background(), exec.NewExecutor()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	n, _ := b.Node("sum")
	ch, _ := n.Outputs().Channel("total")
	v, ok := ch.TryGet()
	if !ok || v != 6 {
		t.Errorf("total = %v, %v, want 6", v, ok)
	}
}

func TestSplit(t *testing.T) {
	b := nodeflow.NewBuilder("split")
	if _, err := b.Source("a", map[string]any{"n": 17}); err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	divmod := func(ctx context.Context, n int) (int, int, error) { return n / 5, n % 5, nil }
	if _, err := nodeflow.Split(b, "dm", nodeflow.Input{Node: "a", Key: "n"}, divmod, "q", "r"); err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	var q, r int
	probe := func(ctx context.Context, qv, rv int) error {
		q, r = qv, rv
		return nil
	}
	_, err := nodeflow.Sink2(b, "out",
		nodeflow.Input{Node: "dm", Key: "q"},
		nodeflow.Input{Node: "dm", Key: "r"},
		probe)
	if err != nil {
		t.Fatalf("Sink2() error = %v", err)
	}

	if err := b.Run(context.Background(), exec.NewExecutor()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if q != 3 || r != 2 {
		t.Errorf("divmod = %d, %d, want 3, 2", q, r)
	}
}

func TestTypedMismatchFailsRun(t *testing.T) {
	b := nodeflow.NewBuilder("mismatch")
	if _, err := b.Source("a", map[string]any{"x": "not a number"}); err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	inc := func(ctx context.Context, x int) (int, error) { return x + 1, nil }
	if _, err := nodeflow.Transform1(b, "inc", nodeflow.Input{Node: "a", Key: "x"}, inc, "b"); err != nil {
		t.Fatalf("Transform1() error = %v", err)
	}

	err := b.Run(context.Background(), exec.NewExecutor())
	if !errors.Is(err, nodeflow.ErrTypeMismatch) {
		t.Fatalf("Run() error = %v, want ErrTypeMismatch", err)
	}

	// The consumer's channel must stay unfulfilled; the cast failed before
	// any typed value existed.
	n, _ := b.Node("inc")
	ch, _ := n.Outputs().Channel("b")
	if _, ok := ch.TryGet(); ok {
		t.Error("output fulfilled despite failed input cast")
	}
}

func TestTypedDuplicateName(t *testing.T) {
	b := nodeflow.NewBuilder("dup")
	if _, err := b.Source("a", map[string]any{"x": 1}); err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	id := func(ctx context.Context, x int) (int, error) { return x, nil }
	if _, err := nodeflow.Transform1(b, "t", nodeflow.Input{Node: "a", Key: "x"}, id, "y"); err != nil {
		t.Fatalf("Transform1() error = %v", err)
	}
	_, err := nodeflow.Transform1(b, "t", nodeflow.Input{Node: "a", Key: "x"}, id, "y")
	if !errors.Is(err, nodeflow.ErrDuplicateNode) {
		t.Errorf("Transform1() error = %v, want ErrDuplicateNode", err)
	}
}

func TestTypedUnknownInput(t *testing.T) {
	b := nodeflow.NewBuilder("unknown")
	id := func(ctx context.Context, x int) (int, error) { return x, nil }
	_, err := nodeflow.Transform1(b, "t", nodeflow.Input{Node: "ghost", Key: "x"}, id, "y")
	if !errors.Is(err, nodeflow.ErrNodeNotFound) {
		t.Errorf("Transform1() error = %v, want ErrNodeNotFound", err)
	}
}

func TestTypedAndErasedInterop(t *testing.T) {
	// An erased transform feeds a typed one and vice versa; the adapter task
	// sits between the two worlds.
	b := nodeflow.NewBuilder("interop")
	if _, err := b.Source("a", map[string]any{"x": 2.0}); err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	square := func(ctx context.Context, in map[string]any) (map[string]any, error) {
		x := in["x"].(float64)
		return map[string]any{"sq": x * x}, nil
	}
	if _, err := b.Transform("square", []nodeflow.Input{{Node: "a", Key: "x"}}, square, []string{"sq"}); err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	half := func(ctx context.Context, v float64) (float64, error) { return v / 2, nil }
	if _, err := nodeflow.Transform1(b, "half", nodeflow.Input{Node: "square", Key: "sq"}, half, "h"); err != nil {
		t.Fatalf("Transform1() error = %v", err)
	}
	var got any
	sink := func(ctx context.Context, in map[string]any) error {
		got = in["h"]
		return nil
	}
	if _, err := b.Sink("out", []nodeflow.Input{{Node: "half", Key: "h"}}, sink); err != nil {
		t.Fatalf("Sink() error = %v", err)
	}

	if err := b.Run(context.Background(), exec.NewExecutor()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != 2.0 {
		t.Errorf("sink observed %v, want 2", got)
	}
}
