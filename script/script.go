// Package script turns sandboxed Lua sources into nodeflow compute steps,
// so graphs can be defined declaratively without compiling Go. A script
// defines an exec function receiving the resolved input values as a table:
//
//	function exec(inputs)
//	  return {sum = inputs.x + inputs.y}
//	end
//
// Steps must return a table keyed by the node's declared output keys;
// predicates must return a number, truncated to the branch index.
package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shopify/go-lua"

	"github.com/agentstation/nodeflow"
)

// ErrNoExec is returned when a script does not define an exec function.
var ErrNoExec = errors.New("script: exec function not defined")

// Step compiles a Lua source into a type-erased compute step. The script is
// executed once per node invocation in a fresh sandboxed state.
func Step(src string) nodeflow.StepFunc {
	return func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		v, err := run(src, inputs)
		if err != nil {
			return nil, err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("script: exec must return a table of outputs, got %T", v)
		}
		return m, nil
	}
}

// Predicate compiles a Lua source into a branch-index predicate. The exec
// function must return a number.
func Predicate(src string) nodeflow.Predicate {
	return func(ctx context.Context, inputs map[string]any) (int, error) {
		v, err := run(src, inputs)
		if err != nil {
			return 0, err
		}
		n, ok := v.(float64)
		if !ok {
			return 0, fmt.Errorf("script: exec must return a branch index, got %T", v)
		}
		return int(n), nil
	}
}

// Validate loads a script without running its exec function and verifies
// that exec is defined.
func Validate(src string) error {
	l := lua.NewState()
	setupSandbox(l)
	if err := lua.LoadString(l, src); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	l.Pop(1)
	if err := lua.DoString(l, src); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	l.Global("exec")
	defer l.Pop(1)
	if l.TypeOf(-1) != lua.TypeFunction {
		return ErrNoExec
	}
	return nil
}

func run(src string, inputs map[string]any) (any, error) {
	l := lua.NewState()
	setupSandbox(l)

	pushValue(l, anyMap(inputs))
	l.SetGlobal("inputs")

	if err := lua.DoString(l, src); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	l.Global("exec")
	if l.TypeOf(-1) != lua.TypeFunction {
		l.Pop(1)
		return nil, ErrNoExec
	}
	pushValue(l, anyMap(inputs))
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return nil, fmt.Errorf("script: exec: %w", err)
	}
	v := pullValue(l, -1)
	l.Pop(1)
	return v, nil
}

func anyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
