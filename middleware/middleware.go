// Package middleware provides compute-step wrappers for cross-cutting
// concerns: logging, timing, retries, panic recovery and fallbacks. A
// middleware decorates a step without touching the graph around it, so
// wrapped and bare steps are interchangeable anywhere a step is accepted.
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/agentstation/nodeflow"
	"github.com/agentstation/nodeflow/exec"
)

// Middleware decorates a compute step.
type Middleware func(nodeflow.StepFunc) nodeflow.StepFunc

// Chain composes middlewares so the first listed is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(step nodeflow.StepFunc) nodeflow.StepFunc {
		for i := len(mws) - 1; i >= 0; i-- {
			step = mws[i](step)
		}
		return step
	}
}

// Logging logs step start, completion and failure.
func Logging(name string, logger exec.Logger) Middleware {
	return func(step nodeflow.StepFunc) nodeflow.StepFunc {
		return func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			logger.Debug(ctx, "step starting", "step", name)
			out, err := step(ctx, inputs)
			if err != nil {
				logger.Error(ctx, "step failed", "step", name, "error", err)
				return nil, err
			}
			logger.Info(ctx, "step completed", "step", name)
			return out, nil
		}
	}
}

// Timing reports each invocation's duration to the callback.
func Timing(name string, report func(step string, d time.Duration)) Middleware {
	return func(step nodeflow.StepFunc) nodeflow.StepFunc {
		return func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			start := time.Now()
			out, err := step(ctx, inputs)
			report(name, time.Since(start))
			return out, err
		}
	}
}

// Recover converts a step panic into an error so one misbehaving step cannot
// take down the whole run.
func Recover() Middleware {
	return func(step nodeflow.StepFunc) nodeflow.StepFunc {
		return func(ctx context.Context, inputs map[string]any) (out map[string]any, err error) {
			defer func() {
				if r := recover(); r != nil {
					out = nil
					err = fmt.Errorf("middleware: step panicked: %v", r)
				}
			}()
			return step(ctx, inputs)
		}
	}
}

// Fallback tries the primary step and, on error, the fallback step with the
// same inputs. The primary's error is attached if the fallback fails too.
func Fallback(fallback nodeflow.StepFunc) Middleware {
	return func(step nodeflow.StepFunc) nodeflow.StepFunc {
		return func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			out, err := step(ctx, inputs)
			if err == nil {
				return out, nil
			}
			out, ferr := fallback(ctx, inputs)
			if ferr != nil {
				return nil, fmt.Errorf("middleware: fallback failed: %w (primary: %v)", ferr, err)
			}
			return out, nil
		}
	}
}
