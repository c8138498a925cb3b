package middleware

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/agentstation/nodeflow"
)

// Policy defines retry behavior for a wrapped step.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt
	// (0 = no retry).
	MaxRetries int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay between retries.
	Multiplier float64
	// Jitter randomizes delays to avoid synchronized retries.
	Jitter bool
}

// DefaultPolicy returns a sensible default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry retries a failed step per the policy. Steps must be safe to invoke
// more than once; a retried step sees the same inputs every attempt.
func Retry(p Policy) Middleware {
	return func(step nodeflow.StepFunc) nodeflow.StepFunc {
		return func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			out, err := step(ctx, inputs)
			if err == nil || p.MaxRetries <= 0 {
				return out, err
			}

			delay := p.InitialDelay
			for attempt := 1; attempt <= p.MaxRetries; attempt++ {
				d := delay
				if p.Jitter && d > 0 {
					d += time.Duration(rand.Int63n(int64(d)/2 + 1))
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(d):
				}

				out, err = step(ctx, inputs)
				if err == nil {
					return out, nil
				}

				delay = time.Duration(float64(delay) * p.Multiplier)
				if p.MaxDelay > 0 && delay > p.MaxDelay {
					delay = p.MaxDelay
				}
			}
			return nil, fmt.Errorf("middleware: %d attempts failed: %w", p.MaxRetries+1, err)
		}
	}
}
