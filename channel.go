package nodeflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Common errors.
var (
	// ErrAlreadyWritten is returned when a channel is fulfilled twice.
	ErrAlreadyWritten = errors.New("nodeflow: channel already written")

	// ErrTypeMismatch is returned when a type-erased value is read through
	// an accessor of a different concrete type.
	ErrTypeMismatch = errors.New("nodeflow: type mismatch")

	// ErrUnknownKey is returned when an output key is not declared on the
	// node's registry.
	ErrUnknownKey = errors.New("nodeflow: unknown output key")

	// ErrDuplicateKey is returned when a registry declares the same output
	// key twice.
	ErrDuplicateKey = errors.New("nodeflow: duplicate output key")

	// ErrDuplicateNode is returned when a builder already holds a node with
	// the given name.
	ErrDuplicateNode = errors.New("nodeflow: duplicate node name")

	// ErrNodeNotFound is returned when an input spec references a node the
	// builder doesn't know.
	ErrNodeNotFound = errors.New("nodeflow: node not found")
)

// Channel is a single-assignment, multi-reader value cell. Put fulfils the
// channel exactly once; Get blocks until it is fulfilled and then returns
// the same value to every reader.
//
// A channel whose producer never runs blocks its readers until the run
// context is cancelled; there is no per-channel timeout.
type Channel[T any] struct {
	mu   sync.Mutex
	done chan struct{}
	val  T
}

// NewChannel creates an unfulfilled channel.
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{done: make(chan struct{})}
}

// Put fulfils the channel. A second call returns ErrAlreadyWritten.
func (c *Channel[T]) Put(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return ErrAlreadyWritten
	default:
	}
	c.val = v
	close(c.done)
	return nil
}

// Get blocks until the channel is fulfilled, then returns the value. Every
// concurrent reader observes the same value. Cancelling ctx unblocks the
// caller with ctx.Err().
func (c *Channel[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.val, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the value if the channel has been fulfilled.
func (c *Channel[T]) TryGet() (T, bool) {
	select {
	case <-c.done:
		return c.val, true
	default:
		var zero T
		return zero, false
	}
}

// GetAs reads a type-erased channel and validates the dynamic type of the
// stored value, returning ErrTypeMismatch on disagreement. This is the only
// bridge from the type-erased world into the typed one; there is no
// unchecked cast.
func GetAs[T any](ctx context.Context, c *Channel[any]) (T, error) {
	var zero T
	v, err := c.Get(ctx)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: expected %T, got %T", ErrTypeMismatch, zero, v)
	}
	return t, nil
}
