package nodeflow

import "fmt"

// Outputs is a node's named collection of type-erased value channels. Keys
// are fixed at construction; there is no later insertion.
type Outputs struct {
	keys     []string
	channels map[string]*Channel[any]
}

func newOutputs(keys []string) (*Outputs, error) {
	o := &Outputs{
		keys:     make([]string, 0, len(keys)),
		channels: make(map[string]*Channel[any], len(keys)),
	}
	for _, k := range keys {
		if _, dup := o.channels[k]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, k)
		}
		o.keys = append(o.keys, k)
		o.channels[k] = NewChannel[any]()
	}
	return o, nil
}

// Keys returns the declared output keys in declaration order.
func (o *Outputs) Keys() []string {
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// Channel returns the channel for the given key.
func (o *Outputs) Channel(key string) (*Channel[any], error) {
	ch, ok := o.channels[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return ch, nil
}

func (o *Outputs) put(key string, v any) error {
	ch, ok := o.channels[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return ch.Put(v)
}

// fulfill writes a full result set. The keys must match the declared output
// keys exactly; on any mismatch no channel is fulfilled.
func (o *Outputs) fulfill(vals map[string]any) error {
	for k := range vals {
		if _, ok := o.channels[k]; !ok {
			return fmt.Errorf("%w: step returned undeclared key %q", ErrUnknownKey, k)
		}
	}
	for _, k := range o.keys {
		if _, ok := vals[k]; !ok {
			return fmt.Errorf("%w: step did not return declared key %q", ErrUnknownKey, k)
		}
	}
	for _, k := range o.keys {
		if err := o.channels[k].Put(vals[k]); err != nil {
			return fmt.Errorf("output %q: %w", k, err)
		}
	}
	return nil
}
