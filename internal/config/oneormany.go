package config

import "gopkg.in/yaml.v3"

// OneOrMany models a YAML shape that accepts either a scalar value or a
// sequence of values. Iterating it (via Slice) covers both forms with a
// single code path.
type OneOrMany[T any] struct {
	items []T
}

// Slice returns the underlying items, regardless of whether the source
// YAML was a scalar or a sequence.
func (o OneOrMany[T]) Slice() []T { return o.items }

// Len reports how many items are present.
func (o OneOrMany[T]) Len() int { return len(o.items) }

// NewOneOrMany wraps an already-materialized slice, used when building
// one programmatically rather than decoding it.
func NewOneOrMany[T any](items []T) OneOrMany[T] {
	return OneOrMany[T]{items: items}
}

// UnmarshalYAML accepts either a single node decodable as T or a
// sequence node of T.
func (o *OneOrMany[T]) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var items []T
		if err := value.Decode(&items); err != nil {
			return err
		}
		o.items = items
		return nil
	}

	var single T
	if err := value.Decode(&single); err != nil {
		return err
	}
	o.items = []T{single}
	return nil
}

// MarshalYAML always emits a sequence, which is a valid encoding of
// either the scalar or sequence input shape.
func (o OneOrMany[T]) MarshalYAML() (interface{}, error) {
	return o.items, nil
}
