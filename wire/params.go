package wire

import (
	"fmt"

	"github.com/absmach/flock/pkg/codec"
)

// ToArrays decodes every tensor of a parameter set, preserving order.
func ToArrays(p Parameters) ([]codec.NumericArray, error) {
	c, err := codec.Lookup(p.TensorType)
	if err != nil {
		return nil, err
	}

	arrays := make([]codec.NumericArray, len(p.Tensors))
	for i, t := range p.Tensors {
		a, err := c.Decode(t)
		if err != nil {
			return nil, fmt.Errorf("tensor %d: %w", i, err)
		}
		arrays[i] = a
	}

	return arrays, nil
}

// FromArrays encodes arrays into a parameter set with the given codec,
// preserving order.
func FromArrays(arrays []codec.NumericArray, c codec.Codec) (Parameters, error) {
	tensors := make([][]byte, len(arrays))
	for i, a := range arrays {
		t, err := c.Encode(a)
		if err != nil {
			return Parameters{}, fmt.Errorf("tensor %d: %w", i, err)
		}
		tensors[i] = t
	}

	return Parameters{Tensors: tensors, TensorType: c.Type()}, nil
}
