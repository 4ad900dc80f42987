// Package tensor provides a dense float32 tensor with the shape operations the
// feature pipelines need, and its msgpack wire encoding.
package tensor

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// Error definitions for the tensor package.
var (
	ErrShape       = errors.New("tensor: invalid shape")
	ErrPermutation = errors.New("tensor: invalid permutation")
)

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int     `msgpack:"shape"`
	Data  []float32 `msgpack:"data"`
}

// New returns a zero tensor with the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{Shape: slices.Clone(shape), Data: make([]float32, Numel(shape))}
}

// FromData wraps data in a tensor, checking that the shape matches its length.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	if Numel(shape) != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d elements, got %d", ErrShape, shape, Numel(shape), len(data))
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

// Numel returns the number of elements of a shape.
func Numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Validate checks that Data matches Shape.
func (t *Tensor) Validate() error {
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in %v", ErrShape, t.Shape)
		}
	}
	if Numel(t.Shape) != len(t.Data) {
		return fmt.Errorf("%w: shape %v needs %d elements, got %d", ErrShape, t.Shape, Numel(t.Shape), len(t.Data))
	}
	return nil
}

// Unsqueeze returns a view with a new dimension of size 1 inserted at dim.
// The data slice is shared.
func (t *Tensor) Unsqueeze(dim int) *Tensor {
	shape := slices.Insert(slices.Clone(t.Shape), dim, 1)
	return &Tensor{Shape: shape, Data: t.Data}
}

// Permute returns a copy of t with its dimensions reordered: output dimension
// i is input dimension perm[i].
func (t *Tensor) Permute(perm ...int) (*Tensor, error) {
	rank := t.Rank()
	if len(perm) != rank {
		return nil, fmt.Errorf("%w: %v for rank %d", ErrPermutation, perm, rank)
	}
	seen := make([]bool, rank)
	for _, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return nil, fmt.Errorf("%w: %v for rank %d", ErrPermutation, perm, rank)
		}
		seen[p] = true
	}

	inStrides := strides(t.Shape)
	outShape := make([]int, rank)
	srcStrides := make([]int, rank)
	for i, p := range perm {
		outShape[i] = t.Shape[p]
		srcStrides[i] = inStrides[p]
	}

	out := New(outShape...)
	idx := make([]int, rank)
	for o := range out.Data {
		src := 0
		for d := 0; d < rank; d++ {
			src += idx[d] * srcStrides[d]
		}
		out.Data[o] = t.Data[src]

		for d := rank - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < outShape[d] {
				break
			}
			idx[d] = 0
		}
	}

	return out, nil
}

// At returns the element at the given index.
func (t *Tensor) At(index ...int) float32 {
	s := strides(t.Shape)
	off := 0
	for i, v := range index {
		off += v * s[i]
	}
	return t.Data[off]
}

// Equal reports whether two tensors have the same shape and data.
func (t *Tensor) Equal(o *Tensor) bool {
	return slices.Equal(t.Shape, o.Shape) && slices.Equal(t.Data, o.Data)
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// Encode writes t to w in msgpack form.
func Encode(w io.Writer, t *Tensor) error {
	return msgpack.NewEncoder(w).Encode(t)
}

// Decode reads a msgpack-encoded tensor from r and validates it.
func Decode(r io.Reader) (*Tensor, error) {
	var t Tensor
	if err := msgpack.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("tensor: decode: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
