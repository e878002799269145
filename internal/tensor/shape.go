// Package tensor holds the logical shapes and flat weight buffers the compiler works on.
package tensor

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
)

// Shape represents the dimensions of a tensor, channels-last.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("%w: invalid dimension at index %d: %d (must be > 0)", errs.ErrShape, i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Channels returns the innermost dimension.
func (s Shape) Channels() int {
	if len(s) == 0 {
		return 1
	}
	return s[len(s)-1]
}

// HWC normalizes the shape to exactly three axes (height, width, channels).
//
// A leading batch axis must be 1 and is dropped. Rank 1 and 2 shapes are
// promoted by prepending unit axes, so [C] becomes [1,1,C] and [W,C]
// becomes [1,W,C].
func (s Shape) HWC() (Shape, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch len(s) {
	case 0:
		return Shape{1, 1, 1}, nil
	case 1:
		return Shape{1, 1, s[0]}, nil
	case 2:
		return Shape{1, s[0], s[1]}, nil
	case 3:
		return s.Clone(), nil
	case 4:
		if s[0] != 1 {
			return nil, fmt.Errorf("%w: expected batch dimension of 1, got %v", errs.ErrShape, s)
		}
		return Shape{s[1], s[2], s[3]}, nil
	default:
		return nil, fmt.Errorf("%w: rank %d shapes are not supported: %v", errs.ErrShape, len(s), s)
	}
}

// String formats the shape as [d0,d1,...].
func (s Shape) String() string {
	out := "["
	for i, d := range s {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprint(d)
	}
	return out + "]"
}
