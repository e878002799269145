package tensor

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
)

// Weight is a named, read-only flat float32 buffer with its logical shape.
type Weight struct {
	Name  string
	Shape Shape
	Data  []float32
}

// NewWeight validates that data matches shape and returns the weight.
func NewWeight(name string, shape Shape, data []float32) (*Weight, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("weight %s: %w", name, err)
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("%w: weight %s: %d values for shape %v", errs.ErrShape, name, len(data), shape)
	}
	return &Weight{Name: name, Shape: shape.Clone(), Data: data}, nil
}

// Ints returns the weight's values truncated to ints, for shape and padding tensors.
func (w *Weight) Ints() []int {
	out := make([]int, len(w.Data))
	for i, v := range w.Data {
		out[i] = int(v)
	}
	return out
}

// Weights is the model-wide weight table keyed by node name.
type Weights map[string]*Weight

// Get returns the weight registered under name.
func (ws Weights) Get(name string) (*Weight, bool) {
	w, ok := ws[name]
	return w, ok
}

// Add registers a weight, replacing any previous entry with the same name.
func (ws Weights) Add(w *Weight) {
	ws[w.Name] = w
}
