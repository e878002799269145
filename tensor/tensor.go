// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/wedge/internal/tensor"
)

// Shape represents the dimensions of a tensor, channels-last.
type Shape = tensor.Shape

// Weight is a named flat float32 buffer with its logical shape.
type Weight = tensor.Weight

// Weights is a weight table keyed by name.
type Weights = tensor.Weights

// NewWeight validates that data matches shape and returns the weight.
func NewWeight(name string, shape Shape, data []float32) (*Weight, error) {
	return tensor.NewWeight(name, shape, data)
}
