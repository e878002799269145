// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/wedge/engine"
	"github.com/born-ml/wedge/tensor"
)

func TestShapeHWC(t *testing.T) {
	tests := []struct {
		in   tensor.Shape
		want tensor.Shape
	}{
		{tensor.Shape{}, tensor.Shape{1, 1, 1}},
		{tensor.Shape{16}, tensor.Shape{1, 1, 16}},
		{tensor.Shape{4, 3}, tensor.Shape{1, 4, 3}},
		{tensor.Shape{8, 8, 3}, tensor.Shape{8, 8, 3}},
		{tensor.Shape{1, 8, 8, 3}, tensor.Shape{8, 8, 3}},
	}
	for _, tt := range tests {
		got, err := tt.in.HWC()
		require.NoError(t, err, "shape %v", tt.in)
		assert.Equal(t, tt.want, got, "shape %v", tt.in)
	}

	_, err := tensor.Shape{2, 8, 8, 3}.HWC()
	assert.True(t, errors.Is(err, engine.ErrShape))
	_, err = tensor.Shape{1, 1, 2, 2, 3}.HWC()
	assert.True(t, errors.Is(err, engine.ErrShape))
}

func TestNewWeight(t *testing.T) {
	w, err := tensor.NewWeight("k", tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4, w.Shape.NumElements())

	ws := tensor.Weights{}
	ws.Add(w)
	got, ok := ws.Get("k")
	require.True(t, ok)
	assert.Same(t, w, got)

	_, err = tensor.NewWeight("bad", tensor.Shape{3}, []float32{1})
	assert.True(t, errors.Is(err, engine.ErrShape))
}
