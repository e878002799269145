// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph provides the operator graph the compiler consumes.
//
// Models usually come from the tfjs loader, but they can also be assembled
// by hand with a Builder:
//
//	m, err := graph.NewBuilder(graph.FormatGraphModel).
//	    Input("x", tensor.Shape{1, 8, 8, 3}).
//	    Const("w", tensor.Shape{3, 3, 3, 4}, kernel).
//	    Op("conv", graph.OpConv2D, graph.ConvAttrs{
//	        Strides:    [2]int{1, 1},
//	        Padding:    graph.PaddingSame,
//	        Activation: graph.ActRelu,
//	    }, "x", "w").
//	    Build("conv")
//
// Nodes are kept in topological order. After compilation every node carries
// its resolution state, HWC shape and texture layout.
package graph

import (
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/tensor"
)

// Core types.
type (
	Model      = graph.Model
	Node       = graph.Node
	Builder    = graph.Builder
	OpKind     = graph.OpKind
	Format     = graph.Format
	State      = graph.State
	Attributes = graph.Attributes
	Padding    = graph.Padding
	Activation = graph.Activation
	PadMode    = graph.PadMode
)

// Operator attributes.
type (
	NoAttrs      = graph.NoAttrs
	InputAttrs   = graph.InputAttrs
	ConvAttrs    = graph.ConvAttrs
	PoolAttrs    = graph.PoolAttrs
	PadAttrs     = graph.PadAttrs
	ResizeAttrs  = graph.ResizeAttrs
	ReshapeAttrs = graph.ReshapeAttrs
)

// Shape is a tensor shape, NHWC or HWC.
type Shape = tensor.Shape

// Operator kinds.
const (
	OpUnsupported     = graph.OpUnsupported
	OpInput           = graph.OpInput
	OpConst           = graph.OpConst
	OpConv2D          = graph.OpConv2D
	OpDepthwiseConv2D = graph.OpDepthwiseConv2D
	OpAdd             = graph.OpAdd
	OpMultiply        = graph.OpMultiply
	OpRelu            = graph.OpRelu
	OpRelu6           = graph.OpRelu6
	OpSigmoid         = graph.OpSigmoid
	OpPad             = graph.OpPad
	OpPadV2           = graph.OpPadV2
	OpMirrorPad       = graph.OpMirrorPad
	OpResizeBilinear  = graph.OpResizeBilinear
	OpReshape         = graph.OpReshape
	OpMaxPool         = graph.OpMaxPool
)

// Model formats.
const (
	FormatGraphModel  = graph.FormatGraphModel
	FormatLayersModel = graph.FormatLayersModel
)

// Node states.
const (
	StatePending      = graph.StatePending
	StateResolved     = graph.StateResolved
	StateUnsupported  = graph.StateUnsupported
	StateMissingInput = graph.StateMissingInput
)

// Attribute values.
const (
	PaddingValid = graph.PaddingValid
	PaddingSame  = graph.PaddingSame

	ActLinear = graph.ActLinear
	ActRelu   = graph.ActRelu
	ActRelu6  = graph.ActRelu6

	PadConstant  = graph.PadConstant
	PadReflect   = graph.PadReflect
	PadSymmetric = graph.PadSymmetric
)

// NewBuilder returns an empty builder for the given source format.
func NewBuilder(format Format) *Builder {
	return graph.NewBuilder(format)
}
