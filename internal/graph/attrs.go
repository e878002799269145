package graph

import "github.com/born-ml/wedge/internal/tensor"

// Attributes is the per-operator attribute union. The loaders populate it so
// that resolvers never see format-specific attribute spellings.
type Attributes interface {
	attributes()
}

// Padding is the spatial padding scheme of convolutions and pools.
type Padding int

// Padding schemes.
const (
	PaddingValid Padding = iota
	PaddingSame
)

func (p Padding) String() string {
	if p == PaddingSame {
		return "same"
	}
	return "valid"
}

// Activation is an activation fused into a convolution.
type Activation int

// Fused activations.
const (
	ActLinear Activation = iota
	ActRelu
	ActRelu6
)

func (a Activation) String() string {
	switch a {
	case ActRelu:
		return "relu"
	case ActRelu6:
		return "relu6"
	default:
		return "linear"
	}
}

// PadMode selects how Pad fills the border.
type PadMode int

// Pad modes.
const (
	PadConstant PadMode = iota
	PadReflect
	PadSymmetric
)

func (m PadMode) String() string {
	switch m {
	case PadReflect:
		return "REFLECT"
	case PadSymmetric:
		return "SYMMETRIC"
	default:
		return "CONSTANT"
	}
}

// NoAttrs is used by operators without attributes.
type NoAttrs struct{}

// InputAttrs declares a model input. Unknown dimensions are -1.
type InputAttrs struct {
	Shape tensor.Shape
}

// ConvAttrs configures Conv2D and DepthwiseConv2D. Strides are (h, w).
type ConvAttrs struct {
	Strides    [2]int
	Padding    Padding
	Activation Activation
}

// PoolAttrs configures MaxPool. Size and Strides are (h, w).
type PoolAttrs struct {
	Size    [2]int
	Strides [2]int
	Padding Padding
}

// PadAttrs configures the Pad family. Nil Paddings means the amounts come
// from the second input; HasValue unset means the fill value comes from the
// third input or defaults to 0.
type PadAttrs struct {
	Paddings [][2]int // [[top,bottom],[left,right],[0,0]]
	Value    float32
	HasValue bool
	Mode     PadMode
}

// ResizeAttrs configures ResizeBilinear. A zero Size means the target comes
// from the second input, or from Factor times the input size.
type ResizeAttrs struct {
	Size             [2]int
	Factor           [2]int
	AlignCorners     bool
	HalfPixelCenters bool
}

// ReshapeAttrs configures Reshape. Nil Shape means the target comes from the
// second input.
type ReshapeAttrs struct {
	Shape []int
}

func (NoAttrs) attributes()      {}
func (InputAttrs) attributes()   {}
func (ConvAttrs) attributes()    {}
func (PoolAttrs) attributes()    {}
func (PadAttrs) attributes()     {}
func (ResizeAttrs) attributes()  {}
func (ReshapeAttrs) attributes() {}
