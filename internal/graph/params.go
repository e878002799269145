package graph

import "github.com/born-ml/wedge/internal/tensor"

// Params are the operator parameters derived during resolution from the
// attributes and the input shapes.
type Params interface {
	params()
}

// NoParams is used by operators whose output depends only on the inputs.
type NoParams struct{}

// ConvParams are the resolved parameters of a convolution.
type ConvParams struct {
	StrideH, StrideW int
	KernelH, KernelW int
	PadTop, PadLeft  int
	InDepth          int
	Filters          int
	Activation       Activation
	Depthwise        bool
	Kernel           *tensor.Weight
	Bias             *tensor.Weight // nil without bias
}

// HasBias reports whether a bias is added after the convolution sum.
func (p *ConvParams) HasBias() bool { return p.Bias != nil }

// PoolParams are the resolved parameters of MaxPool.
type PoolParams struct {
	SizeH, SizeW     int
	StrideH, StrideW int
	PadTop, PadLeft  int
}

// PadParams are the resolved padding amounts per HWC axis.
type PadParams struct {
	Before [3]int
	After  [3]int
	Value  float32
	Mode   PadMode
}

// ResizeParams are the resolved parameters of ResizeBilinear.
type ResizeParams struct {
	ScaleH, ScaleW float32 // input size / output size
}

// Broadcast describes how the second Add/Multiply operand is read.
type Broadcast int

// Broadcast modes.
const (
	BroadcastNone    Broadcast = iota // same shape as the output
	BroadcastScalar                   // a single value
	BroadcastChannel                  // one value per channel
)

func (b Broadcast) String() string {
	switch b {
	case BroadcastScalar:
		return "scalar"
	case BroadcastChannel:
		return "channel"
	default:
		return "none"
	}
}

// ElementwiseParams are the resolved parameters of Add and Multiply.
// Full is the index of the input whose shape the output takes; the other
// input is read according to Broadcast.
type ElementwiseParams struct {
	Full      int
	Broadcast Broadcast
}

// Other returns the index of the operand that may be broadcast.
func (p *ElementwiseParams) Other() int { return 1 - p.Full }

func (NoParams) params()           {}
func (*ConvParams) params()        {}
func (*PoolParams) params()        {}
func (*PadParams) params()         {}
func (*ResizeParams) params()      {}
func (*ElementwiseParams) params() {}
