// Package graph holds the operator graph the compiler works on: typed nodes in
// topological order, their format-agnostic attributes, and the per-node result
// of shape resolution.
package graph

// OpKind is the closed set of operators the compiler understands.
type OpKind int

// Operator kinds.
const (
	OpUnsupported OpKind = iota
	OpInput
	OpConst
	OpConv2D
	OpDepthwiseConv2D
	OpAdd
	OpMultiply
	OpRelu
	OpRelu6
	OpSigmoid
	OpPad
	OpPadV2
	OpMirrorPad
	OpResizeBilinear
	OpReshape
	OpMaxPool
)

var opNames = [...]string{
	OpUnsupported:     "Unsupported",
	OpInput:           "Input",
	OpConst:           "Const",
	OpConv2D:          "Conv2D",
	OpDepthwiseConv2D: "DepthwiseConv2D",
	OpAdd:             "Add",
	OpMultiply:        "Multiply",
	OpRelu:            "Relu",
	OpRelu6:           "Relu6",
	OpSigmoid:         "Sigmoid",
	OpPad:             "Pad",
	OpPadV2:           "PadV2",
	OpMirrorPad:       "MirrorPad",
	OpResizeBilinear:  "ResizeBilinear",
	OpReshape:         "Reshape",
	OpMaxPool:         "MaxPool",
}

// String returns the operator name.
func (k OpKind) String() string {
	if k < 0 || int(k) >= len(opNames) {
		return "Unsupported"
	}
	return opNames[k]
}

// IsConv reports whether k belongs to the convolution family.
func (k OpKind) IsConv() bool {
	return k == OpConv2D || k == OpDepthwiseConv2D
}

// Executable reports whether nodes of kind k produce a GPU program.
func (k OpKind) Executable() bool {
	return k != OpUnsupported && k != OpInput && k != OpConst
}

// Format tags which loader produced a model.
type Format int

// Model formats.
const (
	FormatGraphModel Format = iota
	FormatLayersModel
)

func (f Format) String() string {
	if f == FormatLayersModel {
		return "LayersModel"
	}
	return "GraphModel"
}

// State is the resolution state of a node.
type State int

// Node states. Pending means not yet resolved; MissingInput means an upstream
// node never produced output.
const (
	StatePending State = iota
	StateResolved
	StateUnsupported
	StateMissingInput
)

func (s State) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateUnsupported:
		return "unsupported"
	case StateMissingInput:
		return "missing input"
	default:
		return "pending"
	}
}
