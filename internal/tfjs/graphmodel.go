package tfjs

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/tensor"
)

// graphDef is the modelTopology of a graph model.
type graphDef struct {
	Node []nodeDef `json:"node"`
}

type nodeDef struct {
	Name  string               `json:"name"`
	Op    string               `json:"op"`
	Input []string             `json:"input"`
	Attr  map[string]AttrValue `json:"attr"`
}

// AttrValue is a TensorFlow attribute as serialized by the converter.
// Integers arrive as JSON strings and byte strings as base64.
type AttrValue struct {
	I     int64Value  `json:"i"`
	F     float32     `json:"f"`
	S     bytesValue  `json:"s"`
	B     bool        `json:"b"`
	Type  string      `json:"type"`
	List  *listValue  `json:"list"`
	Shape *shapeValue `json:"shape"`
}

type listValue struct {
	I []int64Value `json:"i"`
	S []bytesValue `json:"s"`
	F []float32    `json:"f"`
}

type shapeValue struct {
	Dim         []struct{ Size int64Value } `json:"dim"`
	UnknownRank bool                        `json:"unknownRank"`
}

// int64Value accepts both "3" and 3.
type int64Value int64

// UnmarshalJSON implements json.Unmarshaler.
func (v *int64Value) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("integer attribute %s: %w", data, err)
	}
	*v = int64Value(n)
	return nil
}

// bytesValue is a byte-string attribute. The converter writes base64; values
// that do not decode to printable text are kept verbatim.
type bytesValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *bytesValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && printable(raw) {
		s = string(raw)
	}
	*v = bytesValue(s)
	return nil
}

func printable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func (v AttrValue) ints() []int {
	if v.List == nil {
		return nil
	}
	out := make([]int, len(v.List.I))
	for i, x := range v.List.I {
		out[i] = int(x)
	}
	return out
}

func (v AttrValue) strings() []string {
	if v.List == nil {
		return nil
	}
	out := make([]string, len(v.List.S))
	for i, x := range v.List.S {
		out[i] = string(x)
	}
	return out
}

func (v AttrValue) shape() tensor.Shape {
	if v.Shape == nil || v.Shape.UnknownRank {
		return nil
	}
	out := make(tensor.Shape, len(v.Shape.Dim))
	for i, d := range v.Shape.Dim {
		out[i] = int(d.Size)
	}
	return out
}

// graphOps maps TensorFlow op names onto operator kinds.
var graphOps = map[string]graph.OpKind{
	"Placeholder":                graph.OpInput,
	"Const":                      graph.OpConst,
	"Conv2D":                     graph.OpConv2D,
	"_FusedConv2D":               graph.OpConv2D,
	"DepthwiseConv2dNative":      graph.OpDepthwiseConv2D,
	"FusedDepthwiseConv2dNative": graph.OpDepthwiseConv2D,
	"Add":                        graph.OpAdd,
	"AddV2":                      graph.OpAdd,
	"BiasAdd":                    graph.OpAdd,
	"Mul":                        graph.OpMultiply,
	"Relu":                       graph.OpRelu,
	"Relu6":                      graph.OpRelu6,
	"Sigmoid":                    graph.OpSigmoid,
	"Pad":                        graph.OpPad,
	"PadV2":                      graph.OpPadV2,
	"MirrorPad":                  graph.OpMirrorPad,
	"ResizeBilinear":             graph.OpResizeBilinear,
	"Reshape":                    graph.OpReshape,
	"MaxPool":                    graph.OpMaxPool,
}

// passThrough ops forward their first input unchanged.
var passThrough = map[string]bool{
	"Identity":     true,
	"IdentityN":    true,
	"StopGradient": true,
}

func convertGraphModel(topology json.RawMessage, weights tensor.Weights, opts Options) (*graph.Model, error) {
	var def graphDef
	if err := decodeStrict(topology, &def, "graph model topology"); err != nil {
		return nil, err
	}
	log := opts.logger()

	a := newAssembly(graph.FormatGraphModel, weights)
	for _, nd := range def.Node {
		if nd.Op == "NoOp" {
			continue
		}
		inputs := dataInputs(nd.Input)
		if passThrough[nd.Op] {
			if len(inputs) == 0 {
				return nil, fmt.Errorf("%w: %s node %s has no input", errs.ErrConfig, nd.Op, nd.Name)
			}
			a.alias[nd.Name] = inputs[0]
			continue
		}

		op, ok := graphOps[nd.Op]
		if !ok {
			log.Debug("unsupported operator", "node", nd.Name, "op", nd.Op)
			if _, err := a.add(nd.Name, graph.OpUnsupported, nd.Op, graph.NoAttrs{}, inputs...); err != nil {
				return nil, err
			}
			continue
		}

		attrs, inputs, err := graphAttrs(op, nd, inputs)
		if err != nil {
			return nil, &errs.NodeError{Node: nd.Name, Op: nd.Op, Err: err}
		}
		if op == graph.OpConst {
			if err := a.constant(nd.Name); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := a.add(nd.Name, op, nd.Op, attrs, inputs...); err != nil {
			return nil, err
		}
	}

	m, err := a.build(opts.Output, true)
	if err != nil {
		return nil, err
	}
	log.Info("converted graph model", "nodes", len(m.Nodes), "weights", len(weights), "output", m.Output.Name)
	return m, nil
}

// dataInputs drops control inputs and output-index suffixes.
func dataInputs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, in := range raw {
		if strings.HasPrefix(in, "^") {
			continue
		}
		if i := strings.LastIndexByte(in, ':'); i > 0 {
			in = in[:i]
		}
		out = append(out, in)
	}
	return out
}

// graphAttrs normalizes the attributes of a supported op. It may trim the
// input list, as fused ops carry extra arguments the compiler ignores.
func graphAttrs(op graph.OpKind, nd nodeDef, inputs []string) (graph.Attributes, []string, error) {
	attr := nd.Attr
	switch op {
	case graph.OpInput:
		shape := attr["shape"].shape()
		if shape == nil {
			return nil, nil, fmt.Errorf("%w: placeholder without a known shape", errs.ErrShape)
		}
		return graph.InputAttrs{Shape: shape}, inputs, nil

	case graph.OpConv2D, graph.OpDepthwiseConv2D:
		conv, err := convAttrs(attr)
		if err != nil {
			return nil, nil, err
		}
		if strings.HasPrefix(nd.Op, "_Fused") || strings.HasPrefix(nd.Op, "Fused") {
			act, withBias, err := fusedOps(attr["fused_ops"].strings())
			if err != nil {
				return nil, nil, err
			}
			conv.Activation = act
			if !withBias && len(inputs) > 2 {
				inputs = inputs[:2]
			}
		}
		if len(inputs) > 3 {
			inputs = inputs[:3]
		}
		return conv, inputs, nil

	case graph.OpMaxPool:
		if f, ok := attr["data_format"]; ok && f.S != "" && f.S != "NHWC" {
			return nil, nil, fmt.Errorf("%w: data_format %s", errs.ErrUnsupportedParam, f.S)
		}
		ksize, strides := attr["ksize"].ints(), attr["strides"].ints()
		if len(ksize) != 4 || len(strides) != 4 {
			return nil, nil, fmt.Errorf("%w: ksize %v strides %v", errs.ErrUnsupportedParam, ksize, strides)
		}
		pad, err := paddingScheme(string(attr["padding"].S))
		if err != nil {
			return nil, nil, err
		}
		return graph.PoolAttrs{
			Size:    [2]int{ksize[1], ksize[2]},
			Strides: [2]int{strides[1], strides[2]},
			Padding: pad,
		}, inputs, nil

	case graph.OpPad, graph.OpPadV2:
		return graph.PadAttrs{Mode: graph.PadConstant}, inputs, nil

	case graph.OpMirrorPad:
		var mode graph.PadMode
		switch strings.ToUpper(string(attr["mode"].S)) {
		case "REFLECT":
			mode = graph.PadReflect
		case "SYMMETRIC":
			mode = graph.PadSymmetric
		default:
			return nil, nil, fmt.Errorf("%w: mirror pad mode %q", errs.ErrUnsupportedParam, attr["mode"].S)
		}
		return graph.PadAttrs{Mode: mode}, inputs, nil

	case graph.OpResizeBilinear:
		return graph.ResizeAttrs{
			AlignCorners:     attr["align_corners"].B,
			HalfPixelCenters: attr["half_pixel_centers"].B,
		}, inputs, nil

	case graph.OpReshape:
		return graph.ReshapeAttrs{}, inputs, nil

	default:
		return graph.NoAttrs{}, inputs, nil
	}
}

func convAttrs(attr map[string]AttrValue) (graph.ConvAttrs, error) {
	if f, ok := attr["data_format"]; ok && f.S != "" && f.S != "NHWC" {
		return graph.ConvAttrs{}, fmt.Errorf("%w: data_format %s", errs.ErrUnsupportedParam, f.S)
	}
	for _, d := range attr["dilations"].ints() {
		if d != 1 {
			return graph.ConvAttrs{}, fmt.Errorf("%w: dilations %v", errs.ErrUnsupportedParam, attr["dilations"].ints())
		}
	}
	strides := attr["strides"].ints()
	if len(strides) != 4 {
		return graph.ConvAttrs{}, fmt.Errorf("%w: strides %v", errs.ErrUnsupportedParam, strides)
	}
	pad, err := paddingScheme(string(attr["padding"].S))
	if err != nil {
		return graph.ConvAttrs{}, err
	}
	return graph.ConvAttrs{Strides: [2]int{strides[1], strides[2]}, Padding: pad}, nil
}

func paddingScheme(s string) (graph.Padding, error) {
	switch strings.ToUpper(s) {
	case "SAME":
		return graph.PaddingSame, nil
	case "VALID":
		return graph.PaddingValid, nil
	}
	return 0, fmt.Errorf("%w: padding %q", errs.ErrUnsupportedParam, s)
}

// fusedOps accepts the fusions the shaders implement: an optional bias
// followed by an optional ReLU or ReLU6.
func fusedOps(fused []string) (graph.Activation, bool, error) {
	switch strings.Join(fused, ",") {
	case "":
		return graph.ActLinear, false, nil
	case "BiasAdd":
		return graph.ActLinear, true, nil
	case "BiasAdd,Relu":
		return graph.ActRelu, true, nil
	case "BiasAdd,Relu6":
		return graph.ActRelu6, true, nil
	}
	return 0, false, fmt.Errorf("%w: fused ops %v", errs.ErrUnsupportedParam, fused)
}
