package main

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/wedge/graph"
	"github.com/born-ml/wedge/tensor"
)

// demoModel is a small network touching every operator family: regular,
// depthwise and valid convolutions, mirror padding, a per-channel add,
// pooling, bilinear upsampling and a sigmoid head.
func demoModel() (*graph.Model, error) {
	return graph.NewBuilder(graph.FormatGraphModel).
		Input("image", tensor.Shape{1, 16, 16, 3}).
		Const("conv1/kernel", tensor.Shape{3, 3, 3, 8}, wave(3*3*3*8, 0, 0.3)).
		Const("conv1/bias", tensor.Shape{8}, wave(8, 1, 0.1)).
		Op("conv1", graph.OpConv2D, graph.ConvAttrs{
			Strides:    [2]int{1, 1},
			Padding:    graph.PaddingSame,
			Activation: graph.ActRelu,
		}, "image", "conv1/kernel", "conv1/bias").
		Const("dw/kernel", tensor.Shape{3, 3, 8, 1}, wave(3*3*8, 2, 0.4)).
		Op("dw", graph.OpDepthwiseConv2D, graph.ConvAttrs{
			Strides:    [2]int{2, 2},
			Padding:    graph.PaddingSame,
			Activation: graph.ActRelu6,
		}, "conv1", "dw/kernel").
		Op("pad", graph.OpMirrorPad, graph.PadAttrs{
			Paddings: [][2]int{{1, 1}, {1, 1}},
			Mode:     graph.PadReflect,
		}, "dw").
		Const("conv2/kernel", tensor.Shape{3, 3, 8, 12}, wave(3*3*8*12, 3, 0.2)).
		Op("conv2", graph.OpConv2D, graph.ConvAttrs{
			Strides: [2]int{1, 1},
			Padding: graph.PaddingValid,
		}, "pad", "conv2/kernel").
		Const("shift", tensor.Shape{12}, wave(12, 4, 0.5)).
		Op("shifted", graph.OpAdd, graph.NoAttrs{}, "conv2", "shift").
		Op("pool", graph.OpMaxPool, graph.PoolAttrs{
			Size:    [2]int{2, 2},
			Strides: [2]int{2, 2},
			Padding: graph.PaddingValid,
		}, "shifted").
		Op("up", graph.OpResizeBilinear, graph.ResizeAttrs{
			Factor:           [2]int{2, 2},
			HalfPixelCenters: true,
		}, "pool").
		Op("prob", graph.OpSigmoid, graph.NoAttrs{}, "up").
		Build("prob")
}

// wave returns n deterministic values in [-scale, scale].
func wave(n int, phase, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = scale * math32.Sin(float32(i)*0.37+phase)
	}
	return out
}

// syntheticInputs returns one deterministic input per declared model input,
// sized from the resolved shapes.
func syntheticInputs(m *graph.Model) [][]float32 {
	inputs := make([][]float32, len(m.Inputs))
	for i, n := range m.Inputs {
		inputs[i] = wave(n.Shape.NumElements(), float32(i), 1)
	}
	return inputs
}
