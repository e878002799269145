package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/wedge/internal/config"
	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/layout"
	"github.com/born-ml/wedge/internal/ops"
	"github.com/born-ml/wedge/internal/tensor"
)

// resolved builds and resolves a model from b.
func resolved(t *testing.T, b *graph.Builder, output string) *graph.Model {
	t.Helper()
	m, err := b.Build(output)
	require.NoError(t, err)
	ctx := &ops.Context{Weights: m.Weights, Layout: layout.OptionsFrom(config.Default())}
	require.NoError(t, ops.NewRegistry().Resolve(m, ctx))
	return m
}

func seq(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestCPUBackend_Name(t *testing.T) {
	assert.Equal(t, "CPU", New(nil).Name())
}

// TestConv2D_BasicForward tests basic Conv2D forward pass.
func TestConv2D_BasicForward(t *testing.T) {
	// Input 3x3 single channel:
	// 1 2 3
	// 4 5 6
	// 7 8 9
	// Kernel 2x2 diagonal.
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 3, 3, 1}).
		Const("k", tensor.Shape{2, 2, 1, 1}, []float32{1, 0, 0, 1}).
		Op("conv", graph.OpConv2D, graph.ConvAttrs{Strides: [2]int{1, 1}}, "x", "k")
	m := resolved(t, b, "conv")

	out, err := New(nil).Predict(m, seq(9, 1))
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 8, 12, 14}, out)
}

func TestConv2D_SamePaddingBiasRelu(t *testing.T) {
	// Two filters: the first sums the 3x3 window, the second negates the center.
	kernel := make([]float32, 3*3*1*2)
	for i := 0; i < 9; i++ {
		kernel[i*2] = 1
	}
	kernel[4*2+1] = -1
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 3, 3, 1}).
		Const("k", tensor.Shape{3, 3, 1, 2}, kernel).
		Const("bias", tensor.Shape{2}, []float32{0, 0.5}).
		Op("conv", graph.OpConv2D, graph.ConvAttrs{Strides: [2]int{1, 1}, Padding: graph.PaddingSame, Activation: graph.ActRelu}, "x", "k", "bias")
	m := resolved(t, b, "conv")

	out, err := New(nil).Predict(m, seq(9, 1))
	require.NoError(t, err)
	require.Len(t, out, 18)
	// Top-left window holds 1, 2, 4, 5.
	assert.InDelta(t, 12, out[0], 1e-6)
	assert.InDelta(t, 0, out[1], 1e-6)
	// Center window holds everything.
	assert.InDelta(t, 45, out[8], 1e-6)
}

func TestDepthwiseConv2D(t *testing.T) {
	// 2x2 input, two channels; the kernel scales channel 0 by 1 and channel 1 by 2.
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 2, 2, 2}).
		Const("k", tensor.Shape{1, 1, 2, 1}, []float32{1, 2}).
		Op("dw", graph.OpDepthwiseConv2D, graph.ConvAttrs{Strides: [2]int{1, 1}}, "x", "k")
	m := resolved(t, b, "dw")

	out, err := New(nil).Predict(m, seq(8, 0))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2, 2, 6, 4, 10, 6, 14}, out)
}

// TestMaxPool2D_BasicForward tests basic max pooling correctness.
func TestMaxPool2D_BasicForward(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 4, 4, 1}).
		Op("pool", graph.OpMaxPool, graph.PoolAttrs{Size: [2]int{2, 2}, Strides: [2]int{2, 2}}, "x")
	m := resolved(t, b, "pool")

	out, err := New(nil).Predict(m, seq(16, 1))
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 8, 14, 16}, out)
}

func TestElementwiseBroadcast(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 1, 2, 3}).
		Const("scale", tensor.Shape{3}, []float32{1, 10, 100}).
		Const("shift", tensor.Shape{1}, []float32{0.5}).
		Op("mul", graph.OpMultiply, graph.NoAttrs{}, "scale", "x").
		Op("add", graph.OpAdd, graph.NoAttrs{}, "mul", "shift")
	m := resolved(t, b, "add")

	out, err := New(nil).Predict(m, seq(6, 1))
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 20.5, 300.5, 4.5, 50.5, 600.5}, out)
}

func TestActivations(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 1, 1, 4}).
		Op("r6", graph.OpRelu6, graph.NoAttrs{}, "x").
		Op("sig", graph.OpSigmoid, graph.NoAttrs{}, "x")
	m := resolved(t, b, "sig")

	values, err := New(nil).Run(m, []float32{-1, 0, 3, 9})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 3, 6}, values["r6"].Data)
	assert.InDelta(t, 0.5, values["sig"].Data[1], 1e-6)
	assert.InDelta(t, 0.2689414, values["sig"].Data[0], 1e-6)
}

func TestPadModes(t *testing.T) {
	tests := []struct {
		name string
		op   graph.OpKind
		mode graph.PadMode
		row  []float32 // first output row
	}{
		{"constant", graph.OpPadV2, graph.PadConstant, []float32{-1, -1, -1, -1, -1}},
		{"reflect", graph.OpMirrorPad, graph.PadReflect, []float32{5, 4, 5, 6, 5}},
		{"symmetric", graph.OpMirrorPad, graph.PadSymmetric, []float32{1, 1, 2, 3, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := graph.PadAttrs{Paddings: [][2]int{{1, 1}, {1, 1}, {0, 0}}, Mode: tt.mode}
			if tt.mode == graph.PadConstant {
				attrs.Value, attrs.HasValue = -1, true
			}
			b := graph.NewBuilder(graph.FormatGraphModel).
				Input("x", tensor.Shape{1, 3, 3, 1}).
				Op("pad", tt.op, attrs, "x")
			m := resolved(t, b, "pad")

			out, err := New(nil).Predict(m, seq(9, 1))
			require.NoError(t, err)
			require.Len(t, out, 25)
			assert.Equal(t, tt.row, out[:5])
			// The interior is the input.
			assert.Equal(t, []float32{1, 2, 3}, out[6:9])
		})
	}
}

func TestResizeBilinear(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 1, 2, 1}).
		Op("up", graph.OpResizeBilinear, graph.ResizeAttrs{Size: [2]int{1, 4}, HalfPixelCenters: true}, "x")
	m := resolved(t, b, "up")

	out, err := New(nil).Predict(m, []float32{0, 4})
	require.NoError(t, err)
	// Sample points -0.25 (clamped to 0), 0.25, 0.75, 1.25.
	want := []float32{0, 1, 3, 4}
	for i := range want {
		assert.InDelta(t, want[i], out[i], 1e-5)
	}
}

func TestReshapeKeepsData(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 2, 2, 4}).
		Op("r", graph.OpReshape, graph.ReshapeAttrs{Shape: []int{1, 4, -1, 2}}, "x")
	m := resolved(t, b, "r")

	values, err := New(nil).Run(m, seq(16, 0))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 2, 2}, values["r"].Shape)
	assert.Equal(t, seq(16, 0), values["r"].Data)
}

func TestRunErrors(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 2, 2, 1}).
		Op("r", graph.OpRelu, graph.NoAttrs{}, "x")
	m, err := b.Build("r")
	require.NoError(t, err)

	_, err = New(nil).Run(m, seq(4, 0))
	assert.ErrorIs(t, err, errs.ErrNotCompiled)

	ctx := &ops.Context{Weights: m.Weights, Layout: layout.OptionsFrom(config.Default())}
	require.NoError(t, ops.NewRegistry().Resolve(m, ctx))
	_, err = New(nil).Run(m)
	assert.ErrorIs(t, err, errs.ErrShape)
	_, err = New(nil).Run(m, seq(3, 0))
	assert.ErrorIs(t, err, errs.ErrShape)
}
