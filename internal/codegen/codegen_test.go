package codegen_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/wedge/internal/backend/cpu"
	"github.com/born-ml/wedge/internal/backend/soft"
	"github.com/born-ml/wedge/internal/codegen"
	"github.com/born-ml/wedge/internal/config"
	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/gpu"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/layout"
	"github.com/born-ml/wedge/internal/ops"
	"github.com/born-ml/wedge/internal/tensor"
)

// manyTargets lays out anything of 16 or more padded elements over two
// texture layers and anything of 64 or more over three.
var manyTargets = []config.Breakpoint{{Threshold: 0, Targets: 1}, {Threshold: 16, Targets: 2}, {Threshold: 64, Targets: 3}}

func resolve(t *testing.T, b *graph.Builder, output string, bps []config.Breakpoint) *graph.Model {
	t.Helper()
	m, err := b.Build(output)
	require.NoError(t, err)
	opts := layout.OptionsFrom(config.Default())
	if bps != nil {
		opts.Breakpoints = bps
	}
	require.NoError(t, ops.NewRegistry().Resolve(m, &ops.Context{Weights: m.Weights, Layout: opts}))
	return m
}

// execute runs every program of m on the software device and reads back
// the output.
func execute(t *testing.T, m *graph.Model, inputs ...[]float32) []float32 {
	t.Helper()
	dev := soft.New(soft.Config{Workers: 3})
	mgr := gpu.NewManager(dev, nil)
	defer mgr.Release()
	gen := codegen.New(config.GLSLES300, 2048)

	textures := make(map[*graph.Node]*gpu.TextureArray)
	for i, in := range m.Inputs {
		tex, err := mgr.Tensor(in.Name, in.Layout)
		require.NoError(t, err)
		require.NoError(t, mgr.Upload(tex, inputs[i]))
		textures[in] = tex
	}
	for _, n := range m.Nodes {
		if n.Op == graph.OpConst && n.Layout.Valid() {
			w, _ := m.Weights.Get(n.Name)
			tex, err := mgr.Tensor(n.Name, n.Layout)
			require.NoError(t, err)
			require.NoError(t, mgr.Upload(tex, w.Data))
			textures[n] = tex
		}
		if !n.Resolved() || !n.Op.Executable() {
			continue
		}
		s, err := gen.Generate(n)
		require.NoError(t, err)
		prog, err := dev.CompileProgram(gpu.ProgramSource{Name: n.Name, Fragment: s.Fragment, Kernel: s.Kernel})
		require.NoError(t, err)
		out, err := mgr.Tensor(n.Name, n.Layout)
		require.NoError(t, err)

		require.NoError(t, dev.UseProgram(prog))
		for _, b := range s.Bindings {
			tex := textures[b.Input]
			if b.Weight != nil {
				tex, err = mgr.Weight(b.Name, b.Weight)
				require.NoError(t, err)
			}
			require.NotNil(t, tex, "binding %s", b.Uniform)
			require.NoError(t, dev.BindTexture(b.Unit, b.Uniform, tex.Handle))
		}
		require.NoError(t, mgr.Retarget(out))
		require.NoError(t, dev.DrawFullscreenQuad(out.Width, out.Height))
		textures[n] = out
	}
	got, err := mgr.Readback(textures[m.Output])
	require.NoError(t, err)
	return got
}

// checkAgainstCPU runs m on both paths and compares element by element.
func checkAgainstCPU(t *testing.T, m *graph.Model, inputs ...[]float32) []float32 {
	t.Helper()
	want, err := cpu.New(nil).Predict(m, inputs...)
	require.NoError(t, err)
	got := execute(t, m, inputs...)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-3, "element %d", i)
	}
	return got
}

func seq(n int, start, step float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)*step
	}
	return out
}

func ones(n int) []float32 {
	return seq(n, 1, 0)
}

func TestConvAllOnesSequentialKernel(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 3, 3, 4}).
		Const("k", tensor.Shape{3, 3, 4, 4}, seq(144, 0, 1)).
		Op("conv", graph.OpConv2D, graph.ConvAttrs{Strides: [2]int{1, 1}, Padding: graph.PaddingSame}, "x", "k")
	m := resolve(t, b, "conv", nil)

	got := checkAgainstCPU(t, m, ones(36))
	// The center output sees the whole kernel: filter f sums k[i*4+f].
	for f := 0; f < 4; f++ {
		var sum float32
		for i := 0; i < 36; i++ {
			sum += float32(i*4 + f)
		}
		assert.InDelta(t, sum, got[4*4+f], 1e-3)
	}
}

func TestConvOddChannelsBiasActivation(t *testing.T) {
	tests := []struct {
		name    string
		in      tensor.Shape
		kernel  tensor.Shape
		strides [2]int
		padding graph.Padding
		act     graph.Activation
		targets []config.Breakpoint
	}{
		{"3to5 same relu", tensor.Shape{1, 5, 5, 3}, tensor.Shape{3, 3, 3, 5}, [2]int{1, 1}, graph.PaddingSame, graph.ActRelu, nil},
		{"strided valid", tensor.Shape{1, 7, 6, 2}, tensor.Shape{3, 2, 2, 6}, [2]int{2, 2}, graph.PaddingValid, graph.ActLinear, nil},
		{"multi target relu6", tensor.Shape{1, 6, 6, 5}, tensor.Shape{3, 3, 5, 7}, [2]int{1, 1}, graph.PaddingSame, graph.ActRelu6, manyTargets},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters := tt.kernel[3]
			b := graph.NewBuilder(graph.FormatGraphModel).
				Input("x", tt.in).
				Const("k", tt.kernel, seq(tt.kernel.NumElements(), -1, 0.05)).
				Const("bias", tensor.Shape{filters}, seq(filters, -0.5, 0.25)).
				Op("conv", graph.OpConv2D, graph.ConvAttrs{Strides: tt.strides, Padding: tt.padding, Activation: tt.act}, "x", "k", "bias")
			m := resolve(t, b, "conv", tt.targets)
			if tt.targets != nil {
				require.Greater(t, m.Output.Layout.NumTextures, 1)
			}
			checkAgainstCPU(t, m, seq(tt.in.NumElements(), -2, 0.1))
		})
	}
}

func TestDepthwiseConv(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 6, 5, 6}).
		Const("k", tensor.Shape{3, 3, 6, 1}, seq(54, 1, -0.04)).
		Const("bias", tensor.Shape{6}, seq(6, 0, 0.5)).
		Op("dw", graph.OpDepthwiseConv2D, graph.ConvAttrs{Strides: [2]int{2, 1}, Padding: graph.PaddingSame, Activation: graph.ActRelu6}, "x", "k", "bias")
	m := resolve(t, b, "dw", manyTargets)
	checkAgainstCPU(t, m, seq(180, -3, 0.05))
}

func TestMaxPool(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 5, 5, 3}).
		Op("pool", graph.OpMaxPool, graph.PoolAttrs{Size: [2]int{3, 3}, Strides: [2]int{2, 2}, Padding: graph.PaddingSame}, "x")
	m := resolve(t, b, "pool", nil)
	checkAgainstCPU(t, m, seq(75, 5, -0.3))
}

func TestElementwise(t *testing.T) {
	tests := []struct {
		name  string
		op    graph.OpKind
		other tensor.Shape
	}{
		{"add same", graph.OpAdd, tensor.Shape{4, 3, 6}},
		{"mul scalar", graph.OpMultiply, tensor.Shape{1}},
		{"add channel", graph.OpAdd, tensor.Shape{6}},
		{"mul channel", graph.OpMultiply, tensor.Shape{1, 1, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := graph.NewBuilder(graph.FormatGraphModel).
				Input("x", tensor.Shape{1, 4, 3, 6}).
				Const("c", tt.other, seq(tt.other.NumElements(), 2, 0.5)).
				Op("out", tt.op, graph.NoAttrs{}, "c", "x")
			m := resolve(t, b, "out", manyTargets)
			checkAgainstCPU(t, m, seq(72, -1, 0.125))
		})
	}
}

func TestActivationsKeepPaddingZero(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 3, 3, 3}).
		Op("sig", graph.OpSigmoid, graph.NoAttrs{}, "x").
		Op("r6", graph.OpRelu6, graph.NoAttrs{}, "sig").
		Op("r", graph.OpRelu, graph.NoAttrs{}, "r6")
	m := resolve(t, b, "r", nil)
	checkAgainstCPU(t, m, seq(27, -4, 0.3))
}

func TestPad(t *testing.T) {
	tests := []struct {
		name  string
		op    graph.OpKind
		attrs graph.PadAttrs
	}{
		{"zero", graph.OpPad, graph.PadAttrs{Paddings: [][2]int{{1, 1}, {1, 1}, {0, 0}}}},
		{"value", graph.OpPadV2, graph.PadAttrs{Paddings: [][2]int{{0, 0}, {2, 0}, {1, 1}, {0, 0}}, Value: 7, HasValue: true}},
		{"reflect", graph.OpMirrorPad, graph.PadAttrs{Paddings: [][2]int{{2, 1}, {1, 2}}, Mode: graph.PadReflect}},
		{"symmetric", graph.OpMirrorPad, graph.PadAttrs{Paddings: [][2]int{{3, 0}, {0, 3}}, Mode: graph.PadSymmetric}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := graph.NewBuilder(graph.FormatGraphModel).
				Input("x", tensor.Shape{1, 3, 3, 4}).
				Op("pad", tt.op, tt.attrs, "x")
			m := resolve(t, b, "pad", nil)
			checkAgainstCPU(t, m, seq(36, 0, 1))
		})
	}
}

func TestPadShape(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 3, 3, 4}).
		Op("pad", graph.OpPad, graph.PadAttrs{Paddings: [][2]int{{1, 1}, {1, 1}, {0, 0}}}, "x")
	m := resolve(t, b, "pad", nil)
	assert.Equal(t, tensor.Shape{5, 5, 4}, m.Output.Shape)

	got := execute(t, m, ones(36))
	// Border zero, interior one.
	assert.Zero(t, got[0])
	assert.Equal(t, float32(1), got[(1*5+1)*4])
}

func TestResize(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 3, 4, 5}).
		Op("up", graph.OpResizeBilinear, graph.ResizeAttrs{Size: [2]int{7, 9}, HalfPixelCenters: true}, "x").
		Op("down", graph.OpResizeBilinear, graph.ResizeAttrs{Size: [2]int{2, 3}, HalfPixelCenters: true}, "up")
	m := resolve(t, b, "down", manyTargets)
	checkAgainstCPU(t, m, seq(60, -3, 0.2))
}

func TestReshape(t *testing.T) {
	tests := []struct {
		name   string
		target []int
		want   tensor.Shape
	}{
		{"8x2x4", []int{1, 8, 2, 4}, tensor.Shape{8, 2, 4}},
		{"4x8x2", []int{1, 4, 8, 2}, tensor.Shape{4, 8, 2}},
		{"flatten", []int{1, -1}, tensor.Shape{1, 1, 64}},
		{"batch inferred", []int{-1, 2, 2, 16}, tensor.Shape{2, 2, 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := graph.NewBuilder(graph.FormatGraphModel).
				Input("x", tensor.Shape{1, 4, 4, 4}).
				Op("r", graph.OpReshape, graph.ReshapeAttrs{Shape: tt.target}, "x")
			m := resolve(t, b, "r", manyTargets)
			assert.Equal(t, tt.want, m.Output.Shape)
			got := checkAgainstCPU(t, m, seq(64, 0, 1))
			assert.Equal(t, seq(64, 0, 1), got)
		})
	}
}

func TestReshapeToThreeChannels(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 2, 3, 4}).
		Op("r", graph.OpReshape, graph.ReshapeAttrs{Shape: []int{1, 4, 2, 3}}, "x").
		Op("back", graph.OpReshape, graph.ReshapeAttrs{Shape: []int{1, 3, 8}}, "r")
	m := resolve(t, b, "back", nil)
	got := checkAgainstCPU(t, m, seq(24, 0, 1))
	assert.Equal(t, seq(24, 0, 1), got)
}

func TestShaderSource(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 4, 4, 3}).
		Const("k", tensor.Shape{3, 3, 3, 8}, seq(216, 0, 1)).
		Const("bias", tensor.Shape{8}, seq(8, 0, 1)).
		Op("conv", graph.OpConv2D, graph.ConvAttrs{Strides: [2]int{1, 1}, Padding: graph.PaddingSame, Activation: graph.ActRelu}, "x", "k", "bias")
	m := resolve(t, b, "conv", nil)

	s, err := codegen.New(config.GLSLES300, 2048).Generate(m.Output)
	require.NoError(t, err)
	assert.Contains(t, s.Fragment, "uniform highp sampler2DArray u_input0;")
	assert.Contains(t, s.Fragment, "uniform highp sampler2DArray u_kernel0;")
	assert.Contains(t, s.Fragment, "uniform highp sampler2DArray u_bias0;")
	assert.Contains(t, s.Slots.Constants, "const int KH = 3;")
	assert.Contains(t, s.Slots.Constants, "const int FILTERS = 8;")
	assert.Contains(t, s.Fragment, "acc = max(acc, 0.0);")

	require.Len(t, s.Bindings, 3)
	assert.Equal(t, m.Node("x"), s.Bindings[0].Input)
	assert.Equal(t, 1, s.Bindings[1].Unit)
	assert.Equal(t, "k", s.Bindings[1].Name)
	// 3 kernel columns of 8 filters, 1 input group of 3 rows.
	assert.Equal(t, 24, s.Bindings[1].Weight.Width)
	assert.Equal(t, 3, s.Bindings[1].Weight.Height)
	assert.Equal(t, 2, s.Bindings[2].Weight.Width)
}

func TestGenerateErrors(t *testing.T) {
	b := graph.NewBuilder(graph.FormatGraphModel).
		Input("x", tensor.Shape{1, 2, 2, 4}).
		Const("k", tensor.Shape{1, 3, 4, 4}, seq(48, 0, 1)).
		Op("conv", graph.OpConv2D, graph.ConvAttrs{Strides: [2]int{1, 1}, Padding: graph.PaddingSame}, "x", "k")
	m := resolve(t, b, "conv", nil)

	// Kernel texture is 3*4 = 12 texels wide.
	_, err := codegen.New(config.GLSLES300, 12).Generate(m.Output)
	var le *errs.LimitError
	require.True(t, errors.As(err, &le))
	var ne *errs.NodeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "conv", ne.Node)

	m.Output.State = graph.StatePending
	_, err = codegen.New(config.GLSLES300, 2048).Generate(m.Output)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestMirror(t *testing.T) {
	assert.Equal(t, 1, codegen.Mirror(-1, 4, graph.PadReflect))
	assert.Equal(t, 0, codegen.Mirror(-1, 4, graph.PadSymmetric))
	assert.Equal(t, 2, codegen.Mirror(4, 4, graph.PadReflect))
	assert.Equal(t, 3, codegen.Mirror(4, 4, graph.PadSymmetric))
	assert.Equal(t, 2, codegen.Mirror(2, 4, graph.PadReflect))
}
