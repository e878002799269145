package gpu_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/wedge/internal/backend/soft"
	"github.com/born-ml/wedge/internal/config"
	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/gpu"
	"github.com/born-ml/wedge/internal/layout"
	"github.com/born-ml/wedge/internal/tensor"
)

func testLayout(t *testing.T, shape tensor.Shape) layout.Layout {
	t.Helper()
	opts := layout.Options{
		Breakpoints:  []config.Breakpoint{{Threshold: 0, Targets: 1}, {Threshold: 64, Targets: 2}},
		MaxDimension: 2048,
		PadChannels:  true,
	}
	l, err := layout.Compute(shape, opts, false)
	require.NoError(t, err)
	return l
}

func TestUploadReadbackRoundTrip(t *testing.T) {
	m := gpu.NewManager(soft.New(soft.Config{}), nil)
	defer m.Release()

	l := testLayout(t, tensor.Shape{5, 5, 3})
	require.Equal(t, 2, l.NumTextures)
	tex, err := m.Tensor("x", l)
	require.NoError(t, err)

	data := make([]float32, 75)
	for i := range data {
		data[i] = float32(i) * 0.5
	}
	require.NoError(t, m.Upload(tex, data))
	got, err := m.Readback(tex)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	st := m.Stats()
	assert.Equal(t, 1, st.Textures)
	assert.Equal(t, tex.Bytes(), st.AllocatedBytes)
	assert.Equal(t, 1, st.Uploads)
	assert.Equal(t, 1, st.Readbacks)
}

func TestUploadLengthMismatch(t *testing.T) {
	m := gpu.NewManager(soft.New(soft.Config{}), nil)
	tex, err := m.Tensor("x", testLayout(t, tensor.Shape{2, 2, 4}))
	require.NoError(t, err)
	assert.ErrorIs(t, m.Upload(tex, make([]float32, 3)), errs.ErrShape)
}

func TestWeightUpload(t *testing.T) {
	dev := soft.New(soft.Config{})
	m := gpu.NewManager(dev, nil)
	p := &layout.Packed{Width: 2, Height: 1, Data: []float32{1, 2, 3, 4, 5, 6, 7, 8}}
	tex, err := m.Weight("bias", p)
	require.NoError(t, err)
	assert.False(t, tex.Layout.Valid())

	require.NoError(t, dev.BindFramebufferLayer(tex.Handle, 0, 0))
	px, err := dev.ReadPixels(0, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, p.Data, px)
}

func TestAllocateLimits(t *testing.T) {
	m := gpu.NewManager(soft.New(soft.Config{MaxTextureSize: 8, MaxArrayTextureLayers: 2}), nil)

	_, err := m.Weight("wide", &layout.Packed{Width: 9, Height: 1, Data: make([]float32, 36)})
	var le *errs.LimitError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, 9, le.Value)
	assert.Equal(t, 8, le.Max)
	assert.ErrorIs(t, err, errs.ErrConfig)

	l := testLayout(t, tensor.Shape{1, 1, 4})
	l.NumTextures = 3
	_, err = m.Tensor("deep", l)
	assert.ErrorIs(t, err, errs.ErrConfig)
}

// Retarget detaches previous attachments, so moving from a two-layer
// texture to a smaller one-layer texture leaves the framebuffer complete.
func TestRetargetClearsAttachments(t *testing.T) {
	dev := soft.New(soft.Config{})
	m := gpu.NewManager(dev, nil)

	big, err := m.Tensor("big", testLayout(t, tensor.Shape{5, 5, 3}))
	require.NoError(t, err)
	small, err := m.Tensor("small", testLayout(t, tensor.Shape{1, 1, 4}))
	require.NoError(t, err)
	src, err := m.Tensor("src", testLayout(t, tensor.Shape{1, 1, 4}))
	require.NoError(t, err)

	p, err := dev.CompileProgram(gpu.ProgramSource{Name: "ones", Kernel: func(_, _ int, _ []gpu.Sampler, out []gpu.Vec4) {
		for i := range out {
			out[i] = gpu.Vec4{1, 1, 1, 1}
		}
	}})
	require.NoError(t, err)
	require.NoError(t, dev.UseProgram(p))
	require.NoError(t, dev.BindTexture(0, "u_input0", src.Handle))

	require.NoError(t, m.Retarget(big))
	require.NoError(t, dev.DrawFullscreenQuad(big.Width, big.Height))
	require.NoError(t, m.Retarget(small))
	require.NoError(t, dev.DrawFullscreenQuad(small.Width, small.Height))

	got, err := m.Readback(small)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 1}, got)
}

func TestRetargetAttachmentLimit(t *testing.T) {
	m := gpu.NewManager(soft.New(soft.Config{MaxColorAttachments: 1}), nil)
	tex, err := m.Tensor("x", testLayout(t, tensor.Shape{5, 5, 3}))
	require.NoError(t, err)
	var le *errs.LimitError
	require.ErrorAs(t, m.Retarget(tex), &le)
	assert.Equal(t, 2, le.Value)
}

func TestRelease(t *testing.T) {
	m := gpu.NewManager(soft.New(soft.Config{}), nil)
	_, err := m.Tensor("x", testLayout(t, tensor.Shape{2, 2, 4}))
	require.NoError(t, err)
	peak := m.Stats().PeakBytes
	require.NoError(t, m.Release())
	assert.Zero(t, m.Stats().AllocatedBytes)
	assert.Equal(t, peak, m.Stats().PeakBytes)
}
