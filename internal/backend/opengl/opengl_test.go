//go:build gl

package opengl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/glsl"
	"github.com/born-ml/wedge/internal/gpu"
)

func newDevice(t *testing.T) *Device {
	t.Helper()
	d, err := New()
	if err != nil {
		t.Skipf("no OpenGL 4.1 context: %v", err)
	}
	t.Cleanup(func() { d.Release() })
	return d
}

func TestLimits(t *testing.T) {
	d := newDevice(t)
	assert.GreaterOrEqual(t, d.Limit(gpu.MaxTextureSize), 1024)
	assert.GreaterOrEqual(t, d.Limit(gpu.MaxColorAttachments), 4)
	assert.True(t, d.FloatRenderable())
}

func TestUploadRead(t *testing.T) {
	d := newDevice(t)
	tex, err := d.CreateTextureArray(2, 2, 2)
	require.NoError(t, err)
	data := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	require.NoError(t, d.UploadSubregion(tex, 1, 0, 0, 2, 2, data))
	require.NoError(t, d.ClearAttachments())
	require.NoError(t, d.BindFramebufferLayer(tex, 1, 0))
	px, err := d.ReadPixels(0, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, data, px)
}

func TestDrawTwoTargets(t *testing.T) {
	d := newDevice(t)
	vs, err := glsl.Vertex("410 core")
	require.NoError(t, err)
	fs := `#version 410 core
layout(location = 0) out vec4 o0;
layout(location = 1) out vec4 o1;
uniform highp sampler2DArray u_input0;
void main() {
  ivec2 px = ivec2(gl_FragCoord.xy);
  vec4 v = texelFetch(u_input0, ivec3(px, 0), 0);
  o0 = v * 2.0;
  o1 = v + 1.0;
}
`
	p, err := d.CompileProgram(gpu.ProgramSource{Name: "double", Vertex: vs, Fragment: fs})
	require.NoError(t, err)

	src, _ := d.CreateTextureArray(2, 1, 1)
	require.NoError(t, d.UploadSubregion(src, 0, 0, 0, 2, 1, []float32{1, 2, 3, 4, 5, 6, 7, 8}))
	dst, _ := d.CreateTextureArray(2, 1, 2)

	require.NoError(t, d.UseProgram(p))
	require.NoError(t, d.BindTexture(0, "u_input0", src))
	require.NoError(t, d.ClearAttachments())
	require.NoError(t, d.BindFramebufferLayer(dst, 0, 0))
	require.NoError(t, d.BindFramebufferLayer(dst, 1, 1))
	require.NoError(t, d.DrawFullscreenQuad(2, 1))

	px, err := d.ReadPixels(0, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 4, 6, 8, 10, 12, 14, 16}, px)
	px, err = d.ReadPixels(1, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4, 5, 6, 7, 8, 9}, px)
}

func TestCompileErrorCarriesLog(t *testing.T) {
	d := newDevice(t)
	vs, err := glsl.Vertex("410 core")
	require.NoError(t, err)
	_, err = d.CompileProgram(gpu.ProgramSource{Name: "broken", Vertex: vs, Fragment: "#version 410 core\nvoid main() { undefined(); }\n"})
	var se *errs.ShaderError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fragment", se.Stage)
	assert.NotEmpty(t, se.Log)
	assert.ErrorIs(t, err, errs.ErrGPU)
}
