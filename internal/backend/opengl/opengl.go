//go:build gl

// Package opengl implements gpu.Device on desktop OpenGL 4.1 core.
//
// The context comes from a hidden GLFW window. OpenGL contexts are bound to
// one OS thread, so a Device locks the calling goroutine to its thread in
// New and every method must be called from that goroutine. Programs must be
// generated for the "410 core" GLSL dialect.
package opengl

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/gpu"
)

type texture struct {
	handle                uint32
	width, height, layers int
}

// Device is an OpenGL gpu.Device.
type Device struct {
	win      *glfw.Window
	fbo      uint32
	vao      uint32
	textures map[gpu.Texture]*texture
	programs map[gpu.Program]uint32
	current  uint32
	attached int // color attachments bound since the last clear
	limits   map[gpu.Limit]int
	floatRT  bool
}

// New creates a hidden window with a 4.1 core context and makes it current
// on the calling goroutine's thread.
func New() (*Device, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("%w: glfw init: %v", errs.ErrGPU, err)
	}
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	win, err := glfw.CreateWindow(1, 1, "wedge", nil, nil)
	if err != nil {
		glfw.Terminate()
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("%w: create context: %v", errs.ErrGPU, err)
	}
	win.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		win.Destroy()
		glfw.Terminate()
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("%w: gl init: %v", errs.ErrGPU, err)
	}

	d := &Device{
		win:      win,
		textures: make(map[gpu.Texture]*texture),
		programs: make(map[gpu.Program]uint32),
		limits:   make(map[gpu.Limit]int),
	}
	gl.GenFramebuffers(1, &d.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, d.fbo)
	// Core profile draws need a bound VAO even without attributes.
	gl.GenVertexArrays(1, &d.vao)
	gl.BindVertexArray(d.vao)

	for l, pname := range map[gpu.Limit]uint32{
		gpu.MaxTextureSize:        gl.MAX_TEXTURE_SIZE,
		gpu.MaxArrayTextureLayers: gl.MAX_ARRAY_TEXTURE_LAYERS,
		gpu.MaxColorAttachments:   gl.MAX_COLOR_ATTACHMENTS,
		gpu.MaxDrawBuffers:        gl.MAX_DRAW_BUFFERS,
	} {
		var v int32
		gl.GetIntegerv(pname, &v)
		d.limits[l] = int(v)
	}
	d.floatRT = d.probeFloatRender()
	return d, nil
}

var _ gpu.Device = (*Device)(nil)

func glError(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("%s: gl error 0x%x", op, code)
	}
	return nil
}

// probeFloatRender checks that an RGBA32F layer is a complete attachment.
func (d *Device) probeFloatRender() bool {
	tex, err := d.CreateTextureArray(1, 1, 1)
	if err != nil {
		return false
	}
	defer d.DeleteTexture(tex)
	if err := d.BindFramebufferLayer(tex, 0, 0); err != nil {
		return false
	}
	defer d.ClearAttachments()
	return gl.CheckFramebufferStatus(gl.FRAMEBUFFER) == gl.FRAMEBUFFER_COMPLETE
}

// CreateTextureArray allocates an RGBA32F 2D texture array with nearest
// filtering.
func (d *Device) CreateTextureArray(width, height, layers int) (gpu.Texture, error) {
	var h uint32
	gl.GenTextures(1, &h)
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, h)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D_ARRAY, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage3D(gl.TEXTURE_2D_ARRAY, 0, gl.RGBA32F, int32(width), int32(height), int32(layers), 0, gl.RGBA, gl.FLOAT, nil)
	if err := glError("TexImage3D"); err != nil {
		gl.DeleteTextures(1, &h)
		return 0, err
	}
	d.textures[gpu.Texture(h)] = &texture{handle: h, width: width, height: height, layers: layers}
	return gpu.Texture(h), nil
}

// UploadSubregion writes RGBA float texels into one layer.
func (d *Device) UploadSubregion(tex gpu.Texture, layer, x, y, width, height int, data []float32) error {
	t, ok := d.textures[tex]
	if !ok {
		return fmt.Errorf("unknown texture %d", tex)
	}
	if len(data) != width*height*4 {
		return fmt.Errorf("upload of %dx%d texels needs %d floats, got %d", width, height, width*height*4, len(data))
	}
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, t.handle)
	gl.TexSubImage3D(gl.TEXTURE_2D_ARRAY, 0, int32(x), int32(y), int32(layer), int32(width), int32(height), 1, gl.RGBA, gl.FLOAT, gl.Ptr(data))
	return glError("TexSubImage3D")
}

// DeleteTexture frees a texture.
func (d *Device) DeleteTexture(tex gpu.Texture) error {
	t, ok := d.textures[tex]
	if !ok {
		return fmt.Errorf("unknown texture %d", tex)
	}
	gl.DeleteTextures(1, &t.handle)
	delete(d.textures, tex)
	return nil
}

func compileShader(name, stage, src string, kind uint32) (uint32, error) {
	h := gl.CreateShader(kind)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(h, 1, csrc, nil)
	free()
	gl.CompileShader(h)

	var status int32
	gl.GetShaderiv(h, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(h, gl.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(h, logLength, nil, gl.Str(msg))
		gl.DeleteShader(h)
		return 0, &errs.ShaderError{Program: name, Stage: stage, Source: src, Log: strings.TrimRight(msg, "\x00")}
	}
	return h, nil
}

// CompileProgram compiles and links the vertex and fragment shaders.
func (d *Device) CompileProgram(src gpu.ProgramSource) (gpu.Program, error) {
	vs, err := compileShader(src.Name, "vertex", src.Vertex, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vs)
	fs, err := compileShader(src.Name, "fragment", src.Fragment, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fs)

	p := gl.CreateProgram()
	gl.AttachShader(p, vs)
	gl.AttachShader(p, fs)
	gl.LinkProgram(p)

	var status int32
	gl.GetProgramiv(p, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(p, gl.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(p, logLength, nil, gl.Str(msg))
		gl.DeleteProgram(p)
		return 0, &errs.ShaderError{Program: src.Name, Stage: "link", Source: src.Fragment, Log: strings.TrimRight(msg, "\x00")}
	}
	d.programs[gpu.Program(p)] = p
	return gpu.Program(p), nil
}

// UseProgram makes p current.
func (d *Device) UseProgram(p gpu.Program) error {
	h, ok := d.programs[p]
	if !ok {
		return fmt.Errorf("unknown program %d", p)
	}
	gl.UseProgram(h)
	d.current = h
	return glError("UseProgram")
}

// BindTexture binds tex to a texture unit and sets the sampler uniform.
func (d *Device) BindTexture(unit int, uniform string, tex gpu.Texture) error {
	if d.current == 0 {
		return errors.New("no current program")
	}
	t, ok := d.textures[tex]
	if !ok {
		return fmt.Errorf("unknown texture %d", tex)
	}
	loc := gl.GetUniformLocation(d.current, gl.Str(uniform+"\x00"))
	if loc < 0 {
		return fmt.Errorf("sampler %q not found in program", uniform)
	}
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, t.handle)
	gl.Uniform1i(loc, int32(unit))
	return glError("BindTexture")
}

// DeleteProgram frees a program.
func (d *Device) DeleteProgram(p gpu.Program) error {
	h, ok := d.programs[p]
	if !ok {
		return fmt.Errorf("unknown program %d", p)
	}
	if d.current == h {
		gl.UseProgram(0)
		d.current = 0
	}
	gl.DeleteProgram(h)
	delete(d.programs, p)
	return nil
}

// BindFramebufferLayer attaches one layer of tex to a color attachment and
// enables draw buffers for every attachment up to it.
func (d *Device) BindFramebufferLayer(tex gpu.Texture, layer, attachment int) error {
	t, ok := d.textures[tex]
	if !ok {
		return fmt.Errorf("unknown texture %d", tex)
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, d.fbo)
	gl.FramebufferTextureLayer(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0+uint32(attachment), t.handle, 0, int32(layer))
	d.attached = max(d.attached, attachment+1)
	d.drawBuffers()
	return glError("FramebufferTextureLayer")
}

func (d *Device) drawBuffers() {
	bufs := make([]uint32, max(d.attached, 1))
	for i := range bufs {
		bufs[i] = gl.COLOR_ATTACHMENT0 + uint32(i)
	}
	gl.DrawBuffers(int32(len(bufs)), &bufs[0])
}

// ClearAttachments detaches every color attachment.
func (d *Device) ClearAttachments() error {
	gl.BindFramebuffer(gl.FRAMEBUFFER, d.fbo)
	for i := 0; i < d.limits[gpu.MaxColorAttachments]; i++ {
		gl.FramebufferTextureLayer(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0+uint32(i), 0, 0, 0)
	}
	d.attached = 0
	d.drawBuffers()
	return glError("ClearAttachments")
}

func (d *Device) complete() error {
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("framebuffer incomplete: status 0x%x", status)
	}
	return nil
}

// DrawFullscreenQuad draws the full-screen triangle over a width x height
// viewport.
func (d *Device) DrawFullscreenQuad(width, height int) error {
	if err := d.complete(); err != nil {
		return err
	}
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.BindVertexArray(d.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	return glError("DrawArrays")
}

// ReadPixels reads RGBA floats from a color attachment.
func (d *Device) ReadPixels(attachment, width, height int) ([]float32, error) {
	if err := d.complete(); err != nil {
		return nil, err
	}
	px := make([]float32, width*height*4)
	gl.ReadBuffer(gl.COLOR_ATTACHMENT0 + uint32(attachment))
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.FLOAT, gl.Ptr(px))
	if err := glError("ReadPixels"); err != nil {
		return nil, err
	}
	return px, nil
}

// Limit reports a device limit.
func (d *Device) Limit(l gpu.Limit) int {
	return d.limits[l]
}

// FloatRenderable reports whether RGBA32F textures are complete attachments.
func (d *Device) FloatRenderable() bool {
	return d.floatRT
}

// Release frees every GL object, destroys the context and unlocks the thread.
func (d *Device) Release() error {
	for _, t := range d.textures {
		gl.DeleteTextures(1, &t.handle)
	}
	for _, p := range d.programs {
		gl.DeleteProgram(p)
	}
	gl.DeleteFramebuffers(1, &d.fbo)
	gl.DeleteVertexArrays(1, &d.vao)
	clear(d.textures)
	clear(d.programs)
	d.win.Destroy()
	glfw.Terminate()
	runtime.UnlockOSThread()
	return nil
}
