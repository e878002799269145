// Package soft implements gpu.Device in software.
//
// Texture arrays live in host memory and programs run their host-side kernel
// once per fragment, fanned out over framebuffer rows. The framebuffer
// follows the completeness rules of a real driver: every color attachment
// must have the same size, attachments must be contiguous from 0, and a
// texture may not be sampled while it is being rendered to.
package soft

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/wedge/internal/gpu"
	"github.com/born-ml/wedge/internal/parallel"
)

// ErrIncomplete is returned when drawing to or reading from a framebuffer
// whose attachments are inconsistent.
var ErrIncomplete = errors.New("framebuffer incomplete")

// Config configures a software device. Zero limits take the defaults.
type Config struct {
	Workers               int // row fan-out; 0 means one per CPU
	MaxTextureSize        int
	MaxArrayTextureLayers int
	MaxColorAttachments   int
	NoFloatRender         bool // report float textures as not renderable
}

// DefaultConfig returns limits of a typical WebGL2 implementation.
func DefaultConfig() Config {
	return Config{
		MaxTextureSize:        4096,
		MaxArrayTextureLayers: 256,
		MaxColorAttachments:   8,
	}
}

type texture struct {
	width, height, layers int
	data                  [][]float32 // one RGBA slice per layer
}

func (t *texture) Fetch(x, y, layer int) gpu.Vec4 {
	if x < 0 || y < 0 || layer < 0 || x >= t.width || y >= t.height || layer >= t.layers {
		return gpu.Vec4{}
	}
	i := (y*t.width + x) * 4
	d := t.data[layer]
	return gpu.Vec4{d[i], d[i+1], d[i+2], d[i+3]}
}

type program struct {
	src   gpu.ProgramSource
	units map[int]gpu.Texture
}

type attachment struct {
	tex   gpu.Texture
	layer int
}

// Device is a software gpu.Device.
type Device struct {
	cfg      Config
	par      parallel.Config
	released bool

	nextTexture gpu.Texture
	nextProgram gpu.Program
	textures    map[gpu.Texture]*texture
	programs    map[gpu.Program]*program
	current     *program

	attachments map[int]attachment
	draws       int
}

// New returns a software device.
func New(cfg Config) *Device {
	def := DefaultConfig()
	if cfg.MaxTextureSize <= 0 {
		cfg.MaxTextureSize = def.MaxTextureSize
	}
	if cfg.MaxArrayTextureLayers <= 0 {
		cfg.MaxArrayTextureLayers = def.MaxArrayTextureLayers
	}
	if cfg.MaxColorAttachments <= 0 {
		cfg.MaxColorAttachments = def.MaxColorAttachments
	}
	return &Device{
		cfg:         cfg,
		par:         parallel.WithWorkers(cfg.Workers),
		textures:    make(map[gpu.Texture]*texture),
		programs:    make(map[gpu.Program]*program),
		attachments: make(map[int]attachment),
	}
}

var _ gpu.Device = (*Device)(nil)

// Draws returns the number of draw calls issued so far.
func (d *Device) Draws() int {
	return d.draws
}

func (d *Device) texture(tex gpu.Texture) (*texture, error) {
	if d.released {
		return nil, errors.New("device released")
	}
	t, ok := d.textures[tex]
	if !ok {
		return nil, fmt.Errorf("unknown texture %d", tex)
	}
	return t, nil
}

// CreateTextureArray allocates a zeroed texture array.
func (d *Device) CreateTextureArray(width, height, layers int) (gpu.Texture, error) {
	if d.released {
		return 0, errors.New("device released")
	}
	if width <= 0 || height <= 0 || layers <= 0 {
		return 0, fmt.Errorf("invalid texture size %dx%dx%d", width, height, layers)
	}
	if width > d.cfg.MaxTextureSize || height > d.cfg.MaxTextureSize || layers > d.cfg.MaxArrayTextureLayers {
		return 0, fmt.Errorf("texture %dx%dx%d exceeds device limits", width, height, layers)
	}
	t := &texture{width: width, height: height, layers: layers, data: make([][]float32, layers)}
	for i := range t.data {
		t.data[i] = make([]float32, width*height*4)
	}
	d.nextTexture++
	d.textures[d.nextTexture] = t
	return d.nextTexture, nil
}

// UploadSubregion writes a block of RGBA texels into one layer.
func (d *Device) UploadSubregion(tex gpu.Texture, layer, x, y, width, height int, data []float32) error {
	t, err := d.texture(tex)
	if err != nil {
		return err
	}
	if layer < 0 || layer >= t.layers || x < 0 || y < 0 || x+width > t.width || y+height > t.height {
		return fmt.Errorf("upload region %dx%d at (%d,%d,%d) outside %dx%dx%d texture",
			width, height, x, y, layer, t.width, t.height, t.layers)
	}
	if len(data) != width*height*4 {
		return fmt.Errorf("upload of %dx%d texels needs %d floats, got %d", width, height, width*height*4, len(data))
	}
	dst := t.data[layer]
	for row := 0; row < height; row++ {
		off := ((y+row)*t.width + x) * 4
		copy(dst[off:off+width*4], data[row*width*4:(row+1)*width*4])
	}
	return nil
}

// DeleteTexture frees a texture. Attachments and bindings referring to it
// are dropped.
func (d *Device) DeleteTexture(tex gpu.Texture) error {
	if _, err := d.texture(tex); err != nil {
		return err
	}
	delete(d.textures, tex)
	for i, a := range d.attachments {
		if a.tex == tex {
			delete(d.attachments, i)
		}
	}
	for _, p := range d.programs {
		for unit, t := range p.units {
			if t == tex {
				delete(p.units, unit)
			}
		}
	}
	return nil
}

// CompileProgram registers a program. The software device runs its host
// kernel, so the kernel is required.
func (d *Device) CompileProgram(src gpu.ProgramSource) (gpu.Program, error) {
	if d.released {
		return 0, errors.New("device released")
	}
	if src.Kernel == nil {
		return 0, fmt.Errorf("program %s has no host kernel", src.Name)
	}
	if src.Fragment != "" && !strings.Contains(src.Fragment, "void main()") {
		return 0, fmt.Errorf("program %s: fragment shader has no main", src.Name)
	}
	d.nextProgram++
	d.programs[d.nextProgram] = &program{src: src, units: make(map[int]gpu.Texture)}
	return d.nextProgram, nil
}

// UseProgram makes p current.
func (d *Device) UseProgram(p gpu.Program) error {
	prog, ok := d.programs[p]
	if !ok {
		return fmt.Errorf("unknown program %d", p)
	}
	d.current = prog
	return nil
}

// BindTexture binds tex to a unit of the current program. The uniform must
// be declared by the program's fragment shader.
func (d *Device) BindTexture(unit int, uniform string, tex gpu.Texture) error {
	if d.current == nil {
		return errors.New("no current program")
	}
	if _, err := d.texture(tex); err != nil {
		return err
	}
	if unit < 0 {
		return fmt.Errorf("invalid texture unit %d", unit)
	}
	if f := d.current.src.Fragment; f != "" && !strings.Contains(f, " "+uniform+";") {
		return fmt.Errorf("program %s has no sampler %q", d.current.src.Name, uniform)
	}
	d.current.units[unit] = tex
	return nil
}

// DeleteProgram frees a program.
func (d *Device) DeleteProgram(p gpu.Program) error {
	prog, ok := d.programs[p]
	if !ok {
		return fmt.Errorf("unknown program %d", p)
	}
	if d.current == prog {
		d.current = nil
	}
	delete(d.programs, p)
	return nil
}

// BindFramebufferLayer attaches one layer of tex to a color attachment.
func (d *Device) BindFramebufferLayer(tex gpu.Texture, layer, index int) error {
	t, err := d.texture(tex)
	if err != nil {
		return err
	}
	if index < 0 || index >= d.cfg.MaxColorAttachments {
		return fmt.Errorf("color attachment %d out of range [0, %d)", index, d.cfg.MaxColorAttachments)
	}
	if layer < 0 || layer >= t.layers {
		return fmt.Errorf("layer %d out of range [0, %d)", layer, t.layers)
	}
	d.attachments[index] = attachment{tex: tex, layer: layer}
	return nil
}

// ClearAttachments detaches every color attachment.
func (d *Device) ClearAttachments() error {
	clear(d.attachments)
	return nil
}

// targets validates the framebuffer and returns its attachments in order.
func (d *Device) targets() ([]attachment, int, int, error) {
	n := len(d.attachments)
	if n == 0 {
		return nil, 0, 0, fmt.Errorf("%w: no color attachments", ErrIncomplete)
	}
	out := make([]attachment, n)
	var width, height int
	for i := range out {
		a, ok := d.attachments[i]
		if !ok {
			return nil, 0, 0, fmt.Errorf("%w: color attachments are not contiguous (missing %d)", ErrIncomplete, i)
		}
		t := d.textures[a.tex]
		if i == 0 {
			width, height = t.width, t.height
		} else if t.width != width || t.height != height {
			return nil, 0, 0, fmt.Errorf("%w: attachments not all the same size", ErrIncomplete)
		}
		out[i] = a
	}
	return out, width, height, nil
}

// DrawFullscreenQuad runs the current program over every pixel of a
// width x height viewport.
func (d *Device) DrawFullscreenQuad(width, height int) error {
	if d.current == nil {
		return errors.New("no current program")
	}
	targets, fw, fh, err := d.targets()
	if err != nil {
		return err
	}
	width, height = min(width, fw), min(height, fh)

	prog := d.current
	units := 0
	for u := range prog.units {
		units = max(units, u+1)
	}
	in := make([]gpu.Sampler, units)
	for u := range in {
		tex, ok := prog.units[u]
		if !ok {
			return fmt.Errorf("program %s: texture unit %d is unbound", prog.src.Name, u)
		}
		for _, a := range targets {
			if a.tex == tex {
				return fmt.Errorf("program %s: feedback loop, texture unit %d is also a render target", prog.src.Name, u)
			}
		}
		in[u] = d.textures[tex]
	}
	dst := make([][]float32, len(targets))
	for i, a := range targets {
		dst[i] = d.textures[a.tex].data[a.layer]
	}
	stride := d.textures[targets[0].tex].width

	parallel.For(height, func(y int) {
		out := make([]gpu.Vec4, len(dst))
		for x := 0; x < width; x++ {
			prog.src.Kernel(x, y, in, out)
			off := (y*stride + x) * 4
			for t, v := range out {
				copy(dst[t][off:off+4], v[:])
			}
		}
	}, d.par)
	d.draws++
	return nil
}

// ReadPixels copies a block from the origin of a color attachment.
func (d *Device) ReadPixels(index, width, height int) ([]float32, error) {
	targets, fw, fh, err := d.targets()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(targets) {
		return nil, fmt.Errorf("color attachment %d is not bound", index)
	}
	if width > fw || height > fh {
		return nil, fmt.Errorf("read of %dx%d exceeds %dx%d attachment", width, height, fw, fh)
	}
	a := targets[index]
	src := d.textures[a.tex].data[a.layer]
	px := make([]float32, 0, width*height*4)
	for y := 0; y < height; y++ {
		px = append(px, src[y*fw*4:(y*fw+width)*4]...)
	}
	return px, nil
}

// Limit reports a device limit.
func (d *Device) Limit(l gpu.Limit) int {
	switch l {
	case gpu.MaxTextureSize:
		return d.cfg.MaxTextureSize
	case gpu.MaxArrayTextureLayers:
		return d.cfg.MaxArrayTextureLayers
	case gpu.MaxColorAttachments, gpu.MaxDrawBuffers:
		return d.cfg.MaxColorAttachments
	default:
		return 0
	}
}

// FloatRenderable reports whether float textures can be rendered to.
func (d *Device) FloatRenderable() bool {
	return !d.cfg.NoFloatRender
}

// Release frees every resource. The device is unusable afterwards.
func (d *Device) Release() error {
	clear(d.textures)
	clear(d.programs)
	clear(d.attachments)
	d.current = nil
	d.released = true
	return nil
}
