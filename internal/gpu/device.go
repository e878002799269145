// Package gpu defines the GPU capability set the compiler runs on and the
// resource manager that owns texture arrays, the shared framebuffer and
// readback.
package gpu

// Texture is a backend handle to a 2D texture array of RGBA float texels.
type Texture uint32

// Program is a backend handle to a linked shader program.
type Program uint32

// Limit names a device limit.
type Limit int

// Device limits the compiler queries.
const (
	MaxTextureSize Limit = iota
	MaxArrayTextureLayers
	MaxColorAttachments
	MaxDrawBuffers
)

func (l Limit) String() string {
	switch l {
	case MaxTextureSize:
		return "max texture size"
	case MaxArrayTextureLayers:
		return "max array texture layers"
	case MaxColorAttachments:
		return "max color attachments"
	case MaxDrawBuffers:
		return "max draw buffers"
	default:
		return "unknown limit"
	}
}

// Vec4 is one RGBA texel.
type Vec4 [4]float32

// Sampler reads texels of a bound texture array, like texelFetch.
type Sampler interface {
	Fetch(x, y, layer int) Vec4
}

// Kernel is the host-side twin of a fragment shader. It computes the texels
// at (x, y) for every bound render target, reading inputs by texture unit.
// Backends that cannot compile GLSL execute it instead.
type Kernel func(x, y int, in []Sampler, out []Vec4)

// ProgramSource is everything a backend may need to build a program.
type ProgramSource struct {
	Name     string
	Vertex   string
	Fragment string
	Kernel   Kernel
}

// Device is the capability set of a GPU backend. Calls are issued from a
// single goroutine and execute in order.
type Device interface {
	// CreateTextureArray allocates a zeroed width x height x layers array.
	CreateTextureArray(width, height, layers int) (Texture, error)
	// UploadSubregion writes a width x height block of RGBA texels at (x, y)
	// of one layer.
	UploadSubregion(tex Texture, layer, x, y, width, height int, data []float32) error
	DeleteTexture(tex Texture) error

	CompileProgram(src ProgramSource) (Program, error)
	UseProgram(p Program) error
	// BindTexture binds tex to a texture unit and points the named sampler
	// uniform of the current program at it.
	BindTexture(unit int, uniform string, tex Texture) error
	DeleteProgram(p Program) error

	// BindFramebufferLayer attaches one layer of tex to a color attachment
	// of the shared framebuffer.
	BindFramebufferLayer(tex Texture, layer, attachment int) error
	// ClearAttachments detaches every color attachment.
	ClearAttachments() error
	// DrawFullscreenQuad runs the current program over a width x height
	// viewport into the attached layers.
	DrawFullscreenQuad(width, height int) error
	// ReadPixels reads a width x height block from a color attachment.
	ReadPixels(attachment, width, height int) ([]float32, error)

	Limit(l Limit) int
	// FloatRenderable reports whether float textures can be render targets.
	FloatRenderable() bool

	Release() error
}
