package gpu

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/layout"
)

// TextureArray is a texture array owned by a Manager.
type TextureArray struct {
	Name   string
	Handle Texture
	Width  int
	Height int
	Layers int

	// Layout is set for tensor textures and zero for packed weights.
	Layout layout.Layout
}

// Bytes returns the texture's size in device memory.
func (t *TextureArray) Bytes() uint64 {
	return uint64(t.Width) * uint64(t.Height) * uint64(t.Layers) * 16
}

// Stats are resource usage counters of a Manager.
type Stats struct {
	Textures       int    // live texture arrays
	AllocatedBytes uint64 // bytes held by live textures
	PeakBytes      uint64
	Uploads        int
	Readbacks      int
}

// Manager allocates texture arrays, uploads host data into them, retargets
// the shared framebuffer and reads results back.
type Manager struct {
	dev      Device
	logger   *slog.Logger
	textures []*TextureArray
	stats    Stats
}

// NewManager returns a manager over dev.
func NewManager(dev Device, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dev: dev, logger: logger}
}

// Device returns the underlying device.
func (m *Manager) Device() Device {
	return m.dev
}

// Tensor allocates a texture array for a tensor laid out as l.
func (m *Manager) Tensor(name string, l layout.Layout) (*TextureArray, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: tensor %s has no texture layout", errs.ErrConfig, name)
	}
	t, err := m.allocate(name, l.Width, l.Height, l.NumTextures)
	if err != nil {
		return nil, err
	}
	t.Layout = l
	return t, nil
}

// Weight allocates a single-layer texture for packed weights and uploads them.
func (m *Manager) Weight(name string, p *layout.Packed) (*TextureArray, error) {
	t, err := m.allocate(name, p.Width, p.Height, 1)
	if err != nil {
		return nil, err
	}
	if err := m.dev.UploadSubregion(t.Handle, 0, 0, 0, p.Width, p.Height, p.Data); err != nil {
		return nil, fmt.Errorf("%w: upload %s: %v", errs.ErrGPU, name, err)
	}
	m.stats.Uploads++
	return t, nil
}

func (m *Manager) allocate(name string, width, height, layers int) (*TextureArray, error) {
	if limit := m.dev.Limit(MaxTextureSize); width > limit || height > limit {
		return nil, &errs.LimitError{What: "texture size of " + name, Value: max(width, height), Max: limit}
	}
	if limit := m.dev.Limit(MaxArrayTextureLayers); layers > limit {
		return nil, &errs.LimitError{What: "texture layers of " + name, Value: layers, Max: limit}
	}
	h, err := m.dev.CreateTextureArray(width, height, layers)
	if err != nil {
		return nil, fmt.Errorf("%w: create texture %s (%dx%dx%d): %v", errs.ErrGPU, name, width, height, layers, err)
	}
	t := &TextureArray{Name: name, Handle: h, Width: width, Height: height, Layers: layers}
	m.textures = append(m.textures, t)

	m.stats.Textures++
	m.stats.AllocatedBytes += t.Bytes()
	if m.stats.AllocatedBytes > m.stats.PeakBytes {
		m.stats.PeakBytes = m.stats.AllocatedBytes
	}
	m.logger.Debug("allocated texture", "name", name, "width", width, "height", height, "layers", layers)
	return t, nil
}

// Upload pads data to t's layout and writes it layer by layer.
func (m *Manager) Upload(t *TextureArray, data []float32) error {
	if !t.Layout.Valid() {
		return fmt.Errorf("%w: %s is not a tensor texture", errs.ErrConfig, t.Name)
	}
	packed, err := t.Layout.Pack(data)
	if err != nil {
		return fmt.Errorf("upload %s: %w", t.Name, err)
	}
	per := t.Width * t.Height * 4
	for layer := 0; layer < t.Layers; layer++ {
		chunk := packed[layer*per : (layer+1)*per]
		if err := m.dev.UploadSubregion(t.Handle, layer, 0, 0, t.Width, t.Height, chunk); err != nil {
			return fmt.Errorf("%w: upload %s layer %d: %v", errs.ErrGPU, t.Name, layer, err)
		}
	}
	m.stats.Uploads++
	return nil
}

// Retarget points the shared framebuffer at t, layer i on color attachment
// i. Previous attachments are detached first; leaving a differently sized
// attachment bound makes the framebuffer incomplete.
func (m *Manager) Retarget(t *TextureArray) error {
	if limit := m.dev.Limit(MaxColorAttachments); t.Layers > limit {
		return &errs.LimitError{What: "render targets of " + t.Name, Value: t.Layers, Max: limit}
	}
	if err := m.dev.ClearAttachments(); err != nil {
		return fmt.Errorf("%w: clear attachments: %v", errs.ErrGPU, err)
	}
	for layer := 0; layer < t.Layers; layer++ {
		if err := m.dev.BindFramebufferLayer(t.Handle, layer, layer); err != nil {
			return fmt.Errorf("%w: attach %s layer %d: %v", errs.ErrGPU, t.Name, layer, err)
		}
	}
	return nil
}

// Readback reads every layer of t and strips the channel padding.
func (m *Manager) Readback(t *TextureArray) ([]float32, error) {
	if !t.Layout.Valid() {
		return nil, fmt.Errorf("%w: %s is not a tensor texture", errs.ErrConfig, t.Name)
	}
	texels := make([]float32, 0, t.Layout.Capacity())
	for layer := 0; layer < t.Layers; layer++ {
		if err := m.dev.ClearAttachments(); err != nil {
			return nil, fmt.Errorf("%w: clear attachments: %v", errs.ErrGPU, err)
		}
		if err := m.dev.BindFramebufferLayer(t.Handle, layer, 0); err != nil {
			return nil, fmt.Errorf("%w: attach %s layer %d: %v", errs.ErrGPU, t.Name, layer, err)
		}
		px, err := m.dev.ReadPixels(0, t.Width, t.Height)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s layer %d: %v", errs.ErrGPU, t.Name, layer, err)
		}
		texels = append(texels, px...)
	}
	m.stats.Readbacks++
	return t.Layout.Unpack(texels)
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return m.stats
}

// Release deletes every texture the manager allocated.
func (m *Manager) Release() error {
	var errList []error
	for _, t := range m.textures {
		if err := m.dev.DeleteTexture(t.Handle); err != nil {
			errList = append(errList, fmt.Errorf("delete %s: %w", t.Name, err))
		}
	}
	m.textures = nil
	m.stats.Textures = 0
	m.stats.AllocatedBytes = 0
	return errors.Join(errList...)
}
