// Package layout maps logical HWC tensor shapes onto RGBA texture arrays.
//
// A tensor is stored channels-last with its channel axis zero-padded to a
// multiple of 4, so every texel holds 4 consecutive channels of one spatial
// position. The padded element stream is cut into NumTextures equal layers of
// Width x Height texels: padded element e lives in texel g = e/4, lane e%4, and
// texel g sits at layer g/(Width*Height), row (g%(Width*Height))/Width,
// column g%Width. Whatever capacity is left after the last element is zero.
package layout

import (
	"fmt"
	"math"

	"github.com/born-ml/wedge/internal/config"
	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/tensor"
)

// Options are the layout-relevant parts of the configuration.
type Options struct {
	Breakpoints  []config.Breakpoint
	MaxDimension int
	PadChannels  bool
}

// OptionsFrom extracts layout options from the full configuration.
func OptionsFrom(c config.Options) Options {
	return Options{
		Breakpoints:  c.RenderTargetBreakpoints,
		MaxDimension: c.MaxTextureDimension,
		PadChannels:  c.PadChannels,
	}
}

// Layout is the physical texture layout of one tensor instance.
type Layout struct {
	Shape          tensor.Shape // HWC
	Channels       int
	ChannelsPadded int
	Width          int
	Height         int
	NumTextures    int
}

// Valid reports whether l describes an allocated layout.
func (l Layout) Valid() bool {
	return l.Width > 0 && l.Height > 0 && l.NumTextures > 0
}

// Elements returns the logical element count.
func (l Layout) Elements() int {
	return l.Shape.NumElements()
}

// PaddedElements returns the element count after channel padding.
func (l Layout) PaddedElements() int {
	return l.Shape[0] * l.Shape[1] * l.ChannelsPadded
}

// TexelsPerLayer returns Width*Height.
func (l Layout) TexelsPerLayer() int {
	return l.Width * l.Height
}

// Capacity returns the float count of the whole texture array.
func (l Layout) Capacity() int {
	return l.Width * l.Height * l.NumTextures * 4
}

// Texel returns the texel coordinates holding texel index g.
func (l Layout) Texel(g int) (x, y, layer int) {
	per := l.Width * l.Height
	layer = g / per
	r := g % per
	return r % l.Width, r / l.Width, layer
}

// Locate returns the texel coordinates and RGBA lane of padded element e.
func (l Layout) Locate(e int) (x, y, layer, lane int) {
	x, y, layer = l.Texel(e / 4)
	return x, y, layer, e % 4
}

// Index is the inverse of Locate.
func (l Layout) Index(x, y, layer, lane int) int {
	return ((layer*l.Height+y)*l.Width+x)*4 + lane
}

// String formats the layout for logs.
func (l Layout) String() string {
	return fmt.Sprintf("%v -> %dx%dx%d (c=%d/%d)", l.Shape, l.Width, l.Height, l.NumTextures, l.Channels, l.ChannelsPadded)
}

// PadChannel rounds c up to a multiple of 4.
func PadChannel(c int) int {
	return (c + 3) / 4 * 4
}

// NumTextures looks up the render target count for a padded element count.
// The table is scanned from the highest threshold down; the default is 1.
func NumTextures(paddedElements int, breakpoints []config.Breakpoint) int {
	for i := len(breakpoints) - 1; i >= 0; i-- {
		if paddedElements >= breakpoints[i].Threshold {
			return breakpoints[i].Targets
		}
	}
	return 1
}

// Compute derives the texture layout for shape.
//
// A leading batch axis of 1 is stripped. When conv is set the layout is
// constrained so that Width is a multiple of the output's channel group count,
// which convolution-family shaders rely on.
func Compute(shape tensor.Shape, opts Options, conv bool) (Layout, error) {
	hwc, err := shape.HWC()
	if err != nil {
		return Layout{}, err
	}
	if opts.MaxDimension < 1 {
		return Layout{}, fmt.Errorf("%w: max texture dimension %d", errs.ErrConfig, opts.MaxDimension)
	}

	c := hwc.Channels()
	cp := c
	if opts.PadChannels {
		cp = PadChannel(c)
	}
	if cp%4 != 0 {
		return Layout{}, fmt.Errorf("%w: %d channels of %v need channel padding", errs.ErrConfig, c, hwc)
	}
	padded := hwc[0] * hwc[1] * cp

	l := Layout{Shape: hwc, Channels: c, ChannelsPadded: cp}
	l.NumTextures = NumTextures(padded, opts.Breakpoints)

	total := ceilDiv(padded, 4*l.NumTextures)
	if conv {
		l.Width, l.Height, err = convPacking(total, cp/4, opts.MaxDimension)
		if err != nil {
			return Layout{}, err
		}
	} else {
		l.Height = int(math.Ceil(math.Sqrt(float64(total))))
		l.Width = ceilDiv(total, l.Height)
		if l.Width*l.Height < total {
			l.Width++
		}
	}

	if l.Width >= opts.MaxDimension {
		return Layout{}, fmt.Errorf("shape size too large: %w", &errs.LimitError{What: "texture width", Value: l.Width, Max: opts.MaxDimension})
	}
	if l.Height >= opts.MaxDimension {
		return Layout{}, fmt.Errorf("shape size too large: %w", &errs.LimitError{What: "texture height", Value: l.Height, Max: opts.MaxDimension})
	}
	return l, nil
}

// convPacking searches widths in steps of groups for the most square
// packing whose area covers total.
func convPacking(total, groups, maxDim int) (width, height int, err error) {
	bestDiff := -1
	for w := groups; w < maxDim; w += groups {
		h := ceilDiv(total, w)
		diff := w - h
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			width, height, bestDiff = w, h, diff
		}
		if h < w {
			// Widening further only moves away from square.
			break
		}
	}
	if bestDiff < 0 {
		return 0, 0, fmt.Errorf("shape size too large: %w", &errs.LimitError{What: "texture width", Value: groups, Max: maxDim})
	}
	return width, height, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
