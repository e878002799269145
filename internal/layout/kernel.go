package layout

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/tensor"
)

// Packed is a host-side single-layer RGBA texture ready for upload.
type Packed struct {
	Width  int
	Height int
	Data   []float32 // Width*Height*4, row-major
}

// At returns the texel at (x, y).
func (p *Packed) At(x, y int) [4]float32 {
	i := (y*p.Width + x) * 4
	return [4]float32{p.Data[i], p.Data[i+1], p.Data[i+2], p.Data[i+3]}
}

func newPacked(what string, width, height, maxDim int) (*Packed, error) {
	if width >= maxDim {
		return nil, &errs.LimitError{What: what + " texture width", Value: width, Max: maxDim}
	}
	if height >= maxDim {
		return nil, &errs.LimitError{What: what + " texture height", Value: height, Max: maxDim}
	}
	return &Packed{Width: width, Height: height, Data: make([]float32, width*height*4)}, nil
}

// RepackConv transforms a [kh, kw, depth, filters] convolution kernel into a
// texture where texel (kx*filters+f, dg*kh+ky) holds the four padded depths
// 4*dg..4*dg+3 of filter f at tap (ky, kx).
//
// Kernels wider than the texture limit are rejected; there is no multi-row
// fallback.
func RepackConv(w *tensor.Weight, maxDim int) (*Packed, error) {
	if len(w.Shape) != 4 {
		return nil, fmt.Errorf("%w: conv kernel %s must be rank 4, got %v", errs.ErrShape, w.Name, w.Shape)
	}
	kh, kw, depth, filters := w.Shape[0], w.Shape[1], w.Shape[2], w.Shape[3]
	groups := PadChannel(depth) / 4

	p, err := newPacked("conv kernel", kw*filters, groups*kh, maxDim)
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", w.Name, err)
	}
	for ky := 0; ky < kh; ky++ {
		for kx := 0; kx < kw; kx++ {
			for d := 0; d < depth; d++ {
				dg, lane := d/4, d%4
				y := dg*kh + ky
				for f := 0; f < filters; f++ {
					x := kx*filters + f
					p.Data[(y*p.Width+x)*4+lane] = w.Data[((ky*kw+kx)*depth+d)*filters+f]
				}
			}
		}
	}
	return p, nil
}

// RepackDepthwise transforms a [kh, kw, channels, 1] depthwise kernel into a
// texture where texel (kx, cg*kh+ky) holds channels 4*cg..4*cg+3 at tap (ky, kx).
func RepackDepthwise(w *tensor.Weight, maxDim int) (*Packed, error) {
	if len(w.Shape) != 4 {
		return nil, fmt.Errorf("%w: depthwise kernel %s must be rank 4, got %v", errs.ErrShape, w.Name, w.Shape)
	}
	kh, kw, channels, mult := w.Shape[0], w.Shape[1], w.Shape[2], w.Shape[3]
	if mult != 1 {
		return nil, fmt.Errorf("%w: depthwise kernel %s has channel multiplier %d", errs.ErrUnsupportedParam, w.Name, mult)
	}
	groups := PadChannel(channels) / 4

	p, err := newPacked("depthwise kernel", kw, groups*kh, maxDim)
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", w.Name, err)
	}
	for ky := 0; ky < kh; ky++ {
		for kx := 0; kx < kw; kx++ {
			for c := 0; c < channels; c++ {
				y := (c/4)*kh + ky
				p.Data[(y*p.Width+kx)*4+c%4] = w.Data[(ky*kw+kx)*channels+c]
			}
		}
	}
	return p, nil
}

// PackBias lays a bias vector out along one row, four values per texel.
func PackBias(w *tensor.Weight, maxDim int) (*Packed, error) {
	n := len(w.Data)
	p, err := newPacked("bias", max(PadChannel(n)/4, 1), 1, maxDim)
	if err != nil {
		return nil, fmt.Errorf("bias %s: %w", w.Name, err)
	}
	copy(p.Data, w.Data)
	return p, nil
}
