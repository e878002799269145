package layout

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
)

// PadChannels zero-extends the channel axis of row-major, channels-last data
// from c to cp channels.
func PadChannels(data []float32, c, cp int) []float32 {
	if c == cp {
		return data
	}
	positions := len(data) / c
	out := make([]float32, positions*cp)
	for p := 0; p < positions; p++ {
		copy(out[p*cp:p*cp+c], data[p*c:(p+1)*c])
	}
	return out
}

// Unpad strips channel padding from padded data, keeping n logical elements.
func Unpad(padded []float32, n, c, cp int) []float32 {
	if c%4 == 0 || c == cp {
		out := make([]float32, n)
		copy(out, padded)
		return out
	}
	out := make([]float32, 0, n)
	for i, v := range padded {
		if len(out) == n {
			break
		}
		if i%cp < c {
			out = append(out, v)
		}
	}
	return out
}

// Pack pads data to the layout's channel count and zero-extends it to the
// full texture array capacity.
func (l Layout) Pack(data []float32) ([]float32, error) {
	if len(data) != l.Elements() {
		return nil, fmt.Errorf("%w: got %d values for shape %v", errs.ErrShape, len(data), l.Shape)
	}
	out := make([]float32, l.Capacity())
	copy(out, PadChannels(data, l.Channels, l.ChannelsPadded))
	return out, nil
}

// Unpack is the inverse of Pack: it drops the tail capacity and the padded
// channel lanes.
func (l Layout) Unpack(texels []float32) ([]float32, error) {
	if len(texels) < l.PaddedElements() {
		return nil, fmt.Errorf("%w: readback of %d values is smaller than %d padded elements", errs.ErrShape, len(texels), l.PaddedElements())
	}
	return Unpad(texels[:l.PaddedElements()], l.Elements(), l.Channels, l.ChannelsPadded), nil
}
