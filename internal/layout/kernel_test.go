package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/tensor"
)

func sequential(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

func TestPadUnpadRoundTrip(t *testing.T) {
	shapes := []tensor.Shape{{1, 1, 1}, {3, 3, 3}, {2, 5, 6}, {4, 4, 7}, {1, 9, 2}, {3, 3, 8}}

	for _, s := range shapes {
		data := sequential(s.NumElements())
		c := s.Channels()
		padded := PadChannels(data, c, PadChannel(c))

		assert.Len(t, padded, s[0]*s[1]*PadChannel(c))
		assert.Equal(t, data, Unpad(padded, len(data), c, PadChannel(c)), "shape %v", s)
	}
}

func TestPadChannelsZeroFills(t *testing.T) {
	padded := PadChannels([]float32{1, 2, 3, 4, 5, 6}, 3, 4)
	assert.Equal(t, []float32{1, 2, 3, 0, 4, 5, 6, 0}, padded)
}

func TestPackUnpack(t *testing.T) {
	l, err := Compute(tensor.Shape{3, 3, 5}, defaultOptions(), false)
	require.NoError(t, err)

	data := sequential(45)
	texels, err := l.Pack(data)
	require.NoError(t, err)
	assert.Len(t, texels, l.Capacity())

	// Element (h=1, w=2, c=4) sits at padded index (1*3+2)*8+4.
	x, y, layer, lane := l.Locate((1*3+2)*8 + 4)
	assert.Equal(t, data[(1*3+2)*5+4], texels[l.Index(x, y, layer, lane)])

	out, err := l.Unpack(texels)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = l.Pack(data[:10])
	assert.ErrorIs(t, err, errs.ErrShape)
}

func TestRepackConv(t *testing.T) {
	// [kh=2, kw=2, depth=3, filters=2]
	w, err := tensor.NewWeight("k", tensor.Shape{2, 2, 3, 2}, sequential(24))
	require.NoError(t, err)

	p, err := RepackConv(w, 2048)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Width) // kw*filters
	assert.Equal(t, 2, p.Height)

	at := func(ky, kx, d, f int) float32 { return w.Data[((ky*2+kx)*3+d)*2+f] }
	for ky := 0; ky < 2; ky++ {
		for kx := 0; kx < 2; kx++ {
			for f := 0; f < 2; f++ {
				texel := p.At(kx*2+f, ky)
				assert.Equal(t, [4]float32{at(ky, kx, 0, f), at(ky, kx, 1, f), at(ky, kx, 2, f), 0}, texel)
			}
		}
	}
}

func TestRepackConvTooWide(t *testing.T) {
	w, err := tensor.NewWeight("wide", tensor.Shape{1, 3, 4, 8}, make([]float32, 96))
	require.NoError(t, err)

	_, err = RepackConv(w, 16)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Contains(t, err.Error(), "conv kernel texture width 24")
}

func TestRepackDepthwise(t *testing.T) {
	w, err := tensor.NewWeight("dw", tensor.Shape{3, 3, 6, 1}, sequential(54))
	require.NoError(t, err)

	p, err := RepackDepthwise(w, 2048)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Width)
	assert.Equal(t, 6, p.Height) // 2 groups * kh

	// channel 5 -> group 1, lane 1, at tap (2, 1)
	assert.Equal(t, w.Data[(2*3+1)*6+5], p.At(1, 1*3+2)[1])
	assert.Zero(t, p.At(1, 1*3+2)[3])

	bad, err := tensor.NewWeight("dw2", tensor.Shape{1, 1, 4, 2}, make([]float32, 8))
	require.NoError(t, err)
	_, err = RepackDepthwise(bad, 2048)
	assert.ErrorIs(t, err, errs.ErrUnsupportedParam)
}

func TestPackBias(t *testing.T) {
	w, err := tensor.NewWeight("b", tensor.Shape{6}, sequential(6))
	require.NoError(t, err)

	p, err := PackBias(w, 2048)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Width)
	assert.Equal(t, 1, p.Height)
	assert.Equal(t, [4]float32{5, 6, 0, 0}, p.At(1, 0))
}
