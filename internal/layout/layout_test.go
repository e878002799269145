package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/wedge/internal/config"
	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/tensor"
)

func defaultOptions() Options {
	return OptionsFrom(config.Default())
}

func TestNumTextures(t *testing.T) {
	bps := []config.Breakpoint{{Threshold: 0, Targets: 1}, {Threshold: 100, Targets: 2}, {Threshold: 1000, Targets: 4}}

	assert.Equal(t, 1, NumTextures(0, bps))
	assert.Equal(t, 1, NumTextures(99, bps))
	assert.Equal(t, 2, NumTextures(100, bps))
	assert.Equal(t, 2, NumTextures(999, bps))
	assert.Equal(t, 4, NumTextures(5000, bps))
	assert.Equal(t, 1, NumTextures(5000, nil))
	assert.Equal(t, 1, NumTextures(5, []config.Breakpoint{{Threshold: 10, Targets: 3}}))
}

func TestComputeDefaultPacking(t *testing.T) {
	l, err := Compute(tensor.Shape{1, 3, 3, 3}, defaultOptions(), false)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{3, 3, 3}, l.Shape)
	assert.Equal(t, 3, l.Channels)
	assert.Equal(t, 4, l.ChannelsPadded)
	assert.Equal(t, 1, l.NumTextures)
	// 9 texels -> 3x3
	assert.Equal(t, 3, l.Width)
	assert.Equal(t, 3, l.Height)
}

func TestComputeRejectsBatch(t *testing.T) {
	_, err := Compute(tensor.Shape{2, 3, 3, 4}, defaultOptions(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrShape)
	assert.Contains(t, err.Error(), "expected batch dimension of 1")
}

func TestComputeConvConstraint(t *testing.T) {
	// 5x5x12: 3 channel groups, 75 texels.
	l, err := Compute(tensor.Shape{5, 5, 12}, defaultOptions(), true)
	require.NoError(t, err)

	assert.Zero(t, l.Width%3, "width must be a multiple of the channel group count")
	assert.Zero(t, (l.Width*l.Height)%3)
	assert.GreaterOrEqual(t, l.Width*l.Height, 75)
	assert.Equal(t, 9, l.Width)
	assert.Equal(t, 9, l.Height)
}

func TestComputeTooLarge(t *testing.T) {
	opts := defaultOptions()
	opts.MaxDimension = 16
	opts.Breakpoints = nil

	_, err := Compute(tensor.Shape{64, 64, 4}, opts, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Contains(t, err.Error(), "shape size too large")

	var le *errs.LimitError
	assert.ErrorAs(t, err, &le)
}

func TestComputeChannelPaddingDisabled(t *testing.T) {
	opts := defaultOptions()
	opts.PadChannels = false

	l, err := Compute(tensor.Shape{2, 2, 8}, opts, false)
	require.NoError(t, err)
	assert.Equal(t, 8, l.ChannelsPadded)

	// Channel groups must be whole RGBA texels even when H*W*C is a multiple of 4.
	for _, s := range []tensor.Shape{{3, 3, 3}, {2, 2, 2}, {1, 4, 1}} {
		_, err = Compute(s, opts, false)
		assert.ErrorIs(t, err, errs.ErrConfig, "shape %v", s)
	}
}

func TestComputeLayoutValidity(t *testing.T) {
	tables := [][]config.Breakpoint{
		nil,
		config.Default().RenderTargetBreakpoints,
		{{Threshold: 0, Targets: 1}, {Threshold: 64, Targets: 2}, {Threshold: 512, Targets: 4}},
		{{Threshold: 0, Targets: 3}},
	}
	shapes := []tensor.Shape{
		{1, 1, 1}, {1, 1, 4}, {3, 3, 3}, {7, 7, 5}, {16, 16, 16}, {1, 224, 224, 3},
		{13, 17, 9}, {2, 100}, {33}, {64, 64, 32}, {1, 1, 1000},
	}

	for _, bps := range tables {
		for _, conv := range []bool{false, true} {
			for _, s := range shapes {
				opts := Options{Breakpoints: bps, MaxDimension: 2048, PadChannels: true}
				l, err := Compute(s, opts, conv)
				if err != nil {
					assert.ErrorIs(t, err, errs.ErrConfig, "shape %v", s)
					continue
				}
				assert.Less(t, l.Width, opts.MaxDimension, "shape %v", s)
				assert.Less(t, l.Height, opts.MaxDimension, "shape %v", s)
				assert.GreaterOrEqual(t, l.Capacity(), l.PaddedElements(), "shape %v conv=%v", s, conv)
				assert.Zero(t, l.PaddedElements()%4)
				if conv {
					assert.Zero(t, l.Width%(l.ChannelsPadded/4), "shape %v", s)
				}
			}
		}
	}
}

func TestLocateIndexRoundTrip(t *testing.T) {
	l, err := Compute(tensor.Shape{7, 5, 6}, Options{
		Breakpoints:  []config.Breakpoint{{Threshold: 0, Targets: 2}},
		MaxDimension: 2048,
		PadChannels:  true,
	}, false)
	require.NoError(t, err)
	require.Equal(t, 2, l.NumTextures)

	for e := 0; e < l.Capacity(); e++ {
		x, y, layer, lane := l.Locate(e)
		require.Less(t, x, l.Width)
		require.Less(t, y, l.Height)
		require.Less(t, layer, l.NumTextures)
		require.Equal(t, e, l.Index(x, y, layer, lane))
	}
}
