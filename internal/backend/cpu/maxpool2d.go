package cpu

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/wedge/internal/graph"
)

// maxPool2D takes the maximum over each pooling window of an HWC tensor.
// Window taps that fall into the padding are ignored.
//
// Example (2x2 pool, stride=2, one channel):
//
//	Input: [[1,2,3,4],    Output: [[6,8],
//	        [5,6,7,8],             [14,16]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func maxPool2D(out, in Tensor, p *graph.PoolParams) {
	hOut, wOut, c := out.Shape[0], out.Shape[1], out.Shape[2]
	h, w := in.Shape[0], in.Shape[1]
	for oy := 0; oy < hOut; oy++ {
		for ox := 0; ox < wOut; ox++ {
			dst := out.Data[(oy*wOut+ox)*c : (oy*wOut+ox+1)*c]
			for ch := range dst {
				dst[ch] = -math32.MaxFloat32
			}
			for kh := 0; kh < p.SizeH; kh++ {
				iy := oy*p.StrideH + kh - p.PadTop
				if iy < 0 || iy >= h {
					continue
				}
				for kw := 0; kw < p.SizeW; kw++ {
					ix := ox*p.StrideW + kw - p.PadLeft
					if ix < 0 || ix >= w {
						continue
					}
					src := in.Data[(iy*w+ix)*c : (iy*w+ix+1)*c]
					for ch := range dst {
						dst[ch] = math32.Max(dst[ch], src[ch])
					}
				}
			}
		}
	}
}
