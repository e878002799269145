package cpu

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/wedge/internal/graph"
)

// pad writes in into the padded HWC output. Constant mode fills the border
// with the pad value; mirror modes reflect indices back into the input.
func pad(out, in Tensor, p *graph.PadParams) {
	hOut, wOut, c := out.Shape[0], out.Shape[1], out.Shape[2]
	h, w := in.Shape[0], in.Shape[1]
	for oy := 0; oy < hOut; oy++ {
		for ox := 0; ox < wOut; ox++ {
			dst := out.Data[(oy*wOut+ox)*c : (oy*wOut+ox+1)*c]
			iy, ix := oy-p.Before[0], ox-p.Before[1]
			if p.Mode != graph.PadConstant {
				iy, ix = mirror(iy, h, p.Mode), mirror(ix, w, p.Mode)
			} else if iy < 0 || iy >= h || ix < 0 || ix >= w {
				for ch := range dst {
					dst[ch] = p.Value
				}
				continue
			}
			copy(dst, in.Data[(iy*w+ix)*c:(iy*w+ix+1)*c])
		}
	}
}

func mirror(i, n int, mode graph.PadMode) int {
	shift := 0
	if mode == graph.PadSymmetric {
		shift = 1
	}
	if i < 0 {
		return -i - shift
	}
	if i >= n {
		return 2*(n-1) - i + shift
	}
	return i
}

// resizeBilinear samples with half-pixel centers and without corner
// alignment.
func resizeBilinear(out, in Tensor, p *graph.ResizeParams) {
	hOut, wOut, c := out.Shape[0], out.Shape[1], out.Shape[2]
	h, w := in.Shape[0], in.Shape[1]
	at := func(y, x, ch int) float32 { return in.Data[(y*w+x)*c+ch] }
	for oy := 0; oy < hOut; oy++ {
		sy := math32.Max((float32(oy)+0.5)*p.ScaleH-0.5, 0)
		y0 := min(int(math32.Floor(sy)), h-1)
		y1 := min(y0+1, h-1)
		fy := sy - float32(y0)
		for ox := 0; ox < wOut; ox++ {
			sx := math32.Max((float32(ox)+0.5)*p.ScaleW-0.5, 0)
			x0 := min(int(math32.Floor(sx)), w-1)
			x1 := min(x0+1, w-1)
			fx := sx - float32(x0)
			for ch := 0; ch < c; ch++ {
				top := at(y0, x0, ch) + (at(y0, x1, ch)-at(y0, x0, ch))*fx
				bottom := at(y1, x0, ch) + (at(y1, x1, ch)-at(y1, x0, ch))*fx
				out.Data[(oy*wOut+ox)*c+ch] = top + (bottom-top)*fy
			}
		}
	}
}
