package cpu

import (
	"github.com/born-ml/wedge/internal/graph"
)

// conv2D performs a channels-last 2D convolution using im2col.
//
// Input shape:  [H, W, C_in]
// Kernel shape: [K_h, K_w, C_in, C_out]
// Output shape: [H_out, W_out, C_out]
//
// Algorithm: Im2col
//  1. Transform input patches into rows: [H_out * W_out, K_h * K_w * C_in]
//  2. The kernel is already a [K_h * K_w * C_in, C_out] matrix (row-major)
//  3. MatMul: rows @ kernel -> [H_out * W_out, C_out], which is the HWC output
func conv2D(out, in Tensor, p *graph.ConvParams) {
	hOut, wOut, cOut := out.Shape[0], out.Shape[1], out.Shape[2]
	cIn := in.Shape[2]
	colWidth := p.KernelH * p.KernelW * cIn
	colBuf := make([]float32, hOut*wOut*colWidth)

	im2col(colBuf, in, p, hOut, wOut)

	kernel := p.Kernel.Data
	for j := 0; j < hOut*wOut; j++ {
		row := colBuf[j*colWidth : (j+1)*colWidth]
		dst := out.Data[j*cOut : (j+1)*cOut]
		for k, v := range row {
			if v == 0 {
				continue
			}
			w := kernel[k*cOut : (k+1)*cOut]
			for f := range dst {
				dst[f] += v * w[f]
			}
		}
	}
	finish(out, p)
}

// im2col transforms the HWC input into one row per output position. Taps
// outside the input are zero.
func im2col(colBuf []float32, in Tensor, p *graph.ConvParams, hOut, wOut int) {
	h, w, c := in.Shape[0], in.Shape[1], in.Shape[2]
	idx := 0
	for oy := 0; oy < hOut; oy++ {
		for ox := 0; ox < wOut; ox++ {
			hStart := oy*p.StrideH - p.PadTop
			wStart := ox*p.StrideW - p.PadLeft
			for kh := 0; kh < p.KernelH; kh++ {
				for kw := 0; kw < p.KernelW; kw++ {
					iy, ix := hStart+kh, wStart+kw
					if iy >= 0 && iy < h && ix >= 0 && ix < w {
						copy(colBuf[idx:idx+c], in.Data[(iy*w+ix)*c:(iy*w+ix+1)*c])
					}
					// Zero padding is already in place.
					idx += c
				}
			}
		}
	}
}

// depthwiseConv2D convolves each channel with its own filter.
// Kernel shape: [K_h, K_w, C, 1].
func depthwiseConv2D(out, in Tensor, p *graph.ConvParams) {
	hOut, wOut, c := out.Shape[0], out.Shape[1], out.Shape[2]
	h, w := in.Shape[0], in.Shape[1]
	kernel := p.Kernel.Data
	for oy := 0; oy < hOut; oy++ {
		for ox := 0; ox < wOut; ox++ {
			dst := out.Data[(oy*wOut+ox)*c : (oy*wOut+ox+1)*c]
			for kh := 0; kh < p.KernelH; kh++ {
				iy := oy*p.StrideH + kh - p.PadTop
				if iy < 0 || iy >= h {
					continue
				}
				for kw := 0; kw < p.KernelW; kw++ {
					ix := ox*p.StrideW + kw - p.PadLeft
					if ix < 0 || ix >= w {
						continue
					}
					src := in.Data[(iy*w+ix)*c : (iy*w+ix+1)*c]
					k := kernel[(kh*p.KernelW+kw)*c : (kh*p.KernelW+kw+1)*c]
					for ch := range dst {
						dst[ch] += src[ch] * k[ch]
					}
				}
			}
		}
	}
	finish(out, p)
}

// finish adds the bias and applies the fused activation.
func finish(out Tensor, p *graph.ConvParams) {
	c := out.Shape[2]
	for i := range out.Data {
		if p.HasBias() {
			out.Data[i] += p.Bias.Data[i%c]
		}
		switch p.Activation {
		case graph.ActRelu:
			out.Data[i] = relu(out.Data[i])
		case graph.ActRelu6:
			out.Data[i] = relu6(out.Data[i])
		}
	}
}
