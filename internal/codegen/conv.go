package codegen

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/gpu"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/layout"
)

func genConv(g *Generator, n *graph.Node) (*Shader, error) {
	p, ok := n.Params.(*graph.ConvParams)
	if !ok {
		return nil, fmt.Errorf("%w: conv params of type %T", errs.ErrConfig, n.Params)
	}
	if p.Kernel == nil {
		return nil, fmt.Errorf("%w: conv kernel weights are missing", errs.ErrConfig)
	}

	var (
		packed *layout.Packed
		err    error
	)
	if p.Depthwise {
		packed, err = layout.RepackDepthwise(p.Kernel, g.maxDim)
	} else {
		packed, err = layout.RepackConv(p.Kernel, g.maxDim)
	}
	if err != nil {
		return nil, err
	}

	prog := g.newProgram(n)
	in, inL, err := g.input(prog, 0, "IN")
	if err != nil {
		return nil, err
	}
	kernelU := g.weight(prog, "kernel", p.Kernel.Name, packed)
	biasU := ""
	if p.HasBias() {
		bias, err := layout.PackBias(p.Bias, g.maxDim)
		if err != nil {
			return nil, err
		}
		biasU = g.weight(prog, "bias", p.Bias.Name, bias)
	}

	prog.builder.
		Int("KH", p.KernelH).Int("KW", p.KernelW).
		Int("SH", p.StrideH).Int("SW", p.StrideW).
		Int("PAD_T", p.PadTop).Int("PAD_L", p.PadLeft).
		Int("FILTERS", p.Filters)

	var body strings.Builder
	body.WriteString(positionGLSL + "\n")
	body.WriteString(`vec4 acc = vec4(0.0);
for (int ky = 0; ky < KH; ky++) {
  for (int kx = 0; kx < KW; kx++) {
    int iy = oy * SH + ky - PAD_T;
    int ix = ox * SW + kx - PAD_L;
    float inb = float(iy >= 0 && iy < IN_H && ix >= 0 && ix < IN_W);
    int pos = clamp(iy, 0, IN_H - 1) * IN_W + clamp(ix, 0, IN_W - 1);
`)
	if p.Depthwise {
		fmt.Fprintf(&body, `    vec4 src = texelFetch(%s, texelAt(pos * (IN_CP / 4) + cg, IN_TW, IN_TH), 0) * inb;
    acc += src * texelFetch(%s, ivec3(kx, cg * KH + ky, 0), 0);
`, in, kernelU)
	} else {
		fmt.Fprintf(&body, `    for (int dg = 0; dg < IN_CP / 4; dg++) {
      vec4 src = texelFetch(%s, texelAt(pos * (IN_CP / 4) + dg, IN_TW, IN_TH), 0) * inb;
      int wy = dg * KH + ky;
      int wx = kx * FILTERS;
`, in)
		for l, c := range "xyzw" {
			fmt.Fprintf(&body, "      acc.%c += dot(src, texelFetch(%s, ivec3(wx + min(cg * 4 + %d, FILTERS - 1), wy, 0), 0));\n", c, kernelU, l)
		}
		body.WriteString("    }\n")
	}
	body.WriteString("  }\n}\n")
	if biasU != "" {
		fmt.Fprintf(&body, "acc += texelFetch(%s, ivec3(cg, 0, 0), 0);\n", biasU)
	}
	switch p.Activation {
	case graph.ActRelu:
		body.WriteString("acc = max(acc, 0.0);\n")
	case graph.ActRelu6:
		body.WriteString("acc = clamp(acc, 0.0, 6.0);\n")
	}
	body.WriteString("v = acc;")
	src := body.String()
	prog.builder.Body(func(int) string { return src })

	out := n.Layout
	inGroups := inL.ChannelsPadded / 4
	return prog.finish(func(base int, s []gpu.Sampler) gpu.Vec4 {
		oy, ox, cg := position(out, base)
		var acc gpu.Vec4
		for ky := 0; ky < p.KernelH; ky++ {
			iy := oy*p.StrideH + ky - p.PadTop
			if iy < 0 || iy >= inL.Shape[0] {
				continue
			}
			for kx := 0; kx < p.KernelW; kx++ {
				ix := ox*p.StrideW + kx - p.PadLeft
				if ix < 0 || ix >= inL.Shape[1] {
					continue
				}
				pos := iy*inL.Shape[1] + ix
				if p.Depthwise {
					src := fetch(s[0], inL, pos*inGroups+cg)
					w := s[1].Fetch(kx, cg*p.KernelH+ky, 0)
					for l := range acc {
						acc[l] += src[l] * w[l]
					}
					continue
				}
				for dg := 0; dg < inGroups; dg++ {
					src := fetch(s[0], inL, pos*inGroups+dg)
					wy := dg*p.KernelH + ky
					for l := range acc {
						f := min(cg*4+l, p.Filters-1)
						acc[l] += dot(src, s[1].Fetch(kx*p.Filters+f, wy, 0))
					}
				}
			}
		}
		if p.HasBias() {
			b := s[2].Fetch(cg, 0, 0)
			for l := range acc {
				acc[l] += b[l]
			}
		}
		return activate(acc, p.Activation)
	})
}

func genMaxPool(g *Generator, n *graph.Node) (*Shader, error) {
	p, ok := n.Params.(*graph.PoolParams)
	if !ok {
		return nil, fmt.Errorf("%w: pool params of type %T", errs.ErrConfig, n.Params)
	}
	prog := g.newProgram(n)
	in, inL, err := g.input(prog, 0, "IN")
	if err != nil {
		return nil, err
	}
	prog.builder.
		Int("PH", p.SizeH).Int("PW", p.SizeW).
		Int("SH", p.StrideH).Int("SW", p.StrideW).
		Int("PAD_T", p.PadTop).Int("PAD_L", p.PadLeft).
		Float("SENTINEL", poolSentinel)

	src := positionGLSL + fmt.Sprintf(`
vec4 m = vec4(SENTINEL);
for (int ky = 0; ky < PH; ky++) {
  for (int kx = 0; kx < PW; kx++) {
    int iy = oy * SH + ky - PAD_T;
    int ix = ox * SW + kx - PAD_L;
    if (iy >= 0 && iy < IN_H && ix >= 0 && ix < IN_W) {
      m = max(m, texelFetch(%s, texelAt((iy * IN_W + ix) * (IN_CP / 4) + cg, IN_TW, IN_TH), 0));
    }
  }
}
v = m;`, in)
	prog.builder.Body(func(int) string { return src })

	out := n.Layout
	groups := inL.ChannelsPadded / 4
	return prog.finish(func(base int, s []gpu.Sampler) gpu.Vec4 {
		oy, ox, cg := position(out, base)
		m := gpu.Vec4{poolSentinel, poolSentinel, poolSentinel, poolSentinel}
		for ky := 0; ky < p.SizeH; ky++ {
			iy := oy*p.StrideH + ky - p.PadTop
			if iy < 0 || iy >= inL.Shape[0] {
				continue
			}
			for kx := 0; kx < p.SizeW; kx++ {
				ix := ox*p.StrideW + kx - p.PadLeft
				if ix < 0 || ix >= inL.Shape[1] {
					continue
				}
				t := fetch(s[0], inL, (iy*inL.Shape[1]+ix)*groups+cg)
				for l := range m {
					m[l] = math32.Max(m[l], t[l])
				}
			}
		}
		return m
	})
}

// poolSentinel starts the running max; taps outside the input are skipped.
const poolSentinel float32 = -3.4e38

func dot(a, b gpu.Vec4) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
}

func activate(v gpu.Vec4, a graph.Activation) gpu.Vec4 {
	switch a {
	case graph.ActRelu:
		for l := range v {
			v[l] = math32.Max(v[l], 0)
		}
	case graph.ActRelu6:
		for l := range v {
			v[l] = math32.Min(math32.Max(v[l], 0), 6)
		}
	}
	return v
}
