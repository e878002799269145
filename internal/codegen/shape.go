package codegen

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/gpu"
	"github.com/born-ml/wedge/internal/graph"
)

const (
	reflectGLSL = `int mirror(int i, int n) {
  if (i < 0) return -i;
  if (i >= n) return 2 * (n - 1) - i;
  return i;
}`
	symmetricGLSL = `int mirror(int i, int n) {
  if (i < 0) return -i - 1;
  if (i >= n) return 2 * n - 1 - i;
  return i;
}`
)

// Mirror maps an out-of-range index back into [0, n) the way MirrorPad does.
func Mirror(i, n int, mode graph.PadMode) int {
	switch {
	case i < 0 && mode == graph.PadReflect:
		return -i
	case i < 0:
		return -i - 1
	case i >= n && mode == graph.PadReflect:
		return 2*(n-1) - i
	case i >= n:
		return 2*n - 1 - i
	default:
		return i
	}
}

func genPad(g *Generator, n *graph.Node) (*Shader, error) {
	p, ok := n.Params.(*graph.PadParams)
	if !ok {
		return nil, fmt.Errorf("%w: pad params of type %T", errs.ErrConfig, n.Params)
	}
	prog := g.newProgram(n)
	in, inL, err := g.input(prog, 0, "IN")
	if err != nil {
		return nil, err
	}
	prog.builder.Int("PAD_T", p.Before[0]).Int("PAD_L", p.Before[1])

	var src string
	fetchExpr := fmt.Sprintf("texelFetch(%s, texelAt((iy * IN_W + ix) * (IN_CP / 4) + cg, IN_TW, IN_TH), 0)", in)
	if p.Mode == graph.PadConstant {
		prog.builder.Float("PAD_VALUE", p.Value)
		src = positionGLSL + fmt.Sprintf(`
int iy = oy - PAD_T;
int ix = ox - PAD_L;
if (iy >= 0 && iy < IN_H && ix >= 0 && ix < IN_W) {
  v = %s;
} else {
  v = vec4(PAD_VALUE);
}`, fetchExpr)
	} else {
		if p.Mode == graph.PadReflect {
			prog.builder.Helper(reflectGLSL)
		} else {
			prog.builder.Helper(symmetricGLSL)
		}
		src = positionGLSL + fmt.Sprintf(`
int iy = mirror(oy - PAD_T, IN_H);
int ix = mirror(ox - PAD_L, IN_W);
v = %s;`, fetchExpr)
	}
	prog.builder.Body(func(int) string { return src })

	out := n.Layout
	groups := inL.ChannelsPadded / 4
	inH, inW := inL.Shape[0], inL.Shape[1]
	return prog.finish(func(base int, s []gpu.Sampler) gpu.Vec4 {
		oy, ox, cg := position(out, base)
		iy, ix := oy-p.Before[0], ox-p.Before[1]
		if p.Mode != graph.PadConstant {
			iy, ix = Mirror(iy, inH, p.Mode), Mirror(ix, inW, p.Mode)
		} else if iy < 0 || iy >= inH || ix < 0 || ix >= inW {
			return gpu.Vec4{p.Value, p.Value, p.Value, p.Value}
		}
		return fetch(s[0], inL, (iy*inW+ix)*groups+cg)
	})
}

func genResize(g *Generator, n *graph.Node) (*Shader, error) {
	p, ok := n.Params.(*graph.ResizeParams)
	if !ok {
		return nil, fmt.Errorf("%w: resize params of type %T", errs.ErrConfig, n.Params)
	}
	prog := g.newProgram(n)
	in, inL, err := g.input(prog, 0, "IN")
	if err != nil {
		return nil, err
	}
	prog.builder.Float("SCALE_H", p.ScaleH).Float("SCALE_W", p.ScaleW)

	at := func(y, x string) string {
		return fmt.Sprintf("texelFetch(%s, texelAt((%s * IN_W + %s) * (IN_CP / 4) + cg, IN_TW, IN_TH), 0)", in, y, x)
	}
	src := positionGLSL + fmt.Sprintf(`
float sy = max((float(oy) + 0.5) * SCALE_H - 0.5, 0.0);
float sx = max((float(ox) + 0.5) * SCALE_W - 0.5, 0.0);
int y0 = min(int(floor(sy)), IN_H - 1);
int x0 = min(int(floor(sx)), IN_W - 1);
int y1 = min(y0 + 1, IN_H - 1);
int x1 = min(x0 + 1, IN_W - 1);
float fy = sy - float(y0);
float fx = sx - float(x0);
vec4 top = mix(%s, %s, fx);
vec4 bottom = mix(%s, %s, fx);
v = mix(top, bottom, fy);`, at("y0", "x0"), at("y0", "x1"), at("y1", "x0"), at("y1", "x1"))
	prog.builder.Body(func(int) string { return src })

	out := n.Layout
	groups := inL.ChannelsPadded / 4
	inH, inW := inL.Shape[0], inL.Shape[1]
	return prog.finish(func(base int, s []gpu.Sampler) gpu.Vec4 {
		oy, ox, cg := position(out, base)
		sy := math32.Max((float32(oy)+0.5)*p.ScaleH-0.5, 0)
		sx := math32.Max((float32(ox)+0.5)*p.ScaleW-0.5, 0)
		y0 := min(int(math32.Floor(sy)), inH-1)
		x0 := min(int(math32.Floor(sx)), inW-1)
		y1, x1 := min(y0+1, inH-1), min(x0+1, inW-1)
		fy, fx := sy-float32(y0), sx-float32(x0)

		px := func(y, x int) gpu.Vec4 { return fetch(s[0], inL, (y*inW+x)*groups+cg) }
		p00, p01, p10, p11 := px(y0, x0), px(y0, x1), px(y1, x0), px(y1, x1)
		var v gpu.Vec4
		for l := range v {
			top := p00[l] + (p01[l]-p00[l])*fx
			bottom := p10[l] + (p11[l]-p10[l])*fx
			v[l] = top + (bottom-top)*fy
		}
		return v
	})
}

// genReshape maps every output lane through the data index: output padded
// index, output data index, input data index, input padded index.
func genReshape(g *Generator, n *graph.Node) (*Shader, error) {
	prog := g.newProgram(n)
	in, inL, err := g.input(prog, 0, "IN")
	if err != nil {
		return nil, err
	}

	var body strings.Builder
	for l, c := range "xyzw" {
		fmt.Fprintf(&body, `{
  int e = base + %d;
  int c = e - (e / OUT_CP) * OUT_CP;
  if (c < OUT_C) {
    int d = (e / OUT_CP) * OUT_C + c;
    int ie = (d / IN_C) * IN_CP + (d - (d / IN_C) * IN_C);
    v.%c = lane(texelFetch(%s, texelAt(ie / 4, IN_TW, IN_TH), 0), ie - (ie / 4) * 4);
  }
}
`, l, c, in)
	}
	src := body.String()
	prog.builder.Body(func(int) string { return src })

	out := n.Layout
	return prog.finish(func(base int, s []gpu.Sampler) gpu.Vec4 {
		var v gpu.Vec4
		for l := range v {
			e := base + l
			c := e % out.ChannelsPadded
			if c >= out.Channels {
				continue
			}
			d := (e/out.ChannelsPadded)*out.Channels + c
			ie := (d/inL.Channels)*inL.ChannelsPadded + d%inL.Channels
			v[l] = fetch(s[0], inL, ie/4)[ie%4]
		}
		return v
	})
}
