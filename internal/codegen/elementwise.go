package codegen

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/gpu"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/layout"
)

func genElementwise(g *Generator, n *graph.Node) (*Shader, error) {
	p, ok := n.Params.(*graph.ElementwiseParams)
	if !ok {
		return nil, fmt.Errorf("%w: elementwise params of type %T", errs.ErrConfig, n.Params)
	}
	prog := g.newProgram(n)
	var (
		names   [2]string
		layouts [2]layout.Layout
	)
	prefix := [2]string{"A", "B"}
	for i := range prefix {
		name, l, err := g.input(prog, i, prefix[i])
		if err != nil {
			return nil, err
		}
		names[i], layouts[i] = name, l
	}
	full, other := p.Full, p.Other()

	fullExpr := fmt.Sprintf("texelFetch(%s, texelAt(base / 4, %s_TW, %s_TH), 0)", names[full], prefix[full], prefix[full])
	var otherExpr string
	switch p.Broadcast {
	case graph.BroadcastScalar:
		otherExpr = fmt.Sprintf("vec4(texelFetch(%s, ivec3(0, 0, 0), 0).x)", names[other])
	case graph.BroadcastChannel:
		otherExpr = fmt.Sprintf("texelFetch(%s, texelAt((base - (base / OUT_CP) * OUT_CP) / 4, %s_TW, %s_TH), 0)", names[other], prefix[other], prefix[other])
	default:
		otherExpr = fmt.Sprintf("texelFetch(%s, texelAt(base / 4, %s_TW, %s_TH), 0)", names[other], prefix[other], prefix[other])
	}
	op := "+"
	if n.Op == graph.OpMultiply {
		op = "*"
	}
	src := fmt.Sprintf("vec4 a = %s;\nvec4 b = %s;\nv = a %s b;", fullExpr, otherExpr, op)
	prog.builder.Body(func(int) string { return src })

	out := n.Layout
	fullL, otherL := layouts[full], layouts[other]
	return prog.finish(func(base int, s []gpu.Sampler) gpu.Vec4 {
		a := fetch(s[full], fullL, base/4)
		var b gpu.Vec4
		switch p.Broadcast {
		case graph.BroadcastScalar:
			t := s[other].Fetch(0, 0, 0)
			b = gpu.Vec4{t[0], t[0], t[0], t[0]}
		case graph.BroadcastChannel:
			b = fetch(s[other], otherL, (base%out.ChannelsPadded)/4)
		default:
			b = fetch(s[other], otherL, base/4)
		}
		for l := range a {
			if n.Op == graph.OpMultiply {
				a[l] *= b[l]
			} else {
				a[l] += b[l]
			}
		}
		return a
	})
}

func genActivation(g *Generator, n *graph.Node) (*Shader, error) {
	prog := g.newProgram(n)
	in, inL, err := g.input(prog, 0, "IN")
	if err != nil {
		return nil, err
	}

	var expr string
	var fn func(float32) float32
	switch n.Op {
	case graph.OpRelu:
		expr = "max(x, 0.0)"
		fn = func(x float32) float32 { return math32.Max(x, 0) }
	case graph.OpRelu6:
		expr = "clamp(x, 0.0, 6.0)"
		fn = func(x float32) float32 { return math32.Min(math32.Max(x, 0), 6) }
	case graph.OpSigmoid:
		expr = "1.0 / (1.0 + exp(-x))"
		fn = func(x float32) float32 { return 1 / (1 + math32.Exp(-x)) }
	default:
		return nil, fmt.Errorf("%w: %s is not an activation", errs.ErrUnsupportedOp, n.Op)
	}
	src := fmt.Sprintf("vec4 x = texelFetch(%s, texelAt(base / 4, IN_TW, IN_TH), 0);\nv = %s;", in, expr)
	prog.builder.Body(func(int) string { return src })

	return prog.finish(func(base int, s []gpu.Sampler) gpu.Vec4 {
		v := fetch(s[0], inL, base/4)
		for l := range v {
			v[l] = fn(v[l])
		}
		return v
	})
}
