// Package codegen emits one fragment shader per resolved operator node,
// together with a host-side kernel that implements the same index algebra.
//
// Every program reads its inputs through their own texture layouts and
// writes the node's output layout. Lanes past the padded element count or in
// padded channels are written as zero.
package codegen

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/glsl"
	"github.com/born-ml/wedge/internal/gpu"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/layout"
)

// Binding is one sampler of a program, bound to texture unit Unit.
// Exactly one of Input and Weight is set.
type Binding struct {
	Unit    int
	Uniform string
	Input   *graph.Node    // tensor produced by another node
	Weight  *layout.Packed // host-packed weights, uploaded once
	Name    string         // weight texture name
}

// Shader is the generated program of one node.
type Shader struct {
	Node     *graph.Node
	Fragment string
	Slots    glsl.Slots
	Bindings []Binding
	Kernel   gpu.Kernel
}

type genFunc func(g *Generator, n *graph.Node) (*Shader, error)

var generators = map[graph.OpKind]genFunc{
	graph.OpConv2D:          genConv,
	graph.OpDepthwiseConv2D: genConv,
	graph.OpMaxPool:         genMaxPool,
	graph.OpAdd:             genElementwise,
	graph.OpMultiply:        genElementwise,
	graph.OpRelu:            genActivation,
	graph.OpRelu6:           genActivation,
	graph.OpSigmoid:         genActivation,
	graph.OpPad:             genPad,
	graph.OpPadV2:           genPad,
	graph.OpMirrorPad:       genPad,
	graph.OpResizeBilinear:  genResize,
	graph.OpReshape:         genReshape,
}

// Generator generates the programs of one compile. Uniform names are
// allocated per Generator.
type Generator struct {
	dialect string
	maxDim  int
	names   *glsl.Names
}

// New returns a generator emitting the given GLSL dialect. maxDim bounds
// the weight textures it packs.
func New(dialect string, maxDim int) *Generator {
	return &Generator{dialect: dialect, maxDim: maxDim, names: glsl.NewNames()}
}

// Generate emits the program of a resolved node.
func (g *Generator) Generate(n *graph.Node) (*Shader, error) {
	if !n.Resolved() {
		return nil, fmt.Errorf("%w: node %s is %s", errs.ErrConfig, n.Name, n.State)
	}
	fn, ok := generators[n.Op]
	if !ok {
		return nil, fmt.Errorf("%w: no shader generator for %s", errs.ErrUnsupportedOp, n.Op)
	}
	s, err := fn(g, n)
	if err != nil {
		return nil, &errs.NodeError{Node: n.Name, Op: n.Op.String(), Err: err}
	}
	return s, nil
}

// program accumulates the bindings and the builder of one shader.
type program struct {
	shader  *Shader
	builder *glsl.Builder
}

func (g *Generator) newProgram(n *graph.Node) *program {
	return &program{
		shader:  &Shader{Node: n},
		builder: glsl.NewBuilder(g.dialect, n.Layout),
	}
}

// input binds tensor input i and declares its geometry under prefix.
func (g *Generator) input(p *program, i int, prefix string) (string, layout.Layout, error) {
	n := p.shader.Node
	if i >= len(n.Inputs) {
		return "", layout.Layout{}, fmt.Errorf("%w: missing input %d", errs.ErrShape, i)
	}
	in := n.Inputs[i]
	if !in.Layout.Valid() {
		return "", layout.Layout{}, fmt.Errorf("%w: input %s is not a texture array", errs.ErrConfig, in.Name)
	}
	name := g.names.Uniform("input")
	p.builder.Sampler(name).Tensor(prefix, in.Layout)
	p.shader.Bindings = append(p.shader.Bindings, Binding{Unit: len(p.shader.Bindings), Uniform: name, Input: in})
	return name, in.Layout, nil
}

// weight binds a packed weight texture.
func (g *Generator) weight(p *program, kind, name string, packed *layout.Packed) string {
	uniform := g.names.Uniform(kind)
	p.builder.Sampler(uniform)
	p.shader.Bindings = append(p.shader.Bindings, Binding{Unit: len(p.shader.Bindings), Uniform: uniform, Weight: packed, Name: name})
	return uniform
}

// texelFunc computes the unmasked output texel whose first lane is padded
// element base.
type texelFunc func(base int, in []gpu.Sampler) gpu.Vec4

func (p *program) finish(fn texelFunc) (*Shader, error) {
	src, slots, err := p.builder.Build()
	if err != nil {
		return nil, err
	}
	p.shader.Fragment = src
	p.shader.Slots = slots
	p.shader.Kernel = kernel(p.shader.Node.Layout, fn)
	return p.shader, nil
}

// kernel wraps fn into the per-fragment loop over render targets, matching
// the main() the builder emits.
func kernel(out layout.Layout, fn texelFunc) gpu.Kernel {
	per := out.Width * out.Height
	padded := out.PaddedElements()
	return func(x, y int, in []gpu.Sampler, dst []gpu.Vec4) {
		texel := y*out.Width + x
		for t := range dst {
			base := (t*per + texel) * 4
			if base >= padded {
				dst[t] = gpu.Vec4{}
				continue
			}
			dst[t] = mask(out, base, fn(base, in))
		}
	}
}

func mask(out layout.Layout, base int, v gpu.Vec4) gpu.Vec4 {
	padded := out.PaddedElements()
	for l := range v {
		e := base + l
		if e >= padded || e%out.ChannelsPadded >= out.Channels {
			v[l] = 0
		}
	}
	return v
}

// fetch reads texel g of a tensor laid out as l.
func fetch(s gpu.Sampler, l layout.Layout, g int) gpu.Vec4 {
	x, y, layer := l.Texel(g)
	return s.Fetch(x, y, layer)
}

// position splits a padded element index of an HWC layout into row,
// column and channel group.
func position(l layout.Layout, base int) (y, x, cg int) {
	s := base / l.ChannelsPadded
	return s / l.Shape[1], s % l.Shape[1], (base % l.ChannelsPadded) / 4
}

// positionGLSL declares oy, ox and cg for the output texel at base.
const positionGLSL = `int s = base / OUT_CP;
int cg = (base - s * OUT_CP) / 4;
int oy = s / OUT_W;
int ox = s - oy * OUT_W;`
