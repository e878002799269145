package graph

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/tensor"
)

// Builder assembles a Model node by node. Errors are collected and reported
// by Build, so calls can be chained.
type Builder struct {
	format  Format
	nodes   []*Node
	byName  map[string]*Node
	inputs  []*Node
	weights tensor.Weights
	err     error
}

// NewBuilder returns an empty builder for the given source format.
func NewBuilder(format Format) *Builder {
	return &Builder{
		format:  format,
		byName:  make(map[string]*Node),
		weights: make(tensor.Weights),
	}
}

// Input declares a model input. Inputs are fed to Predict in declaration order.
func (b *Builder) Input(name string, shape tensor.Shape) *Builder {
	if n := b.add(name, OpInput, "Placeholder", InputAttrs{Shape: shape.Clone()}, nil); n != nil {
		b.inputs = append(b.inputs, n)
	}
	return b
}

// Const declares a constant node backed by a weight of the same name.
func (b *Builder) Const(name string, shape tensor.Shape, data []float32) *Builder {
	w, err := tensor.NewWeight(name, shape, data)
	if err != nil {
		b.fail(err)
		return b
	}
	b.weights.Add(w)
	b.add(name, OpConst, "Const", NoAttrs{}, nil)
	return b
}

// Op appends an operator consuming the named inputs.
func (b *Builder) Op(name string, op OpKind, attrs Attributes, inputs ...string) *Builder {
	b.add(name, op, op.String(), attrs, inputs)
	return b
}

// Unsupported appends a node of an operator the compiler does not know.
func (b *Builder) Unsupported(name, rawOp string, inputs ...string) *Builder {
	b.add(name, OpUnsupported, rawOp, NoAttrs{}, inputs)
	return b
}

// Build returns the model with output as its declared output node.
func (b *Builder) Build(output string) (*Model, error) {
	if b.err != nil {
		return nil, b.err
	}
	out, ok := b.byName[output]
	if !ok {
		return nil, fmt.Errorf("%w: output node %q not found", errs.ErrConfig, output)
	}
	nodes, err := Sort(b.nodes)
	if err != nil {
		return nil, err
	}
	m := &Model{
		Format:  b.format,
		Nodes:   nodes,
		Weights: b.weights,
		Inputs:  b.inputs,
		Output:  out,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (b *Builder) add(name string, op OpKind, raw string, attrs Attributes, inputs []string) *Node {
	if b.err != nil {
		return nil
	}
	if _, dup := b.byName[name]; dup {
		b.fail(fmt.Errorf("%w: duplicate node name %q", errs.ErrConfig, name))
		return nil
	}
	n := &Node{Name: name, Op: op, RawOp: raw, Attrs: attrs}
	for _, in := range inputs {
		src, ok := b.byName[in]
		if !ok {
			b.fail(fmt.Errorf("%w: node %s: unknown input %q", errs.ErrConfig, name, in))
			return nil
		}
		n.Inputs = append(n.Inputs, src)
	}
	b.byName[name] = n
	b.nodes = append(b.nodes, n)
	return n
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
