package ops

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/graph"
)

func (r *Registry) registerMathOps() {
	r.Register(graph.OpAdd, resolveElementwise)
	r.Register(graph.OpMultiply, resolveElementwise)
	r.Register(graph.OpRelu, resolveUnary)
	r.Register(graph.OpRelu6, resolveUnary)
	r.Register(graph.OpSigmoid, resolveUnary)
}

// resolveElementwise gives the output the shape of the larger operand. The
// smaller one must match it exactly, be a single value, or be one value per
// channel; general broadcasting is not implemented.
func resolveElementwise(ctx *Context, n *graph.Node) (Resolution, error) {
	if err := inputCount(n, 2, 2); err != nil {
		return Resolution{}, err
	}
	a, err := ctx.input(n, 0)
	if err != nil {
		return Resolution{}, err
	}
	b, err := ctx.input(n, 1)
	if err != nil {
		return Resolution{}, err
	}

	p := &graph.ElementwiseParams{}
	if b.NumElements() > a.NumElements() {
		p.Full = 1
	}
	full, other := a, b
	if p.Full == 1 {
		full, other = b, a
	}

	switch {
	case full.Equal(other):
		p.Broadcast = graph.BroadcastNone
	case other.NumElements() == 1:
		p.Broadcast = graph.BroadcastScalar
	case vectorShape(other, full.Channels()):
		p.Broadcast = graph.BroadcastChannel
	default:
		return Resolution{}, fmt.Errorf("%w: cannot broadcast %v against %v", errs.ErrShape, other, full)
	}
	return Resolution{Shape: full.Clone(), Params: p}, nil
}

func resolveUnary(ctx *Context, n *graph.Node) (Resolution, error) {
	if err := inputCount(n, 1, 1); err != nil {
		return Resolution{}, err
	}
	in, err := ctx.input(n, 0)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Shape: in.Clone()}, nil
}
