// Package ops resolves each node's output shape and operator parameters from
// its attributes and the shapes of its inputs.
package ops

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/layout"
	"github.com/born-ml/wedge/internal/tensor"
)

// Resolver computes the output shape and parameters of one node.
// Input nodes are already resolved when it runs.
type Resolver func(ctx *Context, n *graph.Node) (Resolution, error)

// Resolution is what a Resolver derives for a node.
type Resolution struct {
	Shape  tensor.Shape // HWC, or the raw shape of an untextured constant
	Params graph.Params

	// Untextured marks constants that are only read host-side (kernels,
	// shape vectors) and never get a texture layout.
	Untextured bool
}

// Context carries what resolvers need besides the node itself.
type Context struct {
	Weights tensor.Weights
	Layout  layout.Options
	Logger  *slog.Logger
}

// Registry maps operator kinds to resolvers.
type Registry struct {
	resolvers map[graph.OpKind]Resolver
}

// NewRegistry creates a registry with every supported operator.
func NewRegistry() *Registry {
	r := &Registry{
		resolvers: make(map[graph.OpKind]Resolver),
	}

	r.registerSourceOps()
	r.registerConvOps()
	r.registerMathOps()
	r.registerShapeOps()

	return r
}

// Register adds or replaces the resolver for an operator kind.
func (r *Registry) Register(op graph.OpKind, fn Resolver) {
	r.resolvers[op] = fn
}

// Get returns the resolver for an operator kind.
func (r *Registry) Get(op graph.OpKind) (Resolver, bool) {
	fn, ok := r.resolvers[op]
	return fn, ok
}

// SupportedOps returns the registered operator kinds in enum order.
func (r *Registry) SupportedOps() []graph.OpKind {
	ops := make([]graph.OpKind, 0, len(r.resolvers))
	for op := range r.resolvers {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Resolve runs the one-time resolve pass over m in topological order.
//
// Nodes without a resolver are marked Unsupported and skipped; their
// consumers become MissingInput. A resolver error is fatal, as is an output
// node that ends up unresolved.
func (r *Registry) Resolve(m *graph.Model, ctx *Context) error {
	logger := ctx.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, n := range m.Nodes {
		n.State, n.Reason = graph.StatePending, nil
		n.Shape, n.Layout, n.Params = nil, layout.Layout{}, nil

		fn, ok := r.Get(n.Op)
		if !ok {
			n.State = graph.StateUnsupported
			n.Reason = fmt.Errorf("%w: %s", errs.ErrUnsupportedOp, n.RawOp)
			logger.Warn("operator not supported, node skipped", "node", n.Name, "op", n.RawOp)
			continue
		}
		if in := unresolvedInput(n); in != nil {
			n.State = graph.StateMissingInput
			n.Reason = fmt.Errorf("%w: input %s is %s", errs.ErrMissingInput, in.Name, in.State)
			logger.Warn("node skipped", "node", n.Name, "reason", n.Reason)
			continue
		}

		res, err := fn(ctx, n)
		if err != nil {
			return &errs.NodeError{Node: n.Name, Op: n.Op.String(), Err: err}
		}
		n.Shape, n.Params = res.Shape, res.Params
		if n.Params == nil {
			n.Params = graph.NoParams{}
		}
		if !res.Untextured {
			l, err := layout.Compute(res.Shape, ctx.Layout, n.Op.IsConv())
			switch {
			case err == nil:
				n.Layout = l
			case n.Op != graph.OpConst:
				return &errs.NodeError{Node: n.Name, Op: n.Op.String(), Err: err}
			}
		}
		n.State = graph.StateResolved
		logger.Debug("resolved node", "node", n.Name, "op", n.Op.String(), "shape", n.Shape.String(), "layout", n.Layout.String())
	}

	if out := m.Output; !out.Resolved() {
		reason := out.Reason
		if reason == nil {
			reason = fmt.Errorf("%w: output node was never resolved", errs.ErrMissingInput)
		}
		return &errs.NodeError{Node: out.Name, Op: out.Op.String(), Err: fmt.Errorf("model output unavailable: %w", reason)}
	}
	return nil
}

func unresolvedInput(n *graph.Node) *graph.Node {
	for _, in := range n.Inputs {
		if !in.Resolved() {
			return in
		}
	}
	return nil
}

// input returns the HWC shape of a texture-backed input.
func (ctx *Context) input(n *graph.Node, i int) (tensor.Shape, error) {
	if i >= len(n.Inputs) {
		return nil, fmt.Errorf("%w: missing input %d", errs.ErrShape, i)
	}
	in := n.Inputs[i]
	if !in.Layout.Valid() {
		return nil, fmt.Errorf("%w: input %s is not a texture-backed tensor", errs.ErrConfig, in.Name)
	}
	return in.Shape, nil
}

// constant returns the weight behind input i, which must be a Const node.
func (ctx *Context) constant(n *graph.Node, i int) (*tensor.Weight, error) {
	if i >= len(n.Inputs) {
		return nil, fmt.Errorf("%w: missing input %d", errs.ErrShape, i)
	}
	in := n.Inputs[i]
	if in.Op != graph.OpConst {
		return nil, fmt.Errorf("%w: input %d (%s) must be a constant, got %s", errs.ErrShape, i, in.Name, in.Op)
	}
	w, ok := ctx.Weights.Get(in.Name)
	if !ok {
		return nil, fmt.Errorf("%w: weight %s not found", errs.ErrConfig, in.Name)
	}
	return w, nil
}

func inputCount(n *graph.Node, lo, hi int) error {
	if len(n.Inputs) < lo || len(n.Inputs) > hi {
		if lo == hi {
			return fmt.Errorf("%w: %s requires %d inputs, got %d", errs.ErrShape, n.Op, lo, len(n.Inputs))
		}
		return fmt.Errorf("%w: %s requires %d to %d inputs, got %d", errs.ErrShape, n.Op, lo, hi, len(n.Inputs))
	}
	return nil
}

func attrsAs[T graph.Attributes](n *graph.Node) (T, error) {
	a, ok := n.Attrs.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s has attributes of type %T", errs.ErrShape, n.Op, n.Attrs)
	}
	return a, nil
}
