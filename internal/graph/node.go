package graph

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/layout"
	"github.com/born-ml/wedge/internal/tensor"
)

// Node is one operator of the graph.
//
// Name, Op, RawOp, Inputs and Attrs are set by the loader. The remaining
// fields are written once by the resolve pass and read-only afterwards.
type Node struct {
	Name   string
	Op     OpKind
	RawOp  string // operator name as spelled by the source format
	Inputs []*Node
	Attrs  Attributes

	State  State
	Reason error // why the node is Unsupported or MissingInput
	Shape  tensor.Shape
	Layout layout.Layout
	Params Params
}

// Resolved reports whether the node produced an output shape.
func (n *Node) Resolved() bool {
	return n.State == StateResolved
}

func (n *Node) String() string {
	if n.RawOp != "" && n.RawOp != n.Op.String() {
		return fmt.Sprintf("%s (%s/%s)", n.Name, n.Op, n.RawOp)
	}
	return fmt.Sprintf("%s (%s)", n.Name, n.Op)
}

// Model is a loaded graph in topological order.
type Model struct {
	Format  Format
	Nodes   []*Node
	Weights tensor.Weights
	Inputs  []*Node // declared inputs, in the order Predict takes them
	Output  *Node
}

// Node returns the node with the given name, or nil.
func (m *Model) Node(name string) *Node {
	for _, n := range m.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Validate checks the structural invariants the compiler depends on: unique
// names, inputs ordered before their consumers, and Input-typed declared inputs.
func (m *Model) Validate() error {
	if m.Output == nil {
		return fmt.Errorf("%w: model has no output node", errs.ErrConfig)
	}
	seen := make(map[*Node]bool, len(m.Nodes))
	names := make(map[string]bool, len(m.Nodes))
	for _, n := range m.Nodes {
		if names[n.Name] {
			return fmt.Errorf("%w: duplicate node name %q", errs.ErrConfig, n.Name)
		}
		names[n.Name] = true
		for _, in := range n.Inputs {
			if in == nil || !seen[in] {
				return fmt.Errorf("%w: node %s consumes a node that does not precede it", errs.ErrConfig, n.Name)
			}
		}
		if n.Attrs == nil {
			n.Attrs = NoAttrs{}
		}
		seen[n] = true
	}
	for _, in := range m.Inputs {
		if !seen[in] || in.Op != OpInput {
			return fmt.Errorf("%w: declared input %s is not an Input node of the model", errs.ErrConfig, in.Name)
		}
	}
	if !seen[m.Output] {
		return fmt.Errorf("%w: output node %s is not part of the model", errs.ErrConfig, m.Output.Name)
	}
	return nil
}

// Sort orders nodes so that every node follows its inputs.
// Nodes that are already ordered keep their relative order.
func Sort(nodes []*Node) ([]*Node, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	mark := make(map[*Node]int, len(nodes))
	result := make([]*Node, 0, len(nodes))

	var visit func(n *Node) error
	visit = func(n *Node) error {
		switch mark[n] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: cycle through node %s", errs.ErrConfig, n.Name)
		}
		mark[n] = visiting

		// Visit dependencies first
		for _, in := range n.Inputs {
			if err := visit(in); err != nil {
				return err
			}
		}

		mark[n] = done
		result = append(result, n)
		return nil
	}

	for _, n := range nodes {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return result, nil
}
