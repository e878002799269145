// Package cpu implements a host reference executor for resolved models.
//
// Tensors are batch-free HWC float32 slices. The executor walks the same
// resolved plan the GPU path compiles and is used to check GPU results.
package cpu

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/tensor"
)

// Tensor is a host tensor in HWC order.
type Tensor struct {
	Shape tensor.Shape
	Data  []float32
}

// CPUBackend executes resolved models on the host.
type CPUBackend struct {
	logger *slog.Logger
}

// New creates a new CPU backend. A nil logger means slog.Default().
func New(logger *slog.Logger) *CPUBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &CPUBackend{logger: logger}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Run executes every resolved node of m and returns the outputs by node
// name. Inputs are fed in the model's declared input order.
func (cpu *CPUBackend) Run(m *graph.Model, inputs ...[]float32) (map[string]Tensor, error) {
	if m.Output == nil || !m.Output.Resolved() {
		return nil, fmt.Errorf("%w: model has not been resolved", errs.ErrNotCompiled)
	}
	if len(inputs) != len(m.Inputs) {
		return nil, fmt.Errorf("%w: model takes %d inputs, got %d", errs.ErrShape, len(m.Inputs), len(inputs))
	}

	values := make(map[string]Tensor, len(m.Nodes))
	for i, in := range m.Inputs {
		if want := in.Shape.NumElements(); len(inputs[i]) != want {
			return nil, fmt.Errorf("%w: input %s needs %d values, got %d", errs.ErrShape, in.Name, want, len(inputs[i]))
		}
		values[in.Name] = Tensor{Shape: in.Shape, Data: inputs[i]}
	}

	for _, n := range m.Nodes {
		if !n.Resolved() || n.Op == graph.OpInput {
			continue
		}
		out, err := cpu.execute(m, n, values)
		if err != nil {
			return nil, &errs.NodeError{Node: n.Name, Op: n.Op.String(), Err: err}
		}
		values[n.Name] = out
	}
	cpu.logger.Debug("cpu run finished", "nodes", len(values))
	return values, nil
}

// Predict runs m and returns the output node's data.
func (cpu *CPUBackend) Predict(m *graph.Model, inputs ...[]float32) ([]float32, error) {
	values, err := cpu.Run(m, inputs...)
	if err != nil {
		return nil, err
	}
	return values[m.Output.Name].Data, nil
}

func (cpu *CPUBackend) execute(m *graph.Model, n *graph.Node, values map[string]Tensor) (Tensor, error) {
	if n.Op == graph.OpConst {
		w, ok := m.Weights.Get(n.Name)
		if !ok {
			return Tensor{}, fmt.Errorf("%w: weight %s not found", errs.ErrConfig, n.Name)
		}
		return Tensor{Shape: n.Shape, Data: w.Data}, nil
	}

	in := make([]Tensor, len(n.Inputs))
	for i, src := range n.Inputs {
		in[i] = values[src.Name]
	}
	out := Tensor{Shape: n.Shape, Data: make([]float32, n.Shape.NumElements())}

	switch p := n.Params.(type) {
	case *graph.ConvParams:
		if p.Depthwise {
			depthwiseConv2D(out, in[0], p)
		} else {
			conv2D(out, in[0], p)
		}
	case *graph.PoolParams:
		maxPool2D(out, in[0], p)
	case *graph.ElementwiseParams:
		elementwise(out, in[p.Full], in[p.Other()], p.Broadcast, n.Op == graph.OpMultiply)
	case *graph.PadParams:
		pad(out, in[0], p)
	case *graph.ResizeParams:
		resizeBilinear(out, in[0], p)
	default:
		switch n.Op {
		case graph.OpRelu:
			apply(out, in[0], relu)
		case graph.OpRelu6:
			apply(out, in[0], relu6)
		case graph.OpSigmoid:
			apply(out, in[0], sigmoid)
		case graph.OpReshape:
			copy(out.Data, in[0].Data)
		default:
			return Tensor{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedOp, n.Op)
		}
	}
	return out, nil
}
