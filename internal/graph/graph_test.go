package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/tensor"
)

func TestOpKindString(t *testing.T) {
	assert.Equal(t, "DepthwiseConv2D", OpDepthwiseConv2D.String())
	assert.Equal(t, "MaxPool", OpMaxPool.String())
	assert.Equal(t, "Unsupported", OpKind(99).String())
	assert.True(t, OpConv2D.IsConv())
	assert.False(t, OpConst.Executable())
	assert.True(t, OpReshape.Executable())
}

func TestBuilderOrdersNodes(t *testing.T) {
	m, err := NewBuilder(FormatGraphModel).
		Input("x", tensor.Shape{1, 4, 4, 4}).
		Const("k", tensor.Shape{1, 1, 4, 4}, make([]float32, 16)).
		Op("conv", OpConv2D, ConvAttrs{Strides: [2]int{1, 1}}, "x", "k").
		Op("relu", OpRelu, NoAttrs{}, "conv").
		Build("relu")
	require.NoError(t, err)

	require.Len(t, m.Nodes, 4)
	assert.Equal(t, "relu", m.Output.Name)
	assert.Equal(t, []*Node{m.Node("x")}, m.Inputs)
	assert.Contains(t, m.Weights, "k")

	pos := make(map[string]int)
	for i, n := range m.Nodes {
		pos[n.Name] = i
	}
	assert.Less(t, pos["x"], pos["conv"])
	assert.Less(t, pos["k"], pos["conv"])
	assert.Less(t, pos["conv"], pos["relu"])
}

func TestBuilderErrors(t *testing.T) {
	_, err := NewBuilder(FormatGraphModel).Input("x", tensor.Shape{1, 2, 2, 4}).Input("x", tensor.Shape{1}).Build("x")
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = NewBuilder(FormatGraphModel).Op("relu", OpRelu, NoAttrs{}, "nope").Build("relu")
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = NewBuilder(FormatGraphModel).Input("x", tensor.Shape{4}).Build("y")
	assert.ErrorIs(t, err, errs.ErrConfig)

	_, err = NewBuilder(FormatGraphModel).Const("c", tensor.Shape{2}, []float32{1}).Build("c")
	assert.ErrorIs(t, err, errs.ErrShape)
}

func TestSortDetectsCycle(t *testing.T) {
	a := &Node{Name: "a", Op: OpRelu}
	b := &Node{Name: "b", Op: OpRelu, Inputs: []*Node{a}}
	a.Inputs = []*Node{b}

	_, err := Sort([]*Node{a, b})
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Contains(t, err.Error(), "cycle")
}

func TestSortReorders(t *testing.T) {
	x := &Node{Name: "x", Op: OpInput}
	r := &Node{Name: "r", Op: OpRelu, Inputs: []*Node{x}}
	s := &Node{Name: "s", Op: OpSigmoid, Inputs: []*Node{r}}

	sorted, err := Sort([]*Node{s, r, x})
	require.NoError(t, err)
	assert.Equal(t, []*Node{x, r, s}, sorted)
}

func TestValidate(t *testing.T) {
	x := &Node{Name: "x", Op: OpInput}
	r := &Node{Name: "r", Op: OpRelu, Inputs: []*Node{x}}

	m := &Model{Nodes: []*Node{r, x}, Output: r}
	assert.ErrorIs(t, m.Validate(), errs.ErrConfig, "consumer before producer")

	m = &Model{Nodes: []*Node{x, r}, Inputs: []*Node{r}, Output: r}
	assert.ErrorIs(t, m.Validate(), errs.ErrConfig, "declared input is not an Input")

	m = &Model{Nodes: []*Node{x, r}, Inputs: []*Node{x}, Output: r}
	require.NoError(t, m.Validate())
	assert.Equal(t, NoAttrs{}, r.Attrs)
}
