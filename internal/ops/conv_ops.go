package ops

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/tensor"
)

func (r *Registry) registerConvOps() {
	r.Register(graph.OpConv2D, resolveConv)
	r.Register(graph.OpDepthwiseConv2D, resolveConv)
	r.Register(graph.OpMaxPool, resolveMaxPool)
}

// OutputSize returns the TensorFlow output extent of a sliding window and the
// padding applied before the first element.
//
//	valid: ceil((in - k + 1) / stride)
//	same:  ceil(in / stride)
func OutputSize(in, k, stride int, padding graph.Padding) (out, padBefore int, err error) {
	if k < 1 || stride < 1 {
		return 0, 0, fmt.Errorf("%w: window %d stride %d", errs.ErrShape, k, stride)
	}
	if padding == graph.PaddingSame {
		out = (in + stride - 1) / stride
		total := max((out-1)*stride+k-in, 0)
		return out, total / 2, nil
	}
	if in < k {
		return 0, 0, fmt.Errorf("%w: window %d larger than input %d with valid padding", errs.ErrShape, k, in)
	}
	return (in - k + stride) / stride, 0, nil
}

func resolveConv(ctx *Context, n *graph.Node) (Resolution, error) {
	attrs, err := attrsAs[graph.ConvAttrs](n)
	if err != nil {
		return Resolution{}, err
	}
	if err := inputCount(n, 2, 3); err != nil {
		return Resolution{}, err
	}
	in, err := ctx.input(n, 0)
	if err != nil {
		return Resolution{}, err
	}
	kernel, err := ctx.constant(n, 1)
	if err != nil {
		return Resolution{}, fmt.Errorf("kernel: %w", err)
	}
	if len(kernel.Shape) != 4 {
		return Resolution{}, fmt.Errorf("%w: kernel %s must be [kh,kw,in,out], got %v", errs.ErrShape, kernel.Name, kernel.Shape)
	}

	kh, kw, depth := kernel.Shape[0], kernel.Shape[1], kernel.Shape[2]
	if depth != in.Channels() {
		return Resolution{}, fmt.Errorf("%w: kernel %s depth %d does not match input channels %d", errs.ErrShape, kernel.Name, depth, in.Channels())
	}
	p := &graph.ConvParams{
		StrideH:    attrs.Strides[0],
		StrideW:    attrs.Strides[1],
		KernelH:    kh,
		KernelW:    kw,
		InDepth:    depth,
		Filters:    kernel.Shape[3],
		Activation: attrs.Activation,
		Kernel:     kernel,
	}
	if n.Op == graph.OpDepthwiseConv2D {
		if kernel.Shape[3] != 1 {
			return Resolution{}, fmt.Errorf("%w: depthwise channel multiplier %d", errs.ErrUnsupportedParam, kernel.Shape[3])
		}
		p.Depthwise = true
		p.Filters = depth
	}

	if len(n.Inputs) == 3 {
		bias, err := ctx.constant(n, 2)
		if err != nil {
			return Resolution{}, fmt.Errorf("bias: %w", err)
		}
		if len(bias.Data) != p.Filters {
			return Resolution{}, fmt.Errorf("%w: bias %s has %d values for %d filters", errs.ErrShape, bias.Name, len(bias.Data), p.Filters)
		}
		p.Bias = bias
	}

	oh, padTop, err := OutputSize(in[0], kh, p.StrideH, attrs.Padding)
	if err != nil {
		return Resolution{}, err
	}
	ow, padLeft, err := OutputSize(in[1], kw, p.StrideW, attrs.Padding)
	if err != nil {
		return Resolution{}, err
	}
	p.PadTop, p.PadLeft = padTop, padLeft

	return Resolution{Shape: tensor.Shape{oh, ow, p.Filters}, Params: p}, nil
}

func resolveMaxPool(ctx *Context, n *graph.Node) (Resolution, error) {
	attrs, err := attrsAs[graph.PoolAttrs](n)
	if err != nil {
		return Resolution{}, err
	}
	if err := inputCount(n, 1, 1); err != nil {
		return Resolution{}, err
	}
	in, err := ctx.input(n, 0)
	if err != nil {
		return Resolution{}, err
	}

	p := &graph.PoolParams{
		SizeH:   attrs.Size[0],
		SizeW:   attrs.Size[1],
		StrideH: attrs.Strides[0],
		StrideW: attrs.Strides[1],
	}
	oh, padTop, err := OutputSize(in[0], p.SizeH, p.StrideH, attrs.Padding)
	if err != nil {
		return Resolution{}, err
	}
	ow, padLeft, err := OutputSize(in[1], p.SizeW, p.StrideW, attrs.Padding)
	if err != nil {
		return Resolution{}, err
	}
	p.PadTop, p.PadLeft = padTop, padLeft

	return Resolution{Shape: tensor.Shape{oh, ow, in.Channels()}, Params: p}, nil
}
