package ops

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/tensor"
)

func (r *Registry) registerShapeOps() {
	r.Register(graph.OpPad, resolvePad)
	r.Register(graph.OpPadV2, resolvePad)
	r.Register(graph.OpMirrorPad, resolvePad)
	r.Register(graph.OpResizeBilinear, resolveResize)
	r.Register(graph.OpReshape, resolveReshape)
}

func resolvePad(ctx *Context, n *graph.Node) (Resolution, error) {
	attrs, err := attrsAs[graph.PadAttrs](n)
	if err != nil {
		return Resolution{}, err
	}
	if err := inputCount(n, 1, 3); err != nil {
		return Resolution{}, err
	}
	in, err := ctx.input(n, 0)
	if err != nil {
		return Resolution{}, err
	}

	paddings := attrs.Paddings
	if paddings == nil {
		w, err := ctx.constant(n, 1)
		if err != nil {
			return Resolution{}, fmt.Errorf("paddings: %w", err)
		}
		vals := w.Ints()
		if len(vals)%2 != 0 {
			return Resolution{}, fmt.Errorf("%w: paddings %s must be [rank,2], got %v", errs.ErrShape, w.Name, w.Shape)
		}
		for i := 0; i < len(vals); i += 2 {
			paddings = append(paddings, [2]int{vals[i], vals[i+1]})
		}
	}
	rows, err := normalizePaddings(paddings)
	if err != nil {
		return Resolution{}, err
	}

	p := &graph.PadParams{Mode: graph.PadConstant}
	for axis, row := range rows {
		p.Before[axis], p.After[axis] = row[0], row[1]
	}

	switch {
	case n.Op == graph.OpMirrorPad:
		if attrs.Mode == graph.PadConstant {
			return Resolution{}, fmt.Errorf("%w: MirrorPad mode CONSTANT", errs.ErrUnsupportedParam)
		}
		p.Mode = attrs.Mode
		limit := 0
		if p.Mode == graph.PadReflect {
			limit = 1
		}
		for axis := 0; axis < 2; axis++ {
			if max(p.Before[axis], p.After[axis]) > in[axis]-limit {
				return Resolution{}, fmt.Errorf("%w: %s padding %d/%d exceeds axis size %d", errs.ErrShape, p.Mode, p.Before[axis], p.After[axis], in[axis])
			}
		}
	case attrs.HasValue:
		p.Value = attrs.Value
	case len(n.Inputs) == 3:
		w, err := ctx.constant(n, 2)
		if err != nil {
			return Resolution{}, fmt.Errorf("constant value: %w", err)
		}
		if len(w.Data) != 1 {
			return Resolution{}, fmt.Errorf("%w: constant value %s must be a scalar, got %v", errs.ErrShape, w.Name, w.Shape)
		}
		p.Value = w.Data[0]
	}

	out := tensor.Shape{
		in[0] + p.Before[0] + p.After[0],
		in[1] + p.Before[1] + p.After[1],
		in[2],
	}
	return Resolution{Shape: out, Params: p}, nil
}

// normalizePaddings converts [batch,]h,w[,c] padding rows to [[t,b],[l,r],[0,0]].
// Padding the batch or channel axis is not supported.
func normalizePaddings(rows [][2]int) ([3][2]int, error) {
	var out [3][2]int
	switch len(rows) {
	case 4:
		if rows[0] != [2]int{} {
			return out, fmt.Errorf("%w: batch padding %v", errs.ErrUnsupportedParam, rows[0])
		}
		rows = rows[1:]
	case 3:
	case 2:
		rows = [][2]int{rows[0], rows[1], {}}
	default:
		return out, fmt.Errorf("%w: paddings must have 2 to 4 rows, got %d", errs.ErrShape, len(rows))
	}
	if rows[2] != [2]int{} {
		return out, fmt.Errorf("%w: channel padding %v", errs.ErrUnsupportedParam, rows[2])
	}
	for i, row := range rows {
		if row[0] < 0 || row[1] < 0 {
			return out, fmt.Errorf("%w: negative padding %v", errs.ErrShape, row)
		}
		out[i] = row
	}
	return out, nil
}

func resolveResize(ctx *Context, n *graph.Node) (Resolution, error) {
	attrs, err := attrsAs[graph.ResizeAttrs](n)
	if err != nil {
		return Resolution{}, err
	}
	if attrs.AlignCorners || !attrs.HalfPixelCenters {
		return Resolution{}, fmt.Errorf("%w: alignCorners=%v halfPixelCenters=%v", errs.ErrUnsupportedParam, attrs.AlignCorners, attrs.HalfPixelCenters)
	}
	if err := inputCount(n, 1, 2); err != nil {
		return Resolution{}, err
	}
	in, err := ctx.input(n, 0)
	if err != nil {
		return Resolution{}, err
	}

	size := attrs.Size
	switch {
	case size[0] > 0 && size[1] > 0:
	case attrs.Factor[0] > 0 && attrs.Factor[1] > 0:
		size = [2]int{in[0] * attrs.Factor[0], in[1] * attrs.Factor[1]}
	default:
		w, err := ctx.constant(n, 1)
		if err != nil {
			return Resolution{}, fmt.Errorf("size: %w", err)
		}
		vals := w.Ints()
		if len(vals) != 2 || vals[0] < 1 || vals[1] < 1 {
			return Resolution{}, fmt.Errorf("%w: size %s must hold two positive values, got %v", errs.ErrShape, w.Name, vals)
		}
		size = [2]int{vals[0], vals[1]}
	}

	p := &graph.ResizeParams{
		ScaleH: float32(in[0]) / float32(size[0]),
		ScaleW: float32(in[1]) / float32(size[1]),
	}
	return Resolution{Shape: tensor.Shape{size[0], size[1], in[2]}, Params: p}, nil
}

func resolveReshape(ctx *Context, n *graph.Node) (Resolution, error) {
	attrs, err := attrsAs[graph.ReshapeAttrs](n)
	if err != nil {
		return Resolution{}, err
	}
	if err := inputCount(n, 1, 2); err != nil {
		return Resolution{}, err
	}
	in, err := ctx.input(n, 0)
	if err != nil {
		return Resolution{}, err
	}

	target := attrs.Shape
	if target == nil {
		w, err := ctx.constant(n, 1)
		if err != nil {
			return Resolution{}, fmt.Errorf("shape: %w", err)
		}
		target = w.Ints()
	}
	shape, err := InferShape(target, in.NumElements())
	if err != nil {
		return Resolution{}, err
	}
	hwc, err := shape.HWC()
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Shape: hwc}, nil
}

// InferShape replaces a single -1 in target so that it holds n elements.
func InferShape(target []int, n int) (tensor.Shape, error) {
	shape := make(tensor.Shape, len(target))
	infer, known := -1, 1
	for i, d := range target {
		switch {
		case d == -1 && infer < 0:
			infer = i
			continue
		case d == -1:
			return nil, fmt.Errorf("%w: reshape target %v has more than one -1", errs.ErrShape, target)
		case d <= 0:
			return nil, fmt.Errorf("%w: reshape target %v has dimension %d", errs.ErrShape, target, d)
		}
		shape[i] = d
		known *= d
	}
	if infer >= 0 {
		if n%known != 0 {
			return nil, fmt.Errorf("%w: cannot reshape %d elements into %v", errs.ErrShape, n, target)
		}
		shape[infer] = n / known
	}
	if shape.NumElements() != n {
		return nil, fmt.Errorf("%w: cannot reshape %d elements into %v", errs.ErrShape, n, target)
	}
	return shape, nil
}
