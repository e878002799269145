package ops

import (
	"fmt"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/tensor"
)

func (r *Registry) registerSourceOps() {
	r.Register(graph.OpInput, resolveInput)
	r.Register(graph.OpConst, resolveConst)
}

func resolveInput(_ *Context, n *graph.Node) (Resolution, error) {
	attrs, err := attrsAs[graph.InputAttrs](n)
	if err != nil {
		return Resolution{}, err
	}
	shape := attrs.Shape.Clone()
	for i, d := range shape {
		if d == -1 && i == 0 && len(shape) == 4 {
			shape[i] = 1 // unknown batch
			continue
		}
		if d <= 0 {
			return Resolution{}, fmt.Errorf("%w: input shape %v has unknown dimension %d", errs.ErrShape, attrs.Shape, i)
		}
	}
	hwc, err := shape.HWC()
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Shape: hwc}, nil
}

func resolveConst(ctx *Context, n *graph.Node) (Resolution, error) {
	w, ok := ctx.Weights.Get(n.Name)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: weight %s not found", errs.ErrConfig, n.Name)
	}
	hwc, err := w.Shape.HWC()
	if err != nil {
		// Kernels and other constants only read on the host.
		return Resolution{Shape: w.Shape.Clone(), Untextured: true}, nil
	}
	return Resolution{Shape: hwc}, nil
}

// vectorShape reports whether s is [1,1,c].
func vectorShape(s tensor.Shape, c int) bool {
	return len(s) == 3 && s[0] == 1 && s[1] == 1 && s[2] == c
}
