package cpu

import "github.com/chewxy/math32"

func relu(x float32) float32 {
	return math32.Max(x, 0)
}

// relu6 clamps to [0, 6].
func relu6(x float32) float32 {
	return math32.Min(math32.Max(x, 0), 6)
}

// sigmoid computes 1 / (1 + exp(-x)).
func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

func apply(out, in Tensor, fn func(float32) float32) {
	for i, v := range in.Data {
		out.Data[i] = fn(v)
	}
}
