package cpu

import "github.com/born-ml/wedge/internal/graph"

// elementwise adds or multiplies full with other, reading other as a
// same-shaped tensor, a scalar or a per-channel vector.
func elementwise(out, full, other Tensor, b graph.Broadcast, multiply bool) {
	c := out.Shape.Channels()
	for i, a := range full.Data {
		var v float32
		switch b {
		case graph.BroadcastScalar:
			v = other.Data[0]
		case graph.BroadcastChannel:
			v = other.Data[i%c]
		default:
			v = other.Data[i]
		}
		if multiply {
			out.Data[i] = a * v
		} else {
			out.Data[i] = a + v
		}
	}
}
