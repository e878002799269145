package tfjs

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/tensor"
)

// dtypeSize returns the stored byte width of a manifest dtype.
func dtypeSize(dtype string) (int, bool) {
	switch dtype {
	case "float32", "int32":
		return 4, true
	case "uint16", "float16":
		return 2, true
	case "uint8", "bool":
		return 1, true
	}
	return 0, false
}

// DecodeWeights reads every group's shards through read and decodes the
// weights they contain. Shards of a group are concatenated and weights are
// laid out back to back, in manifest order, little-endian.
//
// float32 is stored as is. int32 and bool weights are converted to float32.
// uint8 and uint16 weights with a quantization entry are dequantized as
// min + q*scale.
func DecodeWeights(manifest []WeightGroup, read func(path string) ([]byte, error)) (tensor.Weights, error) {
	weights := make(tensor.Weights)
	for gi, group := range manifest {
		var buf []byte
		for _, p := range group.Paths {
			shard, err := read(p)
			if err != nil {
				return nil, fmt.Errorf("%w: weight group %d: %v", errs.ErrConfig, gi, err)
			}
			buf = append(buf, shard...)
		}

		offset := 0
		for _, spec := range group.Weights {
			w, n, err := decodeWeight(spec, buf[offset:])
			if err != nil {
				return nil, err
			}
			offset += n
			weights.Add(w)
		}
	}
	return weights, nil
}

func decodeWeight(spec WeightSpec, buf []byte) (*tensor.Weight, int, error) {
	shape := tensor.Shape(spec.Shape)
	if err := shape.Validate(); err != nil {
		return nil, 0, fmt.Errorf("weight %s: %w", spec.Name, err)
	}
	count := shape.NumElements()

	stored := spec.DType
	if spec.Quantization != nil {
		stored = spec.Quantization.DType
	}
	size, ok := dtypeSize(stored)
	if !ok || stored == "float16" || (spec.Quantization != nil && stored != "uint8" && stored != "uint16") {
		return nil, 0, fmt.Errorf("%w: weight %s: dtype %s", errs.ErrUnsupportedParam, spec.Name, stored)
	}
	if spec.DType != "float32" && spec.DType != "int32" && spec.DType != "bool" {
		return nil, 0, fmt.Errorf("%w: weight %s: dtype %s", errs.ErrUnsupportedParam, spec.Name, spec.DType)
	}
	n := count * size
	if len(buf) < n {
		return nil, 0, fmt.Errorf("%w: weight %s needs %d bytes, %d left in its group", errs.ErrShape, spec.Name, n, len(buf))
	}

	data := make([]float32, count)
	switch {
	case spec.Quantization != nil && stored == "uint8":
		q := spec.Quantization
		for i := range data {
			data[i] = q.Min + float32(buf[i])*q.Scale
		}
	case spec.Quantization != nil:
		q := spec.Quantization
		for i := range data {
			data[i] = q.Min + float32(binary.LittleEndian.Uint16(buf[i*2:]))*q.Scale
		}
	case stored == "float32":
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	case stored == "int32":
		for i := range data {
			data[i] = float32(int32(binary.LittleEndian.Uint32(buf[i*4:])))
		}
	case stored == "bool":
		for i := range data {
			if buf[i] != 0 {
				data[i] = 1
			}
		}
	default:
		return nil, 0, fmt.Errorf("%w: weight %s: dtype %s", errs.ErrUnsupportedParam, spec.Name, stored)
	}

	w, err := tensor.NewWeight(spec.Name, shape, data)
	if err != nil {
		return nil, 0, err
	}
	return w, n, nil
}
