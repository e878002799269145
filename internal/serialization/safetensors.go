package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/tensor"
)

// maxHeaderSize bounds the JSON header a reader accepts.
const maxHeaderSize = 100 << 20

// tensorInfo describes one tensor in the header.
type tensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) within the data section
}

// WriteSafeTensors writes ws to w. The data checksum is added to metadata.
func WriteSafeTensors(w io.Writer, ws tensor.Weights, metadata map[string]string) error {
	names := make([]string, 0, len(ws))
	for name := range ws {
		names = append(names, name)
	}
	slices.Sort(names)

	header := make(map[string]any, len(names)+1)
	var data bytes.Buffer
	for _, name := range names {
		wt := ws[name]
		start := int64(data.Len())
		for _, v := range wt.Data {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
			data.Write(b[:])
		}
		header[name] = tensorInfo{
			DType:       "F32",
			Shape:       slices.Clone([]int(wt.Shape)),
			DataOffsets: [2]int64{start, int64(data.Len())},
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[checksumKey] = Checksum(data.Bytes())
	header["__metadata__"] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// ReadSafeTensors reads a weight table and its metadata from r. F32 and I32
// tensors are supported; I32 values are converted to float32.
func ReadSafeTensors(r io.Reader) (tensor.Weights, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read header size: %v", errs.ErrConfig, err)
	}
	if headerSize > maxHeaderSize {
		return nil, nil, fmt.Errorf("%w: invalid header size %d", errs.ErrConfig, headerSize)
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read header: %v", errs.ErrConfig, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse header: %v", errs.ErrConfig, err)
	}
	var metadata map[string]string
	if m, ok := raw["__metadata__"]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, fmt.Errorf("%w: failed to parse metadata: %v", errs.ErrConfig, err)
		}
		delete(raw, "__metadata__")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if sum, ok := metadata[checksumKey]; ok {
		if err := validateChecksum(data, sum); err != nil {
			return nil, nil, err
		}
	}

	ws := make(tensor.Weights, len(raw))
	for name, msg := range raw {
		var info tensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, nil, fmt.Errorf("%w: tensor %s: %v", errs.ErrConfig, name, err)
		}
		w, err := decodeTensor(name, info, data)
		if err != nil {
			return nil, nil, err
		}
		ws.Add(w)
	}
	return ws, metadata, nil
}

func decodeTensor(name string, info tensorInfo, data []byte) (*tensor.Weight, error) {
	if info.DType != "F32" && info.DType != "I32" {
		return nil, fmt.Errorf("%w: tensor %s: dtype %s", errs.ErrUnsupportedParam, name, info.DType)
	}
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start || end > int64(len(data)) {
		return nil, fmt.Errorf("%w: tensor %s: invalid data offsets [%d, %d]", errs.ErrShape, name, start, end)
	}
	buf := data[start:end]

	shape := tensor.Shape(info.Shape)
	n := shape.NumElements()
	if len(buf) != 4*n {
		return nil, fmt.Errorf("%w: tensor %s: %d bytes for shape %v", errs.ErrShape, name, len(buf), shape)
	}

	values := make([]float32, n)
	for i := range values {
		bits := binary.LittleEndian.Uint32(buf[4*i:])
		if info.DType == "I32" {
			values[i] = float32(int32(bits))
		} else {
			values[i] = math.Float32frombits(bits)
		}
	}
	return tensor.NewWeight(name, shape, values)
}

// SaveWeights writes ws to a .safetensors file.
func SaveWeights(path string, ws tensor.Weights, metadata map[string]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteSafeTensors(f, ws, metadata)
}

// LoadWeights reads a .safetensors file.
func LoadWeights(path string) (tensor.Weights, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return ReadSafeTensors(f)
}
