package tfjs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/tensor"
)

// layersTopology is the modelTopology of a layers model.
type layersTopology struct {
	ClassName string          `json:"class_name"`
	Config    json.RawMessage `json:"config"`
	// Some exporters nest the model under model_config.
	ModelConfig *layersTopology `json:"model_config"`
}

type modelConfig struct {
	Name         string          `json:"name"`
	Layers       []layerDef      `json:"layers"`
	InputLayers  json.RawMessage `json:"input_layers"`
	OutputLayers json.RawMessage `json:"output_layers"`
}

type layerDef struct {
	ClassName    string          `json:"class_name"`
	Name         string          `json:"name"`
	Config       layerConfig     `json:"config"`
	InboundNodes json.RawMessage `json:"inbound_nodes"`
}

// layerConfig holds the Keras layer fields the compiler reads. Integer
// tuples are decoded loosely because Keras writes both 3 and [3, 3].
type layerConfig struct {
	Name            string          `json:"name"`
	BatchInputShape []*int          `json:"batch_input_shape"`
	BatchShape      []*int          `json:"batch_shape"`
	Filters         int             `json:"filters"`
	KernelSize      json.RawMessage `json:"kernel_size"`
	Strides         json.RawMessage `json:"strides"`
	Padding         json.RawMessage `json:"padding"`
	DataFormat      string          `json:"data_format"`
	DilationRate    json.RawMessage `json:"dilation_rate"`
	Activation      string          `json:"activation"`
	UseBias         *bool           `json:"use_bias"`
	DepthMultiplier int             `json:"depth_multiplier"`
	PoolSize        json.RawMessage `json:"pool_size"`
	TargetShape     []int           `json:"target_shape"`
	Size            json.RawMessage `json:"size"`
	Interpolation   string          `json:"interpolation"`
	MaxValue        *float32        `json:"max_value"`
	NegativeSlope   float32         `json:"negative_slope"`
	Threshold       float32         `json:"threshold"`
}

func convertLayersModel(topology json.RawMessage, weights tensor.Weights, opts Options) (*graph.Model, error) {
	var top layersTopology
	if err := decodeStrict(topology, &top, "layers model topology"); err != nil {
		return nil, err
	}
	if top.ModelConfig != nil {
		top = *top.ModelConfig
	}
	var cfg modelConfig
	if err := decodeStrict(top.Config, &cfg, "layers model config"); err != nil {
		return nil, err
	}

	c := &layersConverter{
		a:   newAssembly(graph.FormatLayersModel, weights),
		out: make(map[string]string),
		log: opts.logger(),
	}

	var output string
	var err error
	if top.ClassName == "Sequential" {
		output, err = c.sequential(cfg.Layers)
	} else {
		output, err = c.functional(cfg)
	}
	if err != nil {
		return nil, err
	}
	if opts.Output != "" {
		output = c.resolve(opts.Output)
	}

	m, err := c.a.build(output, false)
	if err != nil {
		return nil, err
	}
	c.log.Info("converted layers model", "model", cfg.Name, "layers", len(cfg.Layers), "nodes", len(m.Nodes), "output", m.Output.Name)
	return m, nil
}

type layersConverter struct {
	a *assembly
	// out maps a layer name to the node holding its output. Layers that
	// expand into several nodes, or none, are redirected here.
	out map[string]string
	log *slog.Logger
}

func (c *layersConverter) resolve(layer string) string {
	if n, ok := c.out[layer]; ok {
		return n
	}
	return layer
}

// sequential chains the layers, synthesizing the input layer when the
// first layer only carries batch_input_shape.
func (c *layersConverter) sequential(layers []layerDef) (string, error) {
	if len(layers) == 0 {
		return "", fmt.Errorf("%w: sequential model has no layers", errs.ErrConfig)
	}
	prev := ""
	if first := layers[0]; first.ClassName != "InputLayer" {
		shape := batchShape(first.Config)
		if shape == nil {
			return "", fmt.Errorf("%w: sequential model has no input shape", errs.ErrConfig)
		}
		prev = layerName(first) + "_input"
		if _, err := c.a.add(prev, graph.OpInput, "InputLayer", graph.InputAttrs{Shape: shape}); err != nil {
			return "", err
		}
	}
	for _, l := range layers {
		var inputs []string
		if prev != "" {
			inputs = []string{prev}
		}
		if err := c.layer(l, inputs); err != nil {
			return "", err
		}
		prev = c.resolve(layerName(l))
	}
	return prev, nil
}

func (c *layersConverter) functional(cfg modelConfig) (string, error) {
	for _, l := range cfg.Layers {
		var refs []string
		if len(l.InboundNodes) > 0 {
			var raw any
			if err := json.Unmarshal(l.InboundNodes, &raw); err != nil {
				return "", fmt.Errorf("%w: layer %s inbound nodes: %v", errs.ErrConfig, layerName(l), err)
			}
			collectRefs(raw, &refs)
		}
		inputs := make([]string, len(refs))
		for i, r := range refs {
			inputs[i] = c.resolve(r)
		}
		if err := c.layer(l, inputs); err != nil {
			return "", err
		}
	}

	var outs []string
	if len(cfg.OutputLayers) > 0 {
		var raw any
		if err := json.Unmarshal(cfg.OutputLayers, &raw); err != nil {
			return "", fmt.Errorf("%w: output_layers: %v", errs.ErrConfig, err)
		}
		collectRefs(raw, &outs)
	}
	if len(outs) != 1 {
		return "", fmt.Errorf("%w: model declares %d outputs, expected 1", errs.ErrConfig, len(outs))
	}
	return c.resolve(outs[0]), nil
}

// collectRefs extracts layer names from inbound_nodes or output_layers. It
// accepts the nested ["name", node, tensor, kwargs] lists of Keras 2 and the
// keras_history entries of Keras 3.
func collectRefs(v any, refs *[]string) {
	switch v := v.(type) {
	case []any:
		if len(v) >= 3 {
			if name, ok := v[0].(string); ok {
				if _, ok := v[1].(float64); ok {
					*refs = append(*refs, name)
					return
				}
			}
		}
		for _, e := range v {
			collectRefs(e, refs)
		}
	case map[string]any:
		if h, ok := v["keras_history"]; ok {
			collectRefs(h, refs)
			return
		}
		for _, k := range slices.Sorted(maps.Keys(v)) {
			collectRefs(v[k], refs)
		}
	}
}

func layerName(l layerDef) string {
	if l.Config.Name != "" {
		return l.Config.Name
	}
	return l.Name
}

// batchShape returns the declared input shape with unknown dimensions as -1.
func batchShape(cfg layerConfig) tensor.Shape {
	dims := cfg.BatchInputShape
	if dims == nil {
		dims = cfg.BatchShape
	}
	if dims == nil {
		return nil
	}
	shape := make(tensor.Shape, len(dims))
	for i, d := range dims {
		shape[i] = -1
		if d != nil {
			shape[i] = *d
		}
	}
	return shape
}

func (c *layersConverter) layer(l layerDef, inputs []string) error {
	name := layerName(l)
	cfg := l.Config
	wrap := func(err error) error {
		return &errs.NodeError{Node: name, Op: l.ClassName, Err: err}
	}

	switch l.ClassName {
	case "InputLayer":
		shape := batchShape(cfg)
		if shape == nil {
			return wrap(fmt.Errorf("%w: input layer without batch shape", errs.ErrShape))
		}
		_, err := c.a.add(name, graph.OpInput, l.ClassName, graph.InputAttrs{Shape: shape})
		return err

	case "Conv2D", "DepthwiseConv2D":
		if err := c.conv(name, l, inputs); err != nil {
			return wrap(err)
		}
		return nil

	case "Add", "Multiply":
		if len(inputs) < 2 {
			return wrap(fmt.Errorf("%w: %s needs at least two inputs", errs.ErrConfig, l.ClassName))
		}
		op := graph.OpAdd
		if l.ClassName == "Multiply" {
			op = graph.OpMultiply
		}
		// Merge layers take any number of inputs; fold them pairwise.
		prev := inputs[0]
		for i := 1; i < len(inputs); i++ {
			node := name
			if i < len(inputs)-1 {
				node = fmt.Sprintf("%s/%d", name, i)
			}
			if _, err := c.a.add(node, op, l.ClassName, graph.NoAttrs{}, prev, inputs[i]); err != nil {
				return err
			}
			prev = node
		}
		return nil

	case "Activation":
		return c.activation(name, name, cfg.Activation, inputs)

	case "ReLU":
		switch {
		case cfg.NegativeSlope != 0 || cfg.Threshold != 0:
			return c.unsupported(name, "ReLU", inputs)
		case cfg.MaxValue == nil:
			_, err := c.a.add(name, graph.OpRelu, l.ClassName, graph.NoAttrs{}, inputs...)
			return err
		case *cfg.MaxValue == 6:
			_, err := c.a.add(name, graph.OpRelu6, l.ClassName, graph.NoAttrs{}, inputs...)
			return err
		default:
			return c.unsupported(name, "ReLU", inputs)
		}

	case "ZeroPadding2D":
		pads, err := zeroPadding(cfg.Padding)
		if err != nil {
			return wrap(err)
		}
		_, err = c.a.add(name, graph.OpPad, l.ClassName, graph.PadAttrs{Paddings: pads, HasValue: true}, inputs...)
		return err

	case "MaxPooling2D":
		if cfg.DataFormat != "" && cfg.DataFormat != "channels_last" {
			return wrap(fmt.Errorf("%w: data_format %s", errs.ErrUnsupportedParam, cfg.DataFormat))
		}
		size, err := pair(cfg.PoolSize, [2]int{2, 2})
		if err != nil {
			return wrap(err)
		}
		strides, err := pair(cfg.Strides, size)
		if err != nil {
			return wrap(err)
		}
		pad, err := kerasPadding(cfg.Padding)
		if err != nil {
			return wrap(err)
		}
		_, err = c.a.add(name, graph.OpMaxPool, l.ClassName, graph.PoolAttrs{Size: size, Strides: strides, Padding: pad}, inputs...)
		return err

	case "Reshape":
		shape := append([]int{1}, cfg.TargetShape...)
		_, err := c.a.add(name, graph.OpReshape, l.ClassName, graph.ReshapeAttrs{Shape: shape}, inputs...)
		return err

	case "Flatten":
		_, err := c.a.add(name, graph.OpReshape, l.ClassName, graph.ReshapeAttrs{Shape: []int{1, -1}}, inputs...)
		return err

	case "UpSampling2D":
		if cfg.Interpolation != "bilinear" {
			return c.unsupported(name, "UpSampling2D", inputs)
		}
		size, err := pair(cfg.Size, [2]int{2, 2})
		if err != nil {
			return wrap(err)
		}
		_, err = c.a.add(name, graph.OpResizeBilinear, l.ClassName, graph.ResizeAttrs{Factor: size, HalfPixelCenters: true}, inputs...)
		return err

	case "Dropout", "SpatialDropout2D":
		if len(inputs) != 1 {
			return wrap(fmt.Errorf("%w: %s needs one input", errs.ErrConfig, l.ClassName))
		}
		c.out[name] = inputs[0]
		return nil

	default:
		return c.unsupported(name, l.ClassName, inputs)
	}
}

func (c *layersConverter) unsupported(name, raw string, inputs []string) error {
	c.log.Debug("unsupported layer", "layer", name, "class", raw)
	_, err := c.a.add(name, graph.OpUnsupported, raw, graph.NoAttrs{}, inputs...)
	return err
}

// conv adds a convolution layer with its kernel and bias constants. ReLU and
// ReLU6 activations fuse into the node; others become a node of their own.
func (c *layersConverter) conv(name string, l layerDef, inputs []string) error {
	cfg := l.Config
	if len(inputs) != 1 {
		return fmt.Errorf("%w: convolution needs one input, got %d", errs.ErrConfig, len(inputs))
	}
	if cfg.DataFormat != "" && cfg.DataFormat != "channels_last" {
		return fmt.Errorf("%w: data_format %s", errs.ErrUnsupportedParam, cfg.DataFormat)
	}
	dilation, err := pair(cfg.DilationRate, [2]int{1, 1})
	if err != nil {
		return err
	}
	if dilation != [2]int{1, 1} {
		return fmt.Errorf("%w: dilation_rate %v", errs.ErrUnsupportedParam, dilation)
	}
	strides, err := pair(cfg.Strides, [2]int{1, 1})
	if err != nil {
		return err
	}
	pad, err := kerasPadding(cfg.Padding)
	if err != nil {
		return err
	}

	op, kernelName := graph.OpConv2D, "kernel"
	if l.ClassName == "DepthwiseConv2D" {
		op, kernelName = graph.OpDepthwiseConv2D, "depthwise_kernel"
	}
	kernel, err := c.weight(name, kernelName)
	if err != nil {
		return err
	}
	args := []string{inputs[0], kernel}
	if cfg.UseBias == nil || *cfg.UseBias {
		bias, err := c.weight(name, "bias")
		if err != nil {
			return err
		}
		args = append(args, bias)
	}

	attrs := graph.ConvAttrs{Strides: strides, Padding: pad}
	switch cfg.Activation {
	case "", "linear":
	case "relu":
		attrs.Activation = graph.ActRelu
	case "relu6":
		attrs.Activation = graph.ActRelu6
	default:
		if _, err := c.a.add(name, op, l.ClassName, attrs, args...); err != nil {
			return err
		}
		return c.activation(name, name+"/"+cfg.Activation, cfg.Activation, []string{name})
	}
	_, err = c.a.add(name, op, l.ClassName, attrs, args...)
	return err
}

// activation adds a node for a named Keras activation and makes it the
// output of layer.
func (c *layersConverter) activation(layer, node, act string, inputs []string) error {
	var op graph.OpKind
	switch act {
	case "linear":
		if len(inputs) != 1 {
			return fmt.Errorf("%w: activation %s needs one input", errs.ErrConfig, layer)
		}
		c.out[layer] = inputs[0]
		return nil
	case "relu":
		op = graph.OpRelu
	case "relu6":
		op = graph.OpRelu6
	case "sigmoid":
		op = graph.OpSigmoid
	default:
		if node != layer {
			c.out[layer] = node
		}
		return c.unsupported(node, act, inputs)
	}
	if _, err := c.a.add(node, op, "Activation", graph.NoAttrs{}, inputs...); err != nil {
		return err
	}
	if node != layer {
		c.out[layer] = node
	}
	return nil
}

// weight finds the stored weight of a layer. Exporters prefix the names
// with the model scope, so a suffix match is accepted when it is unique.
func (c *layersConverter) weight(layer, suffix string) (string, error) {
	want := layer + "/" + suffix
	if _, ok := c.a.weights.Get(want); !ok {
		var found []string
		for _, name := range slices.Sorted(maps.Keys(c.a.weights)) {
			if strings.HasSuffix(name, "/"+want) {
				found = append(found, name)
			}
		}
		if len(found) != 1 {
			return "", fmt.Errorf("%w: weight %s not found in the weights manifest", errs.ErrConfig, want)
		}
		want = found[0]
	}
	if err := c.a.constant(want); err != nil {
		return "", err
	}
	return want, nil
}

// pair decodes an int or a two-int list.
func pair(raw json.RawMessage, def [2]int) ([2]int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return def, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return [2]int{n, n}, nil
	}
	var list []int
	if err := json.Unmarshal(raw, &list); err != nil || len(list) != 2 {
		return def, fmt.Errorf("%w: expected an int or a pair, got %s", errs.ErrUnsupportedParam, raw)
	}
	return [2]int{list[0], list[1]}, nil
}

func kerasPadding(raw json.RawMessage) (graph.Padding, error) {
	if len(raw) == 0 {
		return graph.PaddingValid, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%w: padding %s", errs.ErrUnsupportedParam, raw)
	}
	return paddingScheme(s)
}

// zeroPadding decodes the ZeroPadding2D forms p, [h, w] and
// [[top, bottom], [left, right]].
func zeroPadding(raw json.RawMessage) ([][2]int, error) {
	if p, err := pair(raw, [2]int{1, 1}); err == nil {
		return [][2]int{{p[0], p[0]}, {p[1], p[1]}}, nil
	}
	var nested [][2]int
	if err := json.Unmarshal(raw, &nested); err != nil || len(nested) != 2 {
		return nil, fmt.Errorf("%w: padding %s", errs.ErrUnsupportedParam, raw)
	}
	return nested, nil
}
