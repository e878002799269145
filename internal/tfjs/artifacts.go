// Package tfjs converts TensorFlow.js model artifacts (model.json plus binary
// weight shards) into graph models.
//
// Both artifact flavours are supported: graph models, whose topology is a
// list of raw TensorFlow nodes, and layers models, whose topology is a Keras
// layer configuration. Either way the result is a graph.Model in
// topological order whose node attributes are already normalized.
package tfjs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/tensor"
)

// Artifact formats as written in model.json.
const (
	FormatGraphModel  = "graph-model"
	FormatLayersModel = "layers-model"
)

// Artifacts is the parsed content of a model.json file.
type Artifacts struct {
	Format          string          `json:"format"`
	GeneratedBy     string          `json:"generatedBy"`
	ConvertedBy     string          `json:"convertedBy"`
	ModelTopology   json.RawMessage `json:"modelTopology"`
	WeightsManifest []WeightGroup   `json:"weightsManifest"`
}

// WeightGroup is one entry of the weights manifest: the shard files and the
// weights stored back to back in them.
type WeightGroup struct {
	Paths   []string     `json:"paths"`
	Weights []WeightSpec `json:"weights"`
}

// WeightSpec describes one stored weight.
type WeightSpec struct {
	Name         string        `json:"name"`
	Shape        []int         `json:"shape"`
	DType        string        `json:"dtype"`
	Quantization *Quantization `json:"quantization,omitempty"`
}

// Quantization describes affine-quantized weights: value = min + q*scale.
type Quantization struct {
	DType string  `json:"dtype"`
	Scale float32 `json:"scale"`
	Min   float32 `json:"min"`
}

// Options control the conversion.
type Options struct {
	// Output names the output node. Empty means the model's declared
	// output, or its only sink node.
	Output string
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Load reads model.json at path and the weight shards next to it.
func Load(path string, opts Options) (*graph.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfig, err)
	}
	a, err := ParseArtifacts(data)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	weights, err := DecodeWeights(a.WeightsManifest, func(p string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
	})
	if err != nil {
		return nil, err
	}
	return Convert(a, weights, opts)
}

// ParseArtifacts decodes model.json.
func ParseArtifacts(data []byte) (*Artifacts, error) {
	var a Artifacts
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: parse model.json: %v", errs.ErrConfig, err)
	}
	if len(a.ModelTopology) == 0 {
		return nil, fmt.Errorf("%w: model.json has no modelTopology", errs.ErrConfig)
	}
	return &a, nil
}

// Convert turns parsed artifacts and their decoded weights into a model.
// The flavour is taken from the format field, or guessed from the topology
// when the field is missing.
func Convert(a *Artifacts, weights tensor.Weights, opts Options) (*graph.Model, error) {
	format := a.Format
	if format == "" {
		var probe struct {
			Node      json.RawMessage `json:"node"`
			ClassName string          `json:"class_name"`
		}
		if err := json.Unmarshal(a.ModelTopology, &probe); err != nil {
			return nil, fmt.Errorf("%w: parse modelTopology: %v", errs.ErrConfig, err)
		}
		switch {
		case len(probe.Node) > 0:
			format = FormatGraphModel
		case probe.ClassName != "":
			format = FormatLayersModel
		}
	}
	if weights == nil {
		weights = make(tensor.Weights)
	}

	switch format {
	case FormatGraphModel:
		return convertGraphModel(a.ModelTopology, weights, opts)
	case FormatLayersModel:
		return convertLayersModel(a.ModelTopology, weights, opts)
	default:
		return nil, fmt.Errorf("%w: unknown model format %q", errs.ErrConfig, a.Format)
	}
}

// pending is a node whose inputs are still referenced by name.
type pending struct {
	node   *graph.Node
	inputs []string
}

// assembly collects converted nodes and links them into a model.
type assembly struct {
	format  graph.Format
	nodes   []pending
	byName  map[string]*graph.Node
	alias   map[string]string // elided node -> the node it forwards
	inputs  []*graph.Node
	weights tensor.Weights
}

func newAssembly(format graph.Format, weights tensor.Weights) *assembly {
	return &assembly{
		format:  format,
		byName:  make(map[string]*graph.Node),
		alias:   make(map[string]string),
		weights: weights,
	}
}

func (a *assembly) add(name string, op graph.OpKind, raw string, attrs graph.Attributes, inputs ...string) (*graph.Node, error) {
	if _, dup := a.byName[name]; dup {
		return nil, fmt.Errorf("%w: duplicate node name %q", errs.ErrConfig, name)
	}
	if attrs == nil {
		attrs = graph.NoAttrs{}
	}
	n := &graph.Node{Name: name, Op: op, RawOp: raw, Attrs: attrs}
	a.byName[name] = n
	a.nodes = append(a.nodes, pending{node: n, inputs: inputs})
	if op == graph.OpInput {
		a.inputs = append(a.inputs, n)
	}
	return n, nil
}

// constant adds a Const node for a stored weight.
func (a *assembly) constant(name string) error {
	if _, ok := a.weights.Get(name); !ok {
		return fmt.Errorf("%w: weight %s not found in the weights manifest", errs.ErrConfig, name)
	}
	if _, exists := a.byName[name]; exists {
		return nil
	}
	_, err := a.add(name, graph.OpConst, "Const", graph.NoAttrs{})
	return err
}

// lookup follows aliases to the node that produces name.
func (a *assembly) lookup(name string) (*graph.Node, error) {
	for range len(a.alias) + 1 {
		target, ok := a.alias[name]
		if !ok {
			break
		}
		name = target
	}
	n, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown node %q", errs.ErrConfig, name)
	}
	return n, nil
}

// build wires inputs, sorts the nodes and validates the model.
func (a *assembly) build(output string, sinkFallback bool) (*graph.Model, error) {
	consumed := make(map[*graph.Node]bool)
	nodes := make([]*graph.Node, 0, len(a.nodes))
	for _, p := range a.nodes {
		for _, in := range p.inputs {
			src, err := a.lookup(in)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", p.node.Name, err)
			}
			p.node.Inputs = append(p.node.Inputs, src)
			consumed[src] = true
		}
		nodes = append(nodes, p.node)
	}

	var out *graph.Node
	switch {
	case output != "":
		n, err := a.lookup(output)
		if err != nil {
			return nil, fmt.Errorf("output: %w", err)
		}
		out = n
	case sinkFallback:
		var sinks []string
		for _, n := range nodes {
			if !consumed[n] && n.Op != graph.OpConst {
				out = n
				sinks = append(sinks, n.Name)
			}
		}
		if len(sinks) != 1 {
			return nil, fmt.Errorf("%w: cannot pick an output among %d sink nodes [%s]; name one explicitly",
				errs.ErrConfig, len(sinks), strings.Join(sinks, ", "))
		}
	default:
		return nil, fmt.Errorf("%w: model declares no output", errs.ErrConfig)
	}

	sorted, err := graph.Sort(nodes)
	if err != nil {
		return nil, err
	}
	m := &graph.Model{
		Format:  a.format,
		Nodes:   sorted,
		Weights: a.weights,
		Inputs:  a.inputs,
		Output:  out,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeStrict unmarshals JSON and reports unknown shapes as config errors.
func decodeStrict(data []byte, v any, what string) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", errs.ErrConfig, what, err)
	}
	return nil
}
