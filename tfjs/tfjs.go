// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tfjs loads TensorFlow.js models for the engine.
//
// Both converter outputs are supported: graph models (frozen TensorFlow
// graphs) and layers models (Keras topologies). Weights are read from the
// binary shards listed in the manifest, relative to model.json.
//
// Example:
//
//	model, err := tfjs.Load("web_model/model.json", tfjs.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, n := range model.Nodes {
//	    fmt.Println(n)
//	}
//
// Operators the compiler does not know are kept as Unsupported nodes so the
// rest of the graph can still be compiled.
package tfjs

import (
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/tensor"
	"github.com/born-ml/wedge/internal/tfjs"
)

// Artifact formats.
const (
	FormatGraphModel  = tfjs.FormatGraphModel
	FormatLayersModel = tfjs.FormatLayersModel
)

// Artifacts is the parsed model.json.
type Artifacts = tfjs.Artifacts

// WeightGroup is one entry of the weights manifest.
type WeightGroup = tfjs.WeightGroup

// WeightSpec describes one weight inside a group.
type WeightSpec = tfjs.WeightSpec

// Options configure conversion.
type Options = tfjs.Options

// Weights is the decoded weight table keyed by name.
type Weights = tensor.Weights

// Load reads model.json and its weight shards and converts the model.
func Load(path string, opts Options) (*graph.Model, error) {
	return tfjs.Load(path, opts)
}

// ParseArtifacts parses the contents of model.json.
func ParseArtifacts(data []byte) (*Artifacts, error) {
	return tfjs.ParseArtifacts(data)
}

// Convert builds a model from parsed artifacts and decoded weights.
func Convert(a *Artifacts, weights Weights, opts Options) (*graph.Model, error) {
	return tfjs.Convert(a, weights, opts)
}

// DecodeWeights decodes the weights of a manifest. read returns the bytes of
// one shard path.
func DecodeWeights(manifest []WeightGroup, read func(path string) ([]byte, error)) (Weights, error) {
	return tfjs.DecodeWeights(manifest, read)
}
