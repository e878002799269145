// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine compiles a static neural network graph into a sequence of
// fragment-shader programs and runs it on a GPU device.
//
// Each supported operator becomes one program that renders into an RGBA
// texture array. Channels are packed four to a texel and spread over as many
// render targets as the configured breakpoints allow for the tensor size.
//
// Example:
//
//	import (
//	    "github.com/born-ml/wedge/backend/soft"
//	    "github.com/born-ml/wedge/config"
//	    "github.com/born-ml/wedge/engine"
//	    "github.com/born-ml/wedge/tfjs"
//	)
//
//	func main() {
//	    model, err := tfjs.Load("model/model.json", tfjs.Options{})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    eng, err := engine.New(soft.New(soft.DefaultConfig()), model, engine.Options{
//	        Config: config.Default(),
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer eng.Release()
//
//	    if err := eng.Compile(); err != nil {
//	        log.Fatal(err)
//	    }
//	    out, err := eng.Predict(pixels)
//	    fmt.Println(eng.OutputShape(), out)
//	}
//
// Compile is idempotent and Predict may be called any number of times after
// it. Release frees every GPU resource; a released engine cannot be reused.
package engine

import (
	"github.com/born-ml/wedge/internal/engine"
	"github.com/born-ml/wedge/internal/gpu"
	"github.com/born-ml/wedge/internal/graph"
)

// Engine executes one model on one device.
type Engine = engine.Engine

// Options configure an Engine.
type Options = engine.Options

// Program is a compiled operator with its generated shader sources.
type Program = engine.Program

// State is the engine lifecycle state.
type State = engine.State

// Engine states.
const (
	Uninitialized = engine.Uninitialized
	Ready         = engine.Ready
	Released      = engine.Released
)

// Device is the GPU capability set the engine needs.
type Device = gpu.Device

// Stats reports GPU resource usage.
type Stats = gpu.Stats

// New returns an uninitialized engine for m on dev.
func New(dev Device, m *graph.Model, opts Options) (*Engine, error) {
	return engine.New(dev, m, opts)
}

// Compile is shorthand for New followed by Engine.Compile.
func Compile(dev Device, m *graph.Model, opts Options) (*Engine, error) {
	e, err := engine.New(dev, m, opts)
	if err != nil {
		return nil, err
	}
	if err := e.Compile(); err != nil {
		return nil, err
	}
	return e, nil
}
