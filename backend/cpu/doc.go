// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a host reference executor for compiled models.
//
// # Overview
//
// The executor runs the same resolved plan the GPU programs are generated
// from, with plain float32 loops over HWC tensors:
//   - Conv2D and DepthwiseConv2D with SAME/VALID padding and fused activations
//   - MaxPool, Pad (constant, reflect, symmetric) and bilinear resize
//   - Add and Multiply with scalar and per-channel broadcasting
//   - Relu, Relu6 and Sigmoid
//
// # Basic Usage
//
// Compile the model with the engine first; compilation resolves every node's
// shape and parameters, which the executor reads.
//
//	import (
//	    "github.com/born-ml/wedge/backend/cpu"
//	    "github.com/born-ml/wedge/backend/soft"
//	    "github.com/born-ml/wedge/config"
//	    "github.com/born-ml/wedge/engine"
//	)
//
//	func main() {
//	    eng, err := engine.Compile(soft.New(soft.DefaultConfig()), model,
//	        engine.Options{Config: config.Default()})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    got, _ := eng.Predict(pixels)
//	    want, _ := cpu.New(nil).Predict(eng.Model(), pixels)
//	}
//
// Nodes that did not resolve are skipped. Predict fails with
// engine.ErrNotCompiled when the model output itself is unresolved.
package cpu
