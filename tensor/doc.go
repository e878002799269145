// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the shapes and weight buffers models are built from.
//
// # Overview
//
// The compiler never keeps tensors on the host between operators. What it
// needs from the host side is small:
//   - Shape: logical dimensions, channels-last (NHWC or HWC)
//   - Weight: a named float32 buffer with its shape, read from a model file
//   - Weights: the model-wide table the loaders fill
//
// # Shapes
//
// Every texture holds a batch-free HWC tensor. Shape.HWC normalizes ranks 0
// to 4 to that form:
//
//	tensor.Shape{1, 8, 8, 3}.HWC() // [8,8,3]
//	tensor.Shape{16}.HWC()         // [1,1,16]
//	tensor.Shape{2, 8, 8, 3}.HWC() // error: batch must be 1
//
// # Weights
//
// Weight data is stored in the order of its shape. Convolution kernels use
// the TensorFlow layout [kh, kw, in, out] (depthwise: [kh, kw, in, mult]) and
// are repacked into textures at compile time.
package tensor
