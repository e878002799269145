// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import "github.com/born-ml/wedge/internal/errs"

// Errors reported by loading, compiling and running models. Match them with
// errors.Is.
var (
	ErrConfig           = errs.ErrConfig
	ErrUnsupportedOp    = errs.ErrUnsupportedOp
	ErrMissingInput     = errs.ErrMissingInput
	ErrShape            = errs.ErrShape
	ErrUnsupportedParam = errs.ErrUnsupportedParam
	ErrGPU              = errs.ErrGPU
	ErrNotCompiled      = errs.ErrNotCompiled
)

// LimitError reports a value over a device or configuration limit.
type LimitError = errs.LimitError

// ShaderError carries the source and driver log of a failed shader.
type ShaderError = errs.ShaderError

// NodeError names the graph node an error belongs to.
type NodeError = errs.NodeError
