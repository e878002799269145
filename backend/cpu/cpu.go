// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"log/slog"

	"github.com/born-ml/wedge/internal/backend/cpu"
)

// Backend is the host reference executor.
type Backend = cpu.CPUBackend

// Tensor is a host tensor in HWC order.
type Tensor = cpu.Tensor

// New creates a CPU backend. A nil logger means slog.Default().
//
// Example:
//
//	ref := cpu.New(nil)
//	want, err := ref.Predict(eng.Model(), pixels)
func New(logger *slog.Logger) *Backend {
	return cpu.New(logger)
}
