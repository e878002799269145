// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package config provides the compiler options and their file formats.
//
// Options can be loaded from TOML or YAML:
//
//	# wedge.toml
//	has_batch_dimension = true
//	max_texture_dimension = 4096
//	glsl_version = "410 core"
//
//	[[render_target_breakpoints]]
//	threshold = 0
//	targets = 1
//
//	[[render_target_breakpoints]]
//	threshold = 262144
//	targets = 2
package config

import (
	"io"
	"log/slog"

	"github.com/born-ml/wedge/internal/config"
)

// GLSL dialects.
const (
	GLSLES300 = config.GLSLES300
	GLSL410   = config.GLSL410
)

// Options is the compiler configuration.
type Options = config.Options

// Breakpoint selects the render target count for tensors of at least
// Threshold elements.
type Breakpoint = config.Breakpoint

// Default returns the default options.
func Default() Options {
	return config.Default()
}

// Load reads options from a .toml, .yaml or .yml file.
func Load(path string) (Options, error) {
	return config.Load(path)
}

// Parse decodes options in the given format ("toml" or "yaml").
func Parse(data []byte, format string) (Options, error) {
	return config.Parse(data, format)
}

// NewLogger returns a text logger writing to w at the named level.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	return config.NewLogger(w, level)
}
