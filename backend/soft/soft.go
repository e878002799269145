// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package soft provides a software GPU device.
//
// The device implements the same capability set as the OpenGL backend but
// executes every program on the host, so compiled models run anywhere.
// Limits are configurable, which makes it useful for checking how a model
// fits on a smaller GPU:
//
//	dev := soft.New(soft.Config{MaxTextureSize: 2048, MaxColorAttachments: 4})
//	eng, err := engine.Compile(dev, model, engine.Options{Config: config.Default()})
package soft

import "github.com/born-ml/wedge/internal/backend/soft"

// Device is the software device.
type Device = soft.Device

// Config sets the device limits. Zero limits take the defaults.
type Config = soft.Config

// DefaultConfig returns limits of a typical WebGL2 implementation.
func DefaultConfig() Config {
	return soft.DefaultConfig()
}

// New creates a software device.
func New(cfg Config) *Device {
	return soft.New(cfg)
}
