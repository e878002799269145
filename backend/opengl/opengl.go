// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

//go:build gl

// Package opengl provides a desktop OpenGL 4.1 device.
//
// Building it requires the gl tag and cgo. The device owns a hidden GLFW
// window and is bound to the OS thread of the goroutine that created it, so
// compile and predict from that goroutine only. Use the "410 core" GLSL
// dialect:
//
//	dev, err := opengl.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Release()
//
//	cfg := config.Default()
//	cfg.GLSLVersion = config.GLSL410
package opengl

import "github.com/born-ml/wedge/internal/backend/opengl"

// Device is an OpenGL device.
type Device = opengl.Device

// New creates a hidden window with a 4.1 core context.
func New() (*Device, error) {
	return opengl.New()
}
