//go:build gl

package main

import (
	"log/slog"

	"github.com/born-ml/wedge/backend/opengl"
	"github.com/born-ml/wedge/config"
	"github.com/born-ml/wedge/engine"
)

func openGL(cfg *config.Options, logger *slog.Logger) (engine.Device, error) {
	dev, err := opengl.New()
	if err != nil {
		return nil, err
	}
	if cfg.GLSLVersion != config.GLSL410 {
		logger.Info("using desktop GLSL dialect", "glsl", config.GLSL410)
		cfg.GLSLVersion = config.GLSL410
	}
	return dev, nil
}
