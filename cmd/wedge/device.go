package main

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/wedge/backend/soft"
	"github.com/born-ml/wedge/config"
	"github.com/born-ml/wedge/engine"
)

// openDevice creates the named backend. It may switch cfg to the GLSL
// dialect the backend compiles.
func openDevice(name string, cfg *config.Options, logger *slog.Logger) (engine.Device, error) {
	switch name {
	case "soft", "":
		sc := soft.DefaultConfig()
		sc.Workers = cfg.Workers
		return soft.New(sc), nil
	case "gl":
		return openGL(cfg, logger)
	}
	return nil, fmt.Errorf("%w: unknown backend %q", engine.ErrConfig, name)
}
