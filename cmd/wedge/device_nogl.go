//go:build !gl

package main

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/wedge/config"
	"github.com/born-ml/wedge/engine"
)

func openGL(*config.Options, *slog.Logger) (engine.Device, error) {
	return nil, fmt.Errorf("%w: gl backend not built in (rebuild with -tags gl)", engine.ErrConfig)
}
