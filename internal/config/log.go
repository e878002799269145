package config

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/born-ml/wedge/internal/errs"
)

// NewLogger returns a text logger writing to w at the named level.
// An empty level means info.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("%w: log level %q: %v", errs.ErrConfig, level, err)
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
