// Package config holds the compiler's configuration surface and loads it from
// TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/wedge/internal/errs"
)

// GLSL dialects the shader generator can emit.
const (
	GLSLES300  = "300 es"   // WebGL2 / OpenGL ES 3.0
	GLSL410    = "410 core" // desktop OpenGL 4.1
	defaultMax = 2048
)

// Breakpoint maps a padded element count threshold to a render target count.
type Breakpoint struct {
	Threshold int `toml:"threshold" yaml:"threshold"`
	Targets   int `toml:"targets" yaml:"targets"`
}

// Options configures layout, code generation and logging.
type Options struct {
	// HasBatchDimension reports whether caller tensors carry a leading batch
	// axis of 1. Flat input and output buffers are the same either way, as
	// layout always drops a batch of 1; the setting only decides whether the
	// engine's reported output shape includes that axis.
	HasBatchDimension bool `toml:"has_batch_dimension" yaml:"has_batch_dimension"`

	// PadChannels pads the channel axis to a multiple of 4. Only disable for testing.
	PadChannels bool `toml:"pad_channels" yaml:"pad_channels"`

	// RenderTargetBreakpoints, ascending by threshold.
	RenderTargetBreakpoints []Breakpoint `toml:"render_target_breakpoints" yaml:"render_target_breakpoints"`

	// MaxTextureDimension bounds texture width and height (exclusive).
	MaxTextureDimension int `toml:"max_texture_dimension" yaml:"max_texture_dimension"`

	// GLSLVersion selects the shader dialect header.
	GLSLVersion string `toml:"glsl_version" yaml:"glsl_version"`

	LogLevel string `toml:"log_level" yaml:"log_level"`

	// Workers bounds the software backend's fan-out (0 = one per CPU).
	Workers int `toml:"workers" yaml:"workers"`
}

// Default returns the default options.
func Default() Options {
	return Options{
		HasBatchDimension: true,
		PadChannels:       true,
		RenderTargetBreakpoints: []Breakpoint{
			{Threshold: 0, Targets: 1},
			{Threshold: 262144, Targets: 2},
			{Threshold: 1048576, Targets: 4},
		},
		MaxTextureDimension: defaultMax,
		GLSLVersion:         GLSLES300,
		LogLevel:            "info",
	}
}

// Validate checks the options for internal consistency.
// Device-dependent limits are checked by the engine at compile time.
func (o *Options) Validate() error {
	if o.MaxTextureDimension < 1 {
		return fmt.Errorf("%w: max_texture_dimension must be positive, got %d", errs.ErrConfig, o.MaxTextureDimension)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", errs.ErrConfig, o.Workers)
	}
	switch o.GLSLVersion {
	case GLSLES300, GLSL410:
	default:
		return fmt.Errorf("%w: unknown glsl_version %q", errs.ErrConfig, o.GLSLVersion)
	}
	if !sort.SliceIsSorted(o.RenderTargetBreakpoints, func(i, j int) bool {
		return o.RenderTargetBreakpoints[i].Threshold < o.RenderTargetBreakpoints[j].Threshold
	}) {
		return fmt.Errorf("%w: render_target_breakpoints must be sorted by threshold", errs.ErrConfig)
	}
	for i, bp := range o.RenderTargetBreakpoints {
		if bp.Threshold < 0 || bp.Targets < 1 {
			return fmt.Errorf("%w: render_target_breakpoints[%d] = %+v", errs.ErrConfig, i, bp)
		}
		if i > 0 && bp.Threshold == o.RenderTargetBreakpoints[i-1].Threshold {
			return fmt.Errorf("%w: duplicate breakpoint threshold %d", errs.ErrConfig, bp.Threshold)
		}
	}
	return nil
}

// MaxTargets returns the largest render target count any breakpoint asks for.
func (o *Options) MaxTargets() int {
	n := 1
	for _, bp := range o.RenderTargetBreakpoints {
		n = max(n, bp.Targets)
	}
	return n
}

// Load reads options from a .toml, .yaml or .yml file, starting from Default.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("config: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Parse(data, format)
}

// Parse decodes options in the given format ("toml", "yaml" or "yml").
// Fields missing from data keep their default values.
func Parse(data []byte, format string) (Options, error) {
	opts := Default()
	var err error
	switch format {
	case "toml":
		err = toml.Unmarshal(data, &opts)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &opts)
	default:
		return Options{}, fmt.Errorf("%w: unsupported config format %q", errs.ErrConfig, format)
	}
	if err != nil {
		return Options{}, fmt.Errorf("%w: decoding %s: %v", errs.ErrConfig, format, err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
