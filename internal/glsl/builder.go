// Package glsl assembles fragment shaders from named slots: uniform
// declarations, constants, helper functions, one body per render target and
// a shared writeback.
//
// Every render target gets its own copy of the body with the target index
// baked in, because sampler and output indices must be constant expressions
// in GLSL ES 3.00.
package glsl

import (
	"fmt"
	"strings"

	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/layout"
)

// Slots is the structured form of a generated shader.
type Slots struct {
	Uniforms  []string
	Constants []string
	Helpers   []string
	Targets   []string // body of each render target
	Writeback string
}

// TargetFunc returns the body for render target t. The body sees `base`,
// the padded flat index of the texel's first lane, and must assign `v`.
type TargetFunc func(t int) string

// Builder collects slots and renders the final source.
type Builder struct {
	dialect string
	targets int
	slots   Slots
	body    TargetFunc
	err     error
}

// NewBuilder returns a builder for a shader writing the tensor laid out as
// out, one render target per texture layer. It declares the OUT_* constants
// the main loop and laneMask rely on.
func NewBuilder(dialect string, out layout.Layout) *Builder {
	b := &Builder{dialect: dialect, targets: out.NumTextures}
	if !out.Valid() {
		b.err = fmt.Errorf("%w: shader output has no texture layout", errs.ErrConfig)
		return b
	}
	b.Int("OUT_H", out.Shape[0]).
		Int("OUT_W", out.Shape[1]).
		Int("OUT_C", out.Channels).
		Int("OUT_CP", out.ChannelsPadded).
		Int("OUT_PADDED", out.PaddedElements()).
		Int("OUT_TW", out.Width).
		Int("OUT_TH", out.Height)
	return b
}

// Sampler declares a sampler2DArray uniform.
func (b *Builder) Sampler(name string) *Builder {
	b.slots.Uniforms = append(b.slots.Uniforms, fmt.Sprintf("uniform highp sampler2DArray %s;", name))
	return b
}

// Tensor declares the geometry constants of a sampled tensor:
// <prefix>_H, _W, _C, _CP, _TW and _TH.
func (b *Builder) Tensor(prefix string, l layout.Layout) *Builder {
	if !l.Valid() {
		b.fail(fmt.Errorf("%w: %s is not a texture-array tensor", errs.ErrConfig, strings.ToLower(prefix)))
		return b
	}
	return b.Int(prefix+"_H", l.Shape[0]).
		Int(prefix+"_W", l.Shape[1]).
		Int(prefix+"_C", l.Channels).
		Int(prefix+"_CP", l.ChannelsPadded).
		Int(prefix+"_TW", l.Width).
		Int(prefix+"_TH", l.Height)
}

// Int declares an integer constant.
func (b *Builder) Int(name string, v int) *Builder {
	b.slots.Constants = append(b.slots.Constants, fmt.Sprintf("const int %s = %d;", name, v))
	return b
}

// Float declares a float constant.
func (b *Builder) Float(name string, v float32) *Builder {
	b.slots.Constants = append(b.slots.Constants, fmt.Sprintf("const float %s = %s;", name, Float(v)))
	return b
}

// Helper adds a helper function definition.
func (b *Builder) Helper(src string) *Builder {
	b.slots.Helpers = append(b.slots.Helpers, strings.TrimSpace(src))
	return b
}

// Body sets the per-target body.
func (b *Builder) Body(fn TargetFunc) *Builder {
	b.body = fn
	return b
}

// Writeback sets the expression stored to each output, in terms of `v` and
// `base`. The default writes v with padded lanes masked to zero.
func (b *Builder) Writeback(expr string) *Builder {
	b.slots.Writeback = expr
	return b
}

// Build renders the fragment shader.
func (b *Builder) Build() (string, Slots, error) {
	if b.err != nil {
		return "", Slots{}, b.err
	}
	if b.body == nil {
		return "", Slots{}, fmt.Errorf("%w: shader has no body", errs.ErrConfig)
	}
	if b.slots.Writeback == "" {
		b.slots.Writeback = "v * laneMask(base)"
	}
	b.slots.Targets = make([]string, b.targets)
	for t := range b.slots.Targets {
		b.slots.Targets[t] = strings.TrimSpace(b.body(t))
	}

	var sb strings.Builder
	header, err := Header(b.dialect)
	if err != nil {
		return "", Slots{}, err
	}
	sb.WriteString(header)
	for t := 0; t < b.targets; t++ {
		fmt.Fprintf(&sb, "layout(location = %d) out vec4 o%d;\n", t, t)
	}
	writeLines(&sb, b.slots.Uniforms)
	writeLines(&sb, b.slots.Constants)
	sb.WriteString("\n")
	sb.WriteString(commonHelpers)
	for _, h := range b.slots.Helpers {
		sb.WriteString("\n")
		sb.WriteString(h)
		sb.WriteString("\n")
	}

	sb.WriteString("\nvoid main() {\n")
	sb.WriteString("  ivec2 px = ivec2(gl_FragCoord.xy);\n")
	sb.WriteString("  int texel = px.y * OUT_TW + px.x;\n")
	for t, body := range b.slots.Targets {
		sb.WriteString("  {\n")
		fmt.Fprintf(&sb, "    int base = (%d * OUT_TW * OUT_TH + texel) * 4;\n", t)
		sb.WriteString("    vec4 v = vec4(0.0);\n")
		sb.WriteString("    if (base < OUT_PADDED) {\n")
		for _, line := range strings.Split(body, "\n") {
			sb.WriteString("      ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("    }\n")
		fmt.Fprintf(&sb, "    o%d = %s;\n", t, b.slots.Writeback)
		sb.WriteString("  }\n")
	}
	sb.WriteString("}\n")
	return sb.String(), b.slots, nil
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func writeLines(sb *strings.Builder, lines []string) {
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteString("\n")
	}
}

// Float formats v as a GLSL float literal.
func Float(v float32) string {
	s := fmt.Sprintf("%g", v)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
