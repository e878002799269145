// Package engine compiles a loaded model into one GPU program per operator
// and runs them in topological order.
//
// New returns an Uninitialized engine. Compile resolves every node,
// generates and compiles the shaders and allocates textures, after which the
// engine is Ready. Predict may then be called any number of times: it
// uploads the live inputs, draws every program in the fixed order and reads
// back the model output.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/born-ml/wedge/internal/codegen"
	"github.com/born-ml/wedge/internal/config"
	"github.com/born-ml/wedge/internal/errs"
	"github.com/born-ml/wedge/internal/glsl"
	"github.com/born-ml/wedge/internal/gpu"
	"github.com/born-ml/wedge/internal/graph"
	"github.com/born-ml/wedge/internal/layout"
	"github.com/born-ml/wedge/internal/ops"
	"github.com/born-ml/wedge/internal/tensor"
)

// State is the engine lifecycle state.
type State int

// Engine states.
const (
	Uninitialized State = iota
	Ready
	Released
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Released:
		return "released"
	default:
		return "uninitialized"
	}
}

// Options configure an Engine.
type Options struct {
	Config config.Options
	Logger *slog.Logger
}

// binding is a texture bound to a sampler uniform for one program.
type binding struct {
	unit    int
	uniform string
	tex     *gpu.TextureArray
}

// Program is a compiled operator.
type Program struct {
	Node   *graph.Node
	Shader *codegen.Shader
	Vertex string

	handle   gpu.Program
	bindings []binding
	output   *gpu.TextureArray
}

// Fragment returns the generated fragment shader source.
func (p *Program) Fragment() string {
	return p.Shader.Fragment
}

// Slots returns the named sections of the fragment shader.
func (p *Program) Slots() glsl.Slots {
	return p.Shader.Slots
}

// Engine executes one model on one device.
type Engine struct {
	dev    gpu.Device
	model  *graph.Model
	cfg    config.Options
	logger *slog.Logger

	state    State
	mgr      *gpu.Manager
	programs []*Program
	byName   map[string]*Program
	textures map[*graph.Node]*gpu.TextureArray
	inputs   []*gpu.TextureArray
	output   *gpu.TextureArray
}

// New returns an uninitialized engine for m on dev.
func New(dev gpu.Device, m *graph.Model, opts Options) (*Engine, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: no device", errs.ErrConfig)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: no model", errs.ErrConfig)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		dev:    dev,
		model:  m,
		cfg:    opts.Config,
		logger: logger,
	}, nil
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Compile resolves the model and builds every program. It is a no-op on a
// Ready engine. On failure every resource allocated so far is released and
// the engine stays Uninitialized.
func (e *Engine) Compile() (err error) {
	switch e.state {
	case Ready:
		return nil
	case Released:
		return fmt.Errorf("%w: engine released", errs.ErrNotCompiled)
	}
	start := time.Now()

	maxDim, err := e.checkDevice()
	if err != nil {
		return err
	}

	lopts := layout.OptionsFrom(e.cfg)
	lopts.MaxDimension = maxDim
	ctx := &ops.Context{Weights: e.model.Weights, Layout: lopts, Logger: e.logger}
	if err := ops.NewRegistry().Resolve(e.model, ctx); err != nil {
		return err
	}

	vertex, err := glsl.Vertex(e.cfg.GLSLVersion)
	if err != nil {
		return err
	}

	e.mgr = gpu.NewManager(e.dev, e.logger)
	e.textures = make(map[*graph.Node]*gpu.TextureArray)
	e.byName = make(map[string]*Program)
	defer func() {
		if err != nil {
			e.teardown()
		}
	}()

	for _, in := range e.model.Inputs {
		tex, err := e.mgr.Tensor(in.Name, in.Layout)
		if err != nil {
			return &errs.NodeError{Node: in.Name, Op: in.Op.String(), Err: err}
		}
		e.textures[in] = tex
		e.inputs = append(e.inputs, tex)
	}

	gen := codegen.New(e.cfg.GLSLVersion, maxDim)
	for _, n := range e.model.Nodes {
		if !n.Resolved() || !n.Op.Executable() {
			continue
		}
		p, err := e.build(gen, vertex, n)
		if err != nil {
			return err
		}
		e.programs = append(e.programs, p)
		e.byName[n.Name] = p
		e.textures[n] = p.output
	}

	e.output = e.textures[e.model.Output]
	if e.output == nil {
		return &errs.NodeError{Node: e.model.Output.Name, Op: e.model.Output.Op.String(),
			Err: fmt.Errorf("%w: output has no texture", errs.ErrMissingInput)}
	}

	e.state = Ready
	stats := e.mgr.Stats()
	e.logger.Info("model compiled",
		"format", e.model.Format.String(),
		"nodes", len(e.model.Nodes),
		"programs", len(e.programs),
		"textures", stats.Textures,
		"bytes", stats.AllocatedBytes,
		"max_dimension", maxDim,
		"duration", time.Since(start))
	return nil
}

// checkDevice validates the configuration against the device and returns
// the effective maximum texture dimension.
func (e *Engine) checkDevice() (int, error) {
	if err := e.cfg.Validate(); err != nil {
		return 0, err
	}
	if !e.dev.FloatRenderable() {
		return 0, fmt.Errorf("%w: device cannot render to float textures", errs.ErrConfig)
	}
	attachments := min(e.dev.Limit(gpu.MaxColorAttachments), e.dev.Limit(gpu.MaxDrawBuffers))
	layers := e.dev.Limit(gpu.MaxArrayTextureLayers)
	for _, bp := range e.cfg.RenderTargetBreakpoints {
		if bp.Targets > attachments {
			return 0, &errs.LimitError{What: "render targets", Value: bp.Targets, Max: attachments}
		}
		if bp.Targets > layers {
			return 0, &errs.LimitError{What: "render targets", Value: bp.Targets, Max: layers}
		}
	}
	return min(e.cfg.MaxTextureDimension, e.dev.Limit(gpu.MaxTextureSize)), nil
}

// build generates, compiles and wires the program of one node.
func (e *Engine) build(gen *codegen.Generator, vertex string, n *graph.Node) (*Program, error) {
	shader, err := gen.Generate(n)
	if err != nil {
		return nil, err
	}
	handle, err := e.dev.CompileProgram(gpu.ProgramSource{
		Name:     n.Name,
		Vertex:   vertex,
		Fragment: shader.Fragment,
		Kernel:   shader.Kernel,
	})
	if err != nil {
		return nil, &errs.NodeError{Node: n.Name, Op: n.Op.String(), Err: err}
	}
	fail := func(err error) (*Program, error) {
		_ = e.dev.DeleteProgram(handle)
		return nil, &errs.NodeError{Node: n.Name, Op: n.Op.String(), Err: err}
	}

	p := &Program{Node: n, Shader: shader, Vertex: vertex, handle: handle}
	for _, b := range shader.Bindings {
		tex, err := e.bound(b)
		if err != nil {
			return fail(err)
		}
		p.bindings = append(p.bindings, binding{unit: b.Unit, uniform: b.Uniform, tex: tex})
	}

	p.output, err = e.mgr.Tensor(n.Name, n.Layout)
	if err != nil {
		return fail(err)
	}
	e.logger.Debug("compiled program",
		"node", n.Name,
		"op", n.Op.String(),
		"layout", n.Layout.String(),
		"bindings", len(p.bindings))
	return p, nil
}

// bound returns the texture behind a binding. Packed weights and constant
// tensors are uploaded once, here.
func (e *Engine) bound(b codegen.Binding) (*gpu.TextureArray, error) {
	if b.Weight != nil {
		return e.mgr.Weight(b.Name, b.Weight)
	}
	if b.Input == nil {
		return nil, fmt.Errorf("%w: binding %s has no source", errs.ErrConfig, b.Uniform)
	}
	if tex, ok := e.textures[b.Input]; ok {
		return tex, nil
	}
	if b.Input.Op != graph.OpConst {
		return nil, fmt.Errorf("%w: input %s has no texture", errs.ErrMissingInput, b.Input.Name)
	}
	w, ok := e.model.Weights.Get(b.Input.Name)
	if !ok {
		return nil, fmt.Errorf("%w: weight %s not found", errs.ErrConfig, b.Input.Name)
	}
	tex, err := e.mgr.Tensor(b.Input.Name, b.Input.Layout)
	if err != nil {
		return nil, err
	}
	if err := e.mgr.Upload(tex, w.Data); err != nil {
		return nil, err
	}
	e.textures[b.Input] = tex
	return tex, nil
}

// Predict runs the model once. Inputs are flat HWC (or NHWC with a batch of
// one) buffers in the model's declared input order; the result is the
// output tensor without channel padding.
func (e *Engine) Predict(inputs ...[]float32) ([]float32, error) {
	if e.state != Ready {
		return nil, fmt.Errorf("%w: engine is %s", errs.ErrNotCompiled, e.state)
	}
	if len(inputs) != len(e.inputs) {
		return nil, fmt.Errorf("%w: model takes %d inputs, got %d", errs.ErrShape, len(e.inputs), len(inputs))
	}
	start := time.Now()

	for i, tex := range e.inputs {
		if want := e.model.Inputs[i].Shape.NumElements(); len(inputs[i]) != want {
			return nil, fmt.Errorf("%w: input %s needs %d values, got %d", errs.ErrShape, tex.Name, want, len(inputs[i]))
		}
		if err := e.mgr.Upload(tex, inputs[i]); err != nil {
			return nil, err
		}
	}

	for _, p := range e.programs {
		if err := e.draw(p); err != nil {
			return nil, &errs.NodeError{Node: p.Node.Name, Op: p.Node.Op.String(), Err: err}
		}
	}

	out, err := e.mgr.Readback(e.output)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("predict finished", "programs", len(e.programs), "duration", time.Since(start))
	return out, nil
}

func (e *Engine) draw(p *Program) error {
	if err := e.dev.UseProgram(p.handle); err != nil {
		return fmt.Errorf("%w: use program: %v", errs.ErrGPU, err)
	}
	for _, b := range p.bindings {
		if err := e.dev.BindTexture(b.unit, b.uniform, b.tex.Handle); err != nil {
			return fmt.Errorf("%w: bind %s: %v", errs.ErrGPU, b.uniform, err)
		}
	}
	if err := e.mgr.Retarget(p.output); err != nil {
		return err
	}
	if err := e.dev.DrawFullscreenQuad(p.output.Width, p.output.Height); err != nil {
		return fmt.Errorf("%w: draw: %v", errs.ErrGPU, err)
	}
	return nil
}

// Nodes returns the model's nodes in execution order, with the state,
// shape and layout the resolve pass gave them.
func (e *Engine) Nodes() []*graph.Node {
	return e.model.Nodes
}

// Model returns the engine's model.
func (e *Engine) Model() *graph.Model {
	return e.model
}

// Programs returns the compiled programs in execution order.
func (e *Engine) Programs() []*Program {
	return e.programs
}

// Program returns the compiled program of the named node.
func (e *Engine) Program(name string) (*Program, bool) {
	p, ok := e.byName[name]
	return p, ok
}

// OutputShape returns the logical shape Predict returns, with a leading
// batch axis when the configuration has one.
func (e *Engine) OutputShape() tensor.Shape {
	out := e.model.Output
	if out.Shape == nil {
		return nil
	}
	if e.cfg.HasBatchDimension {
		return append(tensor.Shape{1}, out.Shape...)
	}
	return out.Shape.Clone()
}

// Stats returns the resource counters. They are zero before Compile.
func (e *Engine) Stats() gpu.Stats {
	if e.mgr == nil {
		return gpu.Stats{}
	}
	return e.mgr.Stats()
}

// Release deletes every program and texture. The engine cannot be used
// afterwards.
func (e *Engine) Release() error {
	if e.state == Released {
		return nil
	}
	err := e.teardown()
	e.state = Released
	return err
}

func (e *Engine) teardown() error {
	var err error
	for _, p := range e.programs {
		if derr := e.dev.DeleteProgram(p.handle); derr != nil && err == nil {
			err = fmt.Errorf("%w: delete program %s: %v", errs.ErrGPU, p.Node.Name, derr)
		}
	}
	if e.mgr != nil {
		if merr := e.mgr.Release(); merr != nil && err == nil {
			err = fmt.Errorf("%w: %v", errs.ErrGPU, merr)
		}
	}
	e.programs, e.byName, e.textures = nil, nil, nil
	e.inputs, e.output = nil, nil
	e.state = Uninitialized
	return err
}
