// Package errs defines the error kinds shared by the compiler, the resource
// manager and the execution engine.
//
// Every error here is deterministic: it follows from the model graph and the
// GPU's capabilities, so nothing in the module retries.
package errs

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrConfig reports a configuration or device limit the model cannot run within.
	ErrConfig = errors.New("configuration error")
	// ErrUnsupportedOp marks a node whose operator is outside the supported set.
	ErrUnsupportedOp = errors.New("unsupported operator")
	// ErrMissingInput marks a node whose input was never produced.
	ErrMissingInput = errors.New("missing input data")
	// ErrShape reports a shape or parameter combination the engine does not implement.
	ErrShape = errors.New("shape mismatch")
	// ErrUnsupportedParam is an ErrShape for a disallowed attribute value.
	ErrUnsupportedParam = fmt.Errorf("%w: unsupported parameter value", ErrShape)
	// ErrGPU reports a GPU resource or program failure.
	ErrGPU = errors.New("gpu error")
	// ErrNotCompiled is returned when predicting on an engine that is not ready.
	ErrNotCompiled = errors.New("model not compiled")
)

// LimitError reports a value exceeding a platform or configured limit.
type LimitError struct {
	What  string // What exceeded the limit (e.g., "texture width")
	Value int
	Max   int
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s %d exceeds limit %d", ErrConfig, e.What, e.Value, e.Max)
}

// Unwrap returns ErrConfig.
func (e *LimitError) Unwrap() error {
	return ErrConfig
}

// ShaderError carries the failing source and the driver log.
type ShaderError struct {
	Program string
	Stage   string // "vertex", "fragment" or "link"
	Source  string
	Log     string
}

// Error implements the error interface.
func (e *ShaderError) Error() string {
	return fmt.Sprintf("%s: program %s: %s stage failed: %s\n--- source ---\n%s", ErrGPU, e.Program, e.Stage, e.Log, e.Source)
}

// Unwrap returns ErrGPU.
func (e *ShaderError) Unwrap() error {
	return ErrGPU
}

// NodeError attaches the failing node to an error.
type NodeError struct {
	Node string
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.Node, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error {
	return e.Err
}
