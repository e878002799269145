package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/wedge/engine"
	"github.com/born-ml/wedge/internal/serialization"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

const sideBranchModel = `{
  "format": "graph-model",
  "modelTopology": {"node": [
    {"name": "x", "op": "Placeholder", "attr": {"shape": {"shape": {"dim": [
      {"size": "-1"}, {"size": "2"}, {"size": "2"}, {"size": "3"}]}}}},
    {"name": "r", "op": "Relu", "input": ["x"]},
    {"name": "soft", "op": "Softmax", "input": ["x"]}
  ]},
  "weightsManifest": []
}`

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(sideBranchModel), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "wedge "+version+"\n", out)
}

func TestVerifyDemo(t *testing.T) {
	out, err := run(t, "verify", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "output [1,8,8,12]")
	assert.Contains(t, out, "ok")
}

func TestVerifyModelFile(t *testing.T) {
	out, err := run(t, "verify", "--log-level", "error", "--output", "r", writeModel(t))
	require.NoError(t, err)
	assert.Contains(t, out, "12 values")
}

func TestShadersDemo(t *testing.T) {
	out, err := run(t, "shaders", "--vertex", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "// vertex\n#version 300 es")
	for _, name := range []string{"conv1", "dw", "pad", "conv2", "shifted", "pool", "up", "prob"} {
		assert.Contains(t, out, "// "+name+" (")
	}
}

func TestConvert(t *testing.T) {
	out, err := run(t, "convert", "--log-level", "error", "--output", "r", writeModel(t))
	require.NoError(t, err)
	assert.Contains(t, out, "NODE")
	assert.Contains(t, out, "Relu")
	assert.Contains(t, out, "Softmax")
	assert.Contains(t, out, "unsupported")
	assert.Contains(t, out, "1 programs")
}

func TestConvertNeedsOutput(t *testing.T) {
	_, err := run(t, "convert", "--log-level", "error", writeModel(t))
	assert.True(t, errors.Is(err, engine.ErrConfig))
}

func TestBadFlags(t *testing.T) {
	_, err := run(t, "verify", "--backend", "vulkan")
	assert.True(t, errors.Is(err, engine.ErrConfig))

	_, err = run(t, "verify", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = run(t, "version", "--log-level", "loud")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wedge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
render_target_breakpoints:
  - {threshold: 0, targets: 1}
  - {threshold: 64, targets: 2}
log_level: error
`), 0o600))
	out, err := run(t, "verify", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
}

func TestConvertSavesWeights(t *testing.T) {
	model := writeModel(t)
	path := filepath.Join(t.TempDir(), "w.safetensors")
	_, err := run(t, "convert", "--log-level", "error", "--output", "r", "--save-weights", path, model)
	require.NoError(t, err)

	ws, meta, err := serialization.LoadWeights(path)
	require.NoError(t, err)
	assert.Empty(t, ws)
	assert.Equal(t, model, meta["source"])
}
