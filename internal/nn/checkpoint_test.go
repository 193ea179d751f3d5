package nn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vard-ml/vard/internal/backend/cpu"
	"github.com/vard-ml/vard/internal/serialization"
	"github.com/vard-ml/vard/internal/tensor"
)

// stubOptimizer stands in for optim.Optimizer, which cannot be imported
// here without a cycle.
type stubOptimizer struct {
	state map[string]*tensor.RawTensor
	lr    float32
}

func (s *stubOptimizer) StateDict() map[string]*tensor.RawTensor { return s.state }
func (s *stubOptimizer) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	s.state = stateDict
	return nil
}
func (s *stubOptimizer) LR() float32 { return s.lr }

func velocityTensor(t *testing.T, values []float32) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(tensor.Shape{len(values)}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), values)
	return raw
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	backend := cpu.NewSequential()
	path := filepath.Join(t.TempDir(), "ckpt.vard")

	model := NewLinear(3, 2, backend)
	opt := &stubOptimizer{
		state: map[string]*tensor.RawTensor{
			"velocity.0": velocityTensor(t, []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}),
		},
		lr: 0.01,
	}

	ckpt := &Checkpoint[*cpu.CPUBackend]{
		Model:     model,
		Optimizer: opt,
		Epoch:     7,
		Step:      3500,
		Loss:      0.123,
		KLCoef:    0.7,
	}
	require.NoError(t, ckpt.Save(path))

	model2 := NewLinear(3, 2, backend)
	opt2 := &stubOptimizer{lr: 0.01}

	restored, err := LoadCheckpoint(path, backend, Module[*cpu.CPUBackend](model2), OptimizerState(opt2))
	require.NoError(t, err)

	assert.Equal(t, 7, restored.Epoch)
	assert.Equal(t, int64(3500), restored.Step)
	assert.InDelta(t, 0.123, restored.Loss, 1e-9)
	assert.InDelta(t, 0.7, restored.KLCoef, 1e-9)

	assert.Equal(t,
		model.Weight().Tensor().Raw().AsFloat32(),
		model2.Weight().Tensor().Raw().AsFloat32())
	require.Contains(t, opt2.state, "velocity.0")
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, opt2.state["velocity.0"].AsFloat32())
}

func TestLoadCheckpointRejectsPlainModelFile(t *testing.T) {
	backend := cpu.NewSequential()
	path := filepath.Join(t.TempDir(), "model.vard")

	model := NewLinear(3, 2, backend)
	w, err := serialization.NewVardWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteStateDict(model.StateDict(), "Linear", nil))
	require.NoError(t, w.Close())

	model2 := NewLinear(3, 2, backend)
	_, err = LoadCheckpoint(path, backend, Module[*cpu.CPUBackend](model2), OptimizerState(&stubOptimizer{}))
	assert.ErrorContains(t, err, "not a checkpoint")
}
