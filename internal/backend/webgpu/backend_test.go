package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vard-ml/vard/internal/backend/cpu"
	"github.com/vard-ml/vard/internal/tensor"
)

// fallbackOnly builds a backend with no GPU device, which routes every op
// through the CPU path. Used to test dispatch logic without hardware.
func fallbackOnly() *Backend {
	return &Backend{fallback: cpu.NewSequential()}
}

// gpuBackend skips the test when no adapter or native library is present.
func gpuBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New()
	if err != nil {
		t.Skipf("webgpu unavailable: %v", err)
	}
	t.Cleanup(b.Release)
	return b
}

func raw(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), data)
	return r
}

func TestFallbackAdd(t *testing.T) {
	b := fallbackOnly()
	a := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	c := raw(t, []float32{10, 20, 30, 40}, tensor.Shape{2, 2})

	got := b.Add(a, c)
	assert.Equal(t, []float32{11, 22, 33, 44}, got.AsFloat32())
}

func TestFallbackAddBroadcast(t *testing.T) {
	b := fallbackOnly()
	a := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	bias := raw(t, []float32{10, 20}, tensor.Shape{1, 2})

	got := b.Add(a, bias)
	assert.Equal(t, []float32{11, 22, 13, 24}, got.AsFloat32())
}

func TestFallbackMatMul(t *testing.T) {
	b := fallbackOnly()
	a := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	c := raw(t, []float32{1, 0, 0, 1}, tensor.Shape{2, 2})

	got := b.MatMul(a, c)
	assert.Equal(t, []float32{1, 2, 3, 4}, got.AsFloat32())
}

func TestFallbackActivations(t *testing.T) {
	b := fallbackOnly()
	x := raw(t, []float32{-1, 0, 2}, tensor.Shape{3})

	assert.Equal(t, []float32{0, 0, 2}, b.ReLU(x).AsFloat32())
	assert.InDelta(t, 0.5, b.Sigmoid(x).AsFloat32()[1], 1e-6)
}

func TestDeviceAndName(t *testing.T) {
	b := fallbackOnly()
	assert.Equal(t, tensor.WebGPU, b.Device())
	assert.Equal(t, "WebGPU", b.Name())
}

func TestGPUBinaryOpsMatchCPU(t *testing.T) {
	b := gpuBackend(t)
	cpuB := cpu.NewSequential()

	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	c := raw(t, []float32{0.5, -1, 2, 0.25, -3, 6}, tensor.Shape{2, 3})

	assert.InDeltaSlice(t, cpuB.Add(a, c).AsFloat32(), b.Add(a, c).AsFloat32(), 1e-5)
	assert.InDeltaSlice(t, cpuB.Sub(a, c).AsFloat32(), b.Sub(a, c).AsFloat32(), 1e-5)
	assert.InDeltaSlice(t, cpuB.Mul(a, c).AsFloat32(), b.Mul(a, c).AsFloat32(), 1e-5)
	assert.InDeltaSlice(t, cpuB.Div(a, c).AsFloat32(), b.Div(a, c).AsFloat32(), 1e-4)
}

func TestGPUMatMulMatchesCPU(t *testing.T) {
	b := gpuBackend(t)
	cpuB := cpu.NewSequential()

	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	c := raw(t, []float32{7, 8, 9, 10, 11, 12}, tensor.Shape{3, 2})

	got := b.MatMul(a, c)
	want := cpuB.MatMul(a, c)
	assert.Equal(t, tensor.Shape{2, 2}, got.Shape())
	assert.InDeltaSlice(t, want.AsFloat32(), got.AsFloat32(), 1e-4)
}

func TestGPUActivationsMatchCPU(t *testing.T) {
	b := gpuBackend(t)
	cpuB := cpu.NewSequential()

	x := raw(t, []float32{-2, -0.5, 0, 0.5, 2}, tensor.Shape{5})

	assert.InDeltaSlice(t, cpuB.ReLU(x).AsFloat32(), b.ReLU(x).AsFloat32(), 1e-6)
	assert.InDeltaSlice(t, cpuB.Sigmoid(x).AsFloat32(), b.Sigmoid(x).AsFloat32(), 1e-5)
	assert.InDeltaSlice(t, cpuB.Tanh(x).AsFloat32(), b.Tanh(x).AsFloat32(), 1e-5)
}

func TestGPUBufferPoolReusesResultBuffers(t *testing.T) {
	b := gpuBackend(t)

	a := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{4})
	c := raw(t, []float32{5, 6, 7, 8}, tensor.Shape{4})

	b.Add(a, c)
	b.Add(a, c)

	hits, _ := b.pool.Stats()
	assert.Greater(t, hits, uint64(0))
}
