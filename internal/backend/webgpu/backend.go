// Package webgpu implements a GPU compute backend on top of the go-webgpu
// bindings (zero CGO). Float32 element-wise ops, matrix multiplication and
// activations run as WGSL compute shaders; everything else, and every op on
// non-float32 data, falls back to the CPU backend. Tensor data stays in
// host memory, so GPU ops pay an upload and a readback per dispatch.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/vard-ml/vard/internal/backend/cpu"
	"github.com/vard-ml/vard/internal/tensor"
)

// Backend implements tensor.Backend with WebGPU compute shaders.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	pool *BufferPool

	// fallback handles ops with no shader and all non-float32 work.
	fallback *cpu.CPUBackend

	closed bool
}

// New initializes the WebGPU backend. It returns an error when no adapter
// is available or the native wgpu library cannot be loaded.
func New() (backend *Backend, err error) {
	// The bindings panic when the native library is missing.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
		pool:      NewBufferPool(device),
		fallback:  cpu.New(),
	}, nil
}

// Release frees all GPU resources. The backend must not be used afterwards.
func (b *Backend) Release() {
	if b.closed {
		return
	}
	b.closed = true

	b.mu.Lock()
	for _, p := range b.pipelines {
		p.Release()
	}
	for _, s := range b.shaders {
		s.Release()
	}
	b.pipelines = nil
	b.shaders = nil
	b.mu.Unlock()

	b.pool.Clear()
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
}

func (b *Backend) Name() string { return "WebGPU" }

func (b *Backend) Device() tensor.Device { return tensor.WebGPU }

// gpuEligible reports whether a binary op on these tensors can run on GPU:
// float32 only, identical shapes (broadcasting falls back to CPU).
func (b *Backend) gpuEligible(a, other *tensor.RawTensor) bool {
	return b.device != nil &&
		a.DType() == tensor.Float32 &&
		other.DType() == tensor.Float32 &&
		a.Shape().Equal(other.Shape())
}
