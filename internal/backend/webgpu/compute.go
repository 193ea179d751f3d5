package webgpu

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/vard-ml/vard/internal/tensor"
)

// resultUsage is the usage for output buffers: written by shaders, copied
// to staging for readback.
const resultUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// expand substitutes the OP placeholder in a shader template.
func expand(template, op string) string {
	return strings.ReplaceAll(template, "OP", op)
}

// compileShader returns a cached ShaderModule, compiling on first use.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, ok := b.shaders[name]; ok {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()
	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline, creating it with an
// auto layout on first use.
func (b *Backend) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, ok := b.pipelines[name]; ok {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()
	return pipeline
}

// uploadBuffer creates a storage buffer pre-filled with data. Mapped
// creation avoids a separate copy command.
func (b *Backend) uploadBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := buffer.GetMappedRange(0, size)
	//nolint:gosec // G103: zero-copy view of the mapped range
	copy(unsafe.Slice((*byte)(mapped), size), data)
	buffer.Unmap()
	return buffer
}

// createUniformBuffer uploads params with the 16-byte alignment uniform
// blocks require.
func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := (uint64(len(data)) + 15) &^ 15

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := buffer.GetMappedRange(0, size)
	//nolint:gosec // G103: zero-copy view of the mapped range
	copy(unsafe.Slice((*byte)(mapped), size), data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies a storage buffer back to host memory via a staging
// buffer, since storage buffers cannot be mapped directly.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}
	mapped := staging.GetMappedRange(0, size)
	//nolint:gosec // G103: zero-copy view of the mapped range
	result := make([]byte, size)
	copy(result, unsafe.Slice((*byte)(mapped), size))
	staging.Unmap()
	return result, nil
}

// dispatch runs one compute pass over the given bind group.
func (b *Backend) dispatch(pipeline *wgpu.ComputePipeline, bindGroup *wgpu.BindGroup, x, y uint32) {
	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(x, y, 1)
	pass.End()
	b.queue.Submit(encoder.Finish(nil))
}

// runBinaryOp executes a same-shape float32 binary kernel on GPU.
func (b *Backend) runBinaryOp(a, other *tensor.RawTensor, name string) (*tensor.RawTensor, error) {
	shader := b.compileShader(name, binaryShaders[name])
	pipeline := b.getOrCreatePipeline(name, shader)

	size := uint64(a.ByteSize())
	bufA := b.uploadBuffer(a.Data()[:size])
	defer bufA.Release()
	bufOther := b.uploadBuffer(other.Data()[:size])
	defer bufOther.Release()
	bufResult := b.pool.Acquire(size, resultUsage)
	defer b.pool.Release(bufResult, size, resultUsage)

	params := make([]byte, 16)
	//nolint:gosec // G115: element counts are non-negative
	binary.LittleEndian.PutUint32(params[0:4], uint32(a.NumElements()))
	bufParams := b.createUniformBuffer(params)
	defer bufParams.Release()

	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufA, 0, size),
		wgpu.BufferBindingEntry(1, bufOther, 0, size),
		wgpu.BufferBindingEntry(2, bufResult, 0, size),
		wgpu.BufferBindingEntry(3, bufParams, 0, 16),
	})
	defer bindGroup.Release()

	//nolint:gosec // G115: workgroup counts are non-negative
	groups := uint32((a.NumElements() + workgroupSize - 1) / workgroupSize)
	b.dispatch(pipeline, bindGroup, groups, 1)

	data, err := b.readBuffer(bufResult, size)
	if err != nil {
		return nil, err
	}
	result, err := tensor.NewRaw(a.Shape(), tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	copy(result.Data(), data)
	return result, nil
}

// runUnaryOp executes a float32 unary kernel on GPU.
func (b *Backend) runUnaryOp(input *tensor.RawTensor, name string) (*tensor.RawTensor, error) {
	shader := b.compileShader(name, unaryShaders[name])
	pipeline := b.getOrCreatePipeline(name, shader)

	size := uint64(input.ByteSize())
	bufIn := b.uploadBuffer(input.Data()[:size])
	defer bufIn.Release()
	bufResult := b.pool.Acquire(size, resultUsage)
	defer b.pool.Release(bufResult, size, resultUsage)

	params := make([]byte, 16)
	//nolint:gosec // G115: element counts are non-negative
	binary.LittleEndian.PutUint32(params[0:4], uint32(input.NumElements()))
	bufParams := b.createUniformBuffer(params)
	defer bufParams.Release()

	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufIn, 0, size),
		wgpu.BufferBindingEntry(1, bufResult, 0, size),
		wgpu.BufferBindingEntry(2, bufParams, 0, 16),
	})
	defer bindGroup.Release()

	//nolint:gosec // G115: workgroup counts are non-negative
	groups := uint32((input.NumElements() + workgroupSize - 1) / workgroupSize)
	b.dispatch(pipeline, bindGroup, groups, 1)

	data, err := b.readBuffer(bufResult, size)
	if err != nil {
		return nil, err
	}
	result, err := tensor.NewRaw(input.Shape(), tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	copy(result.Data(), data)
	return result, nil
}

// runMatMul executes C = A @ B for 2D float32 matrices on GPU.
func (b *Backend) runMatMul(a, other *tensor.RawTensor) (*tensor.RawTensor, error) {
	m, k := a.Shape()[0], a.Shape()[1]
	n := other.Shape()[1]

	shader := b.compileShader("matmul", matmulShader)
	pipeline := b.getOrCreatePipeline("matmul", shader)

	sizeA := uint64(a.ByteSize())
	sizeB := uint64(other.ByteSize())
	sizeC := uint64(m * n * 4)

	bufA := b.uploadBuffer(a.Data()[:sizeA])
	defer bufA.Release()
	bufB := b.uploadBuffer(other.Data()[:sizeB])
	defer bufB.Release()
	bufC := b.pool.Acquire(sizeC, resultUsage)
	defer b.pool.Release(bufC, sizeC, resultUsage)

	params := make([]byte, 16)
	//nolint:gosec // G115: matrix dims are non-negative
	binary.LittleEndian.PutUint32(params[0:4], uint32(m))
	//nolint:gosec // G115: matrix dims are non-negative
	binary.LittleEndian.PutUint32(params[4:8], uint32(k))
	//nolint:gosec // G115: matrix dims are non-negative
	binary.LittleEndian.PutUint32(params[8:12], uint32(n))
	bufParams := b.createUniformBuffer(params)
	defer bufParams.Release()

	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufA, 0, sizeA),
		wgpu.BufferBindingEntry(1, bufB, 0, sizeB),
		wgpu.BufferBindingEntry(2, bufC, 0, sizeC),
		wgpu.BufferBindingEntry(3, bufParams, 0, 16),
	})
	defer bindGroup.Release()

	//nolint:gosec // G115: workgroup counts are non-negative
	b.dispatch(pipeline, bindGroup, uint32((n+15)/16), uint32((m+15)/16))

	data, err := b.readBuffer(bufC, sizeC)
	if err != nil {
		return nil, err
	}
	result, err := tensor.NewRaw(tensor.Shape{m, n}, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	copy(result.Data(), data)
	return result, nil
}
