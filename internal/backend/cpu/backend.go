// Package cpu implements the pure-Go compute backend.
//
// Element-wise kernels take a vectorized fast path when shapes match and fall
// back to stride-mapped loops under broadcasting. Heavy kernels (matmul,
// conv) fan out over a worker pool.
package cpu

import (
	"fmt"

	"github.com/vard-ml/vard/internal/parallel"
	"github.com/vard-ml/vard/internal/tensor"
)

// CPUBackend executes tensor operations on the host CPU.
type CPUBackend struct {
	pool parallel.Config
}

// New creates a CPU backend with default parallelism.
func New() *CPUBackend {
	return &CPUBackend{pool: parallel.DefaultConfig()}
}

// NewSequential creates a CPU backend with parallelism disabled.
// Useful for deterministic profiling and tests.
func NewSequential() *CPUBackend {
	return &CPUBackend{pool: parallel.Config{Enabled: false}}
}

// Name returns the backend name.
func (c *CPUBackend) Name() string { return "CPU" }

// Device returns the compute device.
func (c *CPUBackend) Device() tensor.Device { return tensor.CPU }

// numericKernel is the element type set binary arithmetic supports.
type numericKernel interface {
	~float32 | ~float64 | ~int32 | ~int64
}

// Add performs element-wise addition with broadcasting.
func (c *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp(a, b, "add")
}

// Sub performs element-wise subtraction with broadcasting.
func (c *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp(a, b, "sub")
}

// Mul performs element-wise multiplication with broadcasting.
func (c *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp(a, b, "mul")
}

// Div performs element-wise division with broadcasting.
func (c *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return c.binaryOp(a, b, "div")
}

func (c *CPUBackend) binaryOp(a, b *tensor.RawTensor, op string) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("cpu: %s dtype mismatch: %s vs %s", op, a.DType(), b.DType()))
	}
	switch a.DType() {
	case tensor.Float32:
		return binaryKernel[float32](a, b, op)
	case tensor.Float64:
		return binaryKernel[float64](a, b, op)
	case tensor.Int32:
		return binaryKernel[int32](a, b, op)
	case tensor.Int64:
		return binaryKernel[int64](a, b, op)
	default:
		panic(fmt.Sprintf("cpu: %s not supported for dtype %s", op, a.DType()))
	}
}

func binaryKernel[T numericKernel](a, b *tensor.RawTensor, op string) *tensor.RawTensor {
	outShape, expanded, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("cpu: %s: %v", op, err))
	}

	out := mustNewRaw(outShape, a.DType())
	av := rawData[T](a)
	bv := rawData[T](b)
	ov := rawData[T](out)

	apply := kernelFunc[T](op)

	if !expanded {
		for i := range ov {
			ov[i] = apply(av[i], bv[i])
		}
		return out
	}

	aIdx := newBroadcastIndexer(a.Shape(), outShape)
	bIdx := newBroadcastIndexer(b.Shape(), outShape)
	for i := range ov {
		ov[i] = apply(av[aIdx.at(i)], bv[bIdx.at(i)])
	}
	return out
}

func kernelFunc[T numericKernel](op string) func(x, y T) T {
	switch op {
	case "add":
		return func(x, y T) T { return x + y }
	case "sub":
		return func(x, y T) T { return x - y }
	case "mul":
		return func(x, y T) T { return x * y }
	case "div":
		return func(x, y T) T { return x / y }
	default:
		panic("cpu: unknown binary op " + op)
	}
}

// broadcastIndexer maps a flat output index back to the flat index of a
// source tensor whose shape broadcasts to the output shape.
type broadcastIndexer struct {
	outStride []int
	srcStride []int // zero where the source dimension is broadcast
}

func newBroadcastIndexer(src, out tensor.Shape) broadcastIndexer {
	rank := len(out)
	srcStride := make([]int, rank)
	realStride := src.ComputeStrides()
	offset := rank - len(src)
	for i := 0; i < rank; i++ {
		if i < offset || src[i-offset] == 1 {
			srcStride[i] = 0
		} else {
			srcStride[i] = realStride[i-offset]
		}
	}
	return broadcastIndexer{outStride: out.ComputeStrides(), srcStride: srcStride}
}

func (bi broadcastIndexer) at(flat int) int {
	src := 0
	for d := range bi.outStride {
		coord := flat / bi.outStride[d]
		flat %= bi.outStride[d]
		src += coord * bi.srcStride[d]
	}
	return src
}

func mustNewRaw(shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	out, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		panic(err)
	}
	return out
}

// rawData returns the typed slice of a raw tensor for kernel code.
func rawData[T numericKernel](r *tensor.RawTensor) []T {
	switch any(*new(T)).(type) {
	case float32:
		return any(r.AsFloat32()).([]T)
	case float64:
		return any(r.AsFloat64()).([]T)
	case int32:
		return any(r.AsInt32()).([]T)
	case int64:
		return any(r.AsInt64()).([]T)
	default:
		panic("cpu: unsupported kernel dtype")
	}
}
