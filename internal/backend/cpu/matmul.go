package cpu

import (
	"fmt"

	"github.com/vard-ml/vard/internal/parallel"
	"github.com/vard-ml/vard/internal/tensor"
)

// MatMul computes C = A @ B for 2D tensors: (M, K) @ (K, N) -> (M, N).
// Rows of the output are distributed across the worker pool.
func (c *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	if len(a.Shape()) != 2 || len(b.Shape()) != 2 {
		panic(fmt.Sprintf("cpu: matmul requires 2D tensors, got %v and %v", a.Shape(), b.Shape()))
	}
	if a.Shape()[1] != b.Shape()[0] {
		panic(fmt.Sprintf("cpu: matmul shape mismatch: %v @ %v", a.Shape(), b.Shape()))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("cpu: matmul dtype mismatch: %s vs %s", a.DType(), b.DType()))
	}

	switch a.DType() {
	case tensor.Float32:
		return matmulKernel[float32](a, b, c.pool)
	case tensor.Float64:
		return matmulKernel[float64](a, b, c.pool)
	default:
		panic(fmt.Sprintf("cpu: matmul not supported for dtype %s", a.DType()))
	}
}

func matmulKernel[T float32 | float64](a, b *tensor.RawTensor, pool parallel.Config) *tensor.RawTensor {
	m, k := a.Shape()[0], a.Shape()[1]
	n := b.Shape()[1]

	out := mustNewRaw(tensor.Shape{m, n}, a.DType())
	av := rawData[T](a)
	bv := rawData[T](b)
	ov := rawData[T](out)

	// i-k-j loop order keeps the inner loop contiguous over both B and C.
	parallel.For(m, func(i int) {
		rowA := av[i*k : (i+1)*k]
		rowC := ov[i*n : (i+1)*n]
		for kk := 0; kk < k; kk++ {
			aik := rowA[kk]
			if aik == 0 {
				continue
			}
			rowB := bv[kk*n : (kk+1)*n]
			for j := range rowC {
				rowC[j] += aik * rowB[j]
			}
		}
	}, pool)

	return out
}
