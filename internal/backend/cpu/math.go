package cpu

import (
	"fmt"
	"math"

	"github.com/vard-ml/vard/internal/tensor"
)

// Exp returns the element-wise exponential.
func (c *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return mathOp(x, "exp", math.Exp)
}

// Log returns the element-wise natural logarithm.
// Panics on non-positive input values.
func (c *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return mathOp(x, "log", func(v float64) float64 {
		if v <= 0 {
			panic(fmt.Sprintf("cpu: log of non-positive value %g", v))
		}
		return math.Log(v)
	})
}

// Sqrt returns the element-wise square root. Panics on negative inputs.
func (c *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return mathOp(x, "sqrt", func(v float64) float64 {
		if v < 0 {
			panic(fmt.Sprintf("cpu: sqrt of negative value %g", v))
		}
		return math.Sqrt(v)
	})
}

// Clip clamps every element to [lo, hi].
func (c *CPUBackend) Clip(x *tensor.RawTensor, lo, hi float64) *tensor.RawTensor {
	if lo > hi {
		panic(fmt.Sprintf("cpu: clip bounds inverted: [%g, %g]", lo, hi))
	}
	return mathOp(x, "clip", func(v float64) float64 {
		return math.Min(math.Max(v, lo), hi)
	})
}

func mathOp(x *tensor.RawTensor, name string, f func(float64) float64) *tensor.RawTensor {
	out := mustNewRaw(x.Shape(), x.DType())
	switch x.DType() {
	case tensor.Float32:
		xv, ov := x.AsFloat32(), out.AsFloat32()
		for i := range ov {
			ov[i] = float32(f(float64(xv[i])))
		}
	case tensor.Float64:
		xv, ov := x.AsFloat64(), out.AsFloat64()
		for i := range ov {
			ov[i] = f(xv[i])
		}
	default:
		panic(fmt.Sprintf("cpu: %s not supported for dtype %s", name, x.DType()))
	}
	return out
}

// Softmax computes softmax along dim with the max-subtraction trick.
func (c *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu: softmax requires float32, got %s", x.DType()))
	}
	shape := x.Shape()
	dim = normalizeDim(dim, len(shape))

	out := mustNewRaw(shape, tensor.Float32)
	xv, ov := x.AsFloat32(), out.AsFloat32()

	dimSize := shape[dim]
	inner := 1
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	outer := x.NumElements() / (dimSize * inner)

	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*dimSize*inner + in

			maxV := float32(math.Inf(-1))
			for k := 0; k < dimSize; k++ {
				if v := xv[base+k*inner]; v > maxV {
					maxV = v
				}
			}

			var sum float32
			for k := 0; k < dimSize; k++ {
				e := float32(math.Exp(float64(xv[base+k*inner] - maxV)))
				ov[base+k*inner] = e
				sum += e
			}
			for k := 0; k < dimSize; k++ {
				ov[base+k*inner] /= sum
			}
		}
	}
	return out
}

func normalizeDim(dim, rank int) int {
	if dim < 0 {
		dim += rank
	}
	if dim < 0 || dim >= rank {
		panic(fmt.Sprintf("cpu: dimension %d out of range for rank %d", dim, rank))
	}
	return dim
}
