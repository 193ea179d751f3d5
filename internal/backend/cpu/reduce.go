package cpu

import (
	"fmt"
	"math"

	"github.com/vard-ml/vard/internal/tensor"
)

// Sum reduces the whole tensor to a single-element tensor of the same dtype.
func (c *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	out := mustNewRaw(tensor.Shape{1}, x.DType())
	switch x.DType() {
	case tensor.Float32:
		var s float32
		for _, v := range x.AsFloat32() {
			s += v
		}
		out.AsFloat32()[0] = s
	case tensor.Float64:
		var s float64
		for _, v := range x.AsFloat64() {
			s += v
		}
		out.AsFloat64()[0] = s
	case tensor.Int32:
		var s int32
		for _, v := range x.AsInt32() {
			s += v
		}
		out.AsInt32()[0] = s
	default:
		panic(fmt.Sprintf("cpu: sum not supported for dtype %s", x.DType()))
	}
	return out
}

// SumDim sums along one dimension, optionally keeping it with size 1.
func (c *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return c.reduceDim(x, dim, keepDim, false)
}

// MeanDim averages along one dimension, optionally keeping it with size 1.
func (c *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return c.reduceDim(x, dim, keepDim, true)
}

func (c *CPUBackend) reduceDim(x *tensor.RawTensor, dim int, keepDim, mean bool) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu: dim reduction requires float32, got %s", x.DType()))
	}
	shape := x.Shape()
	dim = normalizeDim(dim, len(shape))

	outShape := reducedShape(shape, dim, keepDim)
	out := mustNewRaw(outShape, tensor.Float32)

	dimSize := shape[dim]
	inner := 1
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	outer := x.NumElements() / (dimSize * inner)

	xv, ov := x.AsFloat32(), out.AsFloat32()
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var s float32
			base := o*dimSize*inner + in
			for k := 0; k < dimSize; k++ {
				s += xv[base+k*inner]
			}
			if mean {
				s /= float32(dimSize)
			}
			ov[o*inner+in] = s
		}
	}
	return out
}

// Argmax returns int32 indices of the maximum along dim.
func (c *CPUBackend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu: argmax requires float32, got %s", x.DType()))
	}
	shape := x.Shape()
	dim = normalizeDim(dim, len(shape))

	out := mustNewRaw(reducedShape(shape, dim, false), tensor.Int32)

	dimSize := shape[dim]
	inner := 1
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	outer := x.NumElements() / (dimSize * inner)

	xv, ov := x.AsFloat32(), out.AsInt32()
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*dimSize*inner + in
			best := float32(math.Inf(-1))
			var bestK int32
			for k := 0; k < dimSize; k++ {
				if v := xv[base+k*inner]; v > best {
					best = v
					bestK = int32(k)
				}
			}
			ov[o*inner+in] = bestK
		}
	}
	return out
}

func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	if keepDim {
		out := shape.Clone()
		out[dim] = 1
		return out
	}
	out := make(tensor.Shape, 0, len(shape)-1)
	for d, s := range shape {
		if d != dim {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = tensor.Shape{1}
	}
	return out
}
