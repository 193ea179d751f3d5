package ops

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// reduceBroadcast folds a gradient back to the shape an input had before
// broadcasting: leading extra dimensions are summed away and size-1
// dimensions are summed over.
func reduceBroadcast(grad *tensor.RawTensor, target tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(target) {
		// Clone so gradient accumulation never mutates a shared buffer.
		return grad.Clone()
	}

	out := grad
	for len(out.Shape()) > len(target) {
		out = backend.SumDim(out, 0, false)
	}
	for d := 0; d < len(target); d++ {
		if target[d] == 1 && out.Shape()[d] > 1 {
			out = backend.SumDim(out, d, true)
		}
	}
	if !out.Shape().Equal(target) {
		out = backend.Reshape(out, target)
	}
	return out
}

// onesLike returns a float tensor of ones matching t's shape and dtype.
func onesLike(t *tensor.RawTensor) *tensor.RawTensor {
	out := zerosLike(t)
	switch t.DType() {
	case tensor.Float32:
		data := out.AsFloat32()
		for i := range data {
			data[i] = 1
		}
	case tensor.Float64:
		data := out.AsFloat64()
		for i := range data {
			data[i] = 1
		}
	default:
		panic(fmt.Sprintf("ops: onesLike unsupported dtype %s", t.DType()))
	}
	return out
}

// zerosLike returns a zero tensor matching t's shape and dtype.
func zerosLike(t *tensor.RawTensor) *tensor.RawTensor {
	out, err := tensor.NewRaw(t.Shape(), t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("ops: zerosLike: %v", err))
	}
	return out
}

// fullLike returns a float32 tensor matching t's shape filled with v.
func fullLike(t *tensor.RawTensor, v float32) *tensor.RawTensor {
	out := zerosLike(t)
	data := out.AsFloat32()
	for i := range data {
		data[i] = v
	}
	return out
}

// neg returns -t computed through the backend.
func neg(t *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	return backend.MulScalar(t, float32(-1))
}

// narrow copies the slice [offset, offset+size) of src along dim into a
// fresh tensor. Used to split concatenation gradients with unequal parts.
func narrow(src *tensor.RawTensor, dim, offset, size int, _ tensor.Backend) *tensor.RawTensor {
	shape := src.Shape().Clone()
	shape[dim] = size
	out, err := tensor.NewRaw(shape, src.DType(), src.Device())
	if err != nil {
		panic(err)
	}
	outer := 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	inner := 1
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	elem := src.DType().Size()
	srcDim := src.Shape()[dim]
	srcData, outData := src.Data(), out.Data()
	rowBytes := size * inner * elem
	for o := 0; o < outer; o++ {
		srcOff := (o*srcDim + offset) * inner * elem
		outOff := o * rowBytes
		copy(outData[outOff:outOff+rowBytes], srcData[srcOff:srcOff+rowBytes])
	}
	return out
}
