package cpu

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// Reshape returns a copy of the tensor with a new shape.
func (c *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("cpu: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}
	out := mustNewRaw(newShape, t.DType())
	copy(out.Data(), t.Data()[:t.ByteSize()])
	return out
}

// Transpose permutes dimensions. With no axes given, all dimensions are
// reversed (standard 2D transpose for matrices).
func (c *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	rank := len(shape)

	if len(axes) == 0 {
		axes = make([]int, rank)
		for i := range axes {
			axes[i] = rank - 1 - i
		}
	}
	if len(axes) != rank {
		panic(fmt.Sprintf("cpu: transpose needs %d axes, got %d", rank, len(axes)))
	}
	seen := make([]bool, rank)
	for _, a := range axes {
		if a < 0 || a >= rank || seen[a] {
			panic(fmt.Sprintf("cpu: invalid transpose axes %v for rank %d", axes, rank))
		}
		seen[a] = true
	}

	outShape := make(tensor.Shape, rank)
	for i, a := range axes {
		outShape[i] = shape[a]
	}

	out := mustNewRaw(outShape, t.DType())
	elemSize := t.DType().Size()
	srcStrides := shape.ComputeStrides()
	dstStrides := outShape.ComputeStrides()
	src := t.Data()
	dst := out.Data()

	n := t.NumElements()
	coords := make([]int, rank)
	for flat := 0; flat < n; flat++ {
		rem := flat
		for d := 0; d < rank; d++ {
			coords[d] = rem / srcStrides[d]
			rem %= srcStrides[d]
		}
		dstFlat := 0
		for d, a := range axes {
			dstFlat += coords[a] * dstStrides[d]
		}
		copy(dst[dstFlat*elemSize:(dstFlat+1)*elemSize], src[flat*elemSize:(flat+1)*elemSize])
	}
	return out
}

// Expand broadcasts a tensor to a larger shape by materializing the copies.
func (c *CPUBackend) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	outShape, _, err := tensor.BroadcastShapes(x.Shape(), shape)
	if err != nil || !outShape.Equal(shape) {
		panic(fmt.Sprintf("cpu: cannot expand %v to %v", x.Shape(), shape))
	}

	out := mustNewRaw(shape, x.DType())
	elemSize := x.DType().Size()
	idx := newBroadcastIndexer(x.Shape(), shape)
	src := x.Data()
	dst := out.Data()
	for i := 0; i < out.NumElements(); i++ {
		s := idx.at(i)
		copy(dst[i*elemSize:(i+1)*elemSize], src[s*elemSize:(s+1)*elemSize])
	}
	return out
}

// Cat concatenates tensors along dim. All inputs must match outside dim.
func (c *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cpu: cat requires at least one tensor")
	}
	first := tensors[0]
	rank := len(first.Shape())
	dim = normalizeDim(dim, rank)

	total := 0
	for _, t := range tensors {
		if len(t.Shape()) != rank || t.DType() != first.DType() {
			panic("cpu: cat requires tensors of equal rank and dtype")
		}
		for d := 0; d < rank; d++ {
			if d != dim && t.Shape()[d] != first.Shape()[d] {
				panic(fmt.Sprintf("cpu: cat shape mismatch at dim %d: %v vs %v", d, t.Shape(), first.Shape()))
			}
		}
		total += t.Shape()[dim]
	}

	outShape := first.Shape().Clone()
	outShape[dim] = total
	out := mustNewRaw(outShape, first.DType())

	elemSize := first.DType().Size()
	inner := 1
	for d := dim + 1; d < rank; d++ {
		inner *= outShape[d]
	}
	outer := outShape.NumElements() / (total * inner)

	dst := out.Data()
	rowBytes := inner * elemSize
	offsetRows := 0
	for _, t := range tensors {
		src := t.Data()
		rows := t.Shape()[dim]
		for o := 0; o < outer; o++ {
			srcStart := o * rows * rowBytes
			dstStart := (o*total + offsetRows) * rowBytes
			copy(dst[dstStart:dstStart+rows*rowBytes], src[srcStart:srcStart+rows*rowBytes])
		}
		offsetRows += rows
	}
	return out
}

// Chunk splits a tensor into n equal parts along dim.
// Panics when the dimension is not divisible by n.
func (c *CPUBackend) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim(dim, len(shape))
	if shape[dim]%n != 0 {
		panic(fmt.Sprintf("cpu: chunk dimension %d (size %d) not divisible by %d", dim, shape[dim], n))
	}

	partShape := shape.Clone()
	partShape[dim] = shape[dim] / n

	elemSize := x.DType().Size()
	inner := 1
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	outer := shape.NumElements() / (shape[dim] * inner)
	rows := partShape[dim]
	rowBytes := inner * elemSize
	src := x.Data()

	parts := make([]*tensor.RawTensor, n)
	for p := 0; p < n; p++ {
		part := mustNewRaw(partShape, x.DType())
		dst := part.Data()
		for o := 0; o < outer; o++ {
			srcStart := (o*shape[dim] + p*rows) * rowBytes
			dstStart := o * rows * rowBytes
			copy(dst[dstStart:dstStart+rows*rowBytes], src[srcStart:srcStart+rows*rowBytes])
		}
		parts[p] = part
	}
	return parts
}

// Unsqueeze inserts a size-1 dimension at dim.
func (c *CPUBackend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 {
		dim += len(shape) + 1
	}
	if dim < 0 || dim > len(shape) {
		panic(fmt.Sprintf("cpu: unsqueeze dim %d out of range for rank %d", dim, len(shape)))
	}
	newShape := make(tensor.Shape, 0, len(shape)+1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, shape[dim:]...)
	return c.Reshape(x, newShape)
}

// Squeeze removes a size-1 dimension at dim.
func (c *CPUBackend) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim(dim, len(shape))
	if shape[dim] != 1 {
		panic(fmt.Sprintf("cpu: cannot squeeze dim %d of size %d", dim, shape[dim]))
	}
	newShape := make(tensor.Shape, 0, len(shape)-1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, shape[dim+1:]...)
	return c.Reshape(x, newShape)
}

// Cast converts the tensor to another dtype.
func (c *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x.Clone()
	}
	out := mustNewRaw(x.Shape(), dtype)
	n := x.NumElements()
	for i := 0; i < n; i++ {
		writeAsFloat(out, i, readAsFloat(x, i))
	}
	return out
}

func readAsFloat(t *tensor.RawTensor, i int) float64 {
	switch t.DType() {
	case tensor.Float32:
		return float64(t.AsFloat32()[i])
	case tensor.Float64:
		return t.AsFloat64()[i]
	case tensor.Int32:
		return float64(t.AsInt32()[i])
	case tensor.Int64:
		return float64(t.AsInt64()[i])
	case tensor.Uint8:
		return float64(t.AsUint8()[i])
	case tensor.Bool:
		if t.AsBool()[i] {
			return 1
		}
		return 0
	default:
		panic("cpu: cast from unsupported dtype")
	}
}

func writeAsFloat(t *tensor.RawTensor, i int, v float64) {
	switch t.DType() {
	case tensor.Float32:
		t.AsFloat32()[i] = float32(v)
	case tensor.Float64:
		t.AsFloat64()[i] = v
	case tensor.Int32:
		t.AsInt32()[i] = int32(v)
	case tensor.Int64:
		t.AsInt64()[i] = int64(v)
	case tensor.Uint8:
		t.AsUint8()[i] = uint8(v)
	case tensor.Bool:
		t.AsBool()[i] = v != 0
	default:
		panic("cpu: cast to unsupported dtype")
	}
}
