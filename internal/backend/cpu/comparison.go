package cpu

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// Greater returns the element-wise a > b mask as a bool tensor.
func (c *CPUBackend) Greater(a, b *tensor.RawTensor) *tensor.RawTensor {
	return compareOp(a, b, "greater")
}

// Lower returns the element-wise a < b mask as a bool tensor.
func (c *CPUBackend) Lower(a, b *tensor.RawTensor) *tensor.RawTensor {
	return compareOp(a, b, "lower")
}

// GreaterEqual returns the element-wise a >= b mask as a bool tensor.
func (c *CPUBackend) GreaterEqual(a, b *tensor.RawTensor) *tensor.RawTensor {
	return compareOp(a, b, "greaterequal")
}

// LowerEqual returns the element-wise a <= b mask as a bool tensor.
func (c *CPUBackend) LowerEqual(a, b *tensor.RawTensor) *tensor.RawTensor {
	return compareOp(a, b, "lowerequal")
}

// Equal returns the element-wise a == b mask as a bool tensor.
func (c *CPUBackend) Equal(a, b *tensor.RawTensor) *tensor.RawTensor {
	return compareOp(a, b, "equal")
}

func compareOp(a, b *tensor.RawTensor, op string) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("cpu: %s dtype mismatch: %s vs %s", op, a.DType(), b.DType()))
	}
	switch a.DType() {
	case tensor.Float32:
		return compareKernel[float32](a, b, op)
	case tensor.Float64:
		return compareKernel[float64](a, b, op)
	case tensor.Int32:
		return compareKernel[int32](a, b, op)
	case tensor.Int64:
		return compareKernel[int64](a, b, op)
	default:
		panic(fmt.Sprintf("cpu: %s not supported for dtype %s", op, a.DType()))
	}
}

func compareKernel[T numericKernel](a, b *tensor.RawTensor, op string) *tensor.RawTensor {
	outShape, expanded, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("cpu: %s: %v", op, err))
	}

	out := mustNewRaw(outShape, tensor.Bool)
	av := rawData[T](a)
	bv := rawData[T](b)
	ov := out.AsBool()

	var cmp func(x, y T) bool
	switch op {
	case "greater":
		cmp = func(x, y T) bool { return x > y }
	case "lower":
		cmp = func(x, y T) bool { return x < y }
	case "greaterequal":
		cmp = func(x, y T) bool { return x >= y }
	case "lowerequal":
		cmp = func(x, y T) bool { return x <= y }
	case "equal":
		cmp = func(x, y T) bool { return x == y }
	default:
		panic("cpu: unknown comparison " + op)
	}

	if !expanded {
		for i := range ov {
			ov[i] = cmp(av[i], bv[i])
		}
		return out
	}

	aIdx := newBroadcastIndexer(a.Shape(), outShape)
	bIdx := newBroadcastIndexer(b.Shape(), outShape)
	for i := range ov {
		ov[i] = cmp(av[aIdx.at(i)], bv[bIdx.at(i)])
	}
	return out
}

// Where selects x where condition holds and y elsewhere.
// All three tensors must share the output shape (condition is bool).
func (c *CPUBackend) Where(condition, x, y *tensor.RawTensor) *tensor.RawTensor {
	if condition.DType() != tensor.Bool {
		panic(fmt.Sprintf("cpu: where condition must be bool, got %s", condition.DType()))
	}
	if !x.Shape().Equal(y.Shape()) || !x.Shape().Equal(condition.Shape()) {
		panic(fmt.Sprintf("cpu: where shape mismatch: cond %v, x %v, y %v",
			condition.Shape(), x.Shape(), y.Shape()))
	}
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu: where requires float32 branches, got %s", x.DType()))
	}

	out := mustNewRaw(x.Shape(), x.DType())
	cv := condition.AsBool()
	xv, yv, ov := x.AsFloat32(), y.AsFloat32(), out.AsFloat32()
	for i := range ov {
		if cv[i] {
			ov[i] = xv[i]
		} else {
			ov[i] = yv[i]
		}
	}
	return out
}
