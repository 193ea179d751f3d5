package cpu

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// AddScalar adds a scalar to every element.
func (c *CPUBackend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return scalarOp(x, scalar, "add")
}

// SubScalar subtracts a scalar from every element.
func (c *CPUBackend) SubScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return scalarOp(x, scalar, "sub")
}

// MulScalar multiplies every element by a scalar.
func (c *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return scalarOp(x, scalar, "mul")
}

// DivScalar divides every element by a scalar.
func (c *CPUBackend) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return scalarOp(x, scalar, "div")
}

func scalarOp(x *tensor.RawTensor, scalar any, op string) *tensor.RawTensor {
	switch x.DType() {
	case tensor.Float32:
		return scalarKernel(x, toScalar[float32](scalar), op)
	case tensor.Float64:
		return scalarKernel(x, toScalar[float64](scalar), op)
	case tensor.Int32:
		return scalarKernel(x, toScalar[int32](scalar), op)
	case tensor.Int64:
		return scalarKernel(x, toScalar[int64](scalar), op)
	default:
		panic(fmt.Sprintf("cpu: scalar %s not supported for dtype %s", op, x.DType()))
	}
}

func scalarKernel[T numericKernel](x *tensor.RawTensor, s T, op string) *tensor.RawTensor {
	out := mustNewRaw(x.Shape(), x.DType())
	xv := rawData[T](x)
	ov := rawData[T](out)
	apply := kernelFunc[T](op)
	for i := range ov {
		ov[i] = apply(xv[i], s)
	}
	return out
}

// toScalar converts any supported numeric scalar to the kernel type.
func toScalar[T numericKernel](scalar any) T {
	switch v := scalar.(type) {
	case float32:
		return T(v)
	case float64:
		return T(v)
	case int:
		return T(v)
	case int32:
		return T(v)
	case int64:
		return T(v)
	default:
		panic(fmt.Sprintf("cpu: unsupported scalar type %T", scalar))
	}
}
