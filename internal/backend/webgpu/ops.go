package webgpu

import (
	"github.com/vard-ml/vard/internal/tensor"
)

// Binary ops run on GPU for same-shape float32 inputs; broadcasting and
// other dtypes go to the CPU fallback.

func (b *Backend) Add(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binaryOp(a, other, "add")
}

func (b *Backend) Sub(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binaryOp(a, other, "sub")
}

func (b *Backend) Mul(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binaryOp(a, other, "mul")
}

func (b *Backend) Div(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.binaryOp(a, other, "div")
}

func (b *Backend) binaryOp(a, other *tensor.RawTensor, name string) *tensor.RawTensor {
	if !b.gpuEligible(a, other) {
		switch name {
		case "add":
			return b.fallback.Add(a, other)
		case "sub":
			return b.fallback.Sub(a, other)
		case "mul":
			return b.fallback.Mul(a, other)
		default:
			return b.fallback.Div(a, other)
		}
	}
	result, err := b.runBinaryOp(a, other, name)
	if err != nil {
		panic("webgpu: " + name + ": " + err.Error())
	}
	return result
}

// MatMul dispatches 2D float32 multiplications to the GPU.
func (b *Backend) MatMul(a, other *tensor.RawTensor) *tensor.RawTensor {
	if b.device == nil ||
		a.DType() != tensor.Float32 || other.DType() != tensor.Float32 ||
		len(a.Shape()) != 2 || len(other.Shape()) != 2 ||
		a.Shape()[1] != other.Shape()[0] {
		return b.fallback.MatMul(a, other)
	}
	result, err := b.runMatMul(a, other)
	if err != nil {
		panic("webgpu: MatMul: " + err.Error())
	}
	return result
}

func (b *Backend) unaryOp(x *tensor.RawTensor, name string, cpuOp func(*tensor.RawTensor) *tensor.RawTensor) *tensor.RawTensor {
	if b.device == nil || x.DType() != tensor.Float32 {
		return cpuOp(x)
	}
	result, err := b.runUnaryOp(x, name)
	if err != nil {
		panic("webgpu: " + name + ": " + err.Error())
	}
	return result
}

func (b *Backend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unaryOp(x, "relu", b.fallback.ReLU)
}

func (b *Backend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unaryOp(x, "sigmoid", b.fallback.Sigmoid)
}

func (b *Backend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unaryOp(x, "tanh", b.fallback.Tanh)
}

func (b *Backend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unaryOp(x, "exp", b.fallback.Exp)
}

func (b *Backend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return b.unaryOp(x, "sqrt", b.fallback.Sqrt)
}

// The remaining ops have no shader yet and run on the CPU fallback.

func (b *Backend) Conv2D(input, kernel *tensor.RawTensor, stride, padding [2]int) *tensor.RawTensor {
	return b.fallback.Conv2D(input, kernel, stride, padding)
}

func (b *Backend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride [2]int) *tensor.RawTensor {
	return b.fallback.MaxPool2D(input, kernelSize, stride)
}

func (b *Backend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return b.fallback.Reshape(t, newShape)
}

func (b *Backend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	return b.fallback.Transpose(t, axes...)
}

func (b *Backend) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	return b.fallback.Expand(x, shape)
}

func (b *Backend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return b.fallback.MulScalar(x, scalar)
}

func (b *Backend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return b.fallback.AddScalar(x, scalar)
}

func (b *Backend) SubScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return b.fallback.SubScalar(x, scalar)
}

func (b *Backend) DivScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return b.fallback.DivScalar(x, scalar)
}

func (b *Backend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.Log(x)
}

func (b *Backend) Clip(x *tensor.RawTensor, lo, hi float64) *tensor.RawTensor {
	return b.fallback.Clip(x, lo, hi)
}

func (b *Backend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.fallback.Softmax(x, dim)
}

func (b *Backend) Greater(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.Greater(a, other)
}

func (b *Backend) Lower(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.Lower(a, other)
}

func (b *Backend) GreaterEqual(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.GreaterEqual(a, other)
}

func (b *Backend) LowerEqual(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.LowerEqual(a, other)
}

func (b *Backend) Equal(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.Equal(a, other)
}

func (b *Backend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.Sum(x)
}

func (b *Backend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return b.fallback.SumDim(x, dim, keepDim)
}

func (b *Backend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return b.fallback.MeanDim(x, dim, keepDim)
}

func (b *Backend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.fallback.Argmax(x, dim)
}

func (b *Backend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.fallback.Cat(tensors, dim)
}

func (b *Backend) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	return b.fallback.Chunk(x, n, dim)
}

func (b *Backend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.fallback.Unsqueeze(x, dim)
}

func (b *Backend) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.fallback.Squeeze(x, dim)
}

func (b *Backend) Gather(x *tensor.RawTensor, dim int, index *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.Gather(x, dim, index)
}

func (b *Backend) Where(condition, x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.Where(condition, x, y)
}

func (b *Backend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.Embedding(weight, indices)
}

func (b *Backend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	return b.fallback.Cast(x, dtype)
}

// Gradient kernels are delegated so the autodiff layer can train on this
// backend.

func (b *Backend) Conv2DInputGrad(gradOut, kernel *tensor.RawTensor, inputShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor {
	return b.fallback.Conv2DInputGrad(gradOut, kernel, inputShape, stride, padding)
}

func (b *Backend) Conv2DKernelGrad(gradOut, input *tensor.RawTensor, kernelShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor {
	return b.fallback.Conv2DKernelGrad(gradOut, input, kernelShape, stride, padding)
}

func (b *Backend) MaxPool2DWithIndices(input *tensor.RawTensor, kernelSize, stride [2]int) (*tensor.RawTensor, *tensor.RawTensor) {
	return b.fallback.MaxPool2DWithIndices(input, kernelSize, stride)
}

func (b *Backend) MaxPool2DBackward(gradOut, indices *tensor.RawTensor, inputShape tensor.Shape) *tensor.RawTensor {
	return b.fallback.MaxPool2DBackward(gradOut, indices, inputShape)
}

func (b *Backend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.CrossEntropy(logits, targets)
}

func (b *Backend) CrossEntropyBackward(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.CrossEntropyBackward(logits, targets)
}

func (b *Backend) EmbeddingBackward(gradOut, indices *tensor.RawTensor, weightShape tensor.Shape) *tensor.RawTensor {
	return b.fallback.EmbeddingBackward(gradOut, indices, weightShape)
}
