package ops

import "github.com/vard-ml/vard/internal/tensor"

// ReLUOp records output = max(x, 0).
type ReLUOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReLUOp creates a ReLU node.
func NewReLUOp(x, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{input: x, output: output}
}

// Backward passes the gradient only where the output is positive.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	mask := backend.Cast(backend.Greater(op.output, zerosLike(op.output)), op.output.DType())
	return []*tensor.RawTensor{backend.Mul(outputGrad, mask)}
}

func (op *ReLUOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *ReLUOp) Output() *tensor.RawTensor   { return op.output }

// SigmoidOp records output = 1 / (1 + exp(-x)).
type SigmoidOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSigmoidOp creates a sigmoid node.
func NewSigmoidOp(x, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{input: x, output: output}
}

// Backward: dσ/dx = σ(1-σ), reusing the forward output.
func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	oneMinus := backend.Sub(onesLike(op.output), op.output)
	return []*tensor.RawTensor{backend.Mul(outputGrad, backend.Mul(op.output, oneMinus))}
}

func (op *SigmoidOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SigmoidOp) Output() *tensor.RawTensor   { return op.output }

// TanhOp records output = tanh(x).
type TanhOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewTanhOp creates a tanh node.
func NewTanhOp(x, output *tensor.RawTensor) *TanhOp {
	return &TanhOp{input: x, output: output}
}

// Backward: d(tanh x)/dx = 1 - tanh²x.
func (op *TanhOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	sq := backend.Mul(op.output, op.output)
	return []*tensor.RawTensor{backend.Mul(outputGrad, backend.Sub(onesLike(op.output), sq))}
}

func (op *TanhOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *TanhOp) Output() *tensor.RawTensor   { return op.output }

// SoftmaxOp records output = softmax(x, dim).
type SoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewSoftmaxOp creates a softmax node.
func NewSoftmaxOp(x, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{input: x, output: output, dim: dim}
}

// Backward: dx = out ⊙ (grad - Σ(grad ⊙ out, dim)).
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dim := op.dim
	if dim < 0 {
		dim += len(op.output.Shape())
	}
	dot := backend.SumDim(backend.Mul(outputGrad, op.output), dim, true)
	return []*tensor.RawTensor{backend.Mul(op.output, backend.Sub(outputGrad, dot))}
}

func (op *SoftmaxOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SoftmaxOp) Output() *tensor.RawTensor   { return op.output }
