package ops

import "github.com/vard-ml/vard/internal/tensor"

// SumOp records output = sum(x) over all elements (scalar output).
type SumOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumOp creates a full-reduction sum node.
func NewSumOp(x, output *tensor.RawTensor) *SumOp {
	return &SumOp{input: x, output: output}
}

// Backward broadcasts the scalar gradient over the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	seed := backend.Reshape(outputGrad, expandOnes(op.input.Shape()))
	return []*tensor.RawTensor{backend.Expand(seed, op.input.Shape())}
}

func (op *SumOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SumOp) Output() *tensor.RawTensor   { return op.output }

// SumDimOp records output = sum(x, dim, keepDim).
type SumDimOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	keepDim bool
	// meanScale divides the broadcast gradient, 1 for plain sums and
	// dimSize for means.
	meanScale float32
}

// NewSumDimOp creates a dimension-sum node.
func NewSumDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{input: x, output: output, dim: dim, keepDim: keepDim, meanScale: 1}
}

// NewMeanDimOp creates a dimension-mean node. The gradient of a mean is the
// sum gradient divided by the reduced dimension's size.
func NewMeanDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	d := dim
	if d < 0 {
		d += len(x.Shape())
	}
	return &SumDimOp{input: x, output: output, dim: dim, keepDim: keepDim, meanScale: float32(x.Shape()[d])}
}

// Backward expands the gradient back over the reduced dimension.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if !op.keepDim {
		dim := op.dim
		if dim < 0 {
			dim += len(op.input.Shape())
		}
		grad = backend.Unsqueeze(grad, dim)
	}
	grad = backend.Expand(grad, op.input.Shape())
	if op.meanScale != 1 {
		grad = backend.DivScalar(grad, op.meanScale)
	}
	return []*tensor.RawTensor{grad}
}

func (op *SumDimOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SumDimOp) Output() *tensor.RawTensor   { return op.output }

// expandOnes builds a shape of all-1 dimensions matching target's rank so a
// scalar can be reshaped before Expand.
func expandOnes(target tensor.Shape) tensor.Shape {
	out := make(tensor.Shape, len(target))
	for i := range out {
		out[i] = 1
	}
	return out
}
