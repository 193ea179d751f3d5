package ops

import "github.com/vard-ml/vard/internal/tensor"

// ReshapeOp records output = reshape(x, newShape).
type ReshapeOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReshapeOp creates a reshape node.
func NewReshapeOp(x, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{input: x, output: output}
}

// Backward reshapes the gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.input.Shape())}
}

func (op *ReshapeOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *ReshapeOp) Output() *tensor.RawTensor   { return op.output }

// TransposeOp records output = transpose(x, axes).
type TransposeOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	axes   []int
}

// NewTransposeOp creates a transpose node.
func NewTransposeOp(x, output *tensor.RawTensor, axes []int) *TransposeOp {
	return &TransposeOp{input: x, output: output, axes: axes}
}

// Backward applies the inverse permutation to the gradient.
func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inverse := make([]int, len(op.axes))
	for i, a := range op.axes {
		inverse[a] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}

func (op *TransposeOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *TransposeOp) Output() *tensor.RawTensor   { return op.output }

// ExpandOp records output = expand(x, newShape) via broadcasting.
type ExpandOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewExpandOp creates a broadcast-expand node.
func NewExpandOp(x, output *tensor.RawTensor) *ExpandOp {
	return &ExpandOp{input: x, output: output}
}

// Backward sums the gradient over the broadcast dimensions.
func (op *ExpandOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{reduceBroadcast(outputGrad, op.input.Shape(), backend)}
}

func (op *ExpandOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *ExpandOp) Output() *tensor.RawTensor   { return op.output }

// CatOp records output = cat(inputs, dim).
type CatOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewCatOp creates a concatenation node.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{inputs: inputs, output: output, dim: dim}
}

// Backward slices the gradient back into per-input pieces along dim.
// Chunk requires equal sizes, so the split is done with Gather-free
// manual copies via Chunk when sizes match and narrow copies otherwise.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	equal := true
	first := op.inputs[0].Shape()[op.dim]
	for _, in := range op.inputs[1:] {
		if in.Shape()[op.dim] != first {
			equal = false
			break
		}
	}
	if equal {
		return backend.Chunk(outputGrad, len(op.inputs), op.dim)
	}
	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, in := range op.inputs {
		size := in.Shape()[op.dim]
		grads[i] = narrow(outputGrad, op.dim, offset, size, backend)
		offset += size
	}
	return grads
}

func (op *CatOp) Inputs() []*tensor.RawTensor { return op.inputs }
func (op *CatOp) Output() *tensor.RawTensor   { return op.output }

// ChunkOp records outputs = chunk(x, n, dim). It is the only multi-output
// operation in the graph.
type ChunkOp struct {
	input   *tensor.RawTensor
	outputs []*tensor.RawTensor
	dim     int
}

// NewChunkOp creates a chunk node.
func NewChunkOp(x *tensor.RawTensor, outputs []*tensor.RawTensor, dim int) *ChunkOp {
	return &ChunkOp{input: x, outputs: outputs, dim: dim}
}

// BackwardMulti concatenates the per-chunk gradients. A missing chunk
// gradient contributes zeros.
func (op *ChunkOp) BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	parts := make([]*tensor.RawTensor, len(op.outputs))
	for i, g := range outputGrads {
		if g != nil {
			parts[i] = g
		} else {
			parts[i] = zerosLike(op.outputs[i])
		}
	}
	return []*tensor.RawTensor{backend.Cat(parts, op.dim)}
}

func (op *ChunkOp) Inputs() []*tensor.RawTensor  { return []*tensor.RawTensor{op.input} }
func (op *ChunkOp) Outputs() []*tensor.RawTensor { return op.outputs }
