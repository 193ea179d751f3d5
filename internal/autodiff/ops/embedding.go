package ops

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// embeddingGradBackend is the backend capability EmbeddingOp needs for
// backward.
type embeddingGradBackend interface {
	EmbeddingBackward(gradOutput, indices *tensor.RawTensor, weightShape tensor.Shape) *tensor.RawTensor
}

// EmbeddingOp records output = weight[indices]. Gradients scatter-add into
// the weight table; the integer indices get none.
type EmbeddingOp struct {
	weight  *tensor.RawTensor
	indices *tensor.RawTensor
	output  *tensor.RawTensor
}

// NewEmbeddingOp creates an embedding-lookup node.
func NewEmbeddingOp(weight, indices, output *tensor.RawTensor) *EmbeddingOp {
	return &EmbeddingOp{weight: weight, indices: indices, output: output}
}

// Backward scatter-adds each row gradient into its source embedding row.
func (op *EmbeddingOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	eg, ok := backend.(embeddingGradBackend)
	if !ok {
		panic(fmt.Sprintf("backend %s does not support embedding gradients", backend.Name()))
	}
	grad := eg.EmbeddingBackward(outputGrad, op.indices, op.weight.Shape())
	return []*tensor.RawTensor{grad, nil}
}

func (op *EmbeddingOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.weight, op.indices}
}
func (op *EmbeddingOp) Output() *tensor.RawTensor { return op.output }
