package ops

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// ceGradBackend is the backend capability CrossEntropyOp needs for backward.
type ceGradBackend interface {
	CrossEntropyBackward(logits, targets *tensor.RawTensor) *tensor.RawTensor
}

// CrossEntropyOp records loss = cross_entropy(logits, targets), a scalar
// averaged over the batch. Gradients flow only to the logits.
type CrossEntropyOp struct {
	logits  *tensor.RawTensor
	targets *tensor.RawTensor
	output  *tensor.RawTensor
}

// NewCrossEntropyOp creates a cross-entropy loss node.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{logits: logits, targets: targets, output: output}
}

// Backward: dL/dlogits = (softmax(logits) - onehot(targets)) / batch, scaled
// by the incoming scalar gradient. Targets are class indices, no gradient.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	ce, ok := backend.(ceGradBackend)
	if !ok {
		panic(fmt.Sprintf("backend %s does not support cross-entropy gradients", backend.Name()))
	}
	grad := ce.CrossEntropyBackward(op.logits, op.targets)
	scale := outputGrad.AsFloat32()[0]
	if scale != 1 {
		grad = backend.MulScalar(grad, scale)
	}
	return []*tensor.RawTensor{grad, nil}
}

func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.logits, op.targets}
}
func (op *CrossEntropyOp) Output() *tensor.RawTensor { return op.output }
