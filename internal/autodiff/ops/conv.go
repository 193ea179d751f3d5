package ops

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// convGradBackend is the backend capability Conv2DOp needs for its backward
// pass. The CPU backend implements it; a backend without it cannot train
// convolutions.
type convGradBackend interface {
	Conv2DInputGrad(gradOutput, kernel *tensor.RawTensor, inputShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor
	Conv2DKernelGrad(gradOutput, input *tensor.RawTensor, kernelShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor
}

// Conv2DOp records output = conv2d(input, kernel, stride, padding).
type Conv2DOp struct {
	inputs  []*tensor.RawTensor
	output  *tensor.RawTensor
	stride  [2]int
	padding [2]int
}

// NewConv2DOp creates a 2D convolution node.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding [2]int) *Conv2DOp {
	return &Conv2DOp{
		inputs:  []*tensor.RawTensor{input, kernel},
		output:  output,
		stride:  stride,
		padding: padding,
	}
}

// Backward computes the input gradient (transposed convolution) and the
// kernel gradient (correlation of input with the output gradient).
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	cg, ok := backend.(convGradBackend)
	if !ok {
		panic(fmt.Sprintf("backend %s does not support conv2d gradients", backend.Name()))
	}
	input, kernel := op.inputs[0], op.inputs[1]
	gradInput := cg.Conv2DInputGrad(outputGrad, kernel, input.Shape(), op.stride, op.padding)
	gradKernel := cg.Conv2DKernelGrad(outputGrad, input, kernel.Shape(), op.stride, op.padding)
	return []*tensor.RawTensor{gradInput, gradKernel}
}

func (op *Conv2DOp) Inputs() []*tensor.RawTensor { return op.inputs }
func (op *Conv2DOp) Output() *tensor.RawTensor   { return op.output }

// poolGradBackend is the backend capability MaxPool2DOp needs for backward.
type poolGradBackend interface {
	MaxPool2DBackward(gradOutput, indices *tensor.RawTensor, inputShape tensor.Shape) *tensor.RawTensor
}

// MaxPool2DOp records output = maxpool2d(input, kernelSize, stride). The
// argmax indices are captured at record time so backward is a scatter.
type MaxPool2DOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	indices *tensor.RawTensor
}

// NewMaxPool2DOp creates a max-pooling node.
func NewMaxPool2DOp(input, output, indices *tensor.RawTensor) *MaxPool2DOp {
	return &MaxPool2DOp{input: input, output: output, indices: indices}
}

// Backward scatters the gradient back to the winning input positions.
func (op *MaxPool2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	pg, ok := backend.(poolGradBackend)
	if !ok {
		panic(fmt.Sprintf("backend %s does not support maxpool2d gradients", backend.Name()))
	}
	return []*tensor.RawTensor{pg.MaxPool2DBackward(outputGrad, op.indices, op.input.Shape())}
}

func (op *MaxPool2DOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *MaxPool2DOp) Output() *tensor.RawTensor   { return op.output }
