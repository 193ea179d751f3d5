// Package ops defines the differentiable operations recorded on the gradient
// tape. Each operation keeps references to its forward inputs and output and
// knows how to turn an output gradient into input gradients.
package ops

import "github.com/vard-ml/vard/internal/tensor"

// Operation is one node of the recorded computation graph.
type Operation interface {
	// Backward computes gradients for the inputs given the output gradient.
	// The returned slice is aligned with Inputs(); nil entries mean no
	// gradient flows to that input.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the forward input tensors.
	Inputs() []*tensor.RawTensor

	// Output returns the forward output tensor.
	Output() *tensor.RawTensor
}

// MultiOutputOperation is implemented by operations producing several outputs
// (Chunk). The tape collects gradients for all outputs before calling
// BackwardMulti; outputs without a gradient arrive as nil entries.
type MultiOutputOperation interface {
	// Inputs returns the forward input tensors.
	Inputs() []*tensor.RawTensor

	// Outputs returns all forward output tensors.
	Outputs() []*tensor.RawTensor

	// BackwardMulti computes input gradients from the per-output gradients.
	BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
}
