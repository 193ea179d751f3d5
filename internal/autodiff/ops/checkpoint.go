package ops

import "github.com/vard-ml/vard/internal/tensor"

// Recomputer re-runs a checkpointed forward function on a scratch tape and
// returns the input gradients. The autodiff backend implements it; the
// interface lives here to keep the dependency pointing one way.
type Recomputer interface {
	Recompute(inputs []*tensor.RawTensor, fn tensor.CheckpointFunc, outputGrad *tensor.RawTensor) []*tensor.RawTensor
}

// CheckpointOp records a forward segment whose intermediates were discarded.
// Backward recomputes the segment instead of reading stored activations,
// trading compute for memory.
type CheckpointOp struct {
	inputs     []*tensor.RawTensor
	output     *tensor.RawTensor
	fn         tensor.CheckpointFunc
	recomputer Recomputer
}

// NewCheckpointOp creates a recompute-on-backward node.
func NewCheckpointOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, fn tensor.CheckpointFunc, r Recomputer) *CheckpointOp {
	return &CheckpointOp{inputs: inputs, output: output, fn: fn, recomputer: r}
}

// Backward replays fn under a fresh tape and backpropagates outputGrad
// through it.
func (op *CheckpointOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return op.recomputer.Recompute(op.inputs, op.fn, outputGrad)
}

func (op *CheckpointOp) Inputs() []*tensor.RawTensor { return op.inputs }
func (op *CheckpointOp) Output() *tensor.RawTensor   { return op.output }
