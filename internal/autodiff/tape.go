package autodiff

import (
	"github.com/vard-ml/vard/internal/autodiff/ops"
	"github.com/vard-ml/vard/internal/tensor"
)

// GradientTape records operations during the forward pass and replays them
// in reverse to compute gradients. Tensors are tracked by pointer identity,
// so callers must thread the exact tensors the backend returned.
type GradientTape struct {
	operations []ops.Operation
	multiOps   []ops.MultiOutputOperation
	// order interleaves single- and multi-output records so backward
	// visits them in true reverse execution order.
	order []tapeEntry
	// pins hold ForceNonUnique releases for every recorded input, keeping
	// forward values intact until the tape is reset.
	pins []func()
}

type tapeEntry struct {
	multi bool
	index int
}

// NewGradientTape creates an empty tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{}
}

// Record appends a single-output operation and pins its inputs against
// inplace mutation.
func (t *GradientTape) Record(op ops.Operation) {
	t.pinInputs(op.Inputs())
	t.order = append(t.order, tapeEntry{multi: false, index: len(t.operations)})
	t.operations = append(t.operations, op)
}

// RecordMulti appends a multi-output operation.
func (t *GradientTape) RecordMulti(op ops.MultiOutputOperation) {
	t.pinInputs(op.Inputs())
	t.order = append(t.order, tapeEntry{multi: true, index: len(t.multiOps)})
	t.multiOps = append(t.multiOps, op)
}

func (t *GradientTape) pinInputs(inputs []*tensor.RawTensor) {
	for _, in := range inputs {
		if in != nil {
			t.pins = append(t.pins, in.ForceNonUnique())
		}
	}
}

// NumOperations returns how many operations the tape holds.
func (t *GradientTape) NumOperations() int { return len(t.order) }

// Reset drops all recorded operations and releases the input pins.
func (t *GradientTape) Reset() {
	for _, release := range t.pins {
		release()
	}
	t.operations = nil
	t.multiOps = nil
	t.order = nil
	t.pins = nil
}

// Backward seeds output with outputGrad and propagates gradients through the
// recorded graph in reverse. It returns the gradient for every tensor that
// received one, keyed by tensor identity.
func (t *GradientTape) Backward(output, outputGrad *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	grads := map[*tensor.RawTensor]*tensor.RawTensor{output: outputGrad}

	for i := len(t.order) - 1; i >= 0; i-- {
		entry := t.order[i]
		if entry.multi {
			t.stepMulti(t.multiOps[entry.index], grads, backend)
		} else {
			t.step(t.operations[entry.index], grads, backend)
		}
	}
	return grads
}

func (t *GradientTape) step(op ops.Operation, grads map[*tensor.RawTensor]*tensor.RawTensor, backend tensor.Backend) {
	outGrad, ok := grads[op.Output()]
	if !ok {
		return
	}
	accumulate(grads, op.Inputs(), op.Backward(outGrad, backend), backend)
}

func (t *GradientTape) stepMulti(op ops.MultiOutputOperation, grads map[*tensor.RawTensor]*tensor.RawTensor, backend tensor.Backend) {
	outputs := op.Outputs()
	outGrads := make([]*tensor.RawTensor, len(outputs))
	any := false
	for i, out := range outputs {
		if g, ok := grads[out]; ok {
			outGrads[i] = g
			any = true
		}
	}
	if !any {
		return
	}
	accumulate(grads, op.Inputs(), op.BackwardMulti(outGrads, backend), backend)
}

func accumulate(grads map[*tensor.RawTensor]*tensor.RawTensor, inputs, inputGrads []*tensor.RawTensor, backend tensor.Backend) {
	for i, in := range inputs {
		if in == nil || i >= len(inputGrads) || inputGrads[i] == nil {
			continue
		}
		if existing, ok := grads[in]; ok {
			grads[in] = backend.Add(existing, inputGrads[i])
		} else {
			grads[in] = inputGrads[i]
		}
	}
}
