package ops

import "github.com/vard-ml/vard/internal/tensor"

// ExpOp records output = exp(x).
type ExpOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewExpOp creates an exponential node.
func NewExpOp(x, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{input: x, output: output}
}

// Backward: d(exp x)/dx = exp x = output.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

func (op *ExpOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *ExpOp) Output() *tensor.RawTensor   { return op.output }

// LogOp records output = log(x).
type LogOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewLogOp creates a natural-log node.
func NewLogOp(x, output *tensor.RawTensor) *LogOp {
	return &LogOp{input: x, output: output}
}

// Backward: d(log x)/dx = 1/x.
func (op *LogOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(outputGrad, op.input)}
}

func (op *LogOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *LogOp) Output() *tensor.RawTensor   { return op.output }

// SqrtOp records output = sqrt(x).
type SqrtOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSqrtOp creates a square-root node.
func NewSqrtOp(x, output *tensor.RawTensor) *SqrtOp {
	return &SqrtOp{input: x, output: output}
}

// Backward: d(sqrt x)/dx = 0.5 / sqrt(x) = 0.5 / output.
func (op *SqrtOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(backend.Div(outputGrad, op.output), float32(0.5))}
}

func (op *SqrtOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *SqrtOp) Output() *tensor.RawTensor   { return op.output }

// ClipOp records output = clip(x, lo, hi).
type ClipOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	lo, hi float64
}

// NewClipOp creates a clamp node.
func NewClipOp(x, output *tensor.RawTensor, lo, hi float64) *ClipOp {
	return &ClipOp{input: x, output: output, lo: lo, hi: hi}
}

// Backward passes the gradient where the input was inside [lo, hi] and
// zeroes it at the clamped positions.
func (op *ClipOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	loMask := backend.Cast(backend.GreaterEqual(op.input, fullLike(op.input, float32(op.lo))), op.input.DType())
	hiMask := backend.Cast(backend.LowerEqual(op.input, fullLike(op.input, float32(op.hi))), op.input.DType())
	return []*tensor.RawTensor{backend.Mul(outputGrad, backend.Mul(loMask, hiMask))}
}

func (op *ClipOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }
func (op *ClipOp) Output() *tensor.RawTensor   { return op.output }
