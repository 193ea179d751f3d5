// Package autodiff provides reverse-mode automatic differentiation as a
// backend decorator. Wrapping any tensor.Backend yields a backend that
// records every differentiable operation onto a gradient tape while
// delegating the actual math to the inner backend.
package autodiff

import (
	"fmt"

	"github.com/vard-ml/vard/internal/autodiff/ops"
	"github.com/vard-ml/vard/internal/tensor"
)

// AutodiffBackend decorates an inner backend with gradient recording.
// Recording is explicit: between StartRecording and StopRecording every
// differentiable op is taped, everything else passes straight through.
type AutodiffBackend[B tensor.Backend] struct {
	inner     B
	tape      *GradientTape
	recording bool
}

// New wraps inner with gradient recording. The tape starts empty and
// recording starts off.
func New[B tensor.Backend](inner B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{inner: inner, tape: NewGradientTape()}
}

// Inner returns the wrapped backend.
func (b *AutodiffBackend[B]) Inner() B { return b.inner }

// Tape returns the current gradient tape.
func (b *AutodiffBackend[B]) Tape() *GradientTape { return b.tape }

// StartRecording begins taping differentiable operations.
func (b *AutodiffBackend[B]) StartRecording() { b.recording = true }

// StopRecording stops taping. Recorded operations stay on the tape.
func (b *AutodiffBackend[B]) StopRecording() { b.recording = false }

// IsRecording reports whether operations are currently being taped.
func (b *AutodiffBackend[B]) IsRecording() bool { return b.recording }

// ResetTape discards all recorded operations and their input pins.
func (b *AutodiffBackend[B]) ResetTape() { b.tape.Reset() }

// Backward propagates outputGrad from output through the taped graph and
// returns every gradient keyed by tensor identity. The backward math runs on
// the inner backend so it is never itself recorded.
func (b *AutodiffBackend[B]) Backward(output, outputGrad *tensor.RawTensor) map[*tensor.RawTensor]*tensor.RawTensor {
	return b.tape.Backward(output, outputGrad, b.inner)
}

// Name identifies the decorated backend.
func (b *AutodiffBackend[B]) Name() string { return "Autodiff(" + b.inner.Name() + ")" }

// Device reports the inner backend's device.
func (b *AutodiffBackend[B]) Device() tensor.Device { return b.inner.Device() }

func (b *AutodiffBackend[B]) record(op ops.Operation) {
	if b.recording {
		b.tape.Record(op)
	}
}

// Add computes a + b with broadcasting.
func (b *AutodiffBackend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Add(x, y)
	b.record(ops.NewAddOp(x, y, out))
	return out
}

// Sub computes a - b with broadcasting.
func (b *AutodiffBackend[B]) Sub(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Sub(x, y)
	b.record(ops.NewSubOp(x, y, out))
	return out
}

// Mul computes a * b elementwise with broadcasting.
func (b *AutodiffBackend[B]) Mul(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Mul(x, y)
	b.record(ops.NewMulOp(x, y, out))
	return out
}

// Div computes a / b elementwise with broadcasting.
func (b *AutodiffBackend[B]) Div(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Div(x, y)
	b.record(ops.NewDivOp(x, y, out))
	return out
}

// AddScalar computes x + s.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, s any) *tensor.RawTensor {
	out := b.inner.AddScalar(x, s)
	b.record(ops.NewAddScalarOp(x, out))
	return out
}

// SubScalar computes x - s.
func (b *AutodiffBackend[B]) SubScalar(x *tensor.RawTensor, s any) *tensor.RawTensor {
	out := b.inner.SubScalar(x, s)
	b.record(ops.NewSubScalarOp(x, out))
	return out
}

// MulScalar computes x * s.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, s any) *tensor.RawTensor {
	out := b.inner.MulScalar(x, s)
	b.record(ops.NewMulScalarOp(x, out, scalarToFloat32(s)))
	return out
}

// DivScalar computes x / s.
func (b *AutodiffBackend[B]) DivScalar(x *tensor.RawTensor, s any) *tensor.RawTensor {
	out := b.inner.DivScalar(x, s)
	b.record(ops.NewDivScalarOp(x, out, scalarToFloat32(s)))
	return out
}

// MatMul computes the 2D matrix product.
func (b *AutodiffBackend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.MatMul(x, y)
	b.record(ops.NewMatMulOp(x, y, out))
	return out
}

// Conv2D computes a batched 2D convolution.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding [2]int) *tensor.RawTensor {
	out := b.inner.Conv2D(input, kernel, stride, padding)
	b.record(ops.NewConv2DOp(input, kernel, out, stride, padding))
	return out
}

// poolIndexBackend is the inner capability MaxPool2D needs while recording.
type poolIndexBackend interface {
	MaxPool2DWithIndices(input *tensor.RawTensor, kernelSize, stride [2]int) (*tensor.RawTensor, *tensor.RawTensor)
}

// MaxPool2D computes 2D max pooling. While recording, the argmax indices are
// captured so the backward pass can scatter without re-pooling.
func (b *AutodiffBackend[B]) MaxPool2D(input *tensor.RawTensor, kernelSize, stride [2]int) *tensor.RawTensor {
	if b.recording {
		pi, ok := any(b.inner).(poolIndexBackend)
		if !ok {
			panic(fmt.Sprintf("backend %s does not support maxpool2d gradients", b.inner.Name()))
		}
		out, indices := pi.MaxPool2DWithIndices(input, kernelSize, stride)
		b.tape.Record(ops.NewMaxPool2DOp(input, out, indices))
		return out
	}
	return b.inner.MaxPool2D(input, kernelSize, stride)
}

// Reshape returns x with a new shape.
func (b *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	out := b.inner.Reshape(x, shape)
	b.record(ops.NewReshapeOp(x, out))
	return out
}

// Transpose permutes x's axes.
func (b *AutodiffBackend[B]) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	out := b.inner.Transpose(x, axes...)
	b.record(ops.NewTransposeOp(x, out, axes))
	return out
}

// Expand broadcasts x to a larger shape.
func (b *AutodiffBackend[B]) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	out := b.inner.Expand(x, shape)
	b.record(ops.NewExpandOp(x, out))
	return out
}

// Exp computes e^x elementwise.
func (b *AutodiffBackend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Exp(x)
	b.record(ops.NewExpOp(x, out))
	return out
}

// Log computes ln(x) elementwise.
func (b *AutodiffBackend[B]) Log(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Log(x)
	b.record(ops.NewLogOp(x, out))
	return out
}

// Sqrt computes the elementwise square root.
func (b *AutodiffBackend[B]) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Sqrt(x)
	b.record(ops.NewSqrtOp(x, out))
	return out
}

// Clip clamps x to [lo, hi]. The gradient is zero at clamped positions.
func (b *AutodiffBackend[B]) Clip(x *tensor.RawTensor, lo, hi float64) *tensor.RawTensor {
	out := b.inner.Clip(x, lo, hi)
	b.record(ops.NewClipOp(x, out, lo, hi))
	return out
}

// Softmax normalizes x along dim.
func (b *AutodiffBackend[B]) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	out := b.inner.Softmax(x, dim)
	b.record(ops.NewSoftmaxOp(x, out, dim))
	return out
}

// Greater compares elementwise. Comparisons are not differentiable and are
// never taped; their results act as constants in the graph.
func (b *AutodiffBackend[B]) Greater(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Greater(x, y)
}

// Lower compares elementwise.
func (b *AutodiffBackend[B]) Lower(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Lower(x, y)
}

// GreaterEqual compares elementwise.
func (b *AutodiffBackend[B]) GreaterEqual(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.GreaterEqual(x, y)
}

// LowerEqual compares elementwise.
func (b *AutodiffBackend[B]) LowerEqual(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.LowerEqual(x, y)
}

// Equal compares elementwise.
func (b *AutodiffBackend[B]) Equal(x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Equal(x, y)
}

// Sum reduces x to a scalar.
func (b *AutodiffBackend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Sum(x)
	b.record(ops.NewSumOp(x, out))
	return out
}

// SumDim sums x along dim.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	out := b.inner.SumDim(x, dim, keepDim)
	b.record(ops.NewSumDimOp(x, out, dim, keepDim))
	return out
}

// MeanDim averages x along dim.
func (b *AutodiffBackend[B]) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	out := b.inner.MeanDim(x, dim, keepDim)
	b.record(ops.NewMeanDimOp(x, out, dim, keepDim))
	return out
}

// Argmax returns index positions, which carry no gradient.
func (b *AutodiffBackend[B]) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.inner.Argmax(x, dim)
}

// Cat concatenates tensors along dim.
func (b *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	out := b.inner.Cat(tensors, dim)
	b.record(ops.NewCatOp(tensors, out, dim))
	return out
}

// Chunk splits x into n equal parts along dim.
func (b *AutodiffBackend[B]) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	outs := b.inner.Chunk(x, n, dim)
	if b.recording {
		b.tape.RecordMulti(ops.NewChunkOp(x, outs, dim))
	}
	return outs
}

// Unsqueeze inserts a size-1 dimension at dim.
func (b *AutodiffBackend[B]) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	out := b.inner.Unsqueeze(x, dim)
	b.record(ops.NewReshapeOp(x, out))
	return out
}

// Squeeze removes the size-1 dimension at dim.
func (b *AutodiffBackend[B]) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	out := b.inner.Squeeze(x, dim)
	b.record(ops.NewReshapeOp(x, out))
	return out
}

// Gather selects values by index. Index selection is treated as a constant
// rearrangement and is not taped.
func (b *AutodiffBackend[B]) Gather(x *tensor.RawTensor, dim int, index *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Gather(x, dim, index)
}

// Where selects elementwise between two tensors. The boolean condition acts
// as a constant, so Where is not taped either; differentiable masking should
// be expressed via Mul with a cast mask instead.
func (b *AutodiffBackend[B]) Where(cond, x, y *tensor.RawTensor) *tensor.RawTensor {
	return b.inner.Where(cond, x, y)
}

// Embedding looks up rows of weight by integer index.
func (b *AutodiffBackend[B]) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	out := b.inner.Embedding(weight, indices)
	b.record(ops.NewEmbeddingOp(weight, indices, out))
	return out
}

// Cast converts dtypes. Casting breaks the gradient chain.
func (b *AutodiffBackend[B]) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	return b.inner.Cast(x, dtype)
}

// ReLU applies max(x, 0) if the inner backend supports it.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	rb, ok := any(b.inner).(tensor.ReLUBackend)
	if !ok {
		panic(fmt.Sprintf("backend %s does not support ReLU", b.inner.Name()))
	}
	out := rb.ReLU(x)
	b.record(ops.NewReLUOp(x, out))
	return out
}

// Sigmoid applies the logistic function if the inner backend supports it.
func (b *AutodiffBackend[B]) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	sb, ok := any(b.inner).(tensor.SigmoidBackend)
	if !ok {
		panic(fmt.Sprintf("backend %s does not support Sigmoid", b.inner.Name()))
	}
	out := sb.Sigmoid(x)
	b.record(ops.NewSigmoidOp(x, out))
	return out
}

// Tanh applies the hyperbolic tangent if the inner backend supports it.
func (b *AutodiffBackend[B]) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	tb, ok := any(b.inner).(tensor.TanhBackend)
	if !ok {
		panic(fmt.Sprintf("backend %s does not support Tanh", b.inner.Name()))
	}
	out := tb.Tanh(x)
	b.record(ops.NewTanhOp(x, out))
	return out
}

// CrossEntropy computes the mean cross-entropy between logits and integer
// class targets.
func (b *AutodiffBackend[B]) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	cb, ok := any(b.inner).(tensor.CrossEntropyBackend)
	if !ok {
		panic(fmt.Sprintf("backend %s does not support CrossEntropy", b.inner.Name()))
	}
	out := cb.CrossEntropy(logits, targets)
	b.record(ops.NewCrossEntropyOp(logits, targets, out))
	return out
}

// Checkpoint runs fn without taping its interior and records a single node
// whose backward replays fn on a scratch tape. Outside recording it is a
// plain call.
func (b *AutodiffBackend[B]) Checkpoint(inputs []*tensor.RawTensor, fn tensor.CheckpointFunc) *tensor.RawTensor {
	if !b.recording {
		return fn(inputs)
	}
	b.recording = false
	out := fn(inputs)
	b.recording = true
	b.tape.Record(ops.NewCheckpointOp(inputs, out, fn, b))
	return out
}

// Recompute replays a checkpointed segment under a fresh tape and returns
// per-input gradients. The live tape and recording state are restored before
// returning.
func (b *AutodiffBackend[B]) Recompute(inputs []*tensor.RawTensor, fn tensor.CheckpointFunc, outputGrad *tensor.RawTensor) []*tensor.RawTensor {
	savedTape, savedRecording := b.tape, b.recording
	b.tape = NewGradientTape()
	b.recording = true

	out := fn(inputs)
	grads := b.tape.Backward(out, outputGrad, b.inner)

	b.tape.Reset()
	b.tape, b.recording = savedTape, savedRecording

	inputGrads := make([]*tensor.RawTensor, len(inputs))
	for i, in := range inputs {
		inputGrads[i] = grads[in]
	}
	return inputGrads
}

func scalarToFloat32(s any) float32 {
	switch v := s.(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	case int:
		return float32(v)
	case int32:
		return float32(v)
	case int64:
		return float32(v)
	default:
		panic(fmt.Sprintf("unsupported scalar type %T", s))
	}
}

// Forwarded gradient capabilities. Backward ops run against the inner
// backend directly, but exposing these keeps the decorator usable wherever
// the inner backend would be.

// Conv2DInputGrad forwards to the inner backend.
func (b *AutodiffBackend[B]) Conv2DInputGrad(gradOutput, kernel *tensor.RawTensor, inputShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor {
	type capable interface {
		Conv2DInputGrad(gradOutput, kernel *tensor.RawTensor, inputShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor
	}
	return any(b.inner).(capable).Conv2DInputGrad(gradOutput, kernel, inputShape, stride, padding)
}

// Conv2DKernelGrad forwards to the inner backend.
func (b *AutodiffBackend[B]) Conv2DKernelGrad(gradOutput, input *tensor.RawTensor, kernelShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor {
	type capable interface {
		Conv2DKernelGrad(gradOutput, input *tensor.RawTensor, kernelShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor
	}
	return any(b.inner).(capable).Conv2DKernelGrad(gradOutput, input, kernelShape, stride, padding)
}

// MaxPool2DBackward forwards to the inner backend.
func (b *AutodiffBackend[B]) MaxPool2DBackward(gradOutput, indices *tensor.RawTensor, inputShape tensor.Shape) *tensor.RawTensor {
	type capable interface {
		MaxPool2DBackward(gradOutput, indices *tensor.RawTensor, inputShape tensor.Shape) *tensor.RawTensor
	}
	return any(b.inner).(capable).MaxPool2DBackward(gradOutput, indices, inputShape)
}

// CrossEntropyBackward forwards to the inner backend.
func (b *AutodiffBackend[B]) CrossEntropyBackward(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	type capable interface {
		CrossEntropyBackward(logits, targets *tensor.RawTensor) *tensor.RawTensor
	}
	return any(b.inner).(capable).CrossEntropyBackward(logits, targets)
}

// EmbeddingBackward forwards to the inner backend.
func (b *AutodiffBackend[B]) EmbeddingBackward(gradOutput, indices *tensor.RawTensor, weightShape tensor.Shape) *tensor.RawTensor {
	type capable interface {
		EmbeddingBackward(gradOutput, indices *tensor.RawTensor, weightShape tensor.Shape) *tensor.RawTensor
	}
	return any(b.inner).(capable).EmbeddingBackward(gradOutput, indices, weightShape)
}
