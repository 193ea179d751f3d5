package tensor

// Backend defines the interface every compute backend must implement.
// Backends operate on RawTensors; the typed Tensor wrappers dispatch here.
//
// Implementations:
//   - CPU: pure Go with broadcast-aware vectorized loops
//   - WebGPU: float32 compute shaders with CPU fallback
//   - Autodiff: a decorator over either of the above that records a tape
type Backend interface {
	// Element-wise binary operations (broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Matrix and convolutional operations
	MatMul(a, b *RawTensor) *RawTensor
	Conv2D(input, kernel *RawTensor, stride, padding [2]int) *RawTensor
	MaxPool2D(input *RawTensor, kernelSize, stride [2]int) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Expand(x *RawTensor, shape Shape) *RawTensor

	// Scalar operations
	MulScalar(x *RawTensor, scalar any) *RawTensor
	AddScalar(x *RawTensor, scalar any) *RawTensor
	SubScalar(x *RawTensor, scalar any) *RawTensor
	DivScalar(x *RawTensor, scalar any) *RawTensor

	// Element-wise math
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Sqrt(x *RawTensor) *RawTensor
	Clip(x *RawTensor, lo, hi float64) *RawTensor

	Softmax(x *RawTensor, dim int) *RawTensor

	// Comparisons (return bool tensors)
	Greater(a, b *RawTensor) *RawTensor
	Lower(a, b *RawTensor) *RawTensor
	GreaterEqual(a, b *RawTensor) *RawTensor
	LowerEqual(a, b *RawTensor) *RawTensor
	Equal(a, b *RawTensor) *RawTensor

	// Reductions
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	Argmax(x *RawTensor, dim int) *RawTensor

	// Manipulation
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Chunk(x *RawTensor, n, dim int) []*RawTensor
	Unsqueeze(x *RawTensor, dim int) *RawTensor
	Squeeze(x *RawTensor, dim int) *RawTensor

	// Indexing
	Gather(x *RawTensor, dim int, index *RawTensor) *RawTensor
	Where(condition, x, y *RawTensor) *RawTensor
	Embedding(weight, indices *RawTensor) *RawTensor

	Cast(x *RawTensor, dtype DataType) *RawTensor

	Name() string
	Device() Device
}

// Optional backend capabilities. Layers that need one assert for it and
// panic with a clear message when the backend cannot provide it.

// ReLUBackend is implemented by backends with a fused ReLU.
type ReLUBackend interface {
	ReLU(x *RawTensor) *RawTensor
}

// SigmoidBackend is implemented by backends with a fused sigmoid.
type SigmoidBackend interface {
	Sigmoid(x *RawTensor) *RawTensor
}

// TanhBackend is implemented by backends with a fused tanh.
type TanhBackend interface {
	Tanh(x *RawTensor) *RawTensor
}

// CrossEntropyBackend fuses log-softmax and NLL into one op.
// logits is [batch, classes] float32, targets is [batch] int32; the result is
// the scalar mean loss.
type CrossEntropyBackend interface {
	CrossEntropy(logits, targets *RawTensor) *RawTensor
}

// CheckpointFunc recomputes a forward sub-graph from its inputs.
type CheckpointFunc func(inputs []*RawTensor) *RawTensor

// CheckpointBackend trades compute for memory: the sub-graph built by fn is
// not recorded during the forward pass and is re-run during backward.
type CheckpointBackend interface {
	Checkpoint(inputs []*RawTensor, fn CheckpointFunc) *RawTensor
}
