// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/vard-ml/vard/internal/tensor"

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - backend/cpu: pure Go with parallelized broadcast-aware loops
//   - backend/webgpu: float32 compute shaders with CPU fallback
//
// Decorator backends for additional functionality:
//   - autodiff: automatic differentiation (wraps any backend)
//
// Example:
//
//	import (
//	    "github.com/vard-ml/vard/tensor"
//	    "github.com/vard-ml/vard/backend/cpu"
//	)
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	z := x.Add(y)  // Uses backend.Add under the hood
type Backend interface {
	// Element-wise binary operations (broadcasting).
	Add(a, b *RawTensor) *RawTensor // Element-wise addition.
	Sub(a, b *RawTensor) *RawTensor // Element-wise subtraction.
	Mul(a, b *RawTensor) *RawTensor // Element-wise multiplication.
	Div(a, b *RawTensor) *RawTensor // Element-wise division.

	// Matrix and convolutional operations.
	MatMul(a, b *RawTensor) *RawTensor                                    // Matrix multiplication.
	Conv2D(input, kernel *RawTensor, stride, padding [2]int) *RawTensor   // 2D convolution.
	MaxPool2D(input *RawTensor, kernelSize, stride [2]int) *RawTensor     // 2D max pooling.

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor // Reshape tensor.
	Transpose(t *RawTensor, axes ...int) *RawTensor  // Transpose dimensions.
	Expand(x *RawTensor, shape Shape) *RawTensor     // Broadcast to shape.

	// Scalar operations (element-wise with scalar).
	MulScalar(x *RawTensor, scalar any) *RawTensor // Multiply by scalar.
	AddScalar(x *RawTensor, scalar any) *RawTensor // Add scalar.
	SubScalar(x *RawTensor, scalar any) *RawTensor // Subtract scalar.
	DivScalar(x *RawTensor, scalar any) *RawTensor // Divide by scalar.

	// Math operations (element-wise).
	Exp(x *RawTensor) *RawTensor                  // Exponential.
	Log(x *RawTensor) *RawTensor                  // Natural logarithm.
	Sqrt(x *RawTensor) *RawTensor                 // Square root.
	Clip(x *RawTensor, lo, hi float64) *RawTensor // Clamp values into [lo, hi].

	Softmax(x *RawTensor, dim int) *RawTensor // Softmax along dimension.

	// Comparison operations (element-wise, return bool tensor).
	Greater(a, b *RawTensor) *RawTensor      // a > b.
	Lower(a, b *RawTensor) *RawTensor        // a < b.
	GreaterEqual(a, b *RawTensor) *RawTensor // a >= b.
	LowerEqual(a, b *RawTensor) *RawTensor   // a <= b.
	Equal(a, b *RawTensor) *RawTensor        // a == b.

	// Reduction operations.
	Sum(x *RawTensor) *RawTensor                            // Total sum (scalar result).
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor  // Sum along dimension.
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor // Mean along dimension.
	Argmax(x *RawTensor, dim int) *RawTensor                // Index of maximum value along dimension.

	// Manipulation operations.
	Cat(tensors []*RawTensor, dim int) *RawTensor // Concatenate along dimension.
	Chunk(x *RawTensor, n, dim int) []*RawTensor  // Split into n equal parts.
	Unsqueeze(x *RawTensor, dim int) *RawTensor   // Add dimension of size 1.
	Squeeze(x *RawTensor, dim int) *RawTensor     // Remove dimension of size 1.

	// Indexing operations.
	Gather(x *RawTensor, dim int, index *RawTensor) *RawTensor // Select elements along dim using index tensor.
	Where(condition, x, y *RawTensor) *RawTensor               // Conditional element selection.
	Embedding(weight, indices *RawTensor) *RawTensor           // Lookup embeddings by indices.

	// Type conversion.
	Cast(x *RawTensor, dtype DataType) *RawTensor // Cast to different data type.

	// Metadata.
	Name() string   // Backend name (e.g., "CPU", "WebGPU").
	Device() Device // Device type.
}

// Compile-time check that the public interface matches the internal one.
var _ Backend = tensor.Backend(nil)

// Optional backend capabilities.

// ReLUBackend is implemented by backends with a fused ReLU.
type ReLUBackend = tensor.ReLUBackend

// SigmoidBackend is implemented by backends with a fused sigmoid.
type SigmoidBackend = tensor.SigmoidBackend

// TanhBackend is implemented by backends with a fused tanh.
type TanhBackend = tensor.TanhBackend

// CrossEntropyBackend fuses log-softmax and NLL into one op.
type CrossEntropyBackend = tensor.CrossEntropyBackend

// CheckpointFunc recomputes a forward sub-graph from its inputs.
type CheckpointFunc = tensor.CheckpointFunc

// CheckpointBackend trades compute for memory during training.
type CheckpointBackend = tensor.CheckpointBackend
