// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation capabilities.
//
// This package implements reverse-mode automatic differentiation
// (backpropagation) using a gradient tape. It wraps any backend to add
// autodiff capabilities.
//
// Example:
//
//	import (
//	    "github.com/vard-ml/vard/autodiff"
//	    "github.com/vard-ml/vard/backend/cpu"
//	    "github.com/vard-ml/vard/tensor"
//	)
//
//	func main() {
//	    // Wrap CPU backend with autodiff
//	    base := cpu.New()
//	    backend := autodiff.New(base)
//
//	    // Operations are recorded on the tape
//	    x := tensor.Randn[float32](tensor.Shape{2, 3}, backend).RequireGrad()
//	    y := x.Mul(x).Sum()
//
//	    // Compute gradients back to x
//	    err := autodiff.Backward(y, x)
//	}
package autodiff

import (
	"github.com/vard-ml/vard/internal/autodiff"
	"github.com/vard-ml/vard/internal/tensor"
)

// Backend is the autodiff-enabled backend decorator.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
//
// Example:
//
//	base := cpu.New()
//	backend := autodiff.New(base)
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// Backward runs backpropagation from loss and attaches gradients to the
// given parameter tensors. The tape is consumed: a new forward pass is
// required before calling Backward again.
func Backward[T tensor.DType, B tensor.Backend](
	loss *tensor.Tensor[T, *Backend[B]],
	params ...*tensor.Tensor[T, *Backend[B]],
) error {
	return autodiff.Backward(loss, params...)
}
