// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Im2col algorithm for efficient convolutions
//   - Float32 and Float64 support
//   - Parallel execution across rows and batches
//   - NumPy-compatible broadcasting
//
// # Basic Usage
//
//	import (
//	    "github.com/vard-ml/vard/backend/cpu"
//	    "github.com/vard-ml/vard/tensor"
//	    "github.com/vard-ml/vard/nn"
//	)
//
//	func main() {
//	    // Create CPU backend
//	    backend := cpu.New()
//
//	    // Use with tensors
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	    y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	    z := x.Add(y)
//
//	    // Use with neural networks
//	    model := nn.NewLinear(784, 10, backend)
//	}
//
// # Determinism
//
// New() parallelizes large operations across GOMAXPROCS workers. When exact
// reproducibility matters (for example in tests), use NewSequential()
// instead.
package cpu
