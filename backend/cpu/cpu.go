// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/vard-ml/vard/internal/backend/cpu"
	"github.com/vard-ml/vard/tensor"
)

// Backend represents the CPU backend implementation.
//
// CPU backend provides pure Go implementations of all tensor operations
// with parallel execution across rows and batches.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	import (
//	    "github.com/vard-ml/vard/backend/cpu"
//	    "github.com/vard-ml/vard/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	}
func New() *Backend {
	return internalcpu.New()
}

// NewSequential creates a CPU backend that runs every operation on the
// calling goroutine. Useful for deterministic tests and benchmarks.
func NewSequential() *Backend {
	return internalcpu.NewSequential()
}
