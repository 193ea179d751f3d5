// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for GPU-accelerated tensor operations.
//
// WebGPU is a cross-platform graphics and compute API. The backend runs
// float32 element-wise operations, activations, and 2D matrix multiplication
// as compute shaders; everything else falls back to the CPU backend
// transparently.
//
// Example:
//
//	import (
//	    "github.com/vard-ml/vard/autodiff"
//	    "github.com/vard-ml/vard/backend/webgpu"
//	    "github.com/vard-ml/vard/tensor"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//
//	    backend := autodiff.New(gpu)
//	    x := tensor.Randn[float32](tensor.Shape{1024, 1024}, backend)
//	}
package webgpu

import (
	internalwebgpu "github.com/vard-ml/vard/internal/backend/webgpu"
	"github.com/vard-ml/vard/tensor"
)

// Backend represents the WebGPU backend implementation for GPU-accelerated
// tensor operations.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new WebGPU backend.
//
// This function initializes the WebGPU device and returns a backend
// ready for tensor operations. Call Release() when done to free GPU resources.
//
// Returns an error if WebGPU initialization fails (missing native library,
// no compatible GPU).
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable reports whether WebGPU can be initialized on this system.
// Useful for choosing a backend at startup without handling errors inline.
func IsAvailable() bool {
	b, err := internalwebgpu.New()
	if err != nil {
		return false
	}
	b.Release()
	return true
}
