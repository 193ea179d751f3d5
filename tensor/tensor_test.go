// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vard-ml/vard/internal/backend/cpu"
	"github.com/vard-ml/vard/tensor"
)

// TestBackendInterface verifies that cpu.CPUBackend implements tensor.Backend.
func TestBackendInterface(_ *testing.T) {
	var _ tensor.Backend = (*cpu.CPUBackend)(nil)
}

// TestRawTensorAPI verifies the RawTensor type alias exposes the expected API.
func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)

	assert.True(t, raw.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, tensor.Float32, raw.DType())
	assert.Equal(t, tensor.CPU, raw.Device())
	assert.Equal(t, 6, raw.NumElements())
	assert.Equal(t, 6*4, raw.ByteSize())
	assert.Len(t, raw.AsFloat32(), 6)

	clone := raw.Clone()
	require.NotNil(t, clone)
	clone.Release()
}

// TestTensorCreationFunctions verifies the high-level tensor creation API.
func TestTensorCreationFunctions(t *testing.T) {
	backend := cpu.NewSequential()

	tests := []struct {
		name string
		fn   func() any
	}{
		{"Zeros", func() any { return tensor.Zeros[float32](tensor.Shape{2, 3}, backend) }},
		{"Ones", func() any { return tensor.Ones[float32](tensor.Shape{2, 3}, backend) }},
		{"Full", func() any { return tensor.Full[float32](tensor.Shape{2, 3}, 3.14, backend) }},
		{"Randn", func() any { return tensor.Randn[float32](tensor.Shape{2, 3}, backend) }},
		{"Rand", func() any { return tensor.Rand[float32](tensor.Shape{2, 3}, backend) }},
		{"Uniform", func() any { return tensor.Uniform[float32](tensor.Shape{2, 3}, -0.1, 0.1, backend) }},
		{"Arange", func() any { return tensor.Arange[float32](0, 10, backend) }},
		{"Eye", func() any { return tensor.Eye[float32](3, backend) }},
		{"FromSlice", func() any {
			out, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
			if err != nil {
				return err
			}
			return out
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.fn()
			require.NotNil(t, result)
			if err, ok := result.(error); ok {
				t.Errorf("%s() returned error: %v", tt.name, err)
			}
		})
	}
}

// TestDeviceConstants verifies the device constants are accessible.
func TestDeviceConstants(t *testing.T) {
	assert.Equal(t, "CPU", tensor.CPU.String())
	assert.Equal(t, "WebGPU", tensor.WebGPU.String())
}

// TestDataTypeConstants verifies all data type constants are accessible.
func TestDataTypeConstants(t *testing.T) {
	dtypes := []struct {
		name  string
		dtype tensor.DataType
	}{
		{"Float32", tensor.Float32},
		{"Float64", tensor.Float64},
		{"Int32", tensor.Int32},
		{"Int64", tensor.Int64},
		{"Uint8", tensor.Uint8},
		{"Bool", tensor.Bool},
	}

	for _, dt := range dtypes {
		t.Run(dt.name, func(t *testing.T) {
			assert.NotEmpty(t, dt.dtype.String())
			assert.Positive(t, dt.dtype.Size())
		})
	}
}

// TestShapeAPI verifies the Shape type alias exposes the expected API.
func TestShapeAPI(t *testing.T) {
	shape := tensor.Shape{2, 3, 4}

	assert.Equal(t, 24, shape.NumElements())
	assert.Len(t, shape, 3)
	assert.True(t, shape.Equal(tensor.Shape{2, 3, 4}))

	clone := shape.Clone()
	require.True(t, clone.Equal(shape))
	clone[0] = 999
	assert.Equal(t, 2, shape[0])
}

// TestBroadcastShapes verifies the BroadcastShapes utility function.
func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name          string
		shapeA        tensor.Shape
		shapeB        tensor.Shape
		wantShape     tensor.Shape
		wantBroadcast bool
	}{
		{"same shape", tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{2, 3}, false},
		{"broadcast scalar", tensor.Shape{2, 3}, tensor.Shape{1}, tensor.Shape{2, 3}, true},
		{"broadcast dimension", tensor.Shape{3, 1}, tensor.Shape{3, 4}, tensor.Shape{3, 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotShape, gotBroadcast, err := tensor.BroadcastShapes(tt.shapeA, tt.shapeB)
			require.NoError(t, err)
			assert.True(t, gotShape.Equal(tt.wantShape))
			assert.Equal(t, tt.wantBroadcast, gotBroadcast)
		})
	}
}

// TestCat verifies the package-level Cat function.
func TestCat(t *testing.T) {
	backend := cpu.NewSequential()

	a := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
	b := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
	c := tensor.Cat([]*tensor.Tensor[float32, *cpu.CPUBackend]{a, b}, 0)

	require.NotNil(t, c)
	assert.True(t, c.Shape().Equal(tensor.Shape{4, 3}))
}
