// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package serialization provides the public API for reading and writing
// .vard model files.
//
// The .vard format stores a JSON header describing each tensor followed by
// 64-byte aligned raw tensor data, protected by a SHA-256 checksum. Files
// written from the same state dictionary are byte-identical apart from the
// creation timestamp.
//
// Example:
//
//	// Write
//	w, err := serialization.NewVardWriter("model.vard")
//	err = w.WriteStateDict(model.StateDict())
//
//	// Read
//	r, err := serialization.NewVardReader("model.vard")
//	defer r.Close()
//	stateDict, err := r.ReadStateDict(backend)
package serialization

import (
	"io"

	"github.com/vard-ml/vard/internal/serialization"
	"github.com/vard-ml/vard/internal/tensor"
)

// Format types

// Header is the decoded JSON header of a .vard file.
type Header = serialization.Header

// TensorMeta describes one tensor in the header.
type TensorMeta = serialization.TensorMeta

// CheckpointMeta is the training-state block present in checkpoint files.
type CheckpointMeta = serialization.CheckpointMeta

// ValidationLevel selects how strictly readers validate file structure.
type ValidationLevel = serialization.ValidationLevel

// Validation levels.
const (
	ValidationStrict ValidationLevel = serialization.ValidationStrict
	ValidationNormal ValidationLevel = serialization.ValidationNormal
	ValidationNone   ValidationLevel = serialization.ValidationNone
)

// Sentinel errors.
var (
	ErrChecksumMismatch   = serialization.ErrChecksumMismatch
	ErrInvalidMagic       = serialization.ErrInvalidMagic
	ErrUnsupportedVersion = serialization.ErrUnsupportedVersion
)

// Writing

// VardWriter writes state dictionaries to .vard files.
type VardWriter = serialization.VardWriter

// NewVardWriter creates a writer for the given path.
func NewVardWriter(path string) (*VardWriter, error) {
	return serialization.NewVardWriter(path)
}

// WriteTo encodes a state dictionary to an arbitrary io.Writer.
func WriteTo(w io.Writer, stateDict map[string]*tensor.RawTensor, modelType string, metadata map[string]string) error {
	return serialization.WriteTo(w, stateDict, modelType, metadata)
}

// ReadFrom decodes a state dictionary from an arbitrary io.Reader,
// verifying the checksum.
func ReadFrom(r io.Reader, backend tensor.Backend) (map[string]*tensor.RawTensor, Header, error) {
	return serialization.ReadFrom(r, backend)
}

// WriteSafeTensors exports a state dictionary in safetensors format for
// interoperability with other frameworks.
func WriteSafeTensors(path string, stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	return serialization.WriteSafeTensors(path, stateDict, metadata)
}

// Reading

// VardReader reads .vard files through buffered file IO.
type VardReader = serialization.VardReader

// ReaderOptions configures checksum and structural validation.
type ReaderOptions = serialization.ReaderOptions

// NewVardReader opens a .vard file with strict validation.
func NewVardReader(path string) (*VardReader, error) {
	return serialization.NewVardReader(path)
}

// NewVardReaderWithOptions opens a .vard file with explicit options.
func NewVardReaderWithOptions(path string, opts ReaderOptions) (*VardReader, error) {
	return serialization.NewVardReaderWithOptions(path, opts)
}

// MmapReader reads .vard files through a read-only memory mapping,
// giving zero-copy access to tensor data.
type MmapReader = serialization.MmapReader

// NewMmapReader memory-maps a .vard file.
func NewMmapReader(path string) (*MmapReader, error) {
	return serialization.NewMmapReader(path)
}
