// Package serialization implements the native .vard format for saving and
// loading models and training checkpoints.
//
// File layout:
//
//	[64-byte fixed header]
//	  0x00  Magic "VARD"
//	  0x04  Version (uint32 LE)
//	  0x08  Flags (uint32 LE)
//	  0x0C  Reserved
//	  0x10  Header size (uint64 LE)
//	  0x18  Data size (uint64 LE)
//	  0x20  SHA-256 checksum of the data section
//	[JSON header]
//	[Tensor data: raw bytes, 64-byte aligned]
//
// Tensors are written in sorted name order so identical state dicts always
// produce identical files. Checkpoints carry the optimizer state and the KL
// warm-up coefficient in the JSON header so training resumes exactly where
// it left off.
package serialization
