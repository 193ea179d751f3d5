// Package nn implements neural network modules for the Vard ML Framework.
//
// This package provides building blocks for constructing networks:
//   - Module interface: base interface for all NN components
//   - Parameter: trainable parameters with gradient tracking
//   - Linear, Conv2D, MaxPool2D, BatchNorm2D, Embedding
//   - Activations: ReLU, Sigmoid, Tanh
//   - Loss functions and the Sequential container
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics.
package nn

import (
	"github.com/vard-ml/vard/internal/tensor"
)

// Pass carries per-forward-call flags through a module tree. Layers whose
// behavior differs between training and inference (stochastic layers, batch
// norm, gradient checkpointing) consult it instead of holding mode state.
type Pass struct {
	// Train enables training behavior: stochastic layers sample noise and
	// normalization layers update running statistics.
	Train bool
	// Recompute selects how aggressively recurrent and deep modules trade
	// compute for activation memory: 0 stores everything, 1 checkpoints
	// coarse segments, 2 checkpoints every step.
	Recompute int
}

// Inference is the zero-value pass: no training behavior, no checkpointing.
var Inference = Pass{}

// Training is a plain training pass without checkpointing.
var Training = Pass{Train: true}

// Module is the base interface for all neural network components.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the module output. The pass flags select training
	// versus inference behavior.
	Forward(pass Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters, including those of
	// nested modules. Modules without parameters return nil.
	Parameters() []*Parameter[B]

	// StateDict returns parameter names mapped to their raw tensors.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies parameter values in from a state dictionary.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Container is a module holding named child modules. Containers make the
// module tree walkable: children can be enumerated and swapped for
// replacements, which layer-conversion passes rely on.
type Container[B tensor.Backend] interface {
	Module[B]

	// Children returns the direct child modules keyed by name. Callers
	// must not mutate the returned map.
	Children() map[string]Module[B]

	// ReplaceChild swaps the named child for a replacement. It returns an
	// error when no child has that name.
	ReplaceChild(name string, child Module[B]) error
}

// LayerKind tags the structural role of a layer so tree transformations can
// match layers without reflection.
type LayerKind int

// Known layer kinds.
const (
	KindOther LayerKind = iota
	KindLinear
	KindConv2D
)

// String returns a human-readable kind name.
func (k LayerKind) String() string {
	switch k {
	case KindLinear:
		return "Linear"
	case KindConv2D:
		return "Conv2D"
	default:
		return "Other"
	}
}

// Kinded is implemented by layers that declare a LayerKind.
type Kinded interface {
	Kind() LayerKind
}

// KindOf returns the declared kind of m, or KindOther when m does not
// declare one.
func KindOf[B tensor.Backend](m Module[B]) LayerKind {
	if k, ok := m.(Kinded); ok {
		return k.Kind()
	}
	return KindOther
}
