package nn

import (
	"github.com/vard-ml/vard/internal/tensor"
)

// Parameter is a named trainable tensor. Parameters hold the weights and
// biases of layers; gradients attach to them after the backward pass.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter wraps an initialized tensor as a trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t.RequireGrad()}
}

// Name returns the parameter name, e.g. "weight" or "bias".
func (p *Parameter[B]) Name() string { return p.name }

// Tensor returns the underlying tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] { return p.tensor }

// Grad returns the gradient tensor, or nil before the first backward pass.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] { return p.tensor.Grad() }

// SetGrad attaches a gradient tensor. Called by the autodiff layer.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) { p.tensor.SetGrad(grad) }

// ZeroGrad clears the gradient so iterations do not accumulate into each
// other.
func (p *Parameter[B]) ZeroGrad() { p.tensor.SetGrad(nil) }

// SetData copies new values into the parameter tensor in place, keeping its
// identity on any live tape intact.
func (p *Parameter[B]) SetData(values []float32) {
	copy(p.tensor.Raw().AsFloat32(), values)
}
