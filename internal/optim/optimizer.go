// Package optim implements gradient descent optimizers. An optimizer owns
// the list of trainable parameters and updates them in place from the
// gradients the backward pass attached.
package optim

import (
	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// Optimizer updates parameters from their attached gradients.
type Optimizer interface {
	// Step applies one update. Parameters without a gradient are skipped.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float32

	// SetLR changes the learning rate, e.g. for a decay schedule.
	SetLR(lr float32)

	// StateDict returns the optimizer state (moments, step counters) for
	// checkpointing.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores optimizer state from a checkpoint.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// gradData returns the raw gradient values for p, or nil when no gradient
// is attached.
func gradData[B tensor.Backend](p *nn.Parameter[B]) []float32 {
	g := p.Grad()
	if g == nil {
		return nil
	}
	return g.Raw().AsFloat32()
}

// sliceTensor copies a float32 slice into a flat raw tensor for state dicts.
func sliceTensor(values []float32) *tensor.RawTensor {
	raw, err := tensor.NewRaw(tensor.Shape{len(values)}, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(err)
	}
	copy(raw.AsFloat32(), values)
	return raw
}
