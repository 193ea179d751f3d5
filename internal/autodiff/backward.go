package autodiff

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// Backward runs reverse-mode differentiation from a scalar loss and attaches
// gradients to every tensor in params that received one. The loss gradient
// is seeded with 1.
func Backward[T tensor.DType, B tensor.Backend](loss *tensor.Tensor[T, *AutodiffBackend[B]], params ...*tensor.Tensor[T, *AutodiffBackend[B]]) error {
	if loss.NumElements() != 1 {
		return fmt.Errorf("backward requires a scalar loss, got shape %v", loss.Shape())
	}
	backend := loss.Backend()

	seed, err := tensor.NewRaw(loss.Raw().Shape(), loss.Raw().DType(), loss.Raw().Device())
	if err != nil {
		return fmt.Errorf("allocating gradient seed: %w", err)
	}
	switch loss.Raw().DType() {
	case tensor.Float32:
		seed.AsFloat32()[0] = 1
	case tensor.Float64:
		seed.AsFloat64()[0] = 1
	default:
		return fmt.Errorf("backward requires a float loss, got %s", loss.Raw().DType())
	}

	grads := backend.Backward(loss.Raw(), seed)
	for _, p := range params {
		if g, ok := grads[p.Raw()]; ok {
			p.SetGrad(tensor.New[T](g, backend))
		}
	}
	return nil
}
