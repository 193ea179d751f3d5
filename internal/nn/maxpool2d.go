package nn

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// MaxPool2D downsamples NCHW inputs by taking the maximum over each pooling
// window. It has no trainable parameters.
type MaxPool2D[B tensor.Backend] struct {
	kernelSize [2]int
	stride     [2]int
}

// NewMaxPool2D creates a max-pooling layer. A zero stride defaults to the
// kernel size, the usual non-overlapping pooling.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride [2]int) *MaxPool2D[B] {
	if stride == [2]int{} {
		stride = kernelSize
	}
	return &MaxPool2D[B]{kernelSize: kernelSize, stride: stride}
}

// Forward pools input [batch, channels, H, W].
func (m *MaxPool2D[B]) Forward(_ Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if len(input.Shape()) != 4 {
		panic(fmt.Sprintf("MaxPool2D.Forward: expected 4D input, got shape %v", input.Shape()))
	}
	raw := input.Backend().MaxPool2D(input.Raw(), m.kernelSize, m.stride)
	return tensor.New[float32, B](raw, input.Backend())
}

// Parameters returns nil, pooling has no trainable state.
func (m *MaxPool2D[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (m *MaxPool2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op for stateless layers.
func (m *MaxPool2D[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }
