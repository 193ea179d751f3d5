package nn

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// Conv2D is a 2D convolution layer over NCHW inputs. The kernel has shape
// [outChannels, inChannels, kH, kW] and the optional bias [outChannels].
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  [2]int
	stride      [2]int
	padding     [2]int
	weight      *Parameter[B]
	bias        *Parameter[B]
	backend     B
}

// NewConv2D creates a convolution layer with Xavier-initialized kernels and
// zero biases.
func NewConv2D[B tensor.Backend](inChannels, outChannels int, kernelSize, stride, padding [2]int, backend B) *Conv2D[B] {
	fanIn := inChannels * kernelSize[0] * kernelSize[1]
	fanOut := outChannels * kernelSize[0] * kernelSize[1]
	kernelShape := tensor.Shape{outChannels, inChannels, kernelSize[0], kernelSize[1]}
	weight := NewParameter("weight", Xavier(fanIn, fanOut, kernelShape, backend))
	bias := NewParameter("bias", Zeros[B](tensor.Shape{outChannels}, backend))
	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight:      weight,
		bias:        bias,
		backend:     backend,
	}
}

// Kind reports KindConv2D.
func (c *Conv2D[B]) Kind() LayerKind { return KindConv2D }

// Forward convolves input [batch, inChannels, H, W] to
// [batch, outChannels, H', W'].
func (c *Conv2D[B]) Forward(_ Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("Conv2D.Forward: expected 4D input [batch, channels, h, w], got shape %v", shape))
	}
	if shape[1] != c.inChannels {
		panic(fmt.Sprintf("Conv2D.Forward: expected %d input channels, got %d", c.inChannels, shape[1]))
	}

	raw := input.Backend().Conv2D(input.Raw(), c.weight.Tensor().Raw(), c.stride, c.padding)
	output := tensor.New[float32, B](raw, input.Backend())
	if c.bias != nil {
		output = output.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
	}
	return output
}

// Parameters returns [weight, bias], or just [weight] without a bias.
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Weight returns the kernel parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] { return c.weight }

// Bias returns the bias parameter, nil for bias-free layers.
func (c *Conv2D[B]) Bias() *Parameter[B] { return c.bias }

// InChannels returns the input channel count.
func (c *Conv2D[B]) InChannels() int { return c.inChannels }

// OutChannels returns the output channel count.
func (c *Conv2D[B]) OutChannels() int { return c.outChannels }

// KernelSize returns the spatial kernel size.
func (c *Conv2D[B]) KernelSize() [2]int { return c.kernelSize }

// Stride returns the convolution stride.
func (c *Conv2D[B]) Stride() [2]int { return c.stride }

// Padding returns the zero-padding amounts.
func (c *Conv2D[B]) Padding() [2]int { return c.padding }

// StateDict returns the layer's parameters keyed by name.
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	sd := map[string]*tensor.RawTensor{"weight": c.weight.Tensor().Raw()}
	if c.bias != nil {
		sd["bias"] = c.bias.Tensor().Raw()
	}
	return sd
}

// LoadStateDict copies kernel and bias values in, validating shapes.
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParam(stateDict, "weight", c.weight); err != nil {
		return err
	}
	if c.bias != nil {
		if err := loadParam(stateDict, "bias", c.bias); err != nil {
			return err
		}
	}
	return nil
}
