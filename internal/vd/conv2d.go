package vd

import (
	"fmt"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// Conv2D is a 2D convolution layer with variational dropout over NCHW
// inputs. The kernel and its logSigma2 share the shape
// [outChannels, inChannels, kH, kW].
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  [2]int
	stride      [2]int
	padding     [2]int
	hasBias     bool

	weight    *nn.Parameter[B]
	bias      *nn.Parameter[B]
	logSigma2 *nn.Parameter[B]

	logAlphaThreshold float64
	pThreshold        float64
	backend           B
}

// Square expands a single kernel size into a square [2]int, the common
// shorthand for symmetric kernels, strides, and padding.
func Square(n int) [2]int { return [2]int{n, n} }

// NewConv2D creates a variational dropout convolution layer with Xavier
// kernels, zero bias, and logSigma2 at the -10 default.
func NewConv2D[B tensor.Backend](inChannels, outChannels int, kernelSize, stride, padding [2]int, backend B) *Conv2D[B] {
	c := NewConv2DLazy[B](outChannels, kernelSize, stride, padding, backend)
	c.materialize(inChannels)
	return c
}

// NewConv2DLazy creates a layer whose input channel count is inferred from
// the first forward pass.
func NewConv2DLazy[B tensor.Backend](outChannels int, kernelSize, stride, padding [2]int, backend B) *Conv2D[B] {
	return &Conv2D[B]{
		outChannels:       outChannels,
		kernelSize:        kernelSize,
		stride:            stride,
		padding:           padding,
		hasBias:           true,
		logAlphaThreshold: DefaultLogAlphaThreshold,
		pThreshold:        DefaultPThreshold,
		backend:           backend,
	}
}

func (c *Conv2D[B]) materialize(inChannels int) {
	c.inChannels = inChannels
	fanIn := inChannels * c.kernelSize[0] * c.kernelSize[1]
	fanOut := c.outChannels * c.kernelSize[0] * c.kernelSize[1]
	kernelShape := tensor.Shape{c.outChannels, inChannels, c.kernelSize[0], c.kernelSize[1]}
	c.weight = nn.NewParameter("weight", nn.Xavier(fanIn, fanOut, kernelShape, c.backend))
	c.logSigma2 = nn.NewParameter("log_sigma2", nn.Full(kernelShape, float32(DefaultLogSigma2), c.backend))
	if c.hasBias {
		c.bias = nn.NewParameter("bias", nn.Zeros[B](tensor.Shape{c.outChannels}, c.backend))
	}
}

// Kind reports KindConv2D.
func (c *Conv2D[B]) Kind() nn.LayerKind { return nn.KindConv2D }

// Variational marks the layer as already carrying dropout.
func (c *Conv2D[B]) Variational() {}

// Forward runs the dual-mode variational dropout convolution for input
// [batch, inChannels, H, W].
func (c *Conv2D[B]) Forward(pass nn.Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("vd.Conv2D.Forward: expected 4D input [batch, channels, h, w], got shape %v", shape))
	}
	if c.weight == nil {
		c.materialize(shape[1])
	}
	if shape[1] != c.inChannels {
		panic(fmt.Sprintf("vd.Conv2D.Forward: expected %d input channels, got %d", c.inChannels, shape[1]))
	}

	var bias *tensor.Tensor[float32, B]
	if c.bias != nil {
		bias = c.bias.Tensor()
	}
	return DropoutConv2D(pass.Train, input, c.weight.Tensor(), bias, c.logSigma2.Tensor(), c.logAlphaThreshold, c.stride, c.padding)
}

// KLDivergence returns the layer's scalar KL penalty.
func (c *Conv2D[B]) KLDivergence() *tensor.Tensor[float32, B] {
	return KL(c.weight.Tensor(), c.logSigma2.Tensor())
}

// Parameters returns kernel, logSigma2, and the bias when present. A lazy
// layer has none until its first forward pass.
func (c *Conv2D[B]) Parameters() []*nn.Parameter[B] {
	if c.weight == nil {
		return nil
	}
	params := []*nn.Parameter[B]{c.weight, c.logSigma2}
	if c.bias != nil {
		params = append(params, c.bias)
	}
	return params
}

// Weight returns the kernel parameter.
func (c *Conv2D[B]) Weight() *nn.Parameter[B] { return c.weight }

// Bias returns the bias parameter, nil for bias-free layers.
func (c *Conv2D[B]) Bias() *nn.Parameter[B] { return c.bias }

// LogSigma2 returns the log noise-variance parameter.
func (c *Conv2D[B]) LogSigma2() *nn.Parameter[B] { return c.logSigma2 }

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

// LogAlphaThreshold returns the pruning threshold on log-alpha.
func (c *Conv2D[B]) LogAlphaThreshold() float64 { return c.logAlphaThreshold }

// PThreshold returns the dropout-probability threshold used for reporting.
func (c *Conv2D[B]) PThreshold() float64 { return c.pThreshold }

// SetThresholds overrides the pruning and reporting thresholds.
func (c *Conv2D[B]) SetThresholds(logAlpha, p float64) {
	c.logAlphaThreshold = logAlpha
	c.pThreshold = p
}

func (c *Conv2D[B]) pruneCounts(threshold float64) (sumP float64, total, pruned int64) {
	p := pruneP(c.weight.Tensor().Raw().AsFloat32(), c.logSigma2.Tensor().Raw().AsFloat32())
	for _, v := range p {
		sumP += float64(v)
		if float64(v) > threshold {
			pruned++
		}
	}
	return sumP, int64(len(p)), pruned
}

// StateDict returns weight, log_sigma2, and bias when present.
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	sd := map[string]*tensor.RawTensor{
		"weight":     c.weight.Tensor().Raw(),
		"log_sigma2": c.logSigma2.Tensor().Raw(),
	}
	if c.bias != nil {
		sd["bias"] = c.bias.Tensor().Raw()
	}
	return sd
}

// LoadStateDict restores the layer parameters.
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := copyParam(stateDict, "weight", c.weight); err != nil {
		return err
	}
	if err := copyParam(stateDict, "log_sigma2", c.logSigma2); err != nil {
		return err
	}
	if c.bias != nil {
		if err := copyParam(stateDict, "bias", c.bias); err != nil {
			return err
		}
	}
	return nil
}
