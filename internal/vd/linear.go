package vd

import (
	"fmt"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// Linear is a fully connected layer with variational dropout. Alongside the
// weight it learns logSigma2, the per-weight log noise variance, of the same
// shape. Both are ordinary parameters updated by the optimizer.
//
// The weight may be materialized lazily: a layer built with NewLinearLazy
// infers its input width from the first batch it sees.
type Linear[B tensor.Backend] struct {
	inFeatures  int // 0 until materialized for lazy layers
	outFeatures int
	hasBias     bool

	weight    *nn.Parameter[B]
	bias      *nn.Parameter[B]
	logSigma2 *nn.Parameter[B]

	logAlphaThreshold float64
	pThreshold        float64
	backend           B
}

// NewLinear creates a variational dropout linear layer with Xavier weights,
// zero bias, and logSigma2 at the -10 default.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	l := NewLinearLazy[B](outFeatures, backend)
	l.materialize(inFeatures)
	return l
}

// NewLinearNoBias creates a variational dropout linear layer without a bias
// term.
func NewLinearNoBias[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	l := NewLinearLazy[B](outFeatures, backend)
	l.hasBias = false
	l.materialize(inFeatures)
	return l
}

// NewLinearLazy creates a layer whose input width is inferred from the first
// forward pass.
func NewLinearLazy[B tensor.Backend](outFeatures int, backend B) *Linear[B] {
	return &Linear[B]{
		outFeatures:       outFeatures,
		hasBias:           true,
		logAlphaThreshold: DefaultLogAlphaThreshold,
		pThreshold:        DefaultPThreshold,
		backend:           backend,
	}
}

func (l *Linear[B]) materialize(inFeatures int) {
	l.inFeatures = inFeatures
	shape := tensor.Shape{l.outFeatures, inFeatures}
	l.weight = nn.NewParameter("weight", nn.Xavier(inFeatures, l.outFeatures, shape, l.backend))
	l.logSigma2 = nn.NewParameter("log_sigma2", nn.Full(shape, float32(DefaultLogSigma2), l.backend))
	if l.hasBias {
		l.bias = nn.NewParameter("bias", nn.Zeros[B](tensor.Shape{l.outFeatures}, l.backend))
	}
}

// Kind reports KindLinear so tree walks see the layer's structural role.
func (l *Linear[B]) Kind() nn.LayerKind { return nn.KindLinear }

// Variational marks the layer as already carrying dropout, so conversion
// passes leave it alone.
func (l *Linear[B]) Variational() {}

// Forward runs the dual-mode variational dropout pass. Inputs with more
// than two dimensions are flattened to [batch, rest] first, so a lazy layer
// fed NCHW activations infers its width from the flattened features.
// Training passes inject reparameterized noise, inference passes are
// deterministic with pruned weights zeroed.
func (l *Linear[B]) Forward(pass nn.Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("vd.Linear.Forward: expected at least 2D input [batch, features...], got shape %v", shape))
	}
	features := input.NumElements() / shape[0]
	if len(shape) > 2 {
		input = input.Reshape(shape[0], features)
	}
	if l.weight == nil {
		l.materialize(features)
	}
	if features != l.inFeatures {
		panic(fmt.Sprintf("vd.Linear.Forward: expected input with %d features, got %d", l.inFeatures, features))
	}

	var bias *tensor.Tensor[float32, B]
	if l.bias != nil {
		bias = l.bias.Tensor()
	}
	return DropoutLinear(pass.Train, input, l.weight.Tensor(), bias, l.logSigma2.Tensor(), l.logAlphaThreshold)
}

// KLDivergence returns the layer's scalar KL penalty, taped so gradients
// reach weight and logSigma2.
func (l *Linear[B]) KLDivergence() *tensor.Tensor[float32, B] {
	return KL(l.weight.Tensor(), l.logSigma2.Tensor())
}

// Parameters returns weight, logSigma2, and the bias when present. A lazy
// layer has none until its first forward pass.
func (l *Linear[B]) Parameters() []*nn.Parameter[B] {
	if l.weight == nil {
		return nil
	}
	params := []*nn.Parameter[B]{l.weight, l.logSigma2}
	if l.bias != nil {
		params = append(params, l.bias)
	}
	return params
}

// Weight returns the weight parameter, nil before lazy materialization.
func (l *Linear[B]) Weight() *nn.Parameter[B] { return l.weight }

// Bias returns the bias parameter, nil for bias-free layers.
func (l *Linear[B]) Bias() *nn.Parameter[B] { return l.bias }

// LogSigma2 returns the log noise-variance parameter.
func (l *Linear[B]) LogSigma2() *nn.Parameter[B] { return l.logSigma2 }

// InFeatures returns the input width, 0 before lazy materialization.
func (l *Linear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *Linear[B]) OutFeatures() int { return l.outFeatures }

// LogAlphaThreshold returns the pruning threshold on log-alpha.
func (l *Linear[B]) LogAlphaThreshold() float64 { return l.logAlphaThreshold }

// PThreshold returns the dropout-probability threshold used for reporting.
func (l *Linear[B]) PThreshold() float64 { return l.pThreshold }

// SetThresholds overrides the pruning and reporting thresholds.
func (l *Linear[B]) SetThresholds(logAlpha, p float64) {
	l.logAlphaThreshold = logAlpha
	l.pThreshold = p
}

// pruneCounts tallies per-weight dropout probabilities against threshold.
func (l *Linear[B]) pruneCounts(threshold float64) (sumP float64, total, pruned int64) {
	if l.weight == nil {
		return 0, 0, 0
	}
	p := pruneP(l.weight.Tensor().Raw().AsFloat32(), l.logSigma2.Tensor().Raw().AsFloat32())
	for _, v := range p {
		sumP += float64(v)
		if float64(v) > threshold {
			pruned++
		}
	}
	return sumP, int64(len(p)), pruned
}

// StateDict returns weight, log_sigma2, and bias when present.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	if l.weight == nil {
		return map[string]*tensor.RawTensor{}
	}
	sd := map[string]*tensor.RawTensor{
		"weight":     l.weight.Tensor().Raw(),
		"log_sigma2": l.logSigma2.Tensor().Raw(),
	}
	if l.bias != nil {
		sd["bias"] = l.bias.Tensor().Raw()
	}
	return sd
}

// LoadStateDict restores the layer parameters. A lazy layer materializes
// from the stored weight shape first.
func (l *Linear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if l.weight == nil {
		raw, ok := stateDict["weight"]
		if !ok {
			return fmt.Errorf("missing weight in state dict")
		}
		if len(raw.Shape()) != 2 {
			return fmt.Errorf("weight must be 2D, got shape %v", raw.Shape())
		}
		l.materialize(raw.Shape()[1])
	}
	if err := copyParam(stateDict, "weight", l.weight); err != nil {
		return err
	}
	if err := copyParam(stateDict, "log_sigma2", l.logSigma2); err != nil {
		return err
	}
	if l.bias != nil {
		if err := copyParam(stateDict, "bias", l.bias); err != nil {
			return err
		}
	}
	return nil
}

// copyParam copies a named state dict entry into p after validating shape
// and dtype.
func copyParam[B tensor.Backend](stateDict map[string]*tensor.RawTensor, name string, p *nn.Parameter[B]) error {
	raw, ok := stateDict[name]
	if !ok {
		return fmt.Errorf("missing %s in state dict", name)
	}
	want := p.Tensor().Shape()
	if !raw.Shape().Equal(want) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", name, want, raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%s dtype mismatch: expected float32, got %v", name, raw.DType())
	}
	p.SetData(raw.AsFloat32())
	return nil
}
