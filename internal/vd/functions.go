// Package vd implements variational dropout (Molchanov et al., "Variational
// Dropout Sparsifies Deep Neural Networks") as layers over the tensor and nn
// substrate. Each layer learns a per-weight noise variance alongside the
// weight itself; weights whose implied dropout rate grows large are pruned.
package vd

import (
	"math"

	"github.com/vard-ml/vard/internal/tensor"
)

// Defaults shared by every variational dropout layer.
const (
	// Eps guards log(W²) against W == 0.
	Eps = 1e-8
	// LogAlphaClipLo and LogAlphaClipHi bound log-alpha for numerical
	// stability.
	LogAlphaClipLo = -8.0
	LogAlphaClipHi = 8.0
	// DefaultLogSigma2 initializes the log-variance parameter; e^-10 is
	// near-deterministic, so fresh layers behave like their plain
	// counterparts.
	DefaultLogSigma2 = -10.0
	// DefaultLogAlphaThreshold prunes weights whose log-alpha exceeds it.
	DefaultLogAlphaThreshold = 3.0
	// DefaultPThreshold is the dropout-probability cut used for sparsity
	// reporting.
	DefaultPThreshold = 0.95
)

// Constants of the cubic-sigmoid approximation to the negative KL divergence
// between the weight's noise posterior and the log-uniform prior.
const (
	k1 = 0.63576
	k2 = 1.8732
	k3 = 1.49215
)

// LogAlpha computes clip(logSigma2 - log(W² + eps), -8, 8), the log ratio of
// noise variance to squared weight magnitude. All operations stay on the
// tape so gradients reach both parameters.
func LogAlpha[B tensor.Backend](w, logSigma2 *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	logW2 := w.Square().AddScalar(float32(Eps)).Log()
	return logSigma2.Sub(logW2).Clip(LogAlphaClipLo, LogAlphaClipHi)
}

// KL computes the layer's KL divergence penalty, a single scalar summed over
// all weights:
//
//	-Σ ( k1·σ(k2 + k3·logα) − ½·log(1 + e^(−logα)) − k1 )
//
// Pruning state is deliberately ignored: the regularizer always sees the
// full continuous approximation, exactly as the forward-pass masking never
// feeds back into it.
func KL[B tensor.Backend](w, logSigma2 *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	logAlpha := LogAlpha(w, logSigma2)
	sig := logAlpha.MulScalar(float32(k3)).AddScalar(float32(k2)).Sigmoid().MulScalar(float32(k1))
	softplus := logAlpha.MulScalar(-1).Exp().AddScalar(1).Log().MulScalar(0.5)
	negKL := sig.Sub(softplus).AddScalar(float32(-k1))
	return negKL.Sum().MulScalar(-1)
}

// KeepMask returns a float mask that is 0 where logAlpha exceeds the pruning
// threshold and 1 elsewhere. The comparison is not differentiable, so the
// mask acts as a constant in the graph: gradients flow to the surviving
// weights only.
func KeepMask[B tensor.Backend](logAlpha *tensor.Tensor[float32, B], threshold float64) *tensor.Tensor[float32, B] {
	limit := tensor.Full(logAlpha.Shape(), float32(threshold), logAlpha.Backend())
	return logAlpha.LowerEqual(limit).Float32()
}

// DropoutLinear is the dual-mode fully connected forward pass.
//
// Training passes use the local reparameterization trick: noise is injected
// into the pre-activations rather than the weights, which is equivalent in
// distribution but much cheaper per mini-batch:
//
//	mu = x @ (keep ⊙ W)ᵀ
//	si = sqrt(x² @ (e^logα ⊙ W²)ᵀ + eps)
//	y  = mu + si ⊙ ε,  ε ~ N(0, 1)
//
// Inference passes are deterministic: y = x @ (keep ⊙ W)ᵀ, pruned weights
// contributing exactly zero. The bias, when present, is added last in both
// modes.
func DropoutLinear[B tensor.Backend](train bool, x, w, bias, logSigma2 *tensor.Tensor[float32, B], logAlphaThreshold float64) *tensor.Tensor[float32, B] {
	logAlpha := LogAlpha(w, logSigma2)
	keep := KeepMask(logAlpha, logAlphaThreshold)
	masked := w.Mul(keep)

	var out *tensor.Tensor[float32, B]
	if train {
		mu := x.MatMul(masked.T())
		variance := x.Square().MatMul(logAlpha.Exp().Mul(w.Square()).T())
		si := variance.AddScalar(float32(Eps)).Sqrt()
		noise := tensor.Randn[float32](mu.Shape(), x.Backend())
		out = mu.Add(si.Mul(noise))
	} else {
		out = x.MatMul(masked.T())
	}
	if bias != nil {
		out = out.Add(bias.Reshape(1, bias.Shape()[0]))
	}
	return out
}

// DropoutConv2D is the convolutional analogue of DropoutLinear: the mean
// path convolves with the masked kernel and the variance path convolves x²
// with e^logα ⊙ W², sharing stride and padding.
func DropoutConv2D[B tensor.Backend](train bool, x, w, bias, logSigma2 *tensor.Tensor[float32, B], logAlphaThreshold float64, stride, padding [2]int) *tensor.Tensor[float32, B] {
	backend := x.Backend()
	logAlpha := LogAlpha(w, logSigma2)
	keep := KeepMask(logAlpha, logAlphaThreshold)
	masked := w.Mul(keep)

	var out *tensor.Tensor[float32, B]
	if train {
		mu := tensor.New[float32, B](backend.Conv2D(x.Raw(), masked.Raw(), stride, padding), backend)
		varKernel := logAlpha.Exp().Mul(w.Square())
		variance := tensor.New[float32, B](backend.Conv2D(x.Square().Raw(), varKernel.Raw(), stride, padding), backend)
		si := variance.AddScalar(float32(Eps)).Sqrt()
		noise := tensor.Randn[float32](mu.Shape(), backend)
		out = mu.Add(si.Mul(noise))
	} else {
		out = tensor.New[float32, B](backend.Conv2D(x.Raw(), masked.Raw(), stride, padding), backend)
	}
	if bias != nil {
		out = out.Add(bias.Reshape(1, bias.Shape()[0], 1, 1))
	}
	return out
}

// pruneP returns the per-weight dropout probability p = α/(1+α) computed
// directly on the parameter data. Used by statistics only, so it never
// touches the tape.
func pruneP(w, logSigma2 []float32) []float32 {
	p := make([]float32, len(w))
	for i := range w {
		la := float64(logSigma2[i]) - math.Log(float64(w[i])*float64(w[i])+Eps)
		if la < LogAlphaClipLo {
			la = LogAlphaClipLo
		} else if la > LogAlphaClipHi {
			la = LogAlphaClipHi
		}
		alpha := math.Exp(la)
		p[i] = float32(alpha / (1 + alpha))
	}
	return p
}
