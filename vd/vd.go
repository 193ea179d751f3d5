// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package vd

import (
	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
	"github.com/vard-ml/vard/internal/vd"
)

// Defaults shared by every variational dropout layer.
const (
	// Eps guards log(W²) against W == 0.
	Eps = vd.Eps
	// LogAlphaClipLo and LogAlphaClipHi bound log-alpha for numerical
	// stability.
	LogAlphaClipLo = vd.LogAlphaClipLo
	LogAlphaClipHi = vd.LogAlphaClipHi
	// DefaultLogSigma2 initializes the log-variance parameter.
	DefaultLogSigma2 = vd.DefaultLogSigma2
	// DefaultLogAlphaThreshold prunes weights whose log-alpha exceeds it.
	DefaultLogAlphaThreshold = vd.DefaultLogAlphaThreshold
	// DefaultPThreshold is the dropout-probability cut used for sparsity
	// reporting.
	DefaultPThreshold = vd.DefaultPThreshold
)

// Layers

// Linear is a fully connected layer with variational dropout.
type Linear[B tensor.Backend] = vd.Linear[B]

// NewLinear creates a variational dropout linear layer.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	layer := vd.NewLinear(784, 300, backend)
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return vd.NewLinear(inFeatures, outFeatures, backend)
}

// NewLinearNoBias creates a variational dropout linear layer without bias.
func NewLinearNoBias[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return vd.NewLinearNoBias(inFeatures, outFeatures, backend)
}

// NewLinearLazy creates a layer whose input width is inferred from the first
// forward pass.
func NewLinearLazy[B tensor.Backend](outFeatures int, backend B) *Linear[B] {
	return vd.NewLinearLazy(outFeatures, backend)
}

// Conv2D is a 2D convolutional layer with variational dropout.
type Conv2D[B tensor.Backend] = vd.Conv2D[B]

// NewConv2D creates a variational dropout convolutional layer.
// kernelSize, stride and padding are [height, width] pairs.
func NewConv2D[B tensor.Backend](inChannels, outChannels int, kernelSize, stride, padding [2]int, backend B) *Conv2D[B] {
	return vd.NewConv2D(inChannels, outChannels, kernelSize, stride, padding, backend)
}

// NewConv2DLazy creates a layer whose input channel count is inferred from
// the first forward pass.
func NewConv2DLazy[B tensor.Backend](outChannels int, kernelSize, stride, padding [2]int, backend B) *Conv2D[B] {
	return vd.NewConv2DLazy[B](outChannels, kernelSize, stride, padding, backend)
}

// Square expands n into the [n, n] pair Conv2D parameters expect.
func Square(n int) [2]int { return vd.Square(n) }

// TanhRNN is a vanilla recurrent cell with variational dropout on both the
// input and recurrent weight matrices.
type TanhRNN[B tensor.Backend] = vd.TanhRNN[B]

// NewTanhRNN creates a variational dropout recurrent cell.
func NewTanhRNN[B tensor.Backend](inFeatures, outFeatures int, backend B) *TanhRNN[B] {
	return vd.NewTanhRNN(inFeatures, outFeatures, backend)
}

// LSTM is an LSTM cell with variational dropout on both weight matrices.
type LSTM[B tensor.Backend] = vd.LSTM[B]

// NewLSTM creates a variational dropout LSTM cell.
func NewLSTM[B tensor.Backend](inFeatures, outFeatures int, backend B) *LSTM[B] {
	return vd.NewLSTM(inFeatures, outFeatures, backend)
}

// Conversion

// Variational marks layers implementing variational dropout.
type Variational = vd.Variational

// ConversionReport lists what a tree conversion did, by /-joined path.
type ConversionReport = vd.ConversionReport

// FromLinear builds a variational dropout layer from a dense layer,
// copying its weights. Inference output is unchanged immediately after
// conversion.
func FromLinear[B tensor.Backend](l *nn.Linear[B], backend B) *Linear[B] {
	return vd.FromLinear(l, backend)
}

// FromConv2D builds a variational dropout layer from a dense convolutional
// layer, copying its weights.
func FromConv2D[B tensor.Backend](c *nn.Conv2D[B], backend B) *Conv2D[B] {
	return vd.FromConv2D(c, backend)
}

// Convert returns the variational dropout equivalent of a single module, or
// the module itself when no equivalent exists.
func Convert[B tensor.Backend](m nn.Module[B], backend B) (nn.Module[B], error) {
	return vd.Convert(m, backend)
}

// ConvertTree converts every linear and convolutional layer in the tree to
// its variational dropout equivalent, in place.
func ConvertTree[B tensor.Backend](root nn.Container[B], backend B) (*ConversionReport, error) {
	return vd.ConvertTree(root, backend)
}

// Training

// Chain wraps a model with loss orchestration: cross-entropy plus the KL
// penalty under a warm-up schedule.
type Chain[B tensor.Backend] = vd.Chain[B]

// LossResult carries the components of one CalcLoss call.
type LossResult[B tensor.Backend] = vd.LossResult[B]

// LossOptions configures a CalcLoss call.
type LossOptions = vd.LossOptions

// NewChain wraps model with loss orchestration. warmUp is the per-step
// increment of the KL coefficient, which starts at 0 and saturates at 1.
func NewChain[B tensor.Backend](model nn.Module[B], warmUp float32, backend B) *Chain[B] {
	return vd.NewChain(model, warmUp, backend)
}

// SumKL sums the KL divergence penalty over every variational dropout layer
// in the tree.
func SumKL[B tensor.Backend](root nn.Module[B]) *tensor.Tensor[float32, B] {
	return vd.SumKL[B](root)
}

// Statistics and deployment

// Stats aggregates pruning statistics over every variational dropout layer.
type Stats = vd.Stats

// CalcStats walks the module tree and aggregates pruning statistics, judging
// each weight against threshold.
func CalcStats[B tensor.Backend](root nn.Module[B], threshold float64) Stats {
	return vd.CalcStats(root, threshold)
}

// SparseLinear is a compacted inference-only replacement for a pruned
// variational dropout linear layer.
type SparseLinear[B tensor.Backend] = vd.SparseLinear[B]

// SparsifyEntry records one layer's compaction.
type SparsifyEntry = vd.SparsifyEntry

// SparsifyReport summarizes a tree sparsification.
type SparsifyReport = vd.SparsifyReport

// FromVDLinear compacts a trained layer into a sparse inference layer,
// returning it with the retained weight count.
func FromVDLinear[B tensor.Backend](l *Linear[B], backend B) (*SparseLinear[B], int64) {
	return vd.FromVDLinear(l, backend)
}

// SparsifyTree replaces every variational dropout linear layer in the tree
// with a compacted sparse inference layer, in place. The network must be
// CPU-resident.
func SparsifyTree[B tensor.Backend](root nn.Container[B], backend B) (*SparsifyReport, error) {
	return vd.SparsifyTree(root, backend)
}

// Low-level functions

// LogAlpha computes clip(logSigma2 - log(W² + eps), -8, 8).
func LogAlpha[B tensor.Backend](w, logSigma2 *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return vd.LogAlpha(w, logSigma2)
}

// KL computes a layer's scalar KL divergence penalty.
func KL[B tensor.Backend](w, logSigma2 *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return vd.KL(w, logSigma2)
}

// KeepMask returns a float mask of weights whose log-alpha stays at or below
// threshold.
func KeepMask[B tensor.Backend](logAlpha *tensor.Tensor[float32, B], threshold float64) *tensor.Tensor[float32, B] {
	return vd.KeepMask(logAlpha, threshold)
}
