// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// Core interfaces

// Module is the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Container is a module holding named child modules that can be enumerated
// and replaced. Layer-conversion passes walk containers.
type Container[B tensor.Backend] = nn.Container[B]

// Pass carries per-forward-call flags (training mode, checkpointing level)
// through a module tree.
type Pass = nn.Pass

// Inference is the zero-value pass: no training behavior, no checkpointing.
var Inference = nn.Inference

// Training is a plain training pass without checkpointing.
var Training = nn.Training

// LayerKind tags the structural role of a layer.
type LayerKind = nn.LayerKind

// Known layer kinds.
const (
	KindOther  LayerKind = nn.KindOther
	KindLinear LayerKind = nn.KindLinear
	KindConv2D LayerKind = nn.KindConv2D
)

// Kinded is implemented by layers that declare a LayerKind.
type Kinded = nn.Kinded

// KindOf returns the declared kind of m, or KindOther when m does not
// declare one.
func KindOf[B tensor.Backend](m Module[B]) LayerKind {
	return nn.KindOf(m)
}

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
// The tensor is marked as requiring gradients.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a new linear layer with Xavier initialization.
//
// Example:
//
//	backend := cpu.New()
//	layer := nn.NewLinear(784, 10, backend)
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, backend)
}

// NewLinearNoBias creates a linear layer without a bias term.
func NewLinearNoBias[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinearNoBias(inFeatures, outFeatures, backend)
}

// Conv2D represents a 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a 2D convolutional layer with Xavier initialization.
// kernelSize, stride and padding are given as [height, width] pairs.
func NewConv2D[B tensor.Backend](inChannels, outChannels int, kernelSize, stride, padding [2]int, backend B) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelSize, stride, padding, backend)
}

// MaxPool2D represents a 2D max pooling layer.
type MaxPool2D[B tensor.Backend] = nn.MaxPool2D[B]

// NewMaxPool2D creates a 2D max pooling layer.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride [2]int) *MaxPool2D[B] {
	return nn.NewMaxPool2D[B](kernelSize, stride)
}

// BatchNorm2D represents 2D batch normalization over NCHW input.
type BatchNorm2D[B tensor.Backend] = nn.BatchNorm2D[B]

// NewBatchNorm2D creates a batch normalization layer for numFeatures channels.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	return nn.NewBatchNorm2D(numFeatures, backend)
}

// Embedding represents a token embedding lookup table.
type Embedding[B tensor.Backend] = nn.Embedding[B]

// NewEmbedding creates an embedding table of numEmbeddings x embeddingDim.
func NewEmbedding[B tensor.Backend](numEmbeddings, embeddingDim int, backend B) *Embedding[B] {
	return nn.NewEmbedding(numEmbeddings, embeddingDim, backend)
}

// Activations

// ReLU applies the rectified linear unit element-wise.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a ReLU activation module.
func NewReLU[B tensor.Backend]() *ReLU[B] { return nn.NewReLU[B]() }

// Sigmoid applies the logistic function element-wise.
type Sigmoid[B tensor.Backend] = nn.Sigmoid[B]

// NewSigmoid creates a Sigmoid activation module.
func NewSigmoid[B tensor.Backend]() *Sigmoid[B] { return nn.NewSigmoid[B]() }

// Tanh applies the hyperbolic tangent element-wise.
type Tanh[B tensor.Backend] = nn.Tanh[B]

// NewTanh creates a Tanh activation module.
func NewTanh[B tensor.Backend]() *Tanh[B] { return nn.NewTanh[B]() }

// Flatten reshapes [batch, ...] input to [batch, features].
type Flatten[B tensor.Backend] = nn.Flatten[B]

// NewFlatten creates a Flatten module.
func NewFlatten[B tensor.Backend]() *Flatten[B] { return nn.NewFlatten[B]() }

// Containers and losses

// Sequential chains modules, feeding each output to the next module.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a sequential container from the given modules.
//
// Example:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 300, backend),
//	    nn.NewReLU[B](),
//	    nn.NewLinear(300, 10, backend),
//	)
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// CrossEntropyLoss combines log-softmax and negative log-likelihood.
type CrossEntropyLoss[B tensor.Backend] = nn.CrossEntropyLoss[B]

// NewCrossEntropyLoss creates a cross-entropy loss module.
func NewCrossEntropyLoss[B tensor.Backend]() *CrossEntropyLoss[B] {
	return nn.NewCrossEntropyLoss[B]()
}

// Accuracy returns the fraction of rows where argmax(logits) equals the target.
func Accuracy[B tensor.Backend](logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) float32 {
	return nn.Accuracy(logits, targets)
}

// Initialization helpers

// Xavier samples a tensor from the Xavier/Glorot uniform distribution.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, backend)
}

// Checkpointing

// OptimizerState is the optimizer surface checkpoints need.
type OptimizerState = nn.OptimizerState

// Checkpoint is a resumable training snapshot: model parameters, optimizer
// state and the position in the training run.
type Checkpoint[B tensor.Backend] = nn.Checkpoint[B]

// LoadCheckpoint restores model and optimizer state from a .vard checkpoint
// file and returns the stored training position.
func LoadCheckpoint[B tensor.Backend](path string, backend B, model Module[B], optimizer OptimizerState) (*Checkpoint[B], error) {
	return nn.LoadCheckpoint(path, backend, model, optimizer)
}
