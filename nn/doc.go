// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network building blocks for the Vard ML framework.
//
// # Overview
//
// The package exposes:
//   - Module: the base interface every layer implements
//   - Container: modules with named, replaceable children
//   - Parameter: trainable parameters with gradient tracking
//   - Layers: Linear, Conv2D, MaxPool2D, BatchNorm2D, Embedding
//   - Activations: ReLU, Sigmoid, Tanh, Flatten
//   - Sequential container and CrossEntropyLoss
//   - Checkpoint save and restore for training runs
//
// # Basic Usage
//
//	import (
//	    "github.com/vard-ml/vard/autodiff"
//	    "github.com/vard-ml/vard/backend/cpu"
//	    "github.com/vard-ml/vard/nn"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//
//	    model := nn.NewSequential(
//	        nn.NewLinear(784, 300, backend),
//	        nn.NewReLU[*autodiff.Backend[*cpu.Backend]](),
//	        nn.NewLinear(300, 10, backend),
//	    )
//
//	    logits := model.Forward(nn.Training, input)
//	}
//
// # Training versus inference
//
// Forward takes a Pass value instead of the module holding mode state.
// nn.Training enables stochastic behavior and running-statistics updates;
// nn.Inference (the zero value) disables both. The Recompute field selects
// gradient checkpointing levels for memory-bound recurrent models.
package nn
