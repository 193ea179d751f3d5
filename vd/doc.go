// Copyright 2025 Vard ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package vd provides variational dropout layers that learn their own
// sparsity during training.
//
// # Overview
//
// Variational dropout (Molchanov et al., "Variational Dropout Sparsifies
// Deep Neural Networks") learns a per-weight noise variance alongside each
// weight. Weights whose implied dropout rate grows large carry no signal and
// are pruned at inference, typically compressing dense networks by one to
// two orders of magnitude with little accuracy loss.
//
// # Layers
//
// Drop-in replacements for their nn counterparts:
//   - Linear (plus lazy and bias-free variants)
//   - Conv2D
//   - TanhRNN and LSTM recurrent cells
//
// Existing dense networks convert in place:
//
//	report, err := vd.ConvertTree(model, backend)
//
// # Training
//
// The training loss is cross-entropy plus a KL divergence penalty that
// pushes uninformative weights toward pruning. Chain orchestrates the sum
// and the KL warm-up schedule:
//
//	chain := vd.NewChain(model, 1.0/50000, backend)
//	result := chain.CalcLoss(nn.Training, x, targets, vd.LossOptions{AddKL: true})
//	optimizer.ZeroGrad()
//	autodiff.Backward(result.Total, paramTensors...)
//	optimizer.Step()
//
// # Deployment
//
// After training, CalcStats reports achieved sparsity and SparsifyTree
// replaces variational layers with compacted sparse inference layers:
//
//	stats := vd.CalcStats(model, vd.DefaultLogAlphaThreshold)
//	report, err := vd.SparsifyTree(model, backend)
package vd
