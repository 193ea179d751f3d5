package vd

import (
	"math"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// Chain wraps a model with variational dropout loss orchestration: it owns
// the KL coefficient and its warm-up schedule and assembles total loss =
// class loss + klCoef · ΣKL. The model is held by composition; Chain adds
// behavior without wrapping the model's own interface away.
type Chain[B tensor.Backend] struct {
	model   nn.Module[B]
	loss    *nn.CrossEntropyLoss[B]
	klCoef  float32
	warmUp  float32
	backend B
}

// LossResult carries the components of one CalcLoss call.
type LossResult[B tensor.Backend] struct {
	// Total is the scalar training loss, taped.
	Total *tensor.Tensor[float32, B]
	// Class and KL are the split components. KL is nil when the KL term
	// was not requested.
	Class *tensor.Tensor[float32, B]
	KL    *tensor.Tensor[float32, B]
	// KLCoef is the coefficient applied to the KL term this step.
	KLCoef float32
	// Ignored flags a step whose loss went non-finite; the offending
	// component was zeroed and callers may skip the optimizer update.
	Ignored bool
	// Stats is filled when CalcLoss was asked for statistics.
	Stats *Stats
	// Logits is the model output, for accuracy bookkeeping.
	Logits *tensor.Tensor[float32, B]
}

// LossOptions configures a CalcLoss call.
type LossOptions struct {
	// AddKL includes the KL term and advances the warm-up schedule.
	AddKL bool
	// StatsThreshold, when non-zero, collects pruning statistics at that
	// threshold after the forward pass.
	StatsThreshold float64
}

// NewChain wraps model with loss orchestration. warmUp is the per-step
// increment of the KL coefficient, which starts at 0 and saturates at 1.
// A zero warmUp disables the schedule: the coefficient starts at 1 and the
// KL term applies at full strength from the first step.
func NewChain[B tensor.Backend](model nn.Module[B], warmUp float32, backend B) *Chain[B] {
	c := &Chain[B]{
		model:   model,
		loss:    nn.NewCrossEntropyLoss[B](),
		warmUp:  warmUp,
		backend: backend,
	}
	if warmUp == 0 {
		c.klCoef = 1
	}
	return c
}

// Model returns the wrapped model.
func (c *Chain[B]) Model() nn.Module[B] { return c.model }

// KLCoef returns the current KL coefficient.
func (c *Chain[B]) KLCoef() float32 { return c.klCoef }

// SetKLCoef overrides the KL coefficient, clamped into [0, 1].
func (c *Chain[B]) SetKLCoef(coef float32) {
	if coef < 0 {
		coef = 0
	} else if coef > 1 {
		coef = 1
	}
	c.klCoef = coef
}

// Parameters returns the model's parameters.
func (c *Chain[B]) Parameters() []*nn.Parameter[B] { return c.model.Parameters() }

// CalcLoss runs the model forward on x, computes cross-entropy against the
// integer targets, and assembles the total loss.
//
// With opts.AddKL, the summed per-layer KL penalty joins scaled by the
// current coefficient, and the coefficient then advances by warmUp (capped
// at 1). A non-finite component during a training pass is replaced by an
// exact zero and the step flagged Ignored instead of poisoning downstream
// aggregation.
func (c *Chain[B]) CalcLoss(pass nn.Pass, x *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B], opts LossOptions) LossResult[B] {
	result := LossResult[B]{KLCoef: c.klCoef}

	logits := c.model.Forward(pass, x)
	result.Logits = logits
	classLoss := c.loss.Loss(logits, targets)

	if pass.Train && !isFinite(classLoss.Item()) {
		classLoss = c.zeroScalar()
		result.Ignored = true
	}
	result.Class = classLoss
	total := classLoss

	if opts.AddKL {
		kl := SumKL(c.model)
		if kl == nil {
			kl = c.zeroScalar()
		}
		if pass.Train && !isFinite(kl.Item()) {
			kl = c.zeroScalar()
			result.Ignored = true
		}
		result.KL = kl
		total = total.Add(kl.MulScalar(c.klCoef))

		c.klCoef += c.warmUp
		if c.klCoef > 1 {
			c.klCoef = 1
		}
	}
	result.Total = total

	if opts.StatsThreshold != 0 {
		stats := CalcStats(c.model, opts.StatsThreshold)
		result.Stats = &stats
	}
	return result
}

// zeroScalar builds an untaped zero so a poisoned component contributes
// neither value nor gradient.
func (c *Chain[B]) zeroScalar() *tensor.Tensor[float32, B] {
	return nn.Zeros[B](tensor.Shape{1}, c.backend)
}

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
