package vd

import (
	"fmt"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// LSTM is a long short-term memory layer built from two variational dropout
// projections: upward from the input and lateral from the previous hidden
// state. The lateral term joins the gate pre-activations only once a hidden
// state exists, so the first step of a sequence is input-driven.
//
// Pass.Recompute >= 1 checkpoints the gating arithmetic, recomputing it on
// the backward pass instead of retaining its intermediates. Results are
// numerically identical either way; the gating math is deterministic given
// its inputs.
type LSTM[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int

	upward  *Linear[B] // in -> 4*out, biased
	lateral *Linear[B] // out -> 4*out, no bias

	cell    *tensor.Tensor[float32, B]
	hidden  *tensor.Tensor[float32, B]
	backend B
}

// checkpointCellBackend is what the gate arithmetic needs to run inside a
// recompute-on-backward segment.
type checkpointCellBackend interface {
	tensor.CheckpointBackend
	tensor.SigmoidBackend
	tensor.TanhBackend
}

// NewLSTM creates a variational dropout LSTM layer.
func NewLSTM[B tensor.Backend](inFeatures, outFeatures int, backend B) *LSTM[B] {
	return &LSTM[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		upward:      NewLinear(inFeatures, 4*outFeatures, backend),
		lateral:     NewLinearNoBias(outFeatures, 4*outFeatures, backend),
		backend:     backend,
	}
}

// Step consumes one timestep [batch, inFeatures], advancing the stored cell
// and hidden state, and returns the new hidden state.
func (l *LSTM[B]) Step(pass nn.Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		panic(fmt.Sprintf("vd.LSTM: expected input [batch, %d], got shape %v", l.inFeatures, shape))
	}

	gates := l.upward.Forward(pass, input)
	if l.hidden != nil {
		gates = gates.Add(l.lateral.Forward(pass, l.hidden))
	}

	cNext, hNext := l.update(pass, gates, l.cell)
	l.cell, l.hidden = cNext, hNext
	return hNext
}

// update applies the gate nonlinearities and the cell update, optionally
// inside a checkpoint segment.
func (l *LSTM[B]) update(pass nn.Pass, gates, cPrev *tensor.Tensor[float32, B]) (cNext, hNext *tensor.Tensor[float32, B]) {
	backend := gates.Backend()
	cb, canCheckpoint := any(backend).(checkpointCellBackend)

	if pass.Recompute >= 1 && canCheckpoint {
		inputs := []*tensor.RawTensor{gates.Raw()}
		if cPrev != nil {
			inputs = append(inputs, cPrev.Raw())
		}
		joined := cb.Checkpoint(inputs, func(inputs []*tensor.RawTensor) *tensor.RawTensor {
			var prev *tensor.RawTensor
			if len(inputs) == 2 {
				prev = inputs[1]
			}
			c, h := lstmCell(backend, cb, inputs[0], prev)
			return backend.Cat([]*tensor.RawTensor{c, h}, 1)
		})
		parts := backend.Chunk(joined, 2, 1)
		return tensor.New[float32, B](parts[0], backend), tensor.New[float32, B](parts[1], backend)
	}

	sb, ok := any(backend).(interface {
		tensor.SigmoidBackend
		tensor.TanhBackend
	})
	if !ok {
		panic(fmt.Sprintf("vd.LSTM: backend %s does not support sigmoid/tanh", backend.Name()))
	}
	var prev *tensor.RawTensor
	if cPrev != nil {
		prev = cPrev.Raw()
	}
	c, h := lstmCell(backend, sb, gates.Raw(), prev)
	return tensor.New[float32, B](c, backend), tensor.New[float32, B](h, backend)
}

// lstmCell applies the standard gating to pre-activations [batch, 4*out]
// split into input, forget, candidate, and output gates:
//
//	c' = f ⊙ c + i ⊙ tanh(g)   (the forget term only with a previous cell)
//	h' = o ⊙ tanh(c')
func lstmCell(backend tensor.Backend, act interface {
	tensor.SigmoidBackend
	tensor.TanhBackend
}, gates, cPrev *tensor.RawTensor) (cNext, hNext *tensor.RawTensor) {
	parts := backend.Chunk(gates, 4, 1)
	i := act.Sigmoid(parts[0])
	f := act.Sigmoid(parts[1])
	g := act.Tanh(parts[2])
	o := act.Sigmoid(parts[3])

	cNext = backend.Mul(i, g)
	if cPrev != nil {
		cNext = backend.Add(cNext, backend.Mul(f, cPrev))
	}
	hNext = backend.Mul(o, act.Tanh(cNext))
	return cNext, hNext
}

// Forward satisfies nn.Module by running a single stateful step.
func (l *LSTM[B]) Forward(pass nn.Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return l.Step(pass, input)
}

// ResetState clears both the cell and hidden state.
func (l *LSTM[B]) ResetState() {
	l.cell = nil
	l.hidden = nil
}

// DetachState severs both states from the tape. Call between truncated
// backpropagation windows.
func (l *LSTM[B]) DetachState() {
	if l.cell != nil {
		l.cell = l.cell.Detach()
	}
	if l.hidden != nil {
		l.hidden = l.hidden.Detach()
	}
}

// State returns the current cell and hidden state, nil when uninitialized.
func (l *LSTM[B]) State() (cell, hidden *tensor.Tensor[float32, B]) {
	return l.cell, l.hidden
}

// SetState installs explicit cell and hidden states.
func (l *LSTM[B]) SetState(cell, hidden *tensor.Tensor[float32, B]) {
	l.cell = cell
	l.hidden = hidden
}

// KLDivergence sums the KL penalties of both projections.
func (l *LSTM[B]) KLDivergence() *tensor.Tensor[float32, B] {
	return l.upward.KLDivergence().Add(l.lateral.KLDivergence())
}

// Parameters returns the parameters of both projections.
func (l *LSTM[B]) Parameters() []*nn.Parameter[B] {
	return append(l.upward.Parameters(), l.lateral.Parameters()...)
}

// InFeatures returns the input width.
func (l *LSTM[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the hidden width.
func (l *LSTM[B]) OutFeatures() int { return l.outFeatures }

// Children exposes the projections for tree traversals.
func (l *LSTM[B]) Children() map[string]nn.Module[B] {
	return map[string]nn.Module[B]{"upward": l.upward, "lateral": l.lateral}
}

// ReplaceChild rejects replacement: the projections are structural.
func (l *LSTM[B]) ReplaceChild(name string, _ nn.Module[B]) error {
	return fmt.Errorf("lstm child %q cannot be replaced", name)
}

// StateDict returns both projections' parameters under prefixes.
func (l *LSTM[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for name, raw := range l.upward.StateDict() {
		sd["upward."+name] = raw
	}
	for name, raw := range l.lateral.StateDict() {
		sd["lateral."+name] = raw
	}
	return sd
}

// LoadStateDict restores both projections.
func (l *LSTM[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	split := map[string]map[string]*tensor.RawTensor{
		"upward.":  make(map[string]*tensor.RawTensor),
		"lateral.": make(map[string]*tensor.RawTensor),
	}
	for key, raw := range stateDict {
		for prefix, sub := range split {
			if len(key) > len(prefix) && key[:len(prefix)] == prefix {
				sub[key[len(prefix):]] = raw
			}
		}
	}
	if err := l.upward.LoadStateDict(split["upward."]); err != nil {
		return fmt.Errorf("lstm upward: %w", err)
	}
	if err := l.lateral.LoadStateDict(split["lateral."]); err != nil {
		return fmt.Errorf("lstm lateral: %w", err)
	}
	return nil
}
