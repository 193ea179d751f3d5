package vd

import (
	"fmt"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// TanhRNN is a simple recurrent layer whose state transition is a
// variational dropout linear over the concatenated input and previous
// hidden state:
//
//	h' = tanh(VDLinear(concat(x, h)))
//
// The layer is stateful by default: Step threads the stored hidden state
// across calls. StepWith runs statelessly against a caller-supplied state
// and leaves the stored one untouched.
type TanhRNN[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	cell        *Linear[B]
	state       *tensor.Tensor[float32, B]
	backend     B
}

// NewTanhRNN creates a tanh recurrent layer.
func NewTanhRNN[B tensor.Backend](inFeatures, outFeatures int, backend B) *TanhRNN[B] {
	return &TanhRNN[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		cell:        NewLinear(inFeatures+outFeatures, outFeatures, backend),
		backend:     backend,
	}
}

// Step consumes one timestep [batch, inFeatures] and advances the stored
// hidden state. A cleared state is lazily reallocated as zeros sized from
// the input's batch dimension.
func (r *TanhRNN[B]) Step(pass nn.Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if r.state == nil {
		r.state = nn.Zeros[B](tensor.Shape{input.Shape()[0], r.outFeatures}, r.backend)
	}
	next := r.StepWith(pass, input, r.state)
	r.state = next
	return next
}

// DetachState severs the stored state from the tape. Call between truncated
// backpropagation windows so gradients stop at the window boundary.
func (r *TanhRNN[B]) DetachState() {
	if r.state != nil {
		r.state = r.state.Detach()
	}
}

// StepWith consumes one timestep against an explicit hidden state. The
// stored state is not read or written.
func (r *TanhRNN[B]) StepWith(pass nn.Pass, input, state *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != r.inFeatures {
		panic(fmt.Sprintf("vd.TanhRNN: expected input [batch, %d], got shape %v", r.inFeatures, shape))
	}
	if !state.Shape().Equal(tensor.Shape{shape[0], r.outFeatures}) {
		panic(fmt.Sprintf("vd.TanhRNN: expected state [%d, %d], got shape %v", shape[0], r.outFeatures, state.Shape()))
	}
	joined := tensor.Cat([]*tensor.Tensor[float32, B]{input, state}, 1)
	return r.cell.Forward(pass, joined).Tanh()
}

// Forward satisfies nn.Module by running a single stateful step.
func (r *TanhRNN[B]) Forward(pass nn.Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return r.Step(pass, input)
}

// ResetState clears the stored hidden state. The next stateful step starts
// from zeros.
func (r *TanhRNN[B]) ResetState() { r.state = nil }

// State returns the stored hidden state, nil when uninitialized.
func (r *TanhRNN[B]) State() *tensor.Tensor[float32, B] { return r.state }

// SetState installs an explicit hidden state for subsequent stateful steps.
func (r *TanhRNN[B]) SetState(state *tensor.Tensor[float32, B]) { r.state = state }

// KLDivergence returns the recurrent cell's KL penalty.
func (r *TanhRNN[B]) KLDivergence() *tensor.Tensor[float32, B] {
	return r.cell.KLDivergence()
}

// Parameters returns the recurrent cell's parameters.
func (r *TanhRNN[B]) Parameters() []*nn.Parameter[B] { return r.cell.Parameters() }

// Children exposes the recurrent cell for tree traversals.
func (r *TanhRNN[B]) Children() map[string]nn.Module[B] {
	return map[string]nn.Module[B]{"cell": r.cell}
}

// ReplaceChild rejects replacement: the cell is structural, not swappable.
func (r *TanhRNN[B]) ReplaceChild(name string, _ nn.Module[B]) error {
	return fmt.Errorf("tanh rnn child %q cannot be replaced", name)
}

// StateDict returns the cell parameters under a "cell." prefix.
func (r *TanhRNN[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for name, raw := range r.cell.StateDict() {
		sd["cell."+name] = raw
	}
	return sd
}

// LoadStateDict restores the cell parameters.
func (r *TanhRNN[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	sub := make(map[string]*tensor.RawTensor)
	for key, raw := range stateDict {
		if len(key) > 5 && key[:5] == "cell." {
			sub[key[5:]] = raw
		}
	}
	return r.cell.LoadStateDict(sub)
}
