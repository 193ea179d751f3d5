package optim

import (
	"fmt"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// SGDConfig configures stochastic gradient descent.
type SGDConfig struct {
	LR       float32
	Momentum float32 // 0 disables the velocity buffer
}

// SGD implements stochastic gradient descent with optional momentum:
//
//	v = momentum*v + grad
//	w = w - lr*v
type SGD[B tensor.Backend] struct {
	params     []*nn.Parameter[B]
	lr         float32
	momentum   float32
	velocities [][]float32
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig) *SGD[B] {
	return &SGD[B]{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make([][]float32, len(params)),
	}
}

func (s *SGD[B]) Step() {
	for i, p := range s.params {
		grad := gradData(p)
		if grad == nil {
			continue
		}
		data := p.Tensor().Raw().AsFloat32()
		if s.momentum == 0 {
			for j := range data {
				data[j] -= s.lr * grad[j]
			}
			continue
		}
		v := s.velocities[i]
		if v == nil {
			v = make([]float32, len(data))
			s.velocities[i] = v
		}
		for j := range data {
			v[j] = s.momentum*v[j] + grad[j]
			data[j] -= s.lr * v[j]
		}
	}
}

func (s *SGD[B]) ZeroGrad() {
	for _, p := range s.params {
		p.ZeroGrad()
	}
}

func (s *SGD[B]) LR() float32      { return s.lr }
func (s *SGD[B]) SetLR(lr float32) { s.lr = lr }

// StateDict returns momentum buffers keyed "velocity.<index>". Parameters
// whose buffer has not been allocated yet are omitted.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for i, v := range s.velocities {
		if v != nil {
			state[fmt.Sprintf("velocity.%d", i)] = sliceTensor(v)
		}
	}
	return state
}

func (s *SGD[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, p := range s.params {
		raw, ok := stateDict[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		n := p.Tensor().Raw().NumElements()
		if raw.NumElements() != n {
			return fmt.Errorf("velocity.%d: expected %d elements, got %d", i, n, raw.NumElements())
		}
		v := make([]float32, n)
		copy(v, raw.AsFloat32())
		s.velocities[i] = v
	}
	return nil
}
