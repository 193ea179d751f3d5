package optim

import (
	"fmt"
	"math"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// AdamConfig configures the Adam optimizer. Zero values fall back to the
// usual defaults (lr 0.001, betas 0.9/0.999, eps 1e-8).
type AdamConfig struct {
	LR    float32
	Betas [2]float32
	Eps   float32
}

// Adam implements the Adam optimizer with bias-corrected first and second
// moment estimates.
type Adam[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int
	m      [][]float32
	v      [][]float32
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas == [2]float32{} {
		config.Betas = [2]float32{0.9, 0.999}
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam[B]{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make([][]float32, len(params)),
		v:      make([][]float32, len(params)),
	}
}

func (a *Adam[B]) Step() {
	a.t++
	corr1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.t)))
	corr2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.t)))
	for i, p := range a.params {
		grad := gradData(p)
		if grad == nil {
			continue
		}
		data := p.Tensor().Raw().AsFloat32()
		m, v := a.m[i], a.v[i]
		if m == nil {
			m = make([]float32, len(data))
			v = make([]float32, len(data))
			a.m[i], a.v[i] = m, v
		}
		for j := range data {
			g := grad[j]
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			mHat := m[j] / corr1
			vHat := v[j] / corr2
			data[j] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

func (a *Adam[B]) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

func (a *Adam[B]) LR() float32      { return a.lr }
func (a *Adam[B]) SetLR(lr float32) { a.lr = lr }

// StateDict returns the moment buffers keyed "m.<index>" and "v.<index>"
// plus the step counter under "t".
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for i := range a.params {
		if a.m[i] != nil {
			state[fmt.Sprintf("m.%d", i)] = sliceTensor(a.m[i])
			state[fmt.Sprintf("v.%d", i)] = sliceTensor(a.v[i])
		}
	}
	state["t"] = sliceTensor([]float32{float32(a.t)})
	return state
}

func (a *Adam[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if raw, ok := stateDict["t"]; ok {
		if raw.NumElements() != 1 {
			return fmt.Errorf("t: expected 1 element, got %d", raw.NumElements())
		}
		a.t = int(raw.AsFloat32()[0])
	}
	for i, p := range a.params {
		mRaw, okM := stateDict[fmt.Sprintf("m.%d", i)]
		vRaw, okV := stateDict[fmt.Sprintf("v.%d", i)]
		if !okM && !okV {
			continue
		}
		if okM != okV {
			return fmt.Errorf("parameter %d: moment buffers must be stored as a pair", i)
		}
		n := p.Tensor().Raw().NumElements()
		if mRaw.NumElements() != n || vRaw.NumElements() != n {
			return fmt.Errorf("parameter %d: expected %d elements in moment buffers", i, n)
		}
		a.m[i] = make([]float32, n)
		a.v[i] = make([]float32, n)
		copy(a.m[i], mRaw.AsFloat32())
		copy(a.v[i], vRaw.AsFloat32())
	}
	return nil
}
