package nn

import (
	"fmt"
	"strconv"

	"github.com/vard-ml/vard/internal/tensor"
)

// Sequential chains modules so each output feeds the next input. Children
// are named by their position ("0", "1", ...), which keeps state dicts and
// tree traversals stable.
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a Sequential container from the given modules.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{modules: modules}
}

// Forward applies all modules in order, threading the pass flags through.
func (s *Sequential[B]) Forward(pass Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(pass, output)
	}
	return output
}

// Parameters collects the parameters of every module in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Add appends a module to the sequence.
func (s *Sequential[B]) Add(module Module[B]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules.
func (s *Sequential[B]) Len() int { return len(s.modules) }

// Module returns the module at index. Panics when out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// Children returns the modules keyed by position.
func (s *Sequential[B]) Children() map[string]Module[B] {
	children := make(map[string]Module[B], len(s.modules))
	for i, module := range s.modules {
		children[strconv.Itoa(i)] = module
	}
	return children
}

// ReplaceChild swaps the module at the named position.
func (s *Sequential[B]) ReplaceChild(name string, child Module[B]) error {
	index, err := strconv.Atoi(name)
	if err != nil || index < 0 || index >= len(s.modules) {
		return fmt.Errorf("sequential has no child %q", name)
	}
	s.modules[index] = child
	return nil
}

// StateDict prefixes each module's parameters with its position, e.g.
// "0.weight".
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		for name, raw := range module.StateDict() {
			stateDict[fmt.Sprintf("%d.%s", i, name)] = raw
		}
	}
	return stateDict
}

// LoadStateDict routes prefixed entries back to each module.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		prefix := fmt.Sprintf("%d.", i)
		sub := make(map[string]*tensor.RawTensor)
		for key, raw := range stateDict {
			if len(key) > len(prefix) && key[:len(prefix)] == prefix {
				sub[key[len(prefix):]] = raw
			}
		}
		if len(sub) > 0 {
			if err := module.LoadStateDict(sub); err != nil {
				return fmt.Errorf("failed to load module %d: %w", i, err)
			}
		}
	}
	return nil
}
