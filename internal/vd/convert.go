package vd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// Variational is implemented by layers that already carry variational
// dropout, so conversion passes skip them.
type Variational interface {
	Variational()
}

// ConversionReport lists what a tree conversion did, by /-joined path.
type ConversionReport struct {
	Converted []string
	Retained  []string
}

// String renders the report one layer per line.
func (r *ConversionReport) String() string {
	var sb strings.Builder
	for _, path := range r.Converted {
		fmt.Fprintf(&sb, "converted %s\n", path)
	}
	for _, path := range r.Retained {
		fmt.Fprintf(&sb, "retained  %s\n", path)
	}
	return sb.String()
}

// FromLinear builds a variational dropout layer matching l's configuration:
// the weight and bias values are copied verbatim and logSigma2 starts at the
// -10 default, so inference output is unchanged immediately after
// conversion (nothing is pruned yet).
func FromLinear[B tensor.Backend](l *nn.Linear[B], backend B) *Linear[B] {
	var converted *Linear[B]
	if l.Bias() != nil {
		converted = NewLinear(l.InFeatures(), l.OutFeatures(), backend)
		converted.bias.SetData(l.Bias().Tensor().Raw().AsFloat32())
	} else {
		converted = NewLinearNoBias(l.InFeatures(), l.OutFeatures(), backend)
	}
	converted.weight.SetData(l.Weight().Tensor().Raw().AsFloat32())
	return converted
}

// FromConv2D builds a variational dropout convolution matching c's
// configuration with copied kernel and bias.
func FromConv2D[B tensor.Backend](c *nn.Conv2D[B], backend B) *Conv2D[B] {
	converted := NewConv2D(c.InChannels(), c.OutChannels(), c.KernelSize(), c.Stride(), c.Padding(), backend)
	converted.weight.SetData(c.Weight().Tensor().Raw().AsFloat32())
	if c.Bias() != nil {
		converted.bias.SetData(c.Bias().Tensor().Raw().AsFloat32())
	} else {
		converted.bias = nil
		converted.hasBias = false
	}
	return converted
}

// Convert builds the variational dropout variant of a single plain layer.
// It fails for layer kinds outside {Linear, Conv2D}.
func Convert[B tensor.Backend](m nn.Module[B], backend B) (nn.Module[B], error) {
	switch layer := m.(type) {
	case *nn.Linear[B]:
		return FromLinear(layer, backend), nil
	case *nn.Conv2D[B]:
		return FromConv2D(layer, backend), nil
	default:
		return nil, fmt.Errorf("cannot convert layer of kind %s to variational dropout", nn.KindOf(m))
	}
}

// ConvertTree walks a module tree depth-first in sorted child-name order and
// replaces every plain linear and convolution layer with its variational
// dropout variant in place. Layers already variational and layers of other
// kinds are retained untouched; both outcomes appear in the report.
//
// Traversal is two-phase per container: children are inspected first and
// replacements applied afterwards, so the child map is never mutated while
// being walked.
func ConvertTree[B tensor.Backend](root nn.Container[B], backend B) (*ConversionReport, error) {
	report := &ConversionReport{}
	if err := convertChildren(root, backend, "", report); err != nil {
		return nil, err
	}
	return report, nil
}

func convertChildren[B tensor.Backend](parent nn.Container[B], backend B, prefix string, report *ConversionReport) error {
	children := parent.Children()
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	replacements := make(map[string]nn.Module[B])
	for _, name := range names {
		child := children[name]
		path := prefix + name

		if sub, ok := child.(nn.Container[B]); ok {
			if err := convertChildren(sub, backend, path+"/", report); err != nil {
				return err
			}
			continue
		}
		if _, already := child.(Variational); already {
			report.Retained = append(report.Retained, path)
			continue
		}

		switch nn.KindOf(child) {
		case nn.KindLinear, nn.KindConv2D:
			converted, err := Convert(child, backend)
			if err != nil {
				return fmt.Errorf("converting %s: %w", path, err)
			}
			replacements[name] = converted
			report.Converted = append(report.Converted, path)
		default:
			report.Retained = append(report.Retained, path)
		}
	}

	for _, name := range names {
		if converted, ok := replacements[name]; ok {
			if err := parent.ReplaceChild(name, converted); err != nil {
				return fmt.Errorf("replacing %s%s: %w", prefix, name, err)
			}
		}
	}
	return nil
}
