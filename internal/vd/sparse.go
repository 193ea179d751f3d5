package vd

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// SparseLinear is an inference-only fully connected layer whose pruned
// weights have been physically removed. Surviving entries live in CSR form
// (row pointers per output unit). It carries no logSigma2 and is not
// trainable.
type SparseLinear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	rowPtr      []int32
	cols        []int32
	values      []float32
	bias        []float32
	backend     B
}

// FromVDLinear freezes l's pruning decisions at its current log-alpha
// threshold and compacts the surviving weights. It returns the sparse layer
// and the number of weights dropped.
func FromVDLinear[B tensor.Backend](l *Linear[B], backend B) (*SparseLinear[B], int64) {
	w := l.Weight().Tensor().Raw().AsFloat32()
	logSigma2 := l.LogSigma2().Tensor().Raw().AsFloat32()
	in, out := l.InFeatures(), l.OutFeatures()

	s := &SparseLinear[B]{
		inFeatures:  in,
		outFeatures: out,
		rowPtr:      make([]int32, out+1),
		backend:     backend,
	}
	var dropped int64
	for row := 0; row < out; row++ {
		for col := 0; col < in; col++ {
			idx := row*in + col
			la := float64(logSigma2[idx]) - math.Log(float64(w[idx])*float64(w[idx])+Eps)
			if la < LogAlphaClipLo {
				la = LogAlphaClipLo
			} else if la > LogAlphaClipHi {
				la = LogAlphaClipHi
			}
			if la > l.LogAlphaThreshold() {
				dropped++
				continue
			}
			s.cols = append(s.cols, int32(col))
			s.values = append(s.values, w[idx])
		}
		s.rowPtr[row+1] = int32(len(s.values))
	}
	if l.Bias() != nil {
		s.bias = append([]float32(nil), l.Bias().Tensor().Raw().AsFloat32()...)
	}
	return s, dropped
}

// Forward computes the deterministic sparse product for input
// [batch, inFeatures]. Training flags are ignored; the layer is frozen.
func (s *SparseLinear[B]) Forward(_ nn.Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != s.inFeatures {
		panic(fmt.Sprintf("vd.SparseLinear.Forward: expected input [batch, %d], got shape %v", s.inFeatures, shape))
	}
	batch := shape[0]

	raw, err := tensor.NewRaw(tensor.Shape{batch, s.outFeatures}, tensor.Float32, s.backend.Device())
	if err != nil {
		panic(err)
	}
	x := input.Raw().AsFloat32()
	y := raw.AsFloat32()
	for b := 0; b < batch; b++ {
		xRow := x[b*s.inFeatures : (b+1)*s.inFeatures]
		yRow := y[b*s.outFeatures : (b+1)*s.outFeatures]
		for row := 0; row < s.outFeatures; row++ {
			var acc float32
			for k := s.rowPtr[row]; k < s.rowPtr[row+1]; k++ {
				acc += s.values[k] * xRow[s.cols[k]]
			}
			if s.bias != nil {
				acc += s.bias[row]
			}
			yRow[row] = acc
		}
	}
	return tensor.New[float32, B](raw, s.backend)
}

// NNZ returns the number of surviving weights.
func (s *SparseLinear[B]) NNZ() int { return len(s.values) }

// InFeatures returns the input width.
func (s *SparseLinear[B]) InFeatures() int { return s.inFeatures }

// OutFeatures returns the output width.
func (s *SparseLinear[B]) OutFeatures() int { return s.outFeatures }

// Parameters returns nil: the layer is a frozen inference artifact.
func (s *SparseLinear[B]) Parameters() []*nn.Parameter[B] { return nil }

// StateDict returns an empty map; sparse layers are rebuilt from their
// source VD layer rather than serialized.
func (s *SparseLinear[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (s *SparseLinear[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// SparsifyEntry records one layer's compaction.
type SparsifyEntry struct {
	Path   string
	Before int64
	After  int64
}

// RetainedEntry records a leaf kept dense, with its weight count.
type RetainedEntry struct {
	Path   string
	Params int64
}

// SparsifyReport summarizes a tree sparsification. Retained leaves count
// toward both totals: their weights survive unchanged.
type SparsifyReport struct {
	Layers   []SparsifyEntry
	Retained []RetainedEntry
	Before   int64
	After    int64
}

// String renders per-layer and total parameter reductions.
func (r *SparsifyReport) String() string {
	var sb strings.Builder
	for _, e := range r.Layers {
		fmt.Fprintf(&sb, "%s: %s -> %s weights\n", e.Path, humanize.Comma(e.Before), humanize.Comma(e.After))
	}
	for _, e := range r.Retained {
		fmt.Fprintf(&sb, "retain %s: %s weights\n", e.Path, humanize.Comma(e.Params))
	}
	fmt.Fprintf(&sb, "total: %s -> %s weights\n", humanize.Comma(r.Before), humanize.Comma(r.After))
	return sb.String()
}

// SparsifyTree replaces every variational dropout linear layer in the tree
// with a compacted sparse inference layer, in place. Other leaves are
// retained as-is. The network must be CPU-resident: sparsification never
// migrates accelerator memory on its own.
func SparsifyTree[B tensor.Backend](root nn.Container[B], backend B) (*SparsifyReport, error) {
	if backend.Device() != tensor.CPU {
		klog.Warningf("vd: sparsification requires a CPU-resident network, got device %s", backend.Device())
		return nil, fmt.Errorf("sparsify: network resides on %s, move it to CPU first", backend.Device())
	}
	report := &SparsifyReport{}
	if err := sparsifyChildren(root, backend, "", report); err != nil {
		return nil, err
	}
	return report, nil
}

// weightCount measures a retained leaf: the weight tensor for weighted
// layers, otherwise every parameter element.
func weightCount[B tensor.Backend](m nn.Module[B]) int64 {
	if wl, ok := m.(interface{ Weight() *nn.Parameter[B] }); ok {
		if w := wl.Weight(); w != nil {
			return int64(w.Tensor().NumElements())
		}
		return 0
	}
	var total int64
	for _, p := range m.Parameters() {
		total += int64(p.Tensor().NumElements())
	}
	return total
}

func sparsifyChildren[B tensor.Backend](parent nn.Container[B], backend B, prefix string, report *SparsifyReport) error {
	children := parent.Children()
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	type candidate struct {
		name   string
		layer  *Linear[B]
		sparse *SparseLinear[B]
	}
	var candidates []candidate
	for _, name := range names {
		child := children[name]
		path := prefix + name

		if vdLinear, ok := child.(*Linear[B]); ok {
			sparse, _ := FromVDLinear(vdLinear, backend)
			candidates = append(candidates, candidate{name: name, layer: vdLinear, sparse: sparse})
			continue
		}
		if sub, ok := child.(nn.Container[B]); ok {
			if err := sparsifyChildren(sub, backend, path+"/", report); err != nil {
				return err
			}
			continue
		}
		if params := weightCount(child); params > 0 {
			report.Retained = append(report.Retained, RetainedEntry{Path: path, Params: params})
			report.Before += params
			report.After += params
		}
	}

	for _, c := range candidates {
		if err := parent.ReplaceChild(c.name, c.sparse); err != nil {
			// Recurrent layers hold their projections structurally and
			// refuse replacement; they stay dense.
			klog.Warningf("vd: keeping %s%s dense: %v", prefix, c.name, err)
			params := int64(c.layer.InFeatures()) * int64(c.layer.OutFeatures())
			report.Retained = append(report.Retained, RetainedEntry{Path: prefix + c.name, Params: params})
			report.Before += params
			report.After += params
			continue
		}
		before := int64(c.layer.InFeatures()) * int64(c.layer.OutFeatures())
		after := int64(c.sparse.NNZ())
		report.Layers = append(report.Layers, SparsifyEntry{Path: prefix + c.name, Before: before, After: after})
		report.Before += before
		report.After += after
	}
	return nil
}
