package vd

import (
	"fmt"
	"math"

	"k8s.io/klog/v2"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

// Stats aggregates pruning statistics over every variational dropout layer
// in a network.
type Stats struct {
	// MeanP is the mean per-weight dropout probability p = α/(1+α).
	MeanP float64
	// Sparsity is the fraction of weights whose p exceeds the threshold.
	Sparsity float64
	// W is the total weight count, Wnz the non-pruned count.
	W   int64
	Wnz int64
	// CompressionRatio is W/Wnz, +Inf when every weight is pruned.
	CompressionRatio float64
}

// String renders the statistics on one line.
func (s Stats) String() string {
	return fmt.Sprintf("mean_p=%.4f sparsity=%.4f W=%d Wnz=%d compression=%.1fx",
		s.MeanP, s.Sparsity, s.W, s.Wnz, s.CompressionRatio)
}

// statLayer is the internal surface statistics collection needs from a
// variational dropout layer.
type statLayer interface {
	PThreshold() float64
	pruneCounts(threshold float64) (sumP float64, total, pruned int64)
}

// klLayer is implemented by every layer contributing a KL penalty.
type klLayer[B tensor.Backend] interface {
	KLDivergence() *tensor.Tensor[float32, B]
}

// CalcStats walks the module tree and aggregates pruning statistics over
// every variational dropout layer, judging each weight against threshold.
// A layer whose own reporting threshold disagrees gets a warning; the
// caller-supplied threshold still wins.
func CalcStats[B tensor.Backend](root nn.Module[B], threshold float64) Stats {
	var sumP float64
	var total, pruned int64

	walk(root, "", func(path string, m nn.Module[B]) bool {
		layer, ok := m.(statLayer)
		if !ok {
			return true
		}
		if layer.PThreshold() != threshold {
			klog.Warningf("vd: layer %s reports with threshold %.3f but stats use %.3f", path, layer.PThreshold(), threshold)
		}
		s, t, p := layer.pruneCounts(threshold)
		sumP += s
		total += t
		pruned += p
		return false
	})

	stats := Stats{W: total, Wnz: total - pruned}
	if total > 0 {
		stats.MeanP = sumP / float64(total)
		stats.Sparsity = float64(pruned) / float64(total)
	}
	if stats.Wnz == 0 {
		stats.CompressionRatio = math.Inf(1)
	} else {
		stats.CompressionRatio = float64(stats.W) / float64(stats.Wnz)
	}
	return stats
}

// SumKL walks the module tree and sums the KL penalties of every
// variational dropout layer onto one taped scalar. It returns nil when the
// tree holds no such layer.
func SumKL[B tensor.Backend](root nn.Module[B]) *tensor.Tensor[float32, B] {
	var total *tensor.Tensor[float32, B]
	walk(root, "", func(_ string, m nn.Module[B]) bool {
		layer, ok := m.(klLayer[B])
		if !ok {
			return true
		}
		kl := layer.KLDivergence()
		if total == nil {
			total = kl
		} else {
			total = total.Add(kl)
		}
		// Recurrent layers report their projections' KL themselves;
		// descending further would double count.
		return false
	})
	return total
}

// walk visits every module in the tree, parents before children, with
// /-joined paths. The visit callback reports whether to descend into the
// node's children.
func walk[B tensor.Backend](m nn.Module[B], path string, visit func(path string, m nn.Module[B]) bool) {
	if !visit(path, m) {
		return
	}
	container, ok := m.(nn.Container[B])
	if !ok {
		return
	}
	for name, child := range container.Children() {
		childPath := name
		if path != "" {
			childPath = path + "/" + name
		}
		walk(child, childPath, visit)
	}
}
