package cpu

import (
	"fmt"
	"math"

	"github.com/vard-ml/vard/internal/tensor"
)

// ReLU applies max(0, x).
func (c *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return mathOp(x, "relu", func(v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// Sigmoid applies 1/(1+exp(-x)).
func (c *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return mathOp(x, "sigmoid", func(v float64) float64 {
		return 1.0 / (1.0 + math.Exp(-v))
	})
}

// Tanh applies the hyperbolic tangent.
func (c *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return mathOp(x, "tanh", math.Tanh)
}

// CrossEntropy computes the mean softmax cross-entropy of logits
// [batch, classes] against int32 targets [batch].
func (c *CPUBackend) CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	batch, classes := crossEntropyDims(logits, targets)

	lv := logits.AsFloat32()
	tv := targets.AsInt32()

	var total float64
	for b := 0; b < batch; b++ {
		row := lv[b*classes : (b+1)*classes]
		t := int(tv[b])
		if t < 0 || t >= classes {
			panic(fmt.Sprintf("cpu: target %d out of range for %d classes", t, classes))
		}
		total -= float64(row[t]) - logSumExp(row)
	}

	out := mustNewRaw(tensor.Shape{1}, tensor.Float32)
	out.AsFloat32()[0] = float32(total / float64(batch))
	return out
}

// CrossEntropyBackward returns d(mean loss)/d(logits): (softmax - onehot)/batch.
func (c *CPUBackend) CrossEntropyBackward(logits, targets *tensor.RawTensor) *tensor.RawTensor {
	batch, classes := crossEntropyDims(logits, targets)

	grad := c.Softmax(logits, 1)
	gv := grad.AsFloat32()
	tv := targets.AsInt32()

	inv := 1.0 / float32(batch)
	for b := 0; b < batch; b++ {
		gv[b*classes+int(tv[b])] -= 1
		for j := 0; j < classes; j++ {
			gv[b*classes+j] *= inv
		}
	}
	return grad
}

func crossEntropyDims(logits, targets *tensor.RawTensor) (batch, classes int) {
	if len(logits.Shape()) != 2 {
		panic(fmt.Sprintf("cpu: cross-entropy logits must be 2D, got %v", logits.Shape()))
	}
	if len(targets.Shape()) != 1 || targets.Shape()[0] != logits.Shape()[0] {
		panic(fmt.Sprintf("cpu: cross-entropy targets must be [%d], got %v", logits.Shape()[0], targets.Shape()))
	}
	if targets.DType() != tensor.Int32 {
		panic(fmt.Sprintf("cpu: cross-entropy targets must be int32, got %s", targets.DType()))
	}
	return logits.Shape()[0], logits.Shape()[1]
}

func logSumExp(row []float32) float64 {
	maxV := float64(math.Inf(-1))
	for _, v := range row {
		if float64(v) > maxV {
			maxV = float64(v)
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v) - maxV)
	}
	return maxV + math.Log(sum)
}
