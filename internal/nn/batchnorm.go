package nn

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// BatchNorm2D normalizes NCHW activations per channel over the batch and
// spatial dimensions, then applies a learned scale and shift. Running
// statistics accumulate during training passes and replace the batch
// statistics at inference.
type BatchNorm2D[B tensor.Backend] struct {
	numFeatures int
	eps         float64
	momentum    float32

	gamma *Parameter[B]
	beta  *Parameter[B]

	runningMean []float32
	runningVar  []float32
	backend     B
}

// NewBatchNorm2D creates a batch normalization layer for numFeatures
// channels with the customary eps 1e-5 and momentum 0.1.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	bn := &BatchNorm2D[B]{
		numFeatures: numFeatures,
		eps:         1e-5,
		momentum:    0.1,
		gamma:       NewParameter("gamma", Ones[B](tensor.Shape{numFeatures}, backend)),
		beta:        NewParameter("beta", Zeros[B](tensor.Shape{numFeatures}, backend)),
		runningMean: make([]float32, numFeatures),
		runningVar:  make([]float32, numFeatures),
		backend:     backend,
	}
	for i := range bn.runningVar {
		bn.runningVar[i] = 1
	}
	return bn
}

// Forward normalizes input [batch, channels, H, W]. Training passes use the
// batch statistics and fold them into the running averages; inference passes
// use the running averages only.
func (bn *BatchNorm2D[B]) Forward(pass Pass, input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("BatchNorm2D.Forward: expected 4D input, got shape %v", shape))
	}
	if shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("BatchNorm2D.Forward: expected %d channels, got %d", bn.numFeatures, shape[1]))
	}

	var mean, variance *tensor.Tensor[float32, B]
	if pass.Train {
		// Channel statistics over batch and spatial dims, kept on the
		// tape so gradients flow through the normalization.
		mean = input.MeanDim(0, true).MeanDim(2, true).MeanDim(3, true)
		centered := input.Sub(mean)
		variance = centered.Square().MeanDim(0, true).MeanDim(2, true).MeanDim(3, true)
		bn.updateRunning(mean, variance)
	} else {
		mean = bn.statTensor(bn.runningMean)
		variance = bn.statTensor(bn.runningVar)
	}

	normalized := input.Sub(mean).Div(variance.AddScalar(float32(bn.eps)).Sqrt())
	scale := bn.gamma.Tensor().Reshape(1, bn.numFeatures, 1, 1)
	shift := bn.beta.Tensor().Reshape(1, bn.numFeatures, 1, 1)
	return normalized.Mul(scale).Add(shift)
}

// updateRunning folds batch statistics into the running averages. The reads
// go through the raw data so nothing extra lands on the tape.
func (bn *BatchNorm2D[B]) updateRunning(mean, variance *tensor.Tensor[float32, B]) {
	m := mean.Raw().AsFloat32()
	v := variance.Raw().AsFloat32()
	for c := 0; c < bn.numFeatures; c++ {
		bn.runningMean[c] = (1-bn.momentum)*bn.runningMean[c] + bn.momentum*m[c]
		bn.runningVar[c] = (1-bn.momentum)*bn.runningVar[c] + bn.momentum*v[c]
	}
}

// statTensor materializes a per-channel statistic as a [1, C, 1, 1] constant.
func (bn *BatchNorm2D[B]) statTensor(values []float32) *tensor.Tensor[float32, B] {
	raw, err := tensor.NewRaw(tensor.Shape{1, bn.numFeatures, 1, 1}, tensor.Float32, bn.backend.Device())
	if err != nil {
		panic(err)
	}
	copy(raw.AsFloat32(), values)
	return tensor.New[float32, B](raw, bn.backend)
}

// Parameters returns the scale and shift parameters.
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.gamma, bn.beta}
}

// NumFeatures returns the channel count.
func (bn *BatchNorm2D[B]) NumFeatures() int { return bn.numFeatures }

// StateDict returns gamma, beta, and the running statistics.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"gamma":        bn.gamma.Tensor().Raw(),
		"beta":         bn.beta.Tensor().Raw(),
		"running_mean": bn.sliceTensor(bn.runningMean),
		"running_var":  bn.sliceTensor(bn.runningVar),
	}
}

func (bn *BatchNorm2D[B]) sliceTensor(values []float32) *tensor.RawTensor {
	raw, err := tensor.NewRaw(tensor.Shape{bn.numFeatures}, tensor.Float32, bn.backend.Device())
	if err != nil {
		panic(err)
	}
	copy(raw.AsFloat32(), values)
	return raw
}

// LoadStateDict restores parameters and running statistics.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParam(stateDict, "gamma", bn.gamma); err != nil {
		return err
	}
	if err := loadParam(stateDict, "beta", bn.beta); err != nil {
		return err
	}
	for name, dst := range map[string][]float32{
		"running_mean": bn.runningMean,
		"running_var":  bn.runningVar,
	} {
		raw, ok := stateDict[name]
		if !ok {
			return fmt.Errorf("missing %s in state dict", name)
		}
		if raw.NumElements() != bn.numFeatures {
			return fmt.Errorf("%s length mismatch: expected %d, got %d", name, bn.numFeatures, raw.NumElements())
		}
		copy(dst, raw.AsFloat32())
	}
	return nil
}
