package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vard-ml/vard/internal/autodiff"
	"github.com/vard-ml/vard/internal/backend/cpu"
	"github.com/vard-ml/vard/internal/tensor"
)

type testBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newTestBackend() testBackend {
	return autodiff.New(cpu.NewSequential())
}

func fromSlice(t *testing.T, b testBackend, data []float32, shape tensor.Shape) *tensor.Tensor[float32, testBackend] {
	t.Helper()
	tt, err := tensor.FromSlice[float32](data, shape, b)
	require.NoError(t, err)
	return tt
}

func TestLinearForward(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(2, 3, b)
	layer.Weight().SetData([]float32{1, 0, 0, 1, 1, 1})
	layer.Bias().SetData([]float32{0.5, -0.5, 0})

	input := fromSlice(t, b, []float32{2, 4}, tensor.Shape{1, 2})
	output := layer.Forward(Inference, input)

	require.Equal(t, tensor.Shape{1, 3}, output.Shape())
	assert.InDeltaSlice(t, []float32{2.5, 3.5, 6}, output.Raw().AsFloat32(), 1e-6)
}

func TestLinearRejectsBadInput(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(4, 2, b)
	input := fromSlice(t, b, []float32{1, 2, 3}, tensor.Shape{1, 3})
	assert.Panics(t, func() { layer.Forward(Inference, input) })
}

func TestLinearStateDictRoundTrip(t *testing.T) {
	b := newTestBackend()
	src := NewLinear(3, 2, b)
	dst := NewLinear(3, 2, b)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	assert.Equal(t, src.Weight().Tensor().Raw().AsFloat32(), dst.Weight().Tensor().Raw().AsFloat32())
	assert.Equal(t, src.Bias().Tensor().Raw().AsFloat32(), dst.Bias().Tensor().Raw().AsFloat32())
}

func TestLinearLoadStateDictShapeMismatch(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(3, 2, b)
	wrong, err := tensor.NewRaw(tensor.Shape{2, 4}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	err = layer.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": wrong,
		"bias":   layer.Bias().Tensor().Raw(),
	})
	assert.Error(t, err)
}

func TestSequentialForwardAndChildren(t *testing.T) {
	b := newTestBackend()
	model := NewSequential[testBackend](
		NewLinear(4, 8, b),
		NewReLU[testBackend](),
		NewLinear(8, 2, b),
	)

	input := fromSlice(t, b, make([]float32, 4), tensor.Shape{1, 4})
	output := model.Forward(Inference, input)
	assert.Equal(t, tensor.Shape{1, 2}, output.Shape())

	children := model.Children()
	require.Len(t, children, 3)
	assert.Equal(t, KindLinear, KindOf[testBackend](children["0"]))
	assert.Equal(t, KindOther, KindOf[testBackend](children["1"]))

	// Swap the middle activation and make sure the tree reflects it.
	require.NoError(t, model.ReplaceChild("1", NewTanh[testBackend]()))
	_, isTanh := model.Module(1).(*Tanh[testBackend])
	assert.True(t, isTanh)

	assert.Error(t, model.ReplaceChild("99", NewReLU[testBackend]()))
}

func TestSequentialParametersAndStateDict(t *testing.T) {
	b := newTestBackend()
	model := NewSequential[testBackend](
		NewLinear(2, 2, b),
		NewLinear(2, 2, b),
	)
	assert.Len(t, model.Parameters(), 4)

	sd := model.StateDict()
	assert.Contains(t, sd, "0.weight")
	assert.Contains(t, sd, "1.bias")

	clone := NewSequential[testBackend](
		NewLinear(2, 2, b),
		NewLinear(2, 2, b),
	)
	require.NoError(t, clone.LoadStateDict(sd))
	assert.Equal(t,
		model.Module(0).(*Linear[testBackend]).Weight().Tensor().Raw().AsFloat32(),
		clone.Module(0).(*Linear[testBackend]).Weight().Tensor().Raw().AsFloat32())
}

func TestConv2DForwardShape(t *testing.T) {
	b := newTestBackend()
	layer := NewConv2D(1, 2, [2]int{3, 3}, [2]int{1, 1}, [2]int{1, 1}, b)

	input := fromSlice(t, b, make([]float32, 16), tensor.Shape{1, 1, 4, 4})
	output := layer.Forward(Inference, input)
	assert.Equal(t, tensor.Shape{1, 2, 4, 4}, output.Shape())
	assert.Equal(t, KindConv2D, layer.Kind())
}

func TestMaxPool2DDefaultStride(t *testing.T) {
	b := newTestBackend()
	pool := NewMaxPool2D[testBackend]([2]int{2, 2}, [2]int{})

	input := fromSlice(t, b, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, tensor.Shape{1, 1, 4, 4})
	output := pool.Forward(Inference, input)
	require.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float32{6, 8, 14, 16}, output.Raw().AsFloat32())
}

func TestFlatten(t *testing.T) {
	b := newTestBackend()
	f := NewFlatten[testBackend]()
	input := fromSlice(t, b, make([]float32, 24), tensor.Shape{2, 3, 2, 2})
	output := f.Forward(Inference, input)
	assert.Equal(t, tensor.Shape{2, 12}, output.Shape())
}

func TestBatchNorm2DTrainNormalizes(t *testing.T) {
	b := newTestBackend()
	bn := NewBatchNorm2D(1, b)

	input := fromSlice(t, b, []float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 1, 2, 2})
	output := bn.Forward(Training, input)

	var sum float32
	for _, v := range output.Raw().AsFloat32() {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-4)

	// Running statistics moved toward the batch statistics.
	assert.InDelta(t, 0.45, bn.runningMean[0], 1e-4)
	assert.Greater(t, bn.runningVar[0], float32(0.9))
}

func TestBatchNorm2DEvalUsesRunningStats(t *testing.T) {
	b := newTestBackend()
	bn := NewBatchNorm2D(1, b)

	input := fromSlice(t, b, []float32{10, 10, 10, 10}, tensor.Shape{1, 1, 2, 2})
	output := bn.Forward(Inference, input)
	// Fresh running stats are mean 0, var 1, so eval output equals input.
	assert.InDeltaSlice(t, []float32{10, 10, 10, 10}, output.Raw().AsFloat32(), 1e-3)
}

func TestCrossEntropyLossAndAccuracy(t *testing.T) {
	b := newTestBackend()
	logits := fromSlice(t, b, []float32{5, 0, 0, 0, 5, 0}, tensor.Shape{2, 3})
	targets, err := tensor.FromSlice[int32]([]int32{0, 1}, tensor.Shape{2}, b)
	require.NoError(t, err)

	loss := NewCrossEntropyLoss[testBackend]().Loss(logits, targets)
	assert.Less(t, loss.Item(), float32(0.1))
	assert.Equal(t, float32(1), Accuracy(logits, targets))
}

func TestEmbeddingLookup(t *testing.T) {
	b := newTestBackend()
	emb := NewEmbedding(5, 3, b)
	indices, err := tensor.FromSlice[int32]([]int32{1, 4}, tensor.Shape{2}, b)
	require.NoError(t, err)

	out := emb.Lookup(indices)
	require.Equal(t, tensor.Shape{2, 3}, out.Shape())
	table := emb.Weight().Tensor().Raw().AsFloat32()
	assert.Equal(t, table[3:6], out.Raw().AsFloat32()[0:3])
	assert.Equal(t, table[12:15], out.Raw().AsFloat32()[3:6])
}
