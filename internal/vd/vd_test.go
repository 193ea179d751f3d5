package vd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vard-ml/vard/internal/autodiff"
	"github.com/vard-ml/vard/internal/backend/cpu"
	"github.com/vard-ml/vard/internal/nn"
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

func TestLogAlphaStaysClipped(t *testing.T) {
	b := newTestBackend()
	w := fromSlice(t, b, []float32{0, 1e-6, 0.5, 100, -3}, tensor.Shape{5})
	logSigma2 := fromSlice(t, b, []float32{-30, 20, -10, 0, 5}, tensor.Shape{5})

	la := LogAlpha(w, logSigma2).Raw().AsFloat32()
	for _, v := range la {
		assert.GreaterOrEqual(t, v, float32(LogAlphaClipLo))
		assert.LessOrEqual(t, v, float32(LogAlphaClipHi))
	}
}

func TestKLIsPositiveForFreshLayer(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(4, 3, b)
	kl := layer.KLDivergence().Item()
	// logSigma2 = -10 puts every weight near the deterministic end, where
	// the penalty per weight is about 4.6.
	assert.Greater(t, kl, float32(0))
	assert.InDelta(t, 4.6*float64(4*3), float64(kl), 3.0)
}

func TestDeterministicForwardMatchesPlainLinear(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(4, 3, b)
	layer.Weight().SetData([]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		1, 1, 1, 1,
	})
	layer.Bias().SetData([]float32{0.5, -1, 0})

	input := fromSlice(t, b, []float32{
		1, 2, 3, 4,
		-1, 0, 1, 2,
	}, tensor.Shape{2, 4})

	output := layer.Forward(nn.Inference, input)
	require.Equal(t, tensor.Shape{2, 3}, output.Shape())
	assert.InDeltaSlice(t, []float32{1.5, 1, 10, -0.5, -1, 2}, output.Raw().AsFloat32(), 1e-5)
}

func TestDeterministicForwardIsRepeatable(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(6, 4, b)
	input := fromSlice(t, b, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{1, 6})

	first := layer.Forward(nn.Inference, input).Raw().AsFloat32()
	second := layer.Forward(nn.Inference, input).Raw().AsFloat32()
	assert.Equal(t, append([]float32(nil), first...), append([]float32(nil), second...))
}

func TestStochasticForwardAveragesToDeterministic(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(1, 1, b)
	layer.Weight().SetData([]float32{1})
	layer.Bias().SetData([]float32{0})
	// logSigma2 = 0 gives alpha close to 1: real noise, nothing pruned.
	layer.LogSigma2().SetData([]float32{0})

	input := fromSlice(t, b, []float32{1}, tensor.Shape{1, 1})
	want := layer.Forward(nn.Inference, input).Item()

	const samples = 2000
	var sum float64
	for i := 0; i < samples; i++ {
		sum += float64(layer.Forward(nn.Training, input).Item())
	}
	assert.InDelta(t, float64(want), sum/samples, 0.1)
}

func TestPrunedWeightsContributeZero(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(2, 1, b)
	layer.Weight().SetData([]float32{1e-4, 2})
	layer.Bias().SetData([]float32{0})
	// First weight: log_alpha = 0 - log(1e-8 + eps) >> 3, pruned.
	// Second weight: log_alpha well below threshold, kept.
	layer.LogSigma2().SetData([]float32{0, -10})

	input := fromSlice(t, b, []float32{5, 3}, tensor.Shape{1, 2})
	output := layer.Forward(nn.Inference, input)
	assert.InDelta(t, 6.0, float64(output.Item()), 1e-5)
}

func TestLazyLinearMaterializesFromFirstInput(t *testing.T) {
	b := newTestBackend()
	layer := NewLinearLazy[testBackend](3, b)
	assert.Nil(t, layer.Weight())
	assert.Empty(t, layer.Parameters())

	input := fromSlice(t, b, make([]float32, 10), tensor.Shape{2, 5})
	output := layer.Forward(nn.Inference, input)
	assert.Equal(t, tensor.Shape{2, 3}, output.Shape())
	assert.Equal(t, 5, layer.InFeatures())
	assert.Len(t, layer.Parameters(), 3)

	// A different width must now fail fast.
	bad := fromSlice(t, b, make([]float32, 8), tensor.Shape{2, 4})
	assert.Panics(t, func() { layer.Forward(nn.Inference, bad) })
}

func TestLinearFlattensTrailingDims(t *testing.T) {
	b := newTestBackend()
	layer := NewLinearLazy[testBackend](3, b)

	// NCHW activations flatten to [batch, c*h*w] before the projection.
	input := fromSlice(t, b, make([]float32, 16), tensor.Shape{2, 2, 2, 2})
	output := layer.Forward(nn.Inference, input)
	assert.Equal(t, tensor.Shape{2, 3}, output.Shape())
	assert.Equal(t, 8, layer.InFeatures())

	flat := fromSlice(t, b, make([]float32, 16), tensor.Shape{2, 8})
	assert.Equal(t, tensor.Shape{2, 3}, layer.Forward(nn.Inference, flat).Shape())
}

func TestLazyConv2DMaterializesFromFirstInput(t *testing.T) {
	b := newTestBackend()
	layer := NewConv2DLazy[testBackend](2, Square(3), Square(1), Square(1), b)
	assert.Nil(t, layer.Weight())
	assert.Empty(t, layer.Parameters())

	input := fromSlice(t, b, make([]float32, 75), tensor.Shape{1, 3, 5, 5})
	output := layer.Forward(nn.Inference, input)
	assert.Equal(t, tensor.Shape{1, 2, 5, 5}, output.Shape())
	assert.Equal(t, tensor.Shape{2, 3, 3, 3}, layer.Weight().Tensor().Shape())
	assert.Len(t, layer.Parameters(), 3)

	bad := fromSlice(t, b, make([]float32, 25), tensor.Shape{1, 1, 5, 5})
	assert.Panics(t, func() { layer.Forward(nn.Inference, bad) })
}

func TestConv2DForwardShapeAndDeterminism(t *testing.T) {
	b := newTestBackend()
	layer := NewConv2D(1, 2, Square(3), Square(1), Square(1), b)
	input := fromSlice(t, b, make([]float32, 25), tensor.Shape{1, 1, 5, 5})

	first := layer.Forward(nn.Inference, input)
	require.Equal(t, tensor.Shape{1, 2, 5, 5}, first.Shape())
	second := layer.Forward(nn.Inference, input)
	assert.Equal(t,
		append([]float32(nil), first.Raw().AsFloat32()...),
		append([]float32(nil), second.Raw().AsFloat32()...))
}

func TestConversionPreservesInferenceOutput(t *testing.T) {
	b := newTestBackend()
	plain := nn.NewLinear(10, 5, b)
	input := fromSlice(t, b, make([]float32, 20), tensor.Shape{2, 10})
	data := input.Raw().AsFloat32()
	for i := range data {
		data[i] = float32(i%7) - 3
	}
	want := plain.Forward(nn.Inference, input).Raw().AsFloat32()

	converted := FromLinear(plain, b)
	got := converted.Forward(nn.Inference, input).Raw().AsFloat32()
	assert.InDeltaSlice(t, want, got, 1e-6)
}

func TestConvertRejectsUnsupportedLayer(t *testing.T) {
	b := newTestBackend()
	_, err := Convert[testBackend](nn.NewReLU[testBackend](), b)
	assert.Error(t, err)
}

func TestConvertTreeReportsConvertedAndRetained(t *testing.T) {
	b := newTestBackend()
	embedding := nn.NewEmbedding(10, 4, b)
	model := nn.NewSequential[testBackend](
		nn.NewLinear(4, 8, b),
		nn.NewReLU[testBackend](),
		embedding,
	)

	report, err := ConvertTree[testBackend](model, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"0"}, report.Converted)
	assert.ElementsMatch(t, []string{"1", "2"}, report.Retained)

	_, isVD := model.Module(0).(*Linear[testBackend])
	assert.True(t, isVD)
	// The unsupported layer is the very same instance.
	assert.Same(t, embedding, model.Module(2).(*nn.Embedding[testBackend]))
}

func TestConvertTreeSkipsExistingVDLayers(t *testing.T) {
	b := newTestBackend()
	model := nn.NewSequential[testBackend](
		NewLinear(4, 4, b),
		nn.NewLinear(4, 2, b),
	)
	report, err := ConvertTree[testBackend](model, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, report.Converted)
	assert.Equal(t, []string{"0"}, report.Retained)
}

func TestConvertTreeRecursesNestedContainers(t *testing.T) {
	b := newTestBackend()
	inner := nn.NewSequential[testBackend](nn.NewLinear(4, 4, b))
	model := nn.NewSequential[testBackend](inner, nn.NewLinear(4, 2, b))

	report, err := ConvertTree[testBackend](model, b)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0/0", "1"}, report.Converted)
}

func TestKLCoefWarmUpSchedule(t *testing.T) {
	b := newTestBackend()
	model := nn.NewSequential[testBackend](NewLinear(4, 2, b))
	chain := NewChain[testBackend](model, 0.1, b)

	input := fromSlice(t, b, make([]float32, 8), tensor.Shape{2, 4})
	targets, err := tensor.FromSlice[int32]([]int32{0, 1}, tensor.Shape{2}, b)
	require.NoError(t, err)

	for n := 1; n <= 15; n++ {
		chain.CalcLoss(nn.Inference, input, targets, LossOptions{AddKL: true})
		want := math.Min(0.1*float64(n), 1.0)
		assert.InDelta(t, want, float64(chain.KLCoef()), 1e-6, "after %d calls", n)
	}
}

func TestZeroWarmUpAppliesKLImmediately(t *testing.T) {
	b := newTestBackend()
	model := nn.NewSequential[testBackend](NewLinear(4, 2, b))
	chain := NewChain[testBackend](model, 0, b)

	assert.Equal(t, float32(1), chain.KLCoef())

	input := fromSlice(t, b, make([]float32, 8), tensor.Shape{2, 4})
	targets, err := tensor.FromSlice[int32]([]int32{0, 1}, tensor.Shape{2}, b)
	require.NoError(t, err)

	result := chain.CalcLoss(nn.Inference, input, targets, LossOptions{AddKL: true})
	require.NotNil(t, result.KL)
	assert.Equal(t, float32(1), result.KLCoef)
	assert.Greater(t, result.KL.Item(), float32(0))
	assert.InDelta(t,
		float64(result.Class.Item())+float64(result.KL.Item()),
		float64(result.Total.Item()), 1e-4)
}

func TestCalcLossSplitsComponents(t *testing.T) {
	b := newTestBackend()
	model := nn.NewSequential[testBackend](NewLinear(4, 2, b))
	chain := NewChain[testBackend](model, 0.5, b)
	chain.SetKLCoef(0.5)

	input := fromSlice(t, b, make([]float32, 4), tensor.Shape{1, 4})
	targets, err := tensor.FromSlice[int32]([]int32{0}, tensor.Shape{1}, b)
	require.NoError(t, err)

	result := chain.CalcLoss(nn.Inference, input, targets, LossOptions{AddKL: true})
	require.NotNil(t, result.KL)
	assert.False(t, result.Ignored)
	assert.InDelta(t,
		float64(result.Class.Item())+0.5*float64(result.KL.Item()),
		float64(result.Total.Item()), 1e-4)
	assert.Equal(t, float32(0.5), result.KLCoef)
}

func TestCalcLossZeroesNaNComponent(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(2, 2, b)
	nan := float32(math.NaN())
	layer.Weight().SetData([]float32{nan, nan, nan, nan})
	model := nn.NewSequential[testBackend](layer)
	chain := NewChain[testBackend](model, 0, b)

	input := fromSlice(t, b, []float32{1, 2}, tensor.Shape{1, 2})
	targets, err := tensor.FromSlice[int32]([]int32{0}, tensor.Shape{1}, b)
	require.NoError(t, err)

	result := chain.CalcLoss(nn.Training, input, targets, LossOptions{AddKL: true})
	assert.True(t, result.Ignored)
	assert.Equal(t, float32(0), result.Total.Item())
}

func TestCalcStatsSparsityAndCompression(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(2, 2, b)
	// Two weights effectively pruned (p near 1), two kept (p near 0).
	layer.Weight().SetData([]float32{1e-4, 1e-4, 2, 2})
	layer.LogSigma2().SetData([]float32{0, 0, -10, -10})
	model := nn.NewSequential[testBackend](layer)

	stats := CalcStats[testBackend](model, DefaultPThreshold)
	assert.Equal(t, int64(4), stats.W)
	assert.Equal(t, int64(2), stats.Wnz)
	assert.InDelta(t, 0.5, stats.Sparsity, 1e-6)
	assert.InDelta(t, 2.0, stats.CompressionRatio, 1e-6)
}

func TestCalcStatsAllPrunedIsInfiniteCompression(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(2, 1, b)
	layer.Weight().SetData([]float32{1e-5, 1e-5})
	layer.LogSigma2().SetData([]float32{0, 0})
	model := nn.NewSequential[testBackend](layer)

	stats := CalcStats[testBackend](model, DefaultPThreshold)
	assert.Equal(t, int64(0), stats.Wnz)
	assert.True(t, math.IsInf(stats.CompressionRatio, 1))
}
