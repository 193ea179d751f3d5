package vd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vard-ml/vard/internal/nn"
	"github.com/vard-ml/vard/internal/tensor"
)

func TestTanhRNNStatefulSteps(t *testing.T) {
	b := newTestBackend()
	rnn := NewTanhRNN(3, 2, b)

	input := fromSlice(t, b, []float32{1, 2, 3}, tensor.Shape{1, 3})
	out1 := rnn.Step(nn.Inference, input)
	require.Equal(t, tensor.Shape{1, 2}, out1.Shape())
	require.NotNil(t, rnn.State())

	// State carries over, so the same input can produce a different output.
	out2 := rnn.Step(nn.Inference, input)
	require.Equal(t, tensor.Shape{1, 2}, out2.Shape())

	rnn.ResetState()
	assert.Nil(t, rnn.State())
	out3 := rnn.Step(nn.Inference, input)
	assert.InDeltaSlice(t, out1.Raw().AsFloat32(), out3.Raw().AsFloat32(), 1e-6)
}

func TestTanhRNNStatelessLeavesStateUntouched(t *testing.T) {
	b := newTestBackend()
	rnn := NewTanhRNN(3, 2, b)
	input := fromSlice(t, b, []float32{1, 2, 3}, tensor.Shape{1, 3})

	rnn.Step(nn.Inference, input)
	saved := rnn.State()

	external := nn.Zeros[testBackend](tensor.Shape{1, 2}, b)
	out := rnn.StepWith(nn.Inference, input, external)
	require.Equal(t, tensor.Shape{1, 2}, out.Shape())
	assert.Same(t, saved, rnn.State())
}

func TestTanhRNNOutputsBounded(t *testing.T) {
	b := newTestBackend()
	rnn := NewTanhRNN(4, 3, b)
	input := fromSlice(t, b, []float32{100, -100, 50, -50}, tensor.Shape{1, 4})

	out := rnn.Step(nn.Inference, input)
	for _, v := range out.Raw().AsFloat32() {
		assert.LessOrEqual(t, v, float32(1))
		assert.GreaterOrEqual(t, v, float32(-1))
	}
}

func TestLSTMStepShapesAndState(t *testing.T) {
	b := newTestBackend()
	lstm := NewLSTM(3, 4, b)

	input := fromSlice(t, b, []float32{1, -1, 0.5}, tensor.Shape{1, 3})
	out := lstm.Step(nn.Inference, input)
	require.Equal(t, tensor.Shape{1, 4}, out.Shape())

	cell, hidden := lstm.State()
	require.NotNil(t, cell)
	require.NotNil(t, hidden)
	assert.Equal(t, tensor.Shape{1, 4}, cell.Shape())
	assert.Same(t, hidden, out)

	lstm.ResetState()
	cell, hidden = lstm.State()
	assert.Nil(t, cell)
	assert.Nil(t, hidden)
}

func TestLSTMResetRestartsSequence(t *testing.T) {
	b := newTestBackend()
	lstm := NewLSTM(2, 3, b)
	input := fromSlice(t, b, []float32{0.5, -0.5}, tensor.Shape{1, 2})

	first := lstm.Step(nn.Inference, input).Raw().AsFloat32()
	firstCopy := append([]float32(nil), first...)
	lstm.Step(nn.Inference, input)

	lstm.ResetState()
	restart := lstm.Step(nn.Inference, input).Raw().AsFloat32()
	assert.InDeltaSlice(t, firstCopy, restart, 1e-6)
}

func TestLSTMRecomputeMatchesPlain(t *testing.T) {
	b := newTestBackend()
	lstm := NewLSTM(2, 3, b)
	input := fromSlice(t, b, []float32{1, 2}, tensor.Shape{1, 2})

	plain := lstm.Step(nn.Inference, input).Raw().AsFloat32()
	plainCopy := append([]float32(nil), plain...)

	lstm.ResetState()
	checkpointed := lstm.Step(nn.Pass{Recompute: 1}, input).Raw().AsFloat32()
	assert.InDeltaSlice(t, plainCopy, checkpointed, 1e-6)
}

func TestLSTMKLCoversBothProjections(t *testing.T) {
	b := newTestBackend()
	lstm := NewLSTM(2, 3, b)
	kl := lstm.KLDivergence().Item()

	upward := lstm.upward.KLDivergence().Item()
	lateral := lstm.lateral.KLDivergence().Item()
	assert.InDelta(t, float64(upward)+float64(lateral), float64(kl), 1e-3)
}

func TestLSTMStateDictRoundTrip(t *testing.T) {
	b := newTestBackend()
	src := NewLSTM(2, 3, b)
	dst := NewLSTM(2, 3, b)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	input := fromSlice(t, b, []float32{0.3, -0.7}, tensor.Shape{1, 2})
	want := src.Step(nn.Inference, input).Raw().AsFloat32()
	got := dst.Step(nn.Inference, input).Raw().AsFloat32()
	assert.InDeltaSlice(t, want, got, 1e-6)
}

func TestSparseLinearMatchesDensePruning(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(3, 2, b)
	layer.Weight().SetData([]float32{1, 1e-4, 2, 1e-4, 3, 1e-4})
	layer.Bias().SetData([]float32{0.5, -0.5})
	// Alternate kept and pruned weights.
	layer.LogSigma2().SetData([]float32{-10, 0, -10, 0, -10, 0})

	input := fromSlice(t, b, []float32{1, 2, 3}, tensor.Shape{1, 3})
	want := layer.Forward(nn.Inference, input).Raw().AsFloat32()
	wantCopy := append([]float32(nil), want...)

	sparse, dropped := FromVDLinear(layer, b)
	assert.Equal(t, int64(3), dropped)
	assert.Equal(t, 3, sparse.NNZ())

	got := sparse.Forward(nn.Inference, input).Raw().AsFloat32()
	assert.InDeltaSlice(t, wantCopy, got, 1e-5)
}

func TestSparsifyTreeReplacesAndReports(t *testing.T) {
	b := newTestBackend()
	layer := NewLinear(4, 2, b)
	model := nn.NewSequential[testBackend](
		layer,
		nn.NewReLU[testBackend](),
	)

	report, err := SparsifyTree[testBackend](model, b)
	require.NoError(t, err)
	require.Len(t, report.Layers, 1)
	assert.Equal(t, "0", report.Layers[0].Path)
	assert.Equal(t, int64(8), report.Before)

	_, isSparse := model.Module(0).(*SparseLinear[testBackend])
	assert.True(t, isSparse)
	assert.Contains(t, report.String(), "total:")
}

func TestSparsifyTreeListsRetainedLeaves(t *testing.T) {
	b := newTestBackend()
	conv := NewConv2D(1, 2, Square(3), Square(1), Square(0), b)
	linear := NewLinear(4, 2, b)
	model := nn.NewSequential[testBackend](conv, linear)

	report, err := SparsifyTree[testBackend](model, b)
	require.NoError(t, err)

	require.Len(t, report.Layers, 1)
	assert.Equal(t, "1", report.Layers[0].Path)

	// The conv stays dense but its 2*1*3*3 kernel weights must still show
	// up, both as a retained entry and inside the totals.
	require.Len(t, report.Retained, 1)
	assert.Equal(t, "0", report.Retained[0].Path)
	assert.Equal(t, int64(18), report.Retained[0].Params)
	assert.Equal(t, int64(8+18), report.Before)
	assert.Equal(t, int64(18)+report.Layers[0].After, report.After)
	assert.Contains(t, report.String(), "retain 0: 18 weights")
}
