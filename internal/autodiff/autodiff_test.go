package autodiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vard-ml/vard/internal/backend/cpu"
	"github.com/vard-ml/vard/internal/tensor"
)

func newTestBackend() *AutodiffBackend[*cpu.CPUBackend] {
	return New(cpu.NewSequential())
}

func raw(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), data)
	return r
}

func backwardFromScalar(b *AutodiffBackend[*cpu.CPUBackend], loss *tensor.RawTensor) map[*tensor.RawTensor]*tensor.RawTensor {
	seed, err := tensor.NewRaw(loss.Shape(), tensor.Float32, tensor.CPU)
	if err != nil {
		panic(err)
	}
	seed.AsFloat32()[0] = 1
	return b.Backward(loss, seed)
}

func TestAddBackwardBroadcast(t *testing.T) {
	b := newTestBackend()
	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	bias := raw(t, []float32{10, 20, 30}, tensor.Shape{3})

	b.StartRecording()
	loss := b.Sum(b.Add(a, bias))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	require.Contains(t, grads, a)
	require.Contains(t, grads, bias)
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, grads[a].AsFloat32())
	assert.Equal(t, []float32{2, 2, 2}, grads[bias].AsFloat32())
}

func TestMulBackward(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{2, 3}, tensor.Shape{2})
	y := raw(t, []float32{5, 7}, tensor.Shape{2})

	b.StartRecording()
	loss := b.Sum(b.Mul(x, y))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	assert.Equal(t, []float32{5, 7}, grads[x].AsFloat32())
	assert.Equal(t, []float32{2, 3}, grads[y].AsFloat32())
}

func TestDivBackward(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{6}, tensor.Shape{1})
	y := raw(t, []float32{2}, tensor.Shape{1})

	b.StartRecording()
	loss := b.Sum(b.Div(x, y))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	assert.InDelta(t, 0.5, grads[x].AsFloat32()[0], 1e-6)
	assert.InDelta(t, -1.5, grads[y].AsFloat32()[0], 1e-6)
}

func TestMatMulBackward(t *testing.T) {
	b := newTestBackend()
	a := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	w := raw(t, []float32{5, 6, 7, 8}, tensor.Shape{2, 2})

	b.StartRecording()
	loss := b.Sum(b.MatMul(a, w))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	// dL/da = ones @ wᵀ, row i is [w00+w01, w10+w11] = [11, 15].
	assert.Equal(t, []float32{11, 15, 11, 15}, grads[a].AsFloat32())
	// dL/dw = aᵀ @ ones, row i is column sums of a.
	assert.Equal(t, []float32{4, 4, 6, 6}, grads[w].AsFloat32())
}

func TestTransposeBackwardInvertsPermutation(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	scale := raw(t, []float32{10, 20, 30, 40, 50, 60}, tensor.Shape{3, 2})

	b.StartRecording()
	loss := b.Sum(b.Mul(b.Transpose(x, 1, 0), scale))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	require.Contains(t, grads, x)
	// The [3, 2] gradient comes back through the inverse permutation, so
	// grads[x][i][j] equals scale[j][i].
	assert.Equal(t, tensor.Shape{2, 3}, grads[x].Shape())
	assert.Equal(t, []float32{10, 30, 50, 20, 40, 60}, grads[x].AsFloat32())
}

func TestGradientAccumulation(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{3}, tensor.Shape{1})

	b.StartRecording()
	loss := b.Sum(b.Add(x, x))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	assert.Equal(t, []float32{2}, grads[x].AsFloat32())
}

func TestSigmoidBackwardAtZero(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{0}, tensor.Shape{1})

	b.StartRecording()
	loss := b.Sum(b.Sigmoid(x))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	assert.InDelta(t, 0.25, grads[x].AsFloat32()[0], 1e-6)
}

func TestClipBackwardMasksClampedPositions(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{-10, 0, 10}, tensor.Shape{3})

	b.StartRecording()
	loss := b.Sum(b.Clip(x, -8, 8))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	assert.Equal(t, []float32{0, 1, 0}, grads[x].AsFloat32())
}

func TestSoftmaxBackwardOfSumIsZero(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{1, 2, 3}, tensor.Shape{1, 3})

	b.StartRecording()
	loss := b.Sum(b.Softmax(x, 1))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	for _, g := range grads[x].AsFloat32() {
		assert.InDelta(t, 0, g, 1e-6)
	}
}

func TestExpLogSqrtBackward(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{4}, tensor.Shape{1})

	b.StartRecording()
	loss := b.Sum(b.Sqrt(x))
	b.StopRecording()
	grads := backwardFromScalar(b, loss)
	assert.InDelta(t, 0.25, grads[x].AsFloat32()[0], 1e-6)

	b.ResetTape()
	y := raw(t, []float32{2}, tensor.Shape{1})
	b.StartRecording()
	loss = b.Sum(b.Log(y))
	b.StopRecording()
	grads = backwardFromScalar(b, loss)
	assert.InDelta(t, 0.5, grads[y].AsFloat32()[0], 1e-6)
}

func TestChunkBackwardFillsUnusedWithZeros(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{4})

	b.StartRecording()
	parts := b.Chunk(x, 2, 0)
	loss := b.Sum(parts[0])
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	assert.Equal(t, []float32{1, 1, 0, 0}, grads[x].AsFloat32())
}

func TestCatBackwardSplitsUnequalParts(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{1}, tensor.Shape{1})
	y := raw(t, []float32{2, 3, 4}, tensor.Shape{3})

	b.StartRecording()
	joined := b.Cat([]*tensor.RawTensor{x, y}, 0)
	loss := b.Sum(b.MulScalar(joined, float32(2)))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	assert.Equal(t, []float32{2}, grads[x].AsFloat32())
	assert.Equal(t, []float32{2, 2, 2}, grads[y].AsFloat32())
}

func TestMeanDimBackwardScales(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})

	b.StartRecording()
	loss := b.Sum(b.MeanDim(x, 1, false))
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, grads[x].AsFloat32())
}

func TestCheckpointMatchesDirect(t *testing.T) {
	square := func(b *AutodiffBackend[*cpu.CPUBackend]) tensor.CheckpointFunc {
		return func(inputs []*tensor.RawTensor) *tensor.RawTensor {
			return b.Mul(inputs[0], inputs[0])
		}
	}

	direct := newTestBackend()
	x1 := raw(t, []float32{3, 5}, tensor.Shape{2})
	direct.StartRecording()
	loss1 := direct.Sum(direct.Mul(x1, x1))
	direct.StopRecording()
	g1 := backwardFromScalar(direct, loss1)

	ckpt := newTestBackend()
	x2 := raw(t, []float32{3, 5}, tensor.Shape{2})
	ckpt.StartRecording()
	loss2 := ckpt.Sum(ckpt.Checkpoint([]*tensor.RawTensor{x2}, square(ckpt)))
	ckpt.StopRecording()
	g2 := backwardFromScalar(ckpt, loss2)

	assert.Equal(t, g1[x1].AsFloat32(), g2[x2].AsFloat32())
	// The checkpoint segment contributes one taped node, not its interior.
	assert.Equal(t, 2, ckpt.Tape().NumOperations())
}

func TestRecordingOffTapesNothing(t *testing.T) {
	b := newTestBackend()
	x := raw(t, []float32{1, 2}, tensor.Shape{2})
	_ = b.Sum(b.Mul(x, x))
	assert.Equal(t, 0, b.Tape().NumOperations())
}

func TestCrossEntropyBackwardRowsSumToZero(t *testing.T) {
	b := newTestBackend()
	logits := raw(t, []float32{2, 1, 0, 0, 1, 2}, tensor.Shape{2, 3})
	targets, err := tensor.NewRaw(tensor.Shape{2}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	copy(targets.AsInt32(), []int32{0, 2})

	b.StartRecording()
	loss := b.CrossEntropy(logits, targets)
	b.StopRecording()

	grads := backwardFromScalar(b, loss)
	g := grads[logits].AsFloat32()
	assert.InDelta(t, 0, g[0]+g[1]+g[2], 1e-5)
	assert.InDelta(t, 0, g[3]+g[4]+g[5], 1e-5)
	// The target class gradient is negative, pushing its logit up.
	assert.Less(t, g[0], float32(0))
	assert.Less(t, g[5], float32(0))
}

func TestBackwardHelperAttachesGrads(t *testing.T) {
	b := newTestBackend()
	xr := raw(t, []float32{2, 4}, tensor.Shape{2})
	x := tensor.New[float32](xr, b)

	b.StartRecording()
	loss := tensor.New[float32](b.Sum(b.Mul(xr, xr)), b)
	b.StopRecording()

	require.NoError(t, Backward(loss, x))
	require.NotNil(t, x.Grad())
	assert.Equal(t, []float32{4, 8}, x.Grad().Raw().AsFloat32())
}

func TestBackwardHelperRejectsNonScalar(t *testing.T) {
	b := newTestBackend()
	xr := raw(t, []float32{1, 2}, tensor.Shape{2})
	x := tensor.New[float32](xr, b)
	assert.Error(t, Backward(x, x))
}
