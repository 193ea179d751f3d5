package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vard-ml/vard/internal/tensor"
)

func raw(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), data)
	return r
}

func TestAddBroadcast(t *testing.T) {
	b := New()

	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	bias := raw(t, []float32{10, 20, 30}, tensor.Shape{3})

	out := b.Add(a, bias)
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32())
}

func TestMulSameShape(t *testing.T) {
	b := New()
	a := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	c := raw(t, []float32{2, 2, 2, 2}, tensor.Shape{2, 2})
	assert.Equal(t, []float32{2, 4, 6, 8}, b.Mul(a, c).AsFloat32())
}

func TestBinaryShapeMismatchPanics(t *testing.T) {
	b := New()
	a := raw(t, make([]float32, 6), tensor.Shape{2, 3})
	c := raw(t, make([]float32, 8), tensor.Shape{2, 4})
	assert.Panics(t, func() { b.Add(a, c) })
}

func TestMatMul(t *testing.T) {
	b := New()
	// [1 2; 3 4] @ [5 6; 7 8] = [19 22; 43 50]
	x := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y := raw(t, []float32{5, 6, 7, 8}, tensor.Shape{2, 2})
	assert.Equal(t, []float32{19, 22, 43, 50}, b.MatMul(x, y).AsFloat32())
}

func TestMatMulParallelMatchesSequential(t *testing.T) {
	par := New()
	seq := NewSequential()

	a := tensor.Randn[float32](tensor.Shape{33, 17}, seq).Raw()
	c := tensor.Randn[float32](tensor.Shape{17, 29}, seq).Raw()

	got := par.MatMul(a, c).AsFloat32()
	want := seq.MatMul(a, c).AsFloat32()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5)
	}
}

func TestScalarOps(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3}, tensor.Shape{3})
	assert.Equal(t, []float32{3, 6, 9}, b.MulScalar(x, float32(3)).AsFloat32())
	assert.Equal(t, []float32{0, 1, 2}, b.SubScalar(x, float32(1)).AsFloat32())
}

func TestClip(t *testing.T) {
	b := New()
	x := raw(t, []float32{-10, -8.5, 0, 7.9, 12}, tensor.Shape{5})
	out := b.Clip(x, -8, 8).AsFloat32()
	assert.Equal(t, []float32{-8, -8, 0, 7.9, 8}, out)
}

func TestLogDomainPanic(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 0}, tensor.Shape{2})
	assert.Panics(t, func() { b.Log(x) })
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, -1, 0, 1}, tensor.Shape{2, 3})
	out := b.Softmax(x, 1).AsFloat32()
	for r := 0; r < 2; r++ {
		var sum float32
		for j := 0; j < 3; j++ {
			sum += out[r*3+j]
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
	assert.Greater(t, out[2], out[1])
}

func TestConv2DIdentityKernel(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{1, 1, 3, 3})
	k := raw(t, []float32{1}, tensor.Shape{1, 1, 1, 1})

	out := b.Conv2D(x, k, [2]int{1, 1}, [2]int{0, 0})
	assert.True(t, out.Shape().Equal(tensor.Shape{1, 1, 3, 3}))
	assert.Equal(t, x.AsFloat32(), out.AsFloat32())
}

func TestConv2DSum(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	k := raw(t, []float32{1, 1, 1, 1}, tensor.Shape{1, 1, 2, 2})

	out := b.Conv2D(x, k, [2]int{1, 1}, [2]int{0, 0})
	assert.True(t, out.Shape().Equal(tensor.Shape{1, 1, 1, 1}))
	assert.Equal(t, float32(10), out.AsFloat32()[0])
}

func TestConv2DPadding(t *testing.T) {
	b := New()
	x := raw(t, []float32{1}, tensor.Shape{1, 1, 1, 1})
	k := raw(t, []float32{1, 1, 1, 1, 1, 1, 1, 1, 1}, tensor.Shape{1, 1, 3, 3})

	out := b.Conv2D(x, k, [2]int{1, 1}, [2]int{1, 1})
	assert.True(t, out.Shape().Equal(tensor.Shape{1, 1, 1, 1}))
	assert.Equal(t, float32(1), out.AsFloat32()[0])
}

func TestMaxPool2D(t *testing.T) {
	b := New()
	x := raw(t, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, tensor.Shape{1, 1, 4, 4})

	out := b.MaxPool2D(x, [2]int{2, 2}, [2]int{2, 2})
	assert.True(t, out.Shape().Equal(tensor.Shape{1, 1, 2, 2}))
	assert.Equal(t, []float32{6, 8, 14, 16}, out.AsFloat32())
}

func TestMaxPool2DBackward(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	_, idx := b.MaxPool2DWithIndices(x, [2]int{2, 2}, [2]int{2, 2})

	gradOut := raw(t, []float32{1}, tensor.Shape{1, 1, 1, 1})
	grad := b.MaxPool2DBackward(gradOut, idx, x.Shape())
	assert.Equal(t, []float32{0, 0, 0, 1}, grad.AsFloat32())
}

func TestReductions(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	assert.Equal(t, float32(21), b.Sum(x).AsFloat32()[0])
	assert.Equal(t, []float32{5, 7, 9}, b.SumDim(x, 0, false).AsFloat32())
	assert.Equal(t, []float32{6, 15}, b.SumDim(x, 1, false).AsFloat32())
	assert.Equal(t, []float32{2, 5}, b.MeanDim(x, 1, false).AsFloat32())
	assert.Equal(t, []int32{2, 2}, b.Argmax(x, 1).AsInt32())
}

func TestComparisonsAndWhere(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 5, 3}, tensor.Shape{3})
	y := raw(t, []float32{2, 2, 3}, tensor.Shape{3})

	assert.Equal(t, []bool{false, true, false}, b.Greater(x, y).AsBool())
	assert.Equal(t, []bool{false, false, true}, b.Equal(x, y).AsBool())

	cond := b.Greater(x, y)
	out := b.Where(cond, x, y)
	assert.Equal(t, []float32{2, 5, 3}, out.AsFloat32())
}

func TestTransposeAndReshape(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	xt := b.Transpose(x)
	assert.True(t, xt.Shape().Equal(tensor.Shape{3, 2}))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, xt.AsFloat32())

	r := b.Reshape(x, tensor.Shape{3, 2})
	assert.Equal(t, x.AsFloat32(), r.AsFloat32())
	assert.Panics(t, func() { b.Reshape(x, tensor.Shape{4, 2}) })
}

func TestCatChunkRoundTrip(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	y := raw(t, []float32{5, 6, 7, 8}, tensor.Shape{2, 2})

	cat := b.Cat([]*tensor.RawTensor{x, y}, 1)
	assert.True(t, cat.Shape().Equal(tensor.Shape{2, 4}))
	assert.Equal(t, []float32{1, 2, 5, 6, 3, 4, 7, 8}, cat.AsFloat32())

	parts := b.Chunk(cat, 2, 1)
	require.Len(t, parts, 2)
	assert.Equal(t, x.AsFloat32(), parts[0].AsFloat32())
	assert.Equal(t, y.AsFloat32(), parts[1].AsFloat32())
}

func TestGather(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	idx, err := tensor.NewRaw(tensor.Shape{2, 1}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	copy(idx.AsInt32(), []int32{2, 0})

	out := b.Gather(x, 1, idx)
	assert.Equal(t, []float32{3, 4}, out.AsFloat32())
}

func TestEmbedding(t *testing.T) {
	b := New()
	w := raw(t, []float32{1, 1, 2, 2, 3, 3}, tensor.Shape{3, 2})

	idx, err := tensor.NewRaw(tensor.Shape{2}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	copy(idx.AsInt32(), []int32{2, 0})

	out := b.Embedding(w, idx)
	assert.True(t, out.Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []float32{3, 3, 1, 1}, out.AsFloat32())

	grad := b.EmbeddingBackward(out, idx, w.Shape())
	assert.Equal(t, []float32{1, 1, 0, 0, 3, 3}, grad.AsFloat32())
}

func TestActivations(t *testing.T) {
	b := New()
	x := raw(t, []float32{-1, 0, 2}, tensor.Shape{3})

	assert.Equal(t, []float32{0, 0, 2}, b.ReLU(x).AsFloat32())

	sig := b.Sigmoid(x).AsFloat32()
	assert.InDelta(t, 0.2689, sig[0], 1e-3)
	assert.InDelta(t, 0.5, sig[1], 1e-6)

	th := b.Tanh(x).AsFloat32()
	assert.InDelta(t, math.Tanh(-1), float64(th[0]), 1e-6)
}

func TestCrossEntropy(t *testing.T) {
	b := New()
	logits := raw(t, []float32{10, 0, 0, 0, 10, 0}, tensor.Shape{2, 3})

	targets, err := tensor.NewRaw(tensor.Shape{2}, tensor.Int32, tensor.CPU)
	require.NoError(t, err)
	copy(targets.AsInt32(), []int32{0, 1})

	loss := b.CrossEntropy(logits, targets).AsFloat32()[0]
	assert.Less(t, loss, float32(0.01))

	grad := b.CrossEntropyBackward(logits, targets)
	assert.True(t, grad.Shape().Equal(tensor.Shape{2, 3}))
	// Gradient rows sum to zero.
	gv := grad.AsFloat32()
	for r := 0; r < 2; r++ {
		var sum float32
		for j := 0; j < 3; j++ {
			sum += gv[r*3+j]
		}
		assert.InDelta(t, 0, sum, 1e-6)
	}
}

func TestCast(t *testing.T) {
	b := New()
	x := raw(t, []float32{0, 1.7, -2}, tensor.Shape{3})
	i := b.Cast(x, tensor.Int32)
	assert.Equal(t, []int32{0, 1, -2}, i.AsInt32())

	mask := b.Greater(x, raw(t, []float32{0, 0, 0}, tensor.Shape{3}))
	f := b.Cast(mask, tensor.Float32)
	assert.Equal(t, []float32{0, 1, 0}, f.AsFloat32())
}
