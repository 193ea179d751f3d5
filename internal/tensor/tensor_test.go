package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBackend satisfies Backend for tests that never dispatch compute.
type mockBackend struct{}

func (mockBackend) Add(a, b *RawTensor) *RawTensor                        { panic("not implemented") }
func (mockBackend) Sub(a, b *RawTensor) *RawTensor                        { panic("not implemented") }
func (mockBackend) Mul(a, b *RawTensor) *RawTensor                        { panic("not implemented") }
func (mockBackend) Div(a, b *RawTensor) *RawTensor                        { panic("not implemented") }
func (mockBackend) MatMul(a, b *RawTensor) *RawTensor                     { panic("not implemented") }
func (mockBackend) Conv2D(_, _ *RawTensor, _, _ [2]int) *RawTensor        { panic("not implemented") }
func (mockBackend) MaxPool2D(_ *RawTensor, _, _ [2]int) *RawTensor        { panic("not implemented") }
func (mockBackend) Reshape(t *RawTensor, s Shape) *RawTensor              { panic("not implemented") }
func (mockBackend) Transpose(t *RawTensor, axes ...int) *RawTensor        { panic("not implemented") }
func (mockBackend) Expand(t *RawTensor, s Shape) *RawTensor               { panic("not implemented") }
func (mockBackend) MulScalar(t *RawTensor, s any) *RawTensor              { panic("not implemented") }
func (mockBackend) AddScalar(t *RawTensor, s any) *RawTensor              { panic("not implemented") }
func (mockBackend) SubScalar(t *RawTensor, s any) *RawTensor              { panic("not implemented") }
func (mockBackend) DivScalar(t *RawTensor, s any) *RawTensor              { panic("not implemented") }
func (mockBackend) Exp(t *RawTensor) *RawTensor                           { panic("not implemented") }
func (mockBackend) Log(t *RawTensor) *RawTensor                           { panic("not implemented") }
func (mockBackend) Sqrt(t *RawTensor) *RawTensor                          { panic("not implemented") }
func (mockBackend) Clip(t *RawTensor, lo, hi float64) *RawTensor          { panic("not implemented") }
func (mockBackend) Softmax(t *RawTensor, dim int) *RawTensor              { panic("not implemented") }
func (mockBackend) Greater(a, b *RawTensor) *RawTensor                    { panic("not implemented") }
func (mockBackend) Lower(a, b *RawTensor) *RawTensor                      { panic("not implemented") }
func (mockBackend) GreaterEqual(a, b *RawTensor) *RawTensor               { panic("not implemented") }
func (mockBackend) LowerEqual(a, b *RawTensor) *RawTensor                 { panic("not implemented") }
func (mockBackend) Equal(a, b *RawTensor) *RawTensor                      { panic("not implemented") }
func (mockBackend) Sum(t *RawTensor) *RawTensor                           { panic("not implemented") }
func (mockBackend) SumDim(t *RawTensor, d int, k bool) *RawTensor         { panic("not implemented") }
func (mockBackend) MeanDim(t *RawTensor, d int, k bool) *RawTensor        { panic("not implemented") }
func (mockBackend) Argmax(t *RawTensor, d int) *RawTensor                 { panic("not implemented") }
func (mockBackend) Cat(ts []*RawTensor, d int) *RawTensor                 { panic("not implemented") }
func (mockBackend) Chunk(t *RawTensor, n, d int) []*RawTensor             { panic("not implemented") }
func (mockBackend) Unsqueeze(t *RawTensor, d int) *RawTensor              { panic("not implemented") }
func (mockBackend) Squeeze(t *RawTensor, d int) *RawTensor                { panic("not implemented") }
func (mockBackend) Gather(t *RawTensor, d int, i *RawTensor) *RawTensor   { panic("not implemented") }
func (mockBackend) Where(c, x, y *RawTensor) *RawTensor                   { panic("not implemented") }
func (mockBackend) Embedding(w, i *RawTensor) *RawTensor                  { panic("not implemented") }
func (mockBackend) Cast(t *RawTensor, d DataType) *RawTensor              { panic("not implemented") }
func (mockBackend) Name() string                                         { return "mock" }
func (mockBackend) Device() Device                                       { return CPU }

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{5}, 5},
		{Shape{3, 4}, 12},
		{Shape{2, 3, 4}, 24},
	}
	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("NumElements(%v) = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{3, 4}).Validate(); err != nil {
		t.Errorf("valid shape rejected: %v", err)
	}
	if err := (Shape{3, 0}).Validate(); err == nil {
		t.Error("zero dimension accepted")
	}
	if err := (Shape{-1, 4}).Validate(); err == nil {
		t.Error("negative dimension accepted")
	}
}

func TestComputeStrides(t *testing.T) {
	got := Shape{2, 3, 4}.ComputeStrides()
	want := []int{12, 4, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("strides = %v, want %v", got, want)
		}
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b     Shape
		want     Shape
		expanded bool
		wantErr  bool
	}{
		{Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{1, 5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{Shape{5}, Shape{3, 5}, Shape{3, 5}, true, false},
		{Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}
	for _, tt := range tests {
		got, expanded, err := BroadcastShapes(tt.a, tt.b)
		if tt.wantErr {
			assert.Error(t, err, "%v vs %v", tt.a, tt.b)
			continue
		}
		require.NoError(t, err)
		assert.True(t, got.Equal(tt.want), "%v vs %v -> %v, want %v", tt.a, tt.b, got, tt.want)
		assert.Equal(t, tt.expanded, expanded)
	}
}

func TestFromSlice(t *testing.T) {
	b := mockBackend{}

	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3}, b)
	require.NoError(t, err)
	assert.Equal(t, float32(6), x.At(1, 2))

	_, err = FromSlice([]float32{1, 2}, Shape{2, 3}, b)
	assert.Error(t, err)
}

func TestAtSet(t *testing.T) {
	b := mockBackend{}
	x := Zeros[float32](Shape{3, 4}, b)
	x.Set(2.5, 1, 2)
	if got := x.At(1, 2); got != 2.5 {
		t.Errorf("At(1,2) = %v, want 2.5", got)
	}

	assert.Panics(t, func() { x.At(3, 0) })
	assert.Panics(t, func() { x.At(0) })
}

func TestItem(t *testing.T) {
	b := mockBackend{}
	x := Full(Shape{1}, float32(7), b)
	assert.Equal(t, float32(7), x.Item())

	y := Zeros[float32](Shape{2}, b)
	assert.Panics(t, func() { y.Item() })
}

func TestCloneSharesBuffer(t *testing.T) {
	b := mockBackend{}
	x := Ones[float32](Shape{4}, b)
	require.True(t, x.Raw().IsUnique())

	y := x.Clone()
	assert.False(t, x.Raw().IsUnique())
	assert.False(t, y.Raw().IsUnique())

	y.Raw().Release()
	assert.True(t, x.Raw().IsUnique())
}

func TestForceNonUnique(t *testing.T) {
	b := mockBackend{}
	x := Ones[float32](Shape{4}, b)
	restore := x.Raw().ForceNonUnique()
	assert.False(t, x.Raw().IsUnique())
	restore()
	assert.True(t, x.Raw().IsUnique())
}

func TestDeepClone(t *testing.T) {
	b := mockBackend{}
	x := Full(Shape{3}, float32(1), b)
	y := x.Raw().DeepClone()
	y.AsFloat32()[0] = 9
	assert.Equal(t, float32(1), x.Data()[0])
}

func TestCreation(t *testing.T) {
	b := mockBackend{}

	ones := Ones[float32](Shape{2, 2}, b)
	for _, v := range ones.Data() {
		assert.Equal(t, float32(1), v)
	}

	ar := Arange[int32](0, 5, b)
	assert.Equal(t, []int32{0, 1, 2, 3, 4}, ar.Data())

	eye := Eye[float32](3, b)
	assert.Equal(t, float32(1), eye.At(1, 1))
	assert.Equal(t, float32(0), eye.At(0, 1))

	u := Uniform[float32](Shape{100}, -0.1, 0.1, b)
	for _, v := range u.Data() {
		assert.GreaterOrEqual(t, v, float32(-0.1))
		assert.Less(t, v, float32(0.1))
	}
}

func TestDataTypeSize(t *testing.T) {
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, 4, Int32.Size())
	assert.Equal(t, 8, Int64.Size())
	assert.Equal(t, 1, Uint8.Size())
	assert.Equal(t, 1, Bool.Size())
}

func TestDetach(t *testing.T) {
	b := mockBackend{}
	x := Ones[float32](Shape{2}, b).RequireGrad()
	d := x.Detach()
	assert.True(t, x.RequiresGrad())
	assert.False(t, d.RequiresGrad())
	// Shared data.
	d.Data()[0] = 5
	assert.Equal(t, float32(5), x.Data()[0])
}
