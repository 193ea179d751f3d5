package cpu

import (
	"fmt"

	"github.com/vard-ml/vard/internal/tensor"
)

// Gather selects elements along dim using an int32 index tensor with the
// output's shape.
func (c *CPUBackend) Gather(x *tensor.RawTensor, dim int, index *tensor.RawTensor) *tensor.RawTensor {
	if index.DType() != tensor.Int32 {
		panic(fmt.Sprintf("cpu: gather index must be int32, got %s", index.DType()))
	}
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu: gather requires float32 source, got %s", x.DType()))
	}
	shape := x.Shape()
	dim = normalizeDim(dim, len(shape))

	outShape := index.Shape()
	out := mustNewRaw(outShape, tensor.Float32)

	srcStrides := shape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	xv, iv, ov := x.AsFloat32(), index.AsInt32(), out.AsFloat32()

	for flat := range ov {
		rem := flat
		src := 0
		for d := range outStrides {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			if d == dim {
				coord = int(iv[flat])
				if coord < 0 || coord >= shape[d] {
					panic(fmt.Sprintf("cpu: gather index %d out of range for dim %d (size %d)", coord, d, shape[d]))
				}
			}
			src += coord * srcStrides[d]
		}
		ov[flat] = xv[src]
	}
	return out
}

// Embedding looks up rows of weight [vocab, dim] by int32 indices of any
// shape, producing indices.Shape() + [dim].
func (c *CPUBackend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	if len(weight.Shape()) != 2 {
		panic(fmt.Sprintf("cpu: embedding weight must be 2D, got %v", weight.Shape()))
	}
	if indices.DType() != tensor.Int32 {
		panic(fmt.Sprintf("cpu: embedding indices must be int32, got %s", indices.DType()))
	}

	vocab, dim := weight.Shape()[0], weight.Shape()[1]
	outShape := append(indices.Shape().Clone(), dim)
	out := mustNewRaw(outShape, tensor.Float32)

	wv, iv, ov := weight.AsFloat32(), indices.AsInt32(), out.AsFloat32()
	for i, idx := range iv {
		if int(idx) < 0 || int(idx) >= vocab {
			panic(fmt.Sprintf("cpu: embedding index %d out of range for vocab %d", idx, vocab))
		}
		copy(ov[i*dim:(i+1)*dim], wv[int(idx)*dim:(int(idx)+1)*dim])
	}
	return out
}

// EmbeddingBackward accumulates output gradients into the weight gradient.
func (c *CPUBackend) EmbeddingBackward(gradOut, indices *tensor.RawTensor, weightShape tensor.Shape) *tensor.RawTensor {
	dim := weightShape[1]
	grad := mustNewRaw(weightShape, tensor.Float32)

	gv, iv, gov := grad.AsFloat32(), indices.AsInt32(), gradOut.AsFloat32()
	for i, idx := range iv {
		row := gv[int(idx)*dim : (int(idx)+1)*dim]
		src := gov[i*dim : (i+1)*dim]
		for j := range row {
			row[j] += src[j]
		}
	}
	return grad
}
