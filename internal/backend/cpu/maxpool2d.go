package cpu

import (
	"fmt"
	"math"

	"github.com/vard-ml/vard/internal/parallel"
	"github.com/vard-ml/vard/internal/tensor"
)

// MaxPool2D applies max pooling over the spatial dimensions of an NCHW input.
func (c *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride [2]int) *tensor.RawTensor {
	out, _ := c.maxPool2D(input, kernelSize, stride, false)
	return out
}

// MaxPool2DWithIndices additionally returns the flat argmax index of every
// pooled window, which the backward pass scatters gradients through.
func (c *CPUBackend) MaxPool2DWithIndices(input *tensor.RawTensor, kernelSize, stride [2]int) (*tensor.RawTensor, *tensor.RawTensor) {
	return c.maxPool2D(input, kernelSize, stride, true)
}

func (c *CPUBackend) maxPool2D(input *tensor.RawTensor, kernelSize, stride [2]int, wantIndices bool) (*tensor.RawTensor, *tensor.RawTensor) {
	if input.DType() != tensor.Float32 {
		panic(fmt.Sprintf("cpu: maxpool2d requires float32, got %s", input.DType()))
	}
	n, ch, h, w := conv2DDims(input)

	oh := (h-kernelSize[0])/stride[0] + 1
	ow := (w-kernelSize[1])/stride[1] + 1
	if oh <= 0 || ow <= 0 {
		panic(fmt.Sprintf("cpu: maxpool2d output size %dx%d is not positive", oh, ow))
	}

	out := mustNewRaw(tensor.Shape{n, ch, oh, ow}, tensor.Float32)
	var indices *tensor.RawTensor
	var iv []int32
	if wantIndices {
		indices = mustNewRaw(tensor.Shape{n, ch, oh, ow}, tensor.Int32)
		iv = indices.AsInt32()
	}

	in := input.AsFloat32()
	ov := out.AsFloat32()

	parallel.ForBatch(n, ch, func(b, cc int) {
		img := in[(b*ch+cc)*h*w : (b*ch+cc+1)*h*w]
		dst := ov[(b*ch+cc)*oh*ow : (b*ch+cc+1)*oh*ow]
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				best := float32(math.Inf(-1))
				bestIdx := 0
				for ky := 0; ky < kernelSize[0]; ky++ {
					iy := oy*stride[0] + ky
					for kx := 0; kx < kernelSize[1]; kx++ {
						ix := ox*stride[1] + kx
						if v := img[iy*w+ix]; v > best {
							best = v
							bestIdx = iy*w + ix
						}
					}
				}
				dst[oy*ow+ox] = best
				if wantIndices {
					iv[(b*ch+cc)*oh*ow+oy*ow+ox] = int32(bestIdx)
				}
			}
		}
	}, c.pool)

	return out, indices
}

// MaxPool2DBackward routes output gradients back to the argmax positions.
func (c *CPUBackend) MaxPool2DBackward(gradOut, indices *tensor.RawTensor, inputShape tensor.Shape) *tensor.RawTensor {
	n, ch, oh, ow := conv2DDims(gradOut)
	h, w := inputShape[2], inputShape[3]

	grad := mustNewRaw(inputShape, tensor.Float32)
	gv := grad.AsFloat32()
	gov := gradOut.AsFloat32()
	iv := indices.AsInt32()

	parallel.ForBatch(n, ch, func(b, cc int) {
		base := (b*ch + cc) * oh * ow
		dst := gv[(b*ch+cc)*h*w : (b*ch+cc+1)*h*w]
		for i := 0; i < oh*ow; i++ {
			dst[iv[base+i]] += gov[base+i]
		}
	}, c.pool)

	return grad
}
