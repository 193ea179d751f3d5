package cpu

import (
	"fmt"

	"github.com/vard-ml/vard/internal/parallel"
	"github.com/vard-ml/vard/internal/tensor"
)

// Conv2D performs 2D cross-correlation of an NCHW input with an OIHW kernel.
// The forward pass lowers each image to an im2col matrix and multiplies it
// with the flattened kernel.
func (c *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding [2]int) *tensor.RawTensor {
	n, cin, h, w := conv2DDims(input)
	cout, kcin, kh, kw := conv2DDims(kernel)
	if cin != kcin {
		panic(fmt.Sprintf("cpu: conv2d channel mismatch: input has %d, kernel expects %d", cin, kcin))
	}
	if input.DType() != tensor.Float32 || kernel.DType() != tensor.Float32 {
		panic("cpu: conv2d requires float32 tensors")
	}

	oh := (h+2*padding[0]-kh)/stride[0] + 1
	ow := (w+2*padding[1]-kw)/stride[1] + 1
	if oh <= 0 || ow <= 0 {
		panic(fmt.Sprintf("cpu: conv2d output size %dx%d is not positive", oh, ow))
	}

	out := mustNewRaw(tensor.Shape{n, cout, oh, ow}, tensor.Float32)
	in := input.AsFloat32()
	kv := kernel.AsFloat32()
	ov := out.AsFloat32()

	colRows := cin * kh * kw
	colCols := oh * ow

	parallel.For(n, func(b int) {
		col := make([]float32, colRows*colCols)
		im2col(in[b*cin*h*w:(b+1)*cin*h*w], col, cin, h, w, kh, kw, oh, ow, stride, padding)

		// kernel [cout, colRows] @ col [colRows, colCols]
		dst := ov[b*cout*colCols : (b+1)*cout*colCols]
		for o := 0; o < cout; o++ {
			krow := kv[o*colRows : (o+1)*colRows]
			drow := dst[o*colCols : (o+1)*colCols]
			for r, kvr := range krow {
				if kvr == 0 {
					continue
				}
				crow := col[r*colCols : (r+1)*colCols]
				for j := range drow {
					drow[j] += kvr * crow[j]
				}
			}
		}
	}, c.pool)

	return out
}

// im2col unpacks conv patches of one image into a [cin*kh*kw, oh*ow] matrix.
func im2col(img, col []float32, cin, h, w, kh, kw, oh, ow int, stride, padding [2]int) {
	colCols := oh * ow
	for ch := 0; ch < cin; ch++ {
		for ky := 0; ky < kh; ky++ {
			for kx := 0; kx < kw; kx++ {
				row := (ch*kh+ky)*kw + kx
				for oy := 0; oy < oh; oy++ {
					iy := oy*stride[0] + ky - padding[0]
					for ox := 0; ox < ow; ox++ {
						ix := ox*stride[1] + kx - padding[1]
						var v float32
						if iy >= 0 && iy < h && ix >= 0 && ix < w {
							v = img[(ch*h+iy)*w+ix]
						}
						col[row*colCols+oy*ow+ox] = v
					}
				}
			}
		}
	}
}

// Conv2DInputGrad computes the gradient of a conv2d output with respect to
// its input, by scattering each output gradient through the kernel.
func (c *CPUBackend) Conv2DInputGrad(gradOut, kernel *tensor.RawTensor, inputShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor {
	n, cout, oh, ow := conv2DDims(gradOut)
	_, cin, kh, kw := conv2DDims(kernel)
	h, w := inputShape[2], inputShape[3]

	grad := mustNewRaw(inputShape, tensor.Float32)
	gv := grad.AsFloat32()
	gov := gradOut.AsFloat32()
	kv := kernel.AsFloat32()

	parallel.For(n, func(b int) {
		gb := gv[b*cin*h*w : (b+1)*cin*h*w]
		for o := 0; o < cout; o++ {
			gout := gov[(b*cout+o)*oh*ow : (b*cout+o+1)*oh*ow]
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					g := gout[oy*ow+ox]
					if g == 0 {
						continue
					}
					for ch := 0; ch < cin; ch++ {
						for ky := 0; ky < kh; ky++ {
							iy := oy*stride[0] + ky - padding[0]
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*stride[1] + kx - padding[1]
								if ix < 0 || ix >= w {
									continue
								}
								gb[(ch*h+iy)*w+ix] += g * kv[((o*cin+ch)*kh+ky)*kw+kx]
							}
						}
					}
				}
			}
		}
	}, c.pool)

	return grad
}

// Conv2DKernelGrad computes the gradient of a conv2d output with respect to
// its kernel.
func (c *CPUBackend) Conv2DKernelGrad(gradOut, input *tensor.RawTensor, kernelShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor {
	n, cout, oh, ow := conv2DDims(gradOut)
	_, cin, h, w := conv2DDims(input)
	kh, kw := kernelShape[2], kernelShape[3]

	grad := mustNewRaw(kernelShape, tensor.Float32)
	gv := grad.AsFloat32()
	gov := gradOut.AsFloat32()
	in := input.AsFloat32()

	// Parallel over output channels: each owns a disjoint slice of the grad.
	parallel.For(cout, func(o int) {
		for b := 0; b < n; b++ {
			gout := gov[(b*cout+o)*oh*ow : (b*cout+o+1)*oh*ow]
			img := in[b*cin*h*w : (b+1)*cin*h*w]
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					g := gout[oy*ow+ox]
					if g == 0 {
						continue
					}
					for ch := 0; ch < cin; ch++ {
						for ky := 0; ky < kh; ky++ {
							iy := oy*stride[0] + ky - padding[0]
							if iy < 0 || iy >= h {
								continue
							}
							for kx := 0; kx < kw; kx++ {
								ix := ox*stride[1] + kx - padding[1]
								if ix < 0 || ix >= w {
									continue
								}
								gv[((o*cin+ch)*kh+ky)*kw+kx] += g * img[(ch*h+iy)*w+ix]
							}
						}
					}
				}
			}
		}
	}, c.pool)

	return grad
}

func conv2DDims(t *tensor.RawTensor) (n, c, h, w int) {
	s := t.Shape()
	if len(s) != 4 {
		panic(fmt.Sprintf("cpu: conv2d requires 4D tensors, got shape %v", s))
	}
	return s[0], s[1], s[2], s[3]
}
