package tensor

import (
	"math"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	raw, err := NewRaw(shape, dataTypeOf[T](), b.Device())
	if err != nil {
		panic(err)
	}
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, oneOf[T](), b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a float tensor sampled from N(0, 1) via the Box-Muller
// transform. math/rand is intentional: ML noise wants seedable streams.
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	switch data := any(t.Data()).(type) {
	case []float32:
		for i := 0; i < len(data); i += 2 {
			z0, z1 := boxMuller()
			data[i] = float32(z0)
			if i+1 < len(data) {
				data[i+1] = float32(z1)
			}
		}
	case []float64:
		for i := 0; i < len(data); i += 2 {
			z0, z1 := boxMuller()
			data[i] = z0
			if i+1 < len(data) {
				data[i+1] = z1
			}
		}
	default:
		panic("Randn only supports float32 and float64 types")
	}
	return t
}

func boxMuller() (float64, float64) {
	u1 := rand.Float64()
	u2 := rand.Float64()
	r := math.Sqrt(-2.0 * math.Log(u1))
	return r * math.Cos(2.0*math.Pi*u2), r * math.Sin(2.0*math.Pi*u2)
}

// Rand creates a float tensor with values uniform in [0, 1).
func Rand[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	switch data := any(t.Data()).(type) {
	case []float32:
		for i := range data {
			data[i] = rand.Float32()
		}
	case []float64:
		for i := range data {
			data[i] = rand.Float64()
		}
	default:
		panic("Rand only supports float32 and float64 types")
	}
	return t
}

// Uniform creates a float tensor with values uniform in [lo, hi).
func Uniform[T DType, B Backend](shape Shape, lo, hi float64, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	span := hi - lo
	switch data := any(t.Data()).(type) {
	case []float32:
		for i := range data {
			data[i] = float32(lo + span*rand.Float64())
		}
	case []float64:
		for i := range data {
			data[i] = lo + span*rand.Float64()
		}
	default:
		panic("Uniform only supports float32 and float64 types")
	}
	return t
}

// Arange creates a 1D tensor [start, start+1, ..., end-1].
func Arange[T DType, B Backend](start, end T, b B) *Tensor[T, B] {
	n := arangeLen(start, end)
	if n <= 0 {
		panic("end must be greater than start")
	}
	t := Zeros[T, B](Shape{n}, b)
	switch data := any(t.Data()).(type) {
	case []float32:
		s := any(start).(float32)
		for i := range data {
			data[i] = s + float32(i)
		}
	case []float64:
		s := any(start).(float64)
		for i := range data {
			data[i] = s + float64(i)
		}
	case []int32:
		s := any(start).(int32)
		for i := range data {
			data[i] = s + int32(i)
		}
	case []int64:
		s := any(start).(int64)
		for i := range data {
			data[i] = s + int64(i)
		}
	case []uint8:
		s := any(start).(uint8)
		for i := range data {
			data[i] = s + uint8(i)
		}
	default:
		panic("Arange not supported for this type")
	}
	return t
}

func arangeLen[T DType](start, end T) int {
	switch s := any(start).(type) {
	case float32:
		return int(any(end).(float32) - s)
	case float64:
		return int(any(end).(float64) - s)
	case int32:
		return int(any(end).(int32) - s)
	case int64:
		return int(any(end).(int64) - s)
	case uint8:
		return int(any(end).(uint8) - s)
	default:
		panic("Arange not supported for this type")
	}
}

// Eye creates an n-by-n identity matrix.
func Eye[T DType, B Backend](n int, b B) *Tensor[T, B] {
	t := Zeros[T, B](Shape{n, n}, b)
	one := oneOf[T]()
	for i := 0; i < n; i++ {
		t.Set(one, i, i)
	}
	return t
}

func oneOf[T DType]() T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(float32(1)).(T)
	case float64:
		return any(float64(1)).(T)
	case int32:
		return any(int32(1)).(T)
	case int64:
		return any(int64(1)).(T)
	case uint8:
		return any(uint8(1)).(T)
	case bool:
		return any(true).(T)
	default:
		panic("unsupported type")
	}
}
