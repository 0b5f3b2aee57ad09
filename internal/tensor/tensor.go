// Package tensor holds the dense, row-major arrays exchanged between the
// dataset reader, the inference backend and the metrics. Arrays are gomlx
// host tensors; the helpers here add the shape checks and element
// conversions the evaluation needs.
package tensor

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ErrShape reports arrays whose rank, dimensions or element type do not fit
// together.
var ErrShape = errors.New("tensor shape mismatch")

// Element lists the element types arrays are converted between.
type Element interface {
	float32 | float64 | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

// FromFlat builds a tensor over row-major data after checking that data
// fills dims exactly.
func FromFlat[T Element](data []T, dims ...int) (*tensors.Tensor, error) {
	for _, d := range dims {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative dimension in %v", ErrShape, dims)
		}
	}
	if n := size(dims); n != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d elements, got %d", ErrShape, dims, n, len(data))
	}
	return tensors.FromFlatDataAndDimensions(data, dims...), nil
}

func Zeros[T Element](dims ...int) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(make([]T, size(dims)), dims...)
}

// Dims returns a copy of t's dimensions, nil for a missing tensor.
func Dims(t *tensors.Tensor) []int {
	if t == nil {
		return nil
	}
	return append([]int(nil), t.Shape().Dimensions...)
}

func Rank(t *tensors.Tensor) int { return len(Dims(t)) }

// Dim returns the size of axis i, or 0 when the axis does not exist.
func Dim(t *tensors.Tensor, i int) int {
	dims := Dims(t)
	if i < 0 || i >= len(dims) {
		return 0
	}
	return dims[i]
}

// Len is the number of elements, 0 for a missing tensor.
func Len(t *tensors.Tensor) int {
	if t == nil {
		return 0
	}
	return size(Dims(t))
}

// Values copies t's elements into a new slice of T, converting numerically.
// Boolean elements become 0 or 1.
func Values[T Element](t *tensors.Tensor) ([]T, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: missing array", ErrShape)
	}
	var (
		out []T
		err error
	)
	t.ConstFlatData(func(flat any) {
		out, err = convertFlat[T](flat)
	})
	return out, err
}

// Cast returns a tensor with t's dimensions and T elements.
func Cast[T Element](t *tensors.Tensor) (*tensors.Tensor, error) {
	vals, err := Values[T](t)
	if err != nil {
		return nil, err
	}
	return FromFlat(vals, Dims(t)...)
}

// Reshape returns a T tensor holding t's elements under new dimensions.
func Reshape[T Element](t *tensors.Tensor, dims ...int) (*tensors.Tensor, error) {
	vals, err := Values[T](t)
	if err != nil {
		return nil, err
	}
	return FromFlat(vals, dims...)
}

// Rows splits a rank-2 tensor into per-row slices.
func Rows[T Element](t *tensors.Tensor) ([][]T, error) {
	dims := Dims(t)
	if len(dims) != 2 {
		return nil, fmt.Errorf("%w: want rank 2, got %v", ErrShape, dims)
	}
	vals, err := Values[T](t)
	if err != nil {
		return nil, err
	}
	rows := make([][]T, dims[0])
	for i := range rows {
		rows[i] = vals[i*dims[1] : (i+1)*dims[1] : (i+1)*dims[1]]
	}
	return rows, nil
}

// Array is the wire form of a tensor: its dimensions and row-major values.
type Array struct {
	Shape []int `json:"shape"`
	Data  any   `json:"data"`
}

func Encode(t *tensors.Tensor) Array {
	if t == nil {
		return Array{}
	}
	var data any
	t.ConstFlatData(func(flat any) {
		src := reflect.ValueOf(flat)
		dst := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		reflect.Copy(dst, src)
		data = dst.Interface()
	})
	return Array{Shape: Dims(t), Data: data}
}

func convertFlat[T Element](flat any) ([]T, error) {
	switch v := flat.(type) {
	case []float32:
		return convert[T](v), nil
	case []float64:
		return convert[T](v), nil
	case []int8:
		return convert[T](v), nil
	case []int16:
		return convert[T](v), nil
	case []int32:
		return convert[T](v), nil
	case []int64:
		return convert[T](v), nil
	case []uint8:
		return convert[T](v), nil
	case []uint16:
		return convert[T](v), nil
	case []uint32:
		return convert[T](v), nil
	case []uint64:
		return convert[T](v), nil
	case []bool:
		out := make([]T, len(v))
		for i, b := range v {
			if b {
				out[i] = 1
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported element type %T", ErrShape, flat)
	}
}

func convert[D, S Element](src []S) []D {
	out := make([]D, len(src))
	for i, v := range src {
		out[i] = D(v)
	}
	return out
}

func size(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
