package num

import (
	"fmt"
	"strings"
)

// Parameters for array printing
var (
	PrintThreshold = 12
	PrintEdgeitems = 4
)

// Array is a general n dimensional float32 tensor similar to a numpy ndarray.
// Data is stored in row major order, so a batch of images has dims [batch, height, width, channel].
type Array struct {
	Data []float32
	dims []int
}

// NewArray allocates a new zeroed array with the given shape.
func NewArray(dims ...int) *Array {
	return &Array{Data: make([]float32, Prod(dims)), dims: append([]int{}, dims...)}
}

// NewArrayFrom wraps an existing slice, which must have Prod(dims) elements.
func NewArrayFrom(data []float32, dims ...int) *Array {
	if len(data) != Prod(dims) {
		panic(fmt.Sprintf("NewArrayFrom: data length %d does not match shape %v", len(data), dims))
	}
	return &Array{Data: data, dims: append([]int{}, dims...)}
}

// NewArrayLike allocates a zeroed array with the same shape as a.
func NewArrayLike(a *Array) *Array {
	return NewArray(a.dims...)
}

// Dims returns the shape of the array.
func (a *Array) Dims() []int { return a.dims }

// Size is total number of elements
func (a *Array) Size() int { return len(a.Data) }

// Reshape returns a new array with a view on the same data but with a different shape.
// One dimension may be given as -1, in which case it is inferred from the size.
func (a *Array) Reshape(dims ...int) *Array {
	dims = append([]int{}, dims...)
	n := len(a.Data)
	for i := range dims {
		if dims[i] == -1 {
			other := 1
			for j, dim := range dims {
				if i != j {
					if dim == -1 {
						panic("Reshape: can only have single -1 value")
					}
					other *= dim
				}
			}
			dims[i] = n / other
		}
	}
	if Prod(dims) != n {
		panic(fmt.Sprintf("Reshape: invalid shape %v for array of size %d", dims, n))
	}
	return &Array{Data: a.Data, dims: dims}
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{Data: append([]float32{}, a.Data...), dims: append([]int{}, a.dims...)}
}

// Row returns a view on the i'th entry along the first dimension.
func (a *Array) Row(i int) []float32 {
	stride := Prod(a.dims[1:])
	return a.Data[i*stride : (i+1)*stride]
}

// Formatted output, large arrays are elided as per numpy.
func (a *Array) String() string {
	if len(a.dims) == 0 {
		return fmt.Sprintf("%.4g", a.Data)
	}
	if len(a.dims) == 1 {
		return formatRow(a.Data)
	}
	rows := a.dims[0]
	cols := len(a.Data) / max(rows, 1)
	s := make([]string, 0, rows)
	for i := 0; i < rows; i++ {
		if rows > PrintThreshold && i == PrintEdgeitems {
			s = append(s, " ...")
			i = rows - PrintEdgeitems - 1
			continue
		}
		s = append(s, " "+formatRow(a.Data[i*cols:(i+1)*cols]))
	}
	return fmt.Sprintf("%v\n[%s]", a.dims, strings.TrimPrefix(strings.Join(s, "\n"), " "))
}

func formatRow(data []float32) string {
	s := make([]string, 0, len(data))
	for i := 0; i < len(data); i++ {
		if len(data) > PrintThreshold && i == PrintEdgeitems {
			s = append(s, "...")
			i = len(data) - PrintEdgeitems - 1
			continue
		}
		s = append(s, fmt.Sprintf("%8.4f", data[i]))
	}
	return "[" + strings.Join(s, " ") + "]"
}

// Prod returns the product of the dimensions.
func Prod(arr []int) int {
	prod := 1
	for _, x := range arr {
		prod *= x
	}
	return prod
}

// SameShape checks if two shapes are identical.
func SameShape(xd, yd []int) bool {
	if len(xd) != len(yd) {
		return false
	}
	for i, d := range xd {
		if yd[i] != d {
			return false
		}
	}
	return true
}
