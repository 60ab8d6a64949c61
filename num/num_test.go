package num

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randArray(rng *rand.Rand, dims ...int) *Array {
	a := NewArray(dims...)
	for i := range a.Data {
		a.Data[i] = rng.Float32()*2 - 1
	}
	return a
}

func TestArray(t *testing.T) {
	x := NewArrayFrom([]float32{1, 1, 2, 2, 3, 3}, 6)
	x = x.Reshape(2, -1)
	require.Equal(t, []int{2, 3}, x.Dims())
	require.Equal(t, []float32{2, 3, 3}, x.Row(1))
	y := x.Clone()
	y.Data[0] = 9
	require.Equal(t, float32(1), x.Data[0])
	require.Panics(t, func() { x.Reshape(4, -1) })
	require.Panics(t, func() { x.Reshape(-1, -1) })
	t.Log(x)
}

func TestCopy(t *testing.T) {
	x := NewArray(2, 3)
	Copy(x, NewArrayFrom([]float32{3, 2, 1}, 3))
	require.Equal(t, []float32{3, 2, 1, 3, 2, 1}, x.Data)
	require.Panics(t, func() { Copy(x, NewArray(4)) })
}

func TestAxpy(t *testing.T) {
	x := NewArrayFrom([]float32{1, 2, 3}, 3)
	y := NewArrayFrom([]float32{1, 1, 1}, 3)
	Axpy(2, x, y)
	require.Equal(t, []float32{3, 5, 7}, y.Data)
	Scale(0.5, y)
	require.Equal(t, []float32{1.5, 2.5, 3.5}, y.Data)
	require.InDelta(t, 15, Sum(y, 2), 1e-6)
}

func TestGemm(t *testing.T) {
	a := NewArrayFrom([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := NewArrayFrom([]float32{1, 0, 0, 1, 1, 1}, 3, 2)
	c := NewArray(2, 2)
	Gemm(1, 0, a, b, c, NoTrans, NoTrans)
	require.Equal(t, []float32{4, 5, 10, 11}, c.Data)

	// a' * a
	c2 := NewArray(3, 3)
	Gemm(1, 0, a, a, c2, Trans, NoTrans)
	require.Equal(t, []float32{17, 22, 27, 22, 29, 36, 27, 36, 45}, c2.Data)

	// accumulate
	Gemm(1, 1, a, b, c, NoTrans, NoTrans)
	require.Equal(t, []float32{8, 10, 20, 22}, c.Data)
	require.Panics(t, func() { Gemm(1, 0, a, a, c, NoTrans, NoTrans) })
}

func TestSoftmax(t *testing.T) {
	x := NewArrayFrom([]float32{1, 2, 3, 1000, 1000, 1000}, 2, 3)
	y := NewArrayLike(x)
	Softmax(x, y)
	for i := 0; i < 2; i++ {
		require.InDelta(t, 1, Sum(NewArrayFrom(y.Row(i), 3), 1), 1e-6)
	}
	require.InDelta(t, 0.6652, y.Data[2], 1e-4)
	require.InDelta(t, 1.0/3, y.Data[4], 1e-6)

	labels := make([]int32, 2)
	Unhot(y, labels)
	require.Equal(t, int32(2), labels[0])

	onehot := NewArray(2, 3)
	Onehot([]int32{2, 0}, onehot, 3)
	require.Equal(t, []float32{0, 0, 1, 1, 0, 0}, onehot.Data)
	loss := make([]float32, 2)
	SoftmaxLoss(onehot, y, loss)
	require.InDelta(t, 0.4076, loss[0], 1e-4)
	require.InDelta(t, 1.0986, loss[1], 1e-4)
	require.Panics(t, func() { Onehot([]int32{3, 0}, onehot, 3) })
}

func TestRelu(t *testing.T) {
	x := NewArrayFrom([]float32{-1, 0, 2}, 3)
	y := NewArrayLike(x)
	Relu(x, y)
	require.Equal(t, []float32{0, 0, 2}, y.Data)
	dx := NewArrayLike(x)
	ReluD(x, NewArrayFrom([]float32{5, 5, 5}, 3), dx)
	require.Equal(t, []float32{0, 0, 5}, dx.Data)
	require.Equal(t, 1, Neq([]int32{1, 2, 3}, []int32{1, 0, 3}))
}

func TestIm2col(t *testing.T) {
	// 1 sample, 3x3 image, 1 channel
	x := NewArrayFrom([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 3, 3, 1)
	col := NewArray(9, 9)
	Im2col(nil, x, col, 3)
	require.Equal(t, []float32{0, 0, 0, 0, 1, 2, 0, 4, 5}, col.Row(0))
	require.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, col.Row(4))
	require.Equal(t, []float32{5, 6, 0, 8, 9, 0, 0, 0, 0}, col.Row(8))
}

// <Im2col(x), c> == <x, Col2im(c)>
func TestCol2imAdjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	q := NewQueue(2)
	x := randArray(rng, 3, 5, 4, 2)
	c := randArray(rng, 3*5*4, 3*3*2)
	col := NewArrayLike(c)
	Im2col(q, x, col, 3)
	dx := NewArrayLike(x)
	Col2im(q, c, dx, 3)
	var lhs, rhs float64
	for i := range col.Data {
		lhs += float64(col.Data[i] * c.Data[i])
	}
	for i := range x.Data {
		rhs += float64(x.Data[i] * dx.Data[i])
	}
	require.InDelta(t, lhs, rhs, 1e-3)
}

func TestMaxPool(t *testing.T) {
	x := NewArrayFrom([]float32{
		1, 2, 5, 3,
		4, 0, 1, 1,
		7, 1, 2, 2,
		1, 1, 8, 2,
	}, 1, 4, 4, 1)
	y := NewArray(1, 2, 2, 1)
	index := make([]int32, 4)
	MaxPool(NewQueue(0), x, y, index, 2)
	require.Equal(t, []float32{4, 5, 7, 8}, y.Data)
	require.Equal(t, []int32{4, 2, 8, 14}, index)

	dx := NewArrayLike(x)
	MaxPoolD(NewArrayFrom([]float32{1, 2, 3, 4}, 1, 2, 2, 1), dx, index)
	require.Equal(t, float32(1), dx.Data[4])
	require.Equal(t, float32(4), dx.Data[14])
	require.InDelta(t, 10, Sum(dx, 1), 1e-6)
}

func TestQueue(t *testing.T) {
	q := NewQueue(4)
	res := make([]int, 100)
	q.Run(len(res), func(thread, i int) {
		if thread >= 0 && thread < 4 {
			res[i] = i * i
		}
	})
	require.Equal(t, 81, res[9])
	require.Equal(t, 99*99, res[99])
	err := q.Call(10, func(thread, i int) error {
		if i == 5 {
			return errTest
		}
		return nil
	})
	require.ErrorIs(t, err, errTest)
	var nilq *Queue
	require.Equal(t, 1, nilq.Threads())
}

var errTest = errors.New("test error")
