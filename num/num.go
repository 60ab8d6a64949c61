// Package num contains numeric Array processing routines such as optimised matrix multiplication
// and the image kernels used by the convolutional layers.
package num

import (
	"fmt"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// TransType flag indicates if matrix is transposed
type TransType bool

const (
	NoTrans TransType = false
	Trans   TransType = true
)

// Fill array with a scalar value
func Fill(a *Array, scalar float32) {
	for i := range a.Data {
		a.Data[i] = scalar
	}
}

// Copy from src to dst, a vector src is tiled row wise across a matrix dst.
func Copy(dst, src *Array) {
	ddim, sdim := dst.Dims(), src.Dims()
	switch {
	case dst.Size() == src.Size():
		copy(dst.Data, src.Data)
	case len(sdim) == 1 && len(ddim) == 2 && sdim[0] == ddim[1]:
		for i := 0; i < ddim[0]; i++ {
			copy(dst.Data[i*ddim[1]:], src.Data)
		}
	default:
		panic(fmt.Sprintf("Copy: cannot copy from %v to %v shape", sdim, ddim))
	}
}

// Scale array: x <- alpha*x
func Scale(alpha float32, x *Array) {
	for i := range x.Data {
		x.Data[i] *= alpha
	}
}

// Array addition and scaling: y <- alpha*x + y
func Axpy(alpha float32, x, y *Array) {
	if x.Size() != y.Size() {
		panic("Axpy: arrays must be same size")
	}
	blas32.Axpy(alpha, blas32.Vector{N: x.Size(), Data: x.Data, Inc: 1}, blas32.Vector{N: y.Size(), Data: y.Data, Inc: 1})
}

// Calculate the sum of the values in the array multiplied by scale.
func Sum(a *Array, scale float32) float32 {
	var total float32
	for _, v := range a.Data {
		total += v
	}
	return total * scale
}

// Matrix matrix multiplication: mC <- alpha*dot(mA, mB) + beta*mC
func Gemm(alpha, beta float32, mA, mB, mC *Array, aTrans, bTrans TransType) {
	adim, bdim, cdim := mA.Dims(), mB.Dims(), mC.Dims()
	if len(adim) != 2 || len(bdim) != 2 || len(cdim) != 2 {
		panic("Gemm: must have 2 dimensional arrays")
	}
	m, k := adim[0], adim[1]
	k2, n := bdim[0], bdim[1]
	if aTrans {
		m, k = k, m
	}
	if bTrans {
		k2, n = n, k2
	}
	if k2 != k {
		panic(fmt.Sprintf("Gemm: invalid input shape %v x %v", adim, bdim))
	}
	if cdim[0] != m || cdim[1] != n {
		panic(fmt.Sprintf("Gemm: invalid output shape %v expecting [%d %d]", cdim, m, n))
	}
	blas32.Gemm(trans(aTrans), trans(bTrans), alpha, general(mA), general(mB), beta, general(mC))
}

func trans(t TransType) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

func general(a *Array) blas32.General {
	dims := a.Dims()
	return blas32.General{Rows: dims[0], Cols: dims[1], Stride: dims[1], Data: a.Data}
}

// Relu rectified linear activation function: y = max(x, 0)
func Relu(x, y *Array) {
	for i, v := range x.Data {
		if v > 0 {
			y.Data[i] = v
		} else {
			y.Data[i] = 0
		}
	}
}

// ReluD sets dx to grad where the input x was positive and zero elsewhere.
func ReluD(x, grad, dx *Array) {
	for i, v := range x.Data {
		if v > 0 {
			dx.Data[i] = grad.Data[i]
		} else {
			dx.Data[i] = 0
		}
	}
}

// Softmax activation function applied to each row of a [batch, classes] matrix.
func Softmax(x, res *Array) {
	rows, cols := matrixDims("Softmax", x)
	for i := 0; i < rows; i++ {
		in := x.Data[i*cols : (i+1)*cols]
		out := res.Data[i*cols : (i+1)*cols]
		xmax := in[0]
		for _, v := range in[1:] {
			xmax = math32.Max(xmax, v)
		}
		var sum float32
		for j, v := range in {
			out[j] = math32.Exp(v - xmax)
			sum += out[j]
		}
		for j := range out {
			out[j] /= sum
		}
	}
}

// Minimum probability used when taking logs in the loss function.
const Epsilon = 1e-7

// SoftmaxLoss sets loss[i] to the categorical cross entropy of row i of the predicted probabilities
// yPred against the one hot targets yOneHot.
func SoftmaxLoss(yOneHot, yPred *Array, loss []float32) {
	rows, cols := matrixDims("SoftmaxLoss", yPred)
	if !SameShape(yOneHot.Dims(), yPred.Dims()) || len(loss) < rows {
		panic("SoftmaxLoss: arrays must be same shape")
	}
	for i := 0; i < rows; i++ {
		var l float32
		for j := 0; j < cols; j++ {
			if y := yOneHot.Data[i*cols+j]; y != 0 {
				p := math32.Min(math32.Max(yPred.Data[i*cols+j], Epsilon), 1-Epsilon)
				l -= y * math32.Log(p)
			}
		}
		loss[i] = l
	}
}

// Convert labels to one hot representation with dims [len(labels), classes].
func Onehot(labels []int32, y *Array, classes int) {
	if !SameShape(y.Dims(), []int{len(labels), classes}) {
		panic("Onehot: invalid array shape")
	}
	Fill(y, 0)
	for i, label := range labels {
		if label < 0 || int(label) >= classes {
			panic(fmt.Sprintf("Onehot: label %d out of range", label))
		}
		y.Data[i*classes+int(label)] = 1
	}
}

// Convert from one hot or probability format back to labels by taking the argmax of each row.
func Unhot(x *Array, labels []int32) {
	rows, cols := matrixDims("Unhot", x)
	for i := 0; i < rows; i++ {
		labels[i] = int32(Argmax(x.Data[i*cols : (i+1)*cols]))
	}
}

// Argmax returns the index of the largest value.
func Argmax(x []float32) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

// Neq returns the number of elements where x and y differ.
func Neq(x, y []int32) int {
	if len(x) != len(y) {
		panic("Neq: arrays must be same length")
	}
	n := 0
	for i := range x {
		if x[i] != y[i] {
			n++
		}
	}
	return n
}

func matrixDims(name string, x *Array) (rows, cols int) {
	dims := x.Dims()
	if len(dims) != 2 {
		panic(name + ": array must be 2d")
	}
	return dims[0], dims[1]
}
