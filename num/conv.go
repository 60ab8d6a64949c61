package num

import "fmt"

// Im2col unpacks each kxk patch of the NHWC input x into a row of col, with same padding and unit
// stride. col has dims [n*h*w, k*k*c] and the columns are ordered by (ky, kx, channel). Samples are
// processed in parallel on q, which may be nil.
func Im2col(q *Queue, x, col *Array, k int) {
	n, h, w, c := imageDims("Im2col", x)
	if !SameShape(col.Dims(), []int{n * h * w, k * k * c}) {
		panic(fmt.Sprintf("Im2col: invalid output shape %v", col.Dims()))
	}
	pad := k / 2
	q.Run(n, func(thread, s int) {
		src := x.Row(s)
		dst := col.Data[s*h*w*k*k*c : (s+1)*h*w*k*k*c]
		p := 0
		for y := 0; y < h; y++ {
			for x0 := 0; x0 < w; x0++ {
				for ky := 0; ky < k; ky++ {
					sy := y + ky - pad
					for kx := 0; kx < k; kx++ {
						sx := x0 + kx - pad
						if sy < 0 || sy >= h || sx < 0 || sx >= w {
							for ch := 0; ch < c; ch++ {
								dst[p+ch] = 0
							}
						} else {
							copy(dst[p:p+c], src[(sy*w+sx)*c:])
						}
						p += c
					}
				}
			}
		}
	})
}

// Col2im is the adjoint of Im2col: it accumulates the patch gradients in col back into dx,
// which is overwritten.
func Col2im(q *Queue, col, dx *Array, k int) {
	n, h, w, c := imageDims("Col2im", dx)
	if !SameShape(col.Dims(), []int{n * h * w, k * k * c}) {
		panic(fmt.Sprintf("Col2im: invalid input shape %v", col.Dims()))
	}
	pad := k / 2
	q.Run(n, func(thread, s int) {
		dst := dx.Row(s)
		for i := range dst {
			dst[i] = 0
		}
		src := col.Data[s*h*w*k*k*c : (s+1)*h*w*k*k*c]
		p := 0
		for y := 0; y < h; y++ {
			for x0 := 0; x0 < w; x0++ {
				for ky := 0; ky < k; ky++ {
					sy := y + ky - pad
					for kx := 0; kx < k; kx++ {
						sx := x0 + kx - pad
						if sy >= 0 && sy < h && sx >= 0 && sx < w {
							base := (sy*w + sx) * c
							for ch := 0; ch < c; ch++ {
								dst[base+ch] += src[p+ch]
							}
						}
						p += c
					}
				}
			}
		}
	})
}

// MaxPool applies a size x size max pooling with stride equal to size. Trailing rows and columns
// which do not fill a window are dropped. The flat input index of each maximum is stored in
// index for use in the backward pass.
func MaxPool(q *Queue, x, y *Array, index []int32, size int) {
	n, h, w, c := imageDims("MaxPool", x)
	oh, ow := h/size, w/size
	if !SameShape(y.Dims(), []int{n, oh, ow, c}) || len(index) < y.Size() {
		panic(fmt.Sprintf("MaxPool: invalid output shape %v", y.Dims()))
	}
	q.Run(n, func(thread, s int) {
		src := x.Row(s)
		off := s * oh * ow * c
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				for ch := 0; ch < c; ch++ {
					best := ((oy*size)*w+ox*size)*c + ch
					for dy := 0; dy < size; dy++ {
						for dx := 0; dx < size; dx++ {
							i := ((oy*size+dy)*w+ox*size+dx)*c + ch
							if src[i] > src[best] {
								best = i
							}
						}
					}
					j := off + (oy*ow+ox)*c + ch
					y.Data[j] = src[best]
					index[j] = int32(s*h*w*c + best)
				}
			}
		}
	})
}

// MaxPoolD routes the output gradient dy back to the input positions recorded by MaxPool.
func MaxPoolD(dy, dx *Array, index []int32) {
	Fill(dx, 0)
	for j, g := range dy.Data {
		dx.Data[index[j]] += g
	}
}

func imageDims(name string, x *Array) (n, h, w, c int) {
	dims := x.Dims()
	if len(dims) != 4 {
		panic(name + ": array must be 4d [batch, height, width, channel]")
	}
	return dims[0], dims[1], dims[2], dims[3]
}
