package img

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
)

// Types of image transformations
type TransType int

const NoTrans TransType = 0

const (
	HorizFlip TransType = 1 << iota
	Rotate
	Zoom
	Pan
)

// Augment is the standard set of random distortions applied while training.
var Augment = HorizFlip | Rotate | Zoom | Pan

var transTypeNames = map[TransType]string{
	HorizFlip: "HorizFlip",
	Rotate:    "Rotate",
	Zoom:      "Zoom",
	Pan:       "Pan",
}

func (t TransType) String() string {
	if t == NoTrans {
		return "None"
	}
	s := []string{}
	for key, name := range transTypeNames {
		if t&key != 0 {
			s = append(s, name)
		}
	}
	sort.Strings(s)
	return strings.Join(s, " ")
}

// ParseTransType converts a space separated list of names as returned by String back to flags.
func ParseTransType(s string) (TransType, error) {
	t := NoTrans
	for _, field := range strings.Fields(s) {
		if field == "None" {
			continue
		}
		found := false
		for key, name := range transTypeNames {
			if strings.EqualFold(field, name) {
				t |= key
				found = true
			}
		}
		if !found {
			return t, fmt.Errorf("invalid transform type %q", field)
		}
	}
	return t, nil
}

// Default limits for each of the random transforms
var (
	FlipProb  = 0.5
	MaxRotate = 0.1 // fraction of a full turn
	MaxZoom   = 0.1 // fraction of image size
	MaxPan    = 0.1 // fraction of image size
)

// Transformer applies random flip, rotate, zoom and pan distortions to batches of images.
// Pixels are sampled with bilinear interpolation and points outside the source are reflected
// back across the edge.
type Transformer struct {
	Amount float64
	Trans  TransType
	w, h   int
	ch     int
	rng    []*rand.Rand
}

// Create a new transformer object for images with the given height, width and channels.
// Each worker thread in q gets its own random source seeded from rng.
func NewTransformer(h, w, ch int, trans TransType, q *num.Queue, rng *rand.Rand) *Transformer {
	t := &Transformer{Amount: 1, Trans: trans, w: w, h: h, ch: ch}
	for i := 0; i < q.Threads(); i++ {
		t.rng = append(t.rng, rand.New(rand.NewSource(rng.Int63())))
	}
	return t
}

// transform parameters for one image
type params struct {
	flip   bool
	angle  float64
	zoom   float64
	ox, oy float64
}

func (t *Transformer) random(rng *rand.Rand) params {
	var p params
	if t.Trans&HorizFlip != 0 {
		p.flip = rng.Float64() < FlipProb
	}
	if t.Trans&Rotate != 0 {
		p.angle = t.Amount * MaxRotate * 2 * math.Pi * (2*rng.Float64() - 1)
	}
	if t.Trans&Zoom != 0 {
		p.zoom = t.Amount * MaxZoom * (2*rng.Float64() - 1)
	}
	if t.Trans&Pan != 0 {
		p.ox = t.Amount * MaxPan * float64(t.w) * (2*rng.Float64() - 1)
		p.oy = t.Amount * MaxPan * float64(t.h) * (2*rng.Float64() - 1)
	}
	return p
}

// TransformBatch applies an independent random transform to each image in the NHWC batch x and
// writes the result to y. Work is split across the threads of q.
func (t *Transformer) TransformBatch(q *num.Queue, x, y *num.Array) {
	dims := x.Dims()
	if len(dims) != 4 || dims[1] != t.h || dims[2] != t.w || dims[3] != t.ch || !num.SameShape(dims, y.Dims()) {
		panic(fmt.Sprintf("TransformBatch: invalid batch shape %v", dims))
	}
	if t.Trans == NoTrans {
		num.Copy(y, x)
		return
	}
	q.Run(dims[0], func(thread, i int) {
		t.apply(x.Row(i), y.Row(i), t.random(t.rng[thread%len(t.rng)]))
	})
}

// Map each output pixel back to a point in the source: undo the pan, then the zoom and rotation
// about the image centre, then the flip.
func (t *Transformer) apply(src, dst []float32, p params) {
	sina, cosa := math.Sincos(p.angle)
	scale := 1 + p.zoom
	cx, cy := float64(t.w-1)/2, float64(t.h-1)/2
	for y := 0; y < t.h; y++ {
		for x := 0; x < t.w; x++ {
			xm := float64(x) - p.ox - cx
			ym := float64(y) - p.oy - cy
			xs := scale*(xm*cosa+ym*sina) + cx
			ys := scale*(-xm*sina+ym*cosa) + cy
			if p.flip {
				xs = float64(t.w-1) - xs
			}
			t.sample(src, dst[(y*t.w+x)*t.ch:], xs, ys)
		}
	}
}

// bilinear sample at point (xs, ys) with reflection at the borders
func (t *Transformer) sample(src, out []float32, xs, ys float64) {
	fx, fy := math.Floor(xs), math.Floor(ys)
	ix, iy := int(fx), int(fy)
	xf, yf := float32(xs-fx), float32(ys-fy)
	x0, x1 := wrap(ix, t.w), wrap(ix+1, t.w)
	y0, y1 := wrap(iy, t.h), wrap(iy+1, t.h)
	p00 := src[(y0*t.w+x0)*t.ch:]
	p01 := src[(y0*t.w+x1)*t.ch:]
	p10 := src[(y1*t.w+x0)*t.ch:]
	p11 := src[(y1*t.w+x1)*t.ch:]
	for c := 0; c < t.ch; c++ {
		avg0 := p00[c]*(1-xf) + p01[c]*xf
		avg1 := p10[c]*(1-xf) + p11[c]*xf
		out[c] = avg0*(1-yf) + avg1*yf
	}
}

// reflect coordinate x into the range [0, dx) as d c b a | a b c d | d c b a
func wrap(x, dx int) int {
	period := 2 * dx
	x %= period
	if x < 0 {
		x += period
	}
	if x >= dx {
		return period - x - 1
	}
	return x
}

func clamp(x, x0, x1 float32) float32 {
	if x < x0 {
		return x0
	}
	if x > x1 {
		return x1
	}
	return x
}
