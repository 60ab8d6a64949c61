// Package img contains routines for manipulating sets of images.
package img

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var RGBModel = color.ModelFunc(rgbModel)

// RGB color is stored as a float for each channel with values in range 0-1
type RGB struct {
	R, G, B float32
}

func (c RGB) RGBA() (r, g, b, a uint32) {
	return clampu(c.R, 0, 1), clampu(c.G, 0, 1), clampu(c.B, 0, 1), 0xffff
}

func rgbModel(c color.Color) color.Color {
	if _, ok := c.(RGB); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return RGB{R: float32(r) / 0xffff, G: float32(g) / 0xffff, B: float32(b) / 0xffff}
}

// Image type stores the image data as float32 values in row major order with the r, g and b
// values for each pixel interleaved, which is the layout of one entry in an NHWC batch.
type Image struct {
	Pix      []float32
	Height   int
	Width    int
	Channels int
}

// NewRGB returns a blank 3 channel image.
func NewRGB(width, height int) *Image {
	return &Image{Pix: make([]float32, height*width*3), Height: height, Width: width, Channels: 3}
}

// NewImageLike returns a blank image with the same size as src.
func NewImageLike(src *Image) *Image {
	return &Image{Pix: make([]float32, len(src.Pix)), Height: src.Height, Width: src.Width, Channels: src.Channels}
}

// FromImage converts any image to RGB with values scaled to the range 0-1.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	dst := NewRGB(b.Dx(), b.Dy())
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			dst.Set(x, y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// Resize scales src to the given size using bilinear interpolation.
func Resize(src image.Image, width, height int) *Image {
	if b := src.Bounds(); b.Dx() == width && b.Dy() == height {
		if m, ok := src.(*Image); ok {
			return m
		}
		return FromImage(src)
	}
	tmp := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(tmp, tmp.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return FromImage(tmp)
}

// Load reads and decodes an image file. Supported formats are png, jpeg, gif, bmp, tiff and webp.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("error decoding %s: empty %s image", path, format)
	}
	return FromImage(src), nil
}

func (m *Image) ColorModel() color.Model {
	return RGBModel
}

func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

func (m *Image) RGBAt(x, y int) RGB {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return RGB{}
	}
	i := (y*m.Width + x) * m.Channels
	return RGB{R: m.Pix[i], G: m.Pix[i+1], B: m.Pix[i+2]}
}

func (m *Image) At(x, y int) color.Color {
	return m.RGBAt(x, y)
}

func (m *Image) Set(x, y int, c color.Color) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	rgb := rgbModel(c).(RGB)
	i := (y*m.Width + x) * m.Channels
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = rgb.R, rgb.G, rgb.B
}

// Channel returns a copy of the values for one colour plane.
func (m *Image) Channel(ch int) []float32 {
	pix := make([]float32, 0, m.Width*m.Height)
	for i := ch; i < len(m.Pix); i += m.Channels {
		pix = append(pix, m.Pix[i])
	}
	return pix
}

func clampu(x, x0, x1 float32) uint32 {
	return uint32(clamp(x, x0, x1) * 0xffff)
}
