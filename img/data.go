package img

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/stats"
)

// Image data set which implements the nnet.Data interface
type Data struct {
	DataHead
	Images []*Image
}

type DataHead struct {
	Class  []string
	Dims   []int
	Labels []int32
	Mean   []float32
	StdDev []float32
}

// Create a new image set. Labels must be in the range [0, len(classes)).
func NewData(classes []string, labels []int32, images []*Image) (*Data, error) {
	if len(labels) != len(images) {
		return nil, fmt.Errorf("NewData: have %d labels for %d images", len(labels), len(images))
	}
	for i, label := range labels {
		if label < 0 || int(label) >= len(classes) {
			return nil, fmt.Errorf("NewData: label %d for image %d out of range", label, i)
		}
	}
	var dims []int
	if len(images) > 0 {
		src := images[0]
		dims = []int{src.Height, src.Width, src.Channels}
	}
	return &Data{
		DataHead: DataHead{Class: classes, Dims: dims, Labels: labels},
		Images:   images,
	}, nil
}

// Len function returns number of images
func (d *Data) Len() int { return len(d.Labels) }

// Classes functions returns the class names
func (d *Data) Classes() []string { return d.Class }

// Shape returns height, width, channels
func (d *Data) Shape() []int { return d.Dims }

// Label returns classification for given images
func (d *Data) Label(index []int, label []int32) {
	for i, ix := range index {
		label[i] = d.Labels[ix]
	}
}

// Input copies the pixel data for the given images into buf in NHWC order.
func (d *Data) Input(index []int, buf []float32) {
	nfeat := d.nfeat()
	for i, ix := range index {
		copy(buf[i*nfeat:(i+1)*nfeat], d.Images[ix].Pix)
	}
}

// Image returns given image number, if channel is set then just show this colour channel
func (d *Data) Image(ix int, channel string) *Image {
	src := d.Images[ix]
	ch, haveChannel := map[string]int{"r": 0, "g": 1, "b": 2}[channel]
	if !haveChannel {
		return src
	}
	dst := NewImageLike(src)
	for i := range dst.Pix {
		dst.Pix[i] = src.Pix[i-i%src.Channels+ch]
	}
	return dst
}

// Slice returns images from start to end
func (d *Data) Slice(start, end int) *Data {
	data := *d
	data.Labels = append([]int32{}, d.Labels[start:end]...)
	data.Images = append([]*Image{}, d.Images[start:end]...)
	return &data
}

func (d *Data) nfeat() int {
	n := 1
	for _, d := range d.Dims {
		n *= d
	}
	return n
}

// Encode data to binary file
func (d *Data) Encode(w io.Writer) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(&d.DataHead); err != nil {
		return fmt.Errorf("error encoding header: %w", err)
	}
	for i, img := range d.Images {
		if err := enc.Encode(img); err != nil {
			return fmt.Errorf("error encoding image %d: %w", i, err)
		}
	}
	return nil
}

// Decode data from binary file
func (d *Data) Decode(r io.Reader) error {
	d.DataHead = DataHead{}
	dec := gob.NewDecoder(r)
	if err := dec.Decode(&d.DataHead); err != nil {
		return fmt.Errorf("error decoding header: %w", err)
	}
	d.Images = make([]*Image, d.Len())
	for i := range d.Images {
		if err := dec.Decode(&d.Images[i]); err != nil {
			return fmt.Errorf("error decoding image %d: %w", i, err)
		}
	}
	return nil
}

// Calculate mean and stddev per channel from set of images
func GetStats(imgList ...[]*Image) (mean, std []float32) {
	channels := imgList[0][0].Channels
	stat := make([]*stats.Average, channels)
	for i := range stat {
		stat[i] = new(stats.Average)
	}
	for _, images := range imgList {
		for _, img := range images {
			for i, val := range img.Pix {
				stat[i%channels].Add(float64(val))
			}
		}
	}
	mean = make([]float32, channels)
	std = make([]float32, channels)
	for i, s := range stat {
		mean[i] = float32(s.Mean)
		std[i] = float32(s.StdDev)
	}
	return mean, std
}
