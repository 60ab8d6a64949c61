// Package infer classifies single images with an exported network.
package infer

import (
	"encoding/json"
	"fmt"
	"image"
	"sync"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/img"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/nnet"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
)

// Result is the outcome of classifying one image. On failure only Error is set.
type Result struct {
	Class         string             `json:"class"`
	ClassID       int                `json:"class_id"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"all_probabilities,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// OK reports whether the prediction succeeded.
func (r Result) OK() bool { return r.Error == "" }

func (r Result) String() string {
	if !r.OK() {
		return "error: " + r.Error
	}
	return fmt.Sprintf("%s (class %d) confidence %.2f%%", r.Class, r.ClassID, 100*r.Confidence)
}

// MarshalJSON encodes a failed result as just the error message.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.OK() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	type result Result
	return json.Marshal(result(r))
}

func errorResult(err error) Result {
	return Result{Error: err.Error()}
}

// Predictor wraps a network and its class names. Network layers keep per-call buffers, so
// predictions are serialised.
type Predictor struct {
	Net     *nnet.Network
	Classes []string
	mu      sync.Mutex
}

// NewPredictor checks that the network input is an image and that there is one output per class.
func NewPredictor(net *nnet.Network, classes []string) (*Predictor, error) {
	if shape := net.InShape(); len(shape) != 3 {
		return nil, fmt.Errorf("network input shape %v is not an image", shape)
	}
	if n := num.Prod(net.OutShape()); n != len(classes) {
		return nil, fmt.Errorf("network has %d outputs but %d classes", n, len(classes))
	}
	return &Predictor{Net: net.Strip(), Classes: classes}, nil
}

// Load reads a model directory written by nnet.SaveModel.
func Load(dir string, q *num.Queue) (*Predictor, error) {
	net, classes, err := nnet.LoadModel(dir, q)
	if err != nil {
		return nil, err
	}
	return NewPredictor(net, classes)
}

// PredictFile loads an image file and classifies it.
func (p *Predictor) PredictFile(path string) Result {
	src, err := img.Load(path)
	if err != nil {
		return errorResult(err)
	}
	return p.PredictImage(src)
}

// PredictImage resizes the image to the network input size, scales pixel values to [0,1]
// and returns the most probable class along with the probabilities for all classes.
func (p *Predictor) PredictImage(src image.Image) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = errorResult(fmt.Errorf("prediction failed: %v", r))
		}
	}()
	if src == nil || src.Bounds().Empty() {
		return errorResult(fmt.Errorf("empty image"))
	}
	shape := p.Net.InShape()
	height, width, channels := shape[0], shape[1], shape[2]
	if channels != 3 {
		return errorResult(fmt.Errorf("unsupported number of input channels: %d", channels))
	}
	m := img.Resize(src, width, height)
	x := num.NewArrayFrom(m.Pix, 1, height, width, channels)

	p.mu.Lock()
	defer p.mu.Unlock()
	probs := p.Net.Predict(x, nil)
	row := probs.Row(0)
	id := num.Argmax(row)
	res = Result{
		Class:         p.Classes[id],
		ClassID:       id,
		Confidence:    float64(row[id]),
		Probabilities: make(map[string]float64, len(row)),
	}
	for i, v := range row {
		res.Probabilities[p.Classes[i]] = float64(v)
	}
	return res
}
