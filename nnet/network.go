// Package nnet contains routines for constructing, training and testing neural networks.
package nnet

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
)

// Network type represents a multilayer neural network model.
type Network struct {
	Config
	Layers    []Layer
	Optimiser Optimiser
	queue     *num.Queue
	inShape   []int
	yOneHot   *num.Array
	inputGrad *num.Array
	loss      []float32
	classes   []int32
}

// New function creates a new network with the given layers. inShape is the shape of one input
// sample, e.g. [height, width, channels].
func New(q *num.Queue, conf Config, inShape []int, rng *rand.Rand) *Network {
	if len(conf.Layers) == 0 {
		panic("network has no layers")
	}
	n := &Network{Config: conf, queue: q, inShape: append([]int{}, inShape...)}
	shape := n.inShape
	for _, l := range conf.Layers {
		layer := l.Unmarshal().Init(q, shape, rng)
		n.Layers = append(n.Layers, layer)
		shape = layer.OutShape(shape)
	}
	if _, ok := n.Layers[len(n.Layers)-1].(OutputLayer); !ok {
		panic("final layer must be an output layer")
	}
	eta := conf.Eta
	if eta == 0 {
		eta = 1e-3
	}
	adam := NewAdam(eta)
	if conf.Beta1 != 0 {
		adam.Beta1 = conf.Beta1
	}
	if conf.Beta2 != 0 {
		adam.Beta2 = conf.Beta2
	}
	n.Optimiser = adam
	return n
}

// Initialise network weights.
func (n *Network) InitWeights(rng *rand.Rand) {
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			l.InitParams(rng)
		}
	}
	if n.DebugLevel >= 2 {
		n.PrintWeights()
	}
}

// InShape returns the shape of one input sample.
func (n *Network) InShape() []int { return n.inShape }

// OutShape returns the shape of the output for one sample.
func (n *Network) OutShape() []int {
	shape := n.inShape
	for _, layer := range n.Layers {
		shape = layer.OutShape(shape)
	}
	return shape
}

// Accessor for output layer
func (n *Network) OutLayer() OutputLayer {
	return n.Layers[len(n.Layers)-1].(OutputLayer)
}

// Params returns the trainable parameter arrays, and their gradients, for all layers.
func (n *Network) Params() (params, grads []*num.Array) {
	for _, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			params = append(params, l.Params()...)
			grads = append(grads, l.ParamGrads()...)
		}
	}
	return
}

// Weights returns a copy of all parameters and non-trainable state indexed by layer.
func (n *Network) Weights() []LayerData {
	var data []LayerData
	for i, layer := range n.Layers {
		arrays := layerArrays(layer)
		if len(arrays) == 0 {
			continue
		}
		d := LayerData{Layer: i}
		for _, a := range arrays {
			d.Values = append(d.Values, append([]float32{}, a.Data...))
		}
		data = append(data, d)
	}
	return data
}

// SetWeights restores the values saved by Weights.
func (n *Network) SetWeights(data []LayerData) error {
	nlayers := len(n.Layers)
	for _, d := range data {
		if d.Layer >= nlayers {
			return fmt.Errorf("layer %d import error: network has %d layers total", d.Layer, nlayers)
		}
		arrays := layerArrays(n.Layers[d.Layer])
		if len(arrays) != len(d.Values) {
			return fmt.Errorf("layer %d import error: have %d arrays - expect %d", d.Layer, len(d.Values), len(arrays))
		}
		for j, a := range arrays {
			if a.Size() != len(d.Values[j]) {
				return fmt.Errorf("layer %d import error: size mismatch for array %d - have %d - expect %d",
					d.Layer, j, len(d.Values[j]), a.Size())
			}
		}
	}
	for _, d := range data {
		for j, a := range layerArrays(n.Layers[d.Layer]) {
			copy(a.Data, d.Values[j])
		}
	}
	return nil
}

func layerArrays(layer Layer) []*num.Array {
	var arrays []*num.Array
	if l, ok := layer.(ParamLayer); ok {
		arrays = append(arrays, l.Params()...)
	}
	if l, ok := layer.(StateLayer); ok {
		arrays = append(arrays, l.State()...)
	}
	return arrays
}

// Feed forward the input to get the predicted output. If train is set then dropout and
// augmentation layers are active and batch norm uses the batch statistics.
func (n *Network) Fprop(input *num.Array, train bool) *num.Array {
	pred := input
	for i, layer := range n.Layers {
		if n.DebugLevel >= 3 {
			fmt.Printf("layer %d input\n%s\n", i, pred)
		}
		pred = layer.Fprop(pred, train)
	}
	return pred
}

// Back propagate the gradient of the loss with respect to the output layer input.
func (n *Network) Bprop(grad *num.Array) {
	for i := len(n.Layers) - 1; i >= 0; i-- {
		grad = n.Layers[i].Bprop(grad)
		if n.DebugLevel >= 3 && grad != nil {
			fmt.Printf("layer %d bprop output:\n%s\n", i, grad)
		}
	}
}

// TrainBatch runs one optimisation step on a minibatch and returns the mean loss and the
// number of correct predictions prior to updating the weights.
func (n *Network) TrainBatch(x *num.Array, y []int32) (loss float64, correct int) {
	loss, correct = n.gradients(x, y)
	n.Optimiser.Update(n.Params())
	return loss, correct
}

// fprop and bprop in training mode to set the parameter gradients
func (n *Network) gradients(x *num.Array, y []int32) (loss float64, correct int) {
	yPred := n.Fprop(x, true)
	loss, correct = n.batchLoss(yPred, y)
	// gradient of mean cross entropy wrt softmax input
	n.inputGrad = alloc(n.inputGrad, yPred.Dims()...)
	num.Copy(n.inputGrad, yPred)
	num.Axpy(-1, n.yOneHot, n.inputGrad)
	num.Scale(1/float32(len(y)), n.inputGrad)
	n.Bprop(n.inputGrad)
	return loss, correct
}

func (n *Network) batchLoss(yPred *num.Array, y []int32) (loss float64, correct int) {
	nclass := yPred.Dims()[1]
	n.yOneHot = alloc(n.yOneHot, len(y), nclass)
	num.Onehot(y, n.yOneHot, nclass)
	if cap(n.loss) < len(y) {
		n.loss = make([]float32, len(y))
		n.classes = make([]int32, len(y))
	}
	n.loss, n.classes = n.loss[:len(y)], n.classes[:len(y)]
	n.OutLayer().Loss(n.yOneHot, yPred, n.loss)
	for _, l := range n.loss {
		loss += float64(l)
	}
	num.Unhot(yPred, n.classes)
	correct = len(y) - num.Neq(n.classes, y)
	return loss / float64(len(y)), correct
}

// Predict output probabilities given input data, if classes is not nil it is set to the
// index of the most probable class for each sample.
func (n *Network) Predict(input *num.Array, classes []int32) *num.Array {
	yPred := n.Fprop(input, false)
	if classes != nil {
		num.Unhot(yPred, classes)
	}
	return yPred
}

// Evaluation results for a data set
type Result struct {
	Loss     float64
	Accuracy float64
	Labels   []int32
	Pred     []int32
	Probs    *num.Array
}

// Evaluate calculates the mean loss and accuracy over the dataset in inference mode, along with
// the predicted class and probabilities for each sample.
func (n *Network) Evaluate(dset *Dataset) Result {
	nclass := num.Prod(n.OutShape())
	res := Result{
		Labels: make([]int32, 0, dset.Samples),
		Pred:   make([]int32, 0, dset.Samples),
		Probs:  num.NewArray(dset.Samples, nclass),
	}
	var total float64
	correct := 0
	dset.NextEpoch()
	for batch := 0; batch < dset.Batches; batch++ {
		x, y := dset.NextBatch()
		yPred := n.Fprop(x, false)
		loss, ok := n.batchLoss(yPred, y)
		total += loss * float64(len(y))
		correct += ok
		copy(res.Probs.Data[len(res.Pred)*nclass:], yPred.Data)
		res.Labels = append(res.Labels, y...)
		res.Pred = append(res.Pred, n.classes...)
		if n.DebugLevel >= 2 || (n.DebugLevel >= 1 && batch == 0) {
			fmt.Printf("batch %d loss = %.4f correct = %d/%d\n", batch, loss, ok, len(y))
		}
	}
	if dset.Samples > 0 {
		res.Loss = total / float64(dset.Samples)
		res.Accuracy = float64(correct) / float64(dset.Samples)
	}
	return res
}

// Strip returns a copy of the network configuration with the augmentation stages removed.
// The new network shares the weights of the original.
func (n *Network) Strip() *Network {
	s := &Network{Config: n.Config, Optimiser: n.Optimiser, queue: n.queue, inShape: n.inShape}
	s.Layers = nil
	s.Config.Layers = nil
	for i, layer := range n.Layers {
		if _, ok := layer.(*augment); ok {
			continue
		}
		s.Layers = append(s.Layers, layer)
		s.Config.Layers = append(s.Config.Layers, n.Config.Layers[i])
	}
	return s
}

// Print network description
func (n *Network) String() string {
	s := make([]string, len(n.Layers))
	shape := n.inShape
	for i, layer := range n.Layers {
		s[i] = fmt.Sprintf("%2d: %-45s %v", i, layer.ToString(), shape)
		shape = layer.OutShape(shape)
	}
	return fmt.Sprintf("%s\n== Layers ==\n%s", n.Config.configString(), strings.Join(s, "\n"))
}

// Print network weights
func (n *Network) PrintWeights() {
	for i, layer := range n.Layers {
		if l, ok := layer.(ParamLayer); ok {
			for _, p := range l.Params() {
				fmt.Printf("== Layer %d weights ==\n%s\n", i, p)
			}
		}
	}
}

// Set random number seed, or random seed if seed <= 0
func SetSeed(seed int64) *rand.Rand {
	if seed <= 0 {
		seed = time.Now().UTC().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Exit in case of error
func CheckErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
