package nnet

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/img"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
	"github.com/chewxy/math32"
)

// Layer interface type represents one layer of the neural net.
// Shapes passed to Init and OutShape exclude the leading batch dimension.
type Layer interface {
	Init(q *num.Queue, inShape []int, rng *rand.Rand) Layer
	OutShape(inShape []int) []int
	Fprop(in *num.Array, train bool) *num.Array
	Bprop(grad *num.Array) *num.Array
	ToString() string
}

// ParamLayer is a layer with trainable parameters
type ParamLayer interface {
	Layer
	InitParams(rng *rand.Rand)
	Params() []*num.Array
	ParamGrads() []*num.Array
}

// StateLayer has non-trainable state which must be saved with the weights
type StateLayer interface {
	Layer
	State() []*num.Array
}

// OutputLayer is the final layer in the stack
type OutputLayer interface {
	Layer
	Loss(yOneHot, yPred *num.Array, loss []float32)
}

// Layer configuration details
type LayerConfig struct {
	Type string
	Data json.RawMessage `json:",omitempty"`
}

type ConfigLayer interface {
	Marshal() LayerConfig
}

// Unmarshal JSON data and construct new layer
func (l LayerConfig) Unmarshal() Layer {
	switch l.Type {
	case "augment":
		cfg := new(Augment)
		return cfg.unmarshal(l.Data)
	case "conv":
		cfg := new(Conv)
		return cfg.unmarshal(l.Data)
	case "batchNorm":
		cfg := new(BatchNorm)
		return cfg.unmarshal(l.Data)
	case "maxPool":
		cfg := new(MaxPool)
		return cfg.unmarshal(l.Data)
	case "dropout":
		cfg := new(Dropout)
		return cfg.unmarshal(l.Data)
	case "linear":
		cfg := new(Linear)
		return cfg.unmarshal(l.Data)
	case "activation":
		cfg := new(Activation)
		return cfg.unmarshal(l.Data)
	case "flatten":
		return &flatten{}
	default:
		panic("invalid layer type: " + l.Type)
	}
}

func (l LayerConfig) String() string {
	return l.Unmarshal().ToString()
}

// Augment layer applies random image distortions in training mode and passes the input
// through unchanged otherwise. Trans is a list of img.TransType names.
type Augment struct {
	Trans  string
	Amount float64
}

func (c Augment) Marshal() LayerConfig {
	if c.Amount == 0 {
		c.Amount = 1
	}
	return LayerConfig{Type: "augment", Data: marshal(c)}
}

func (c Augment) ToString() string {
	return fmt.Sprintf("augment %+v", c)
}

func (c *Augment) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	trans, err := img.ParseTransType(c.Trans)
	if err != nil {
		panic(err)
	}
	return &augment{Augment: *c, trans: trans}
}

// Convolutional layer with same padding and unit stride, implements ParamLayer interface.
type Conv struct {
	Nfeats, Size int
	NoBias       bool
}

func (c Conv) Marshal() LayerConfig {
	if c.Size == 0 {
		c.Size = 3
	}
	return LayerConfig{Type: "conv", Data: marshal(c)}
}

func (c Conv) ToString() string {
	return fmt.Sprintf("conv %+v", c)
}

func (c *Conv) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	if c.Size%2 != 1 {
		panic(fmt.Sprintf("conv: kernel size %d must be odd", c.Size))
	}
	return &conv{Conv: *c}
}

// Batch normalisation layer, normalises over all but the channel dimension.
type BatchNorm struct {
	Momentum, Epsilon float64
}

func (c BatchNorm) Marshal() LayerConfig {
	if c.Momentum == 0 {
		c.Momentum = 0.99
	}
	if c.Epsilon == 0 {
		c.Epsilon = 1e-3
	}
	return LayerConfig{Type: "batchNorm", Data: marshal(c)}
}

func (c BatchNorm) ToString() string {
	return fmt.Sprintf("batchNorm %+v", c)
}

func (c *BatchNorm) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &batchNorm{BatchNorm: *c}
}

// Max pooling layer, should follow conv layer.
type MaxPool struct {
	Size int
}

func (c MaxPool) Marshal() LayerConfig {
	if c.Size == 0 {
		c.Size = 2
	}
	return LayerConfig{Type: "maxPool", Data: marshal(c)}
}

func (c MaxPool) ToString() string {
	return fmt.Sprintf("maxPool %+v", c)
}

func (c *MaxPool) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &maxPool{MaxPool: *c}
}

// Dropout layer zeros a fraction Ratio of its inputs while training.
type Dropout struct {
	Ratio float64
}

func (c Dropout) Marshal() LayerConfig {
	return LayerConfig{Type: "dropout", Data: marshal(c)}
}

func (c Dropout) ToString() string {
	return fmt.Sprintf("dropout %+v", c)
}

func (c *Dropout) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	if c.Ratio < 0 || c.Ratio >= 1 {
		panic(fmt.Sprintf("dropout: ratio %g out of range", c.Ratio))
	}
	return &dropout{Dropout: *c}
}

// Linear fully connected layer, implements ParamLayer interface.
type Linear struct {
	Nout int
}

func (c Linear) Marshal() LayerConfig {
	return LayerConfig{Type: "linear", Data: marshal(c)}
}

func (c Linear) ToString() string {
	return fmt.Sprintf("linear %+v", c)
}

func (c *Linear) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	return &linear{Linear: *c}
}

// Relu or softmax activation layer. Softmax implements the OutputLayer interface with
// categorical cross entropy loss.
type Activation struct {
	Atype string
}

func (c Activation) Marshal() LayerConfig {
	return LayerConfig{Type: "activation", Data: marshal(c)}
}

func (c Activation) ToString() string {
	return fmt.Sprintf("activation %+v", c)
}

func (c *Activation) unmarshal(data json.RawMessage) Layer {
	unmarshal(data, c)
	switch c.Atype {
	case "relu":
		return &relu{Activation: *c}
	case "softmax":
		return &softmax{Activation: *c}
	default:
		panic(fmt.Sprintf("activation type %s invalid", c.Atype))
	}
}

// Flatten layer reshapes to 2 dimensions.
type Flatten struct{}

func (c Flatten) Marshal() LayerConfig {
	return LayerConfig{Type: "flatten"}
}

// augment layer implementation
type augment struct {
	Augment
	layerBase
	trans       img.TransType
	transformer *img.Transformer
	queue       *num.Queue
}

func (l *augment) Init(q *num.Queue, inShape []int, rng *rand.Rand) Layer {
	if len(inShape) != 3 {
		panic("augment: expect 3 dimensional input")
	}
	l.queue = q
	l.transformer = img.NewTransformer(inShape[0], inShape[1], inShape[2], l.trans, q, rng)
	l.transformer.Amount = l.Amount
	return l
}

func (l *augment) Fprop(in *num.Array, train bool) *num.Array {
	if !train || l.transformer == nil {
		return in
	}
	l.dst = alloc(l.dst, in.Dims()...)
	l.transformer.TransformBatch(l.queue, in, l.dst)
	return l.dst
}

func (l *augment) Bprop(grad *num.Array) *num.Array {
	return grad
}

// convolutional layer implementation
type conv struct {
	Conv
	layerBase
	paramBase
	queue *num.Queue
	col   *num.Array
	dcol  *num.Array
	nIn   int
}

func (l *conv) OutShape(inShape []int) []int {
	return []int{inShape[0], inShape[1], l.Nfeats}
}

func (l *conv) Init(q *num.Queue, inShape []int, rng *rand.Rand) Layer {
	if len(inShape) != 3 {
		panic("conv: expect 3 dimensional input")
	}
	l.queue = q
	l.nIn = inShape[2]
	fanIn := l.Size * l.Size * l.nIn
	l.paramBase = newParams([]int{fanIn, l.Nfeats}, !l.NoBias, fanIn, l.Size*l.Size*l.Nfeats)
	return l
}

func (l *conv) Fprop(in *num.Array, train bool) *num.Array {
	n, h, w := in.Dims()[0], in.Dims()[1], in.Dims()[2]
	l.src = in
	l.col = alloc(l.col, n*h*w, l.Size*l.Size*l.nIn)
	l.dst = alloc(l.dst, n, h, w, l.Nfeats)
	num.Im2col(l.queue, in, l.col, l.Size)
	out := l.dst.Reshape(n*h*w, l.Nfeats)
	if l.b != nil {
		num.Copy(out, l.b)
		num.Gemm(1, 1, l.col, l.w, out, num.NoTrans, num.NoTrans)
	} else {
		num.Gemm(1, 0, l.col, l.w, out, num.NoTrans, num.NoTrans)
	}
	return l.dst
}

func (l *conv) Bprop(grad *num.Array) *num.Array {
	rows := num.Prod(grad.Dims()[:3])
	g := grad.Reshape(rows, l.Nfeats)
	num.Gemm(1, 0, l.col, g, l.dw, num.Trans, num.NoTrans)
	if l.db != nil {
		sumRows(g, l.db)
	}
	l.dcol = alloc(l.dcol, l.col.Dims()...)
	num.Gemm(1, 0, g, l.w, l.dcol, num.NoTrans, num.Trans)
	l.dsrc = alloc(l.dsrc, l.src.Dims()...)
	num.Col2im(l.queue, l.dcol, l.dsrc, l.Size)
	return l.dsrc
}

// batch normalisation layer implementation
type batchNorm struct {
	BatchNorm
	layerBase
	paramBase
	runMean, runVar *num.Array
	xhat            *num.Array
	mean, invStd    []float32
	channels        int
}

func (l *batchNorm) Init(q *num.Queue, inShape []int, rng *rand.Rand) Layer {
	l.channels = inShape[len(inShape)-1]
	l.paramBase = paramBase{
		w:  num.NewArray(l.channels),
		b:  num.NewArray(l.channels),
		dw: num.NewArray(l.channels),
		db: num.NewArray(l.channels),
	}
	l.runMean = num.NewArray(l.channels)
	l.runVar = num.NewArray(l.channels)
	num.Fill(l.runVar, 1)
	num.Fill(l.w, 1)
	l.mean = make([]float32, l.channels)
	l.invStd = make([]float32, l.channels)
	return l
}

// gamma is initialised to one and beta to zero
func (l *batchNorm) InitParams(rng *rand.Rand) {
	num.Fill(l.w, 1)
	num.Fill(l.b, 0)
	num.Fill(l.runMean, 0)
	num.Fill(l.runVar, 1)
}

func (l *batchNorm) State() []*num.Array {
	return []*num.Array{l.runMean, l.runVar}
}

func (l *batchNorm) Fprop(in *num.Array, train bool) *num.Array {
	c := l.channels
	m := in.Size() / c
	l.dst = alloc(l.dst, in.Dims()...)
	eps := float32(l.Epsilon)
	if train {
		l.xhat = alloc(l.xhat, in.Dims()...)
		variance := make([]float32, c)
		for i := range l.mean {
			l.mean[i] = 0
		}
		for i, v := range in.Data {
			l.mean[i%c] += v
		}
		for j := range l.mean {
			l.mean[j] /= float32(m)
		}
		for i, v := range in.Data {
			d := v - l.mean[i%c]
			variance[i%c] += d * d
		}
		mom := float32(l.Momentum)
		for j := range variance {
			variance[j] /= float32(m)
			l.invStd[j] = 1 / math32.Sqrt(variance[j]+eps)
			l.runMean.Data[j] = mom*l.runMean.Data[j] + (1-mom)*l.mean[j]
			l.runVar.Data[j] = mom*l.runVar.Data[j] + (1-mom)*variance[j]
		}
		for i, v := range in.Data {
			j := i % c
			xh := (v - l.mean[j]) * l.invStd[j]
			l.xhat.Data[i] = xh
			l.dst.Data[i] = l.w.Data[j]*xh + l.b.Data[j]
		}
		return l.dst
	}
	for j := 0; j < c; j++ {
		l.invStd[j] = 1 / math32.Sqrt(l.runVar.Data[j]+eps)
	}
	for i, v := range in.Data {
		j := i % c
		l.dst.Data[i] = l.w.Data[j]*(v-l.runMean.Data[j])*l.invStd[j] + l.b.Data[j]
	}
	return l.dst
}

func (l *batchNorm) Bprop(grad *num.Array) *num.Array {
	c := l.channels
	m := float32(grad.Size() / c)
	l.dsrc = alloc(l.dsrc, grad.Dims()...)
	num.Fill(l.dw, 0)
	num.Fill(l.db, 0)
	for i, g := range grad.Data {
		j := i % c
		l.db.Data[j] += g
		l.dw.Data[j] += g * l.xhat.Data[i]
	}
	// dx = gamma*invstd/m * (m*dy - sum(dy) - xhat*sum(dy*xhat))
	for i, g := range grad.Data {
		j := i % c
		l.dsrc.Data[i] = l.w.Data[j] * l.invStd[j] / m * (m*g - l.db.Data[j] - l.xhat.Data[i]*l.dw.Data[j])
	}
	return l.dsrc
}

// pool layer implentation
type maxPool struct {
	MaxPool
	layerBase
	queue *num.Queue
	index []int32
}

func (l *maxPool) OutShape(inShape []int) []int {
	return []int{inShape[0] / l.Size, inShape[1] / l.Size, inShape[2]}
}

func (l *maxPool) Init(q *num.Queue, inShape []int, rng *rand.Rand) Layer {
	if len(inShape) != 3 {
		panic("maxPool: expect 3 dimensional input")
	}
	l.queue = q
	return l
}

func (l *maxPool) Fprop(in *num.Array, train bool) *num.Array {
	l.src = in
	dims := in.Dims()
	l.dst = alloc(l.dst, append(dims[:1:1], l.OutShape(dims[1:])...)...)
	if len(l.index) < l.dst.Size() {
		l.index = make([]int32, l.dst.Size())
	}
	num.MaxPool(l.queue, in, l.dst, l.index, l.Size)
	return l.dst
}

func (l *maxPool) Bprop(grad *num.Array) *num.Array {
	l.dsrc = alloc(l.dsrc, l.src.Dims()...)
	num.MaxPoolD(grad, l.dsrc, l.index)
	return l.dsrc
}

// dropout layer implementation
type dropout struct {
	Dropout
	layerBase
	mask []float32
	rng  *rand.Rand
}

func (l *dropout) Init(q *num.Queue, inShape []int, rng *rand.Rand) Layer {
	l.rng = rand.New(rand.NewSource(rng.Int63()))
	return l
}

func (l *dropout) Fprop(in *num.Array, train bool) *num.Array {
	if !train || l.Ratio == 0 {
		l.mask = l.mask[:0]
		return in
	}
	l.dst = alloc(l.dst, in.Dims()...)
	if cap(l.mask) < in.Size() {
		l.mask = make([]float32, in.Size())
	}
	l.mask = l.mask[:in.Size()]
	scale := float32(1 / (1 - l.Ratio))
	for i, v := range in.Data {
		if l.rng.Float64() < l.Ratio {
			l.mask[i] = 0
		} else {
			l.mask[i] = scale
		}
		l.dst.Data[i] = v * l.mask[i]
	}
	return l.dst
}

func (l *dropout) Bprop(grad *num.Array) *num.Array {
	if len(l.mask) == 0 {
		return grad
	}
	l.dsrc = alloc(l.dsrc, grad.Dims()...)
	for i, g := range grad.Data {
		l.dsrc.Data[i] = g * l.mask[i]
	}
	return l.dsrc
}

// linear layer implementation
type linear struct {
	Linear
	layerBase
	paramBase
}

func (l *linear) OutShape(inShape []int) []int {
	return []int{l.Nout}
}

func (l *linear) Init(q *num.Queue, inShape []int, rng *rand.Rand) Layer {
	if len(inShape) != 1 {
		panic("linear: expect 1 dimensional input, add a flatten layer")
	}
	l.paramBase = newParams([]int{inShape[0], l.Nout}, true, inShape[0], l.Nout)
	return l
}

func (l *linear) Fprop(in *num.Array, train bool) *num.Array {
	l.src = in
	l.dst = alloc(l.dst, in.Dims()[0], l.Nout)
	num.Copy(l.dst, l.b)
	num.Gemm(1, 1, in, l.w, l.dst, num.NoTrans, num.NoTrans)
	return l.dst
}

func (l *linear) Bprop(grad *num.Array) *num.Array {
	sumRows(grad, l.db)
	num.Gemm(1, 0, l.src, grad, l.dw, num.Trans, num.NoTrans)
	l.dsrc = alloc(l.dsrc, l.src.Dims()...)
	num.Gemm(1, 0, grad, l.w, l.dsrc, num.NoTrans, num.Trans)
	return l.dsrc
}

// relu activation layer
type relu struct {
	Activation
	layerBase
}

func (l *relu) Init(q *num.Queue, inShape []int, rng *rand.Rand) Layer {
	return l
}

func (l *relu) Fprop(in *num.Array, train bool) *num.Array {
	l.src = in
	l.dst = alloc(l.dst, in.Dims()...)
	num.Relu(in, l.dst)
	return l.dst
}

func (l *relu) Bprop(grad *num.Array) *num.Array {
	l.dsrc = alloc(l.dsrc, grad.Dims()...)
	num.ReluD(l.src, grad, l.dsrc)
	return l.dsrc
}

// softmax output layer, the gradient passed to Bprop is the derivative of the loss with respect
// to the softmax input, i.e. yPred - yOneHot.
type softmax struct {
	Activation
	layerBase
}

func (l *softmax) Init(q *num.Queue, inShape []int, rng *rand.Rand) Layer {
	if len(inShape) != 1 {
		panic("softmax: expect 1 dimensional input")
	}
	return l
}

func (l *softmax) Fprop(in *num.Array, train bool) *num.Array {
	l.dst = alloc(l.dst, in.Dims()...)
	num.Softmax(in, l.dst)
	return l.dst
}

func (l *softmax) Bprop(grad *num.Array) *num.Array {
	return grad
}

func (l *softmax) Loss(yOneHot, yPred *num.Array, loss []float32) {
	num.SoftmaxLoss(yOneHot, yPred, loss)
}

type flatten struct {
	layerBase
}

func (l *flatten) ToString() string { return "flatten" }

func (l *flatten) OutShape(inShape []int) []int {
	return []int{num.Prod(inShape)}
}

func (l *flatten) Init(q *num.Queue, inShape []int, rng *rand.Rand) Layer {
	return l
}

func (l *flatten) Fprop(in *num.Array, train bool) *num.Array {
	l.src = in
	return in.Reshape(in.Dims()[0], -1)
}

func (l *flatten) Bprop(grad *num.Array) *num.Array {
	return grad.Reshape(l.src.Dims()...)
}

// base layer type
type layerBase struct {
	src  *num.Array
	dst  *num.Array
	dsrc *num.Array
}

func (l layerBase) OutShape(inShape []int) []int { return inShape }

// weight and bias parameters
type paramBase struct {
	w, b          *num.Array
	dw, db        *num.Array
	fanIn, fanOut int
}

func newParams(wShape []int, bias bool, fanIn, fanOut int) paramBase {
	p := paramBase{
		w:      num.NewArray(wShape...),
		dw:     num.NewArray(wShape...),
		fanIn:  fanIn,
		fanOut: fanOut,
	}
	if bias {
		nout := wShape[len(wShape)-1]
		p.b = num.NewArray(nout)
		p.db = num.NewArray(nout)
	}
	return p
}

func (p paramBase) Params() []*num.Array {
	if p.b == nil {
		return []*num.Array{p.w}
	}
	return []*num.Array{p.w, p.b}
}

func (p paramBase) ParamGrads() []*num.Array {
	if p.db == nil {
		return []*num.Array{p.dw}
	}
	return []*num.Array{p.dw, p.db}
}

// InitParams sets the weights using the Glorot uniform distribution and the bias to zero.
func (p paramBase) InitParams(rng *rand.Rand) {
	limit := math.Sqrt(6 / float64(p.fanIn+p.fanOut))
	for i := range p.w.Data {
		p.w.Data[i] = float32(limit * (2*rng.Float64() - 1))
	}
	if p.b != nil {
		num.Fill(p.b, 0)
	}
}

// sum the rows of a 2d array into out
func sumRows(a, out *num.Array) {
	cols := out.Size()
	num.Fill(out, 0)
	for i, v := range a.Data {
		out.Data[i%cols] += v
	}
}

// return a if it already has the required shape, else allocate a new array
func alloc(a *num.Array, dims ...int) *num.Array {
	if a != nil && num.SameShape(a.Dims(), dims) {
		return a
	}
	return num.NewArray(dims...)
}

func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func unmarshal(data json.RawMessage, v interface{}) {
	if len(data) == 0 {
		return
	}
	err := json.Unmarshal(data, v)
	if err != nil {
		panic(err)
	}
}
