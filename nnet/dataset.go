package nnet

import (
	"math/rand"
	"sync"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
)

// Data interface type represents the raw data for a training or test set
type Data interface {
	Len() int
	Classes() []string
	Shape() []int
	Label(index []int, label []int32)
	Input(index []int, buf []float32)
}

// Dataset type encapsulates a set of training, test or validation data.
// The next minibatch is loaded on a background goroutine while the current one is processed.
type Dataset struct {
	Data
	Samples   int
	BatchSize int
	Batches   int
	nfeat     int
	x         [2][]float32
	y         [2][]int32
	indexes   []int
	buf       int
	batch     int
	rng       *rand.Rand
	sync.WaitGroup
}

// Create a new Dataset struct, allocate array buffers and set the batch size and maxSamples
func NewDataset(data Data, batchSize, maxSamples int, rng *rand.Rand) *Dataset {
	d := &Dataset{Data: data, Samples: data.Len(), rng: rng}
	if maxSamples > 0 && d.Samples > maxSamples {
		d.Samples = maxSamples
	}
	if batchSize == 0 || batchSize > d.Samples {
		d.BatchSize = d.Samples
	} else {
		d.BatchSize = batchSize
	}
	if d.BatchSize > 0 {
		d.Batches = d.Samples / d.BatchSize
		if d.Samples%d.BatchSize != 0 {
			d.Batches++
		}
	}
	d.nfeat = num.Prod(data.Shape())
	for i := range d.x {
		d.x[i] = make([]float32, d.nfeat*d.BatchSize)
		d.y[i] = make([]int32, d.BatchSize)
	}
	d.indexes = make([]int, d.Samples)
	for i := range d.indexes {
		d.indexes[i] = i
	}
	return d
}

// kick off load of next batch of data in background
func (d *Dataset) loadBatch() {
	if d.Batches == 0 {
		return
	}
	d.Add(1)
	go func(batch, buf int) {
		defer d.Done()
		start, end := d.batchRange(batch)
		d.Input(d.indexes[start:end], d.x[buf])
		d.Label(d.indexes[start:end], d.y[buf])
	}(d.batch, d.buf)
}

func (d *Dataset) batchRange(batch int) (start, end int) {
	start = batch * d.BatchSize
	return start, min(start+d.BatchSize, d.Samples)
}

// Get next batch of data, the last batch in an epoch may be smaller than BatchSize.
// The returned arrays are valid until the following call.
func (d *Dataset) NextBatch() (x *num.Array, y []int32) {
	d.Wait()
	start, end := d.batchRange(d.batch)
	n := end - start
	x = num.NewArrayFrom(d.x[d.buf][:n*d.nfeat], append([]int{n}, d.Shape()...)...)
	y = d.y[d.buf][:n]
	d.batch = (d.batch + 1) % d.Batches
	d.buf = (d.buf + 1) % 2
	d.loadBatch()
	return
}

// Called at start of each epoch
func (d *Dataset) NextEpoch() {
	d.Wait()
	d.batch = 0
	d.loadBatch()
}

// Shuffle the data set
func (d *Dataset) Shuffle() {
	d.Wait()
	if d.Samples < d.Len() {
		d.indexes = d.rng.Perm(d.Len())[:d.Samples]
	} else {
		d.indexes = d.rng.Perm(d.Samples)
	}
}
