package nnet

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/stats"
	"github.com/cyclopcam/logs"
)

const emaN = 10

// Training statistics for one epoch
type Stats struct {
	Epoch        int           `json:"epoch"`
	Loss         float64       `json:"loss"`
	Accuracy     float64       `json:"accuracy"`
	ValLoss      float64       `json:"val_loss"`
	ValAccuracy  float64       `json:"val_accuracy"`
	LearningRate float64       `json:"learning_rate"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Metric names which can be monitored
var Metrics = []string{"loss", "accuracy", "val_loss", "val_accuracy"}

// Get returns the value of the named metric.
func (s Stats) Get(metric string) float64 {
	switch metric {
	case "loss":
		return s.Loss
	case "accuracy":
		return s.Accuracy
	case "val_loss":
		return s.ValLoss
	case "val_accuracy":
		return s.ValAccuracy
	case "learning_rate":
		return s.LearningRate
	default:
		panic("invalid metric: " + metric)
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("epoch %3d: loss = %.4f accuracy = %.4f val_loss = %.4f val_accuracy = %.4f lr = %.3g",
		s.Epoch, s.Loss, s.Accuracy, s.ValLoss, s.ValAccuracy, s.LearningRate)
}

// History holds the stats for each completed epoch, epoch n is at index n-1.
type History []Stats

// Values returns the series for the named metric.
func (h History) Values(metric string) []float64 {
	v := make([]float64, len(h))
	for i, s := range h {
		v[i] = s.Get(metric)
	}
	return v
}

// Last returns the stats for the most recent epoch.
func (h History) Last() Stats {
	if len(h) == 0 {
		return Stats{}
	}
	return h[len(h)-1]
}

// Best returns the epoch with the best value of the metric, where lower is better for loss
// metrics and higher is better otherwise.
func (h History) Best(metric string) Stats {
	var best Stats
	for i, s := range h {
		if i == 0 || improved(metric, s.Get(metric), best.Get(metric), 0) {
			best = s
		}
	}
	return best
}

// check if val is an improvement on best by more than delta
func improved(metric string, val, best, delta float64) bool {
	if math.IsNaN(best) {
		return true
	}
	if minimise(metric) {
		return val < best-delta
	}
	return val > best+delta
}

func minimise(metric string) bool {
	return metric == "loss" || metric == "val_loss"
}

func initialBest(metric string) float64 {
	if minimise(metric) {
		return math.Inf(1)
	}
	return math.Inf(-1)
}

// Monitor is called after each training epoch and can request that training stops.
type Monitor interface {
	EpochEnd(log logs.Log, net *Network, h History) (stop bool, err error)
}

// TrainEnder is implemented by monitors which need to run once training is complete.
type TrainEnder interface {
	TrainEnd(log logs.Log, net *Network, h History) error
}

// Train the network on the training set, evaluating on the validation set after each epoch.
// Training stops after MaxEpoch epochs, when a monitor requests it or when ctx is cancelled,
// in which case the history so far is returned with the context error.
func Train(ctx context.Context, log logs.Log, net *Network, train, valid *Dataset, monitors ...Monitor) (History, error) {
	var h History
	start := time.Now()
	done := false
	var err error
	for epoch := 1; epoch <= net.MaxEpoch && !done; epoch++ {
		s := Stats{Epoch: epoch, LearningRate: net.Optimiser.LearningRate()}
		if s.Loss, s.Accuracy, err = TrainEpoch(ctx, log, net, train); err != nil {
			return h, err
		}
		res := net.Evaluate(valid)
		s.ValLoss, s.ValAccuracy = res.Loss, res.Accuracy
		s.Elapsed = time.Since(start)
		h = append(h, s)
		if net.LogEvery == 0 || epoch%net.LogEvery == 0 {
			log.Infof("%s", s)
		}
		for _, m := range monitors {
			stop, err := m.EpochEnd(log, net, h)
			if err != nil {
				return h, err
			}
			done = done || stop
		}
	}
	for _, m := range monitors {
		if e, ok := m.(TrainEnder); ok {
			if err := e.TrainEnd(log, net, h); err != nil {
				return h, err
			}
		}
	}
	log.Infof("run time: %s", time.Since(start).Round(10*time.Millisecond))
	return h, nil
}

// Perform one training epoch on dataset, returns the mean loss and accuracy over the batches.
func TrainEpoch(ctx context.Context, log logs.Log, net *Network, dset *Dataset) (loss, accuracy float64, err error) {
	if net.Shuffle {
		dset.Shuffle()
	}
	dset.NextEpoch()
	var ema stats.EMA
	var total float64
	correct := 0
	for batch := 0; batch < dset.Batches; batch++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		x, y := dset.NextBatch()
		batchLoss, ok := net.TrainBatch(x, y)
		if math.IsNaN(batchLoss) {
			return 0, 0, fmt.Errorf("loss is NaN at batch %d", batch)
		}
		total += batchLoss * float64(len(y))
		correct += ok
		ema = stats.EMA(ema.Add(batchLoss, emaN))
		if net.DebugLevel >= 1 && (batch+1)%100 == 0 {
			log.Debugf("batch %d/%d: loss = %.4f", batch+1, dset.Batches, float64(ema))
		}
	}
	if dset.Samples == 0 {
		return 0, 0, nil
	}
	return total / float64(dset.Samples), float64(correct) / float64(dset.Samples), nil
}

// EarlyStopping stops training when the monitored metric has not improved for Patience epochs.
// If RestoreBest is set the weights from the best epoch are restored at the end of training.
type EarlyStopping struct {
	Metric      string
	Patience    int
	MinDelta    float64
	RestoreBest bool
	best        float64
	bestEpoch   int
	wait        int
	weights     []LayerData
}

func NewEarlyStopping(metric string, patience int, restoreBest bool) *EarlyStopping {
	return &EarlyStopping{Metric: metric, Patience: patience, RestoreBest: restoreBest, best: initialBest(metric)}
}

func (m *EarlyStopping) EpochEnd(log logs.Log, net *Network, h History) (bool, error) {
	s := h.Last()
	if improved(m.Metric, s.Get(m.Metric), m.best, m.MinDelta) {
		m.best, m.bestEpoch, m.wait = s.Get(m.Metric), s.Epoch, 0
		if m.RestoreBest {
			m.weights = net.Weights()
		}
		return false, nil
	}
	m.wait++
	if m.wait >= m.Patience {
		log.Infof("Epoch %d: early stopping, %s has not improved since epoch %d", s.Epoch, m.Metric, m.bestEpoch)
		return true, nil
	}
	return false, nil
}

func (m *EarlyStopping) TrainEnd(log logs.Log, net *Network, h History) error {
	if !m.RestoreBest || m.weights == nil || m.bestEpoch == h.Last().Epoch {
		return nil
	}
	log.Infof("Restoring model weights from the end of the best epoch: %d", m.bestEpoch)
	return net.SetWeights(m.weights)
}

// ReduceLROnPlateau multiplies the learning rate by Factor when the monitored metric has not
// improved for Patience epochs. The rate is never reduced below MinLR.
type ReduceLROnPlateau struct {
	Metric   string
	Factor   float64
	Patience int
	MinLR    float64
	MinDelta float64
	best     float64
	wait     int
}

func NewReduceLROnPlateau(metric string, factor float64, patience int, minLR float64) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{Metric: metric, Factor: factor, Patience: patience, MinLR: minLR, MinDelta: 1e-4, best: initialBest(metric)}
}

func (m *ReduceLROnPlateau) EpochEnd(log logs.Log, net *Network, h History) (bool, error) {
	s := h.Last()
	if improved(m.Metric, s.Get(m.Metric), m.best, m.MinDelta) {
		m.best, m.wait = s.Get(m.Metric), 0
		return false, nil
	}
	m.wait++
	if m.wait >= m.Patience {
		m.wait = 0
		oldLR := net.Optimiser.LearningRate()
		if oldLR > m.MinLR {
			newLR := math.Max(oldLR*m.Factor, m.MinLR)
			net.Optimiser.SetLearningRate(newLR)
			log.Infof("Epoch %d: reducing learning rate to %.3g", s.Epoch, newLR)
		}
	}
	return false, nil
}

// Checkpoint saves the network to File whenever the monitored metric improves.
type Checkpoint struct {
	File   string
	Metric string
	best   float64
}

func NewCheckpoint(file, metric string) *Checkpoint {
	return &Checkpoint{File: file, Metric: metric, best: initialBest(metric)}
}

func (m *Checkpoint) EpochEnd(log logs.Log, net *Network, h History) (bool, error) {
	s := h.Last()
	val := s.Get(m.Metric)
	if !improved(m.Metric, val, m.best, 0) {
		return false, nil
	}
	log.Infof("Epoch %d: %s improved from %.5f to %.5f, saving model to %s", s.Epoch, m.Metric, m.best, val, m.File)
	m.best = val
	if err := SaveCheckpoint(m.File, net, s.Epoch); err != nil {
		return false, fmt.Errorf("error saving checkpoint: %w", err)
	}
	return false, nil
}
