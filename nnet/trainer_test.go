package nnet

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func smallNet(t *testing.T, seed int64) *Network {
	conf := Config{Eta: 0.01, TrainBatch: 16, TestBatch: 32, Shuffle: true, LogEvery: 1}.AddLayers(
		Flatten{},
		Linear{Nout: 8},
		BatchNorm{},
		Activation{Atype: "relu"},
		Dropout{Ratio: 0.1},
		Linear{Nout: 2},
		Activation{Atype: "softmax"},
	)
	rng := rand.New(rand.NewSource(seed))
	net := New(num.NewQueue(2), conf, []int{2, 2, 1}, rng)
	net.InitWeights(rng)
	return net
}

// feed a sequence of epoch stats to a monitor, returns the epoch at which it requested a stop
func runMonitor(t *testing.T, m Monitor, net *Network, values ...float64) (History, int) {
	log := logs.NewTestingLog(t)
	var h History
	for i, v := range values {
		s := Stats{Epoch: i + 1, ValLoss: v, ValAccuracy: v}
		h = append(h, s)
		stop, err := m.EpochEnd(log, net, h)
		require.NoError(t, err)
		if stop {
			return h, i + 1
		}
	}
	return h, 0
}

func TestHistory(t *testing.T) {
	h := History{
		{Epoch: 1, Loss: 2, ValLoss: 1.5, ValAccuracy: 0.3},
		{Epoch: 2, Loss: 1, ValLoss: 1.2, ValAccuracy: 0.5},
		{Epoch: 3, Loss: 0.5, ValLoss: 1.3, ValAccuracy: 0.6},
	}
	require.Equal(t, []float64{2, 1, 0.5}, h.Values("loss"))
	require.Equal(t, 3, h.Last().Epoch)
	require.Equal(t, 2, h.Best("val_loss").Epoch)
	require.Equal(t, 3, h.Best("val_accuracy").Epoch)
	require.Equal(t, Stats{}, History{}.Last())
	require.Panics(t, func() { h[0].Get("bogus") })
}

func TestEarlyStopping(t *testing.T) {
	net := smallNet(t, 1)
	m := NewEarlyStopping("val_loss", 3, true)
	var best []LayerData
	log := logs.NewTestingLog(t)
	var h History
	stopAt := 0
	for i, v := range []float64{1, 0.8, 0.9, 0.85, 0.81, 0.7} {
		h = append(h, Stats{Epoch: i + 1, ValLoss: v})
		stop, err := m.EpochEnd(log, net, h)
		require.NoError(t, err)
		if i == 1 {
			best = net.Weights()
		}
		if stop {
			stopAt = i + 1
			break
		}
		// perturb the weights as if another epoch of training had run
		params, _ := net.Params()
		num.Scale(1.1, params[0])
	}
	require.Equal(t, 5, stopAt)
	require.NoError(t, m.TrainEnd(log, net, h))
	require.Equal(t, best, net.Weights())
}

func TestEarlyStoppingNoImprovement(t *testing.T) {
	net := smallNet(t, 1)
	_, stopAt := runMonitor(t, NewEarlyStopping("val_accuracy", 2, false), net, 0.5, 0.6, 0.6, 0.55, 0.7)
	require.Equal(t, 4, stopAt)
}

func TestReduceLROnPlateau(t *testing.T) {
	net := smallNet(t, 1)
	net.Optimiser.SetLearningRate(4e-6)
	m := NewReduceLROnPlateau("val_loss", 0.5, 2, 1e-6)
	log := logs.NewTestingLog(t)
	var h History
	expect := []float64{4e-6, 4e-6, 2e-6, 2e-6, 1e-6, 1e-6, 1e-6, 1e-6}
	for i := range expect {
		h = append(h, Stats{Epoch: i + 1, ValLoss: 1})
		stop, err := m.EpochEnd(log, net, h)
		require.NoError(t, err)
		require.False(t, stop)
		require.InDelta(t, expect[i], net.Optimiser.LearningRate(), 1e-12, "epoch %d", i+1)
	}
}

func TestCheckpoint(t *testing.T) {
	net := smallNet(t, 1)
	file := filepath.Join(t.TempDir(), "best.gob")
	m := NewCheckpoint(file, "val_accuracy")
	log := logs.NewTestingLog(t)
	var h History
	for i, acc := range []float64{0.5, 0.4, 0.6, 0.6} {
		h = append(h, Stats{Epoch: i + 1, ValAccuracy: acc})
		os.Remove(file)
		_, err := m.EpochEnd(log, net, h)
		require.NoError(t, err)
		_, err = os.Stat(file)
		if i == 0 || i == 2 {
			require.NoError(t, err, "epoch %d", i+1)
		} else {
			require.True(t, os.IsNotExist(err), "epoch %d", i+1)
		}
	}
}

func TestCheckpointLoad(t *testing.T) {
	net := smallNet(t, 2)
	rng := rand.New(rand.NewSource(3))
	x := randInput(rng, 5, 2, 2, 1)
	// run a few training steps so the batch norm running stats are non trivial
	for i := 0; i < 3; i++ {
		net.TrainBatch(x, []int32{0, 1, 1, 0, 1})
	}
	net.Optimiser.SetLearningRate(0.005)
	file := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, SaveCheckpoint(file, net, 7))

	net2, epoch, err := LoadCheckpoint(file, num.NewQueue(1))
	require.NoError(t, err)
	require.Equal(t, 7, epoch)
	require.Equal(t, 0.005, net2.Optimiser.LearningRate())
	require.Equal(t, net.Weights(), net2.Weights())
	require.Equal(t, net.Predict(x, nil).Data, net2.Predict(x, nil).Data)

	_, _, err = LoadCheckpoint(filepath.Join(t.TempDir(), "missing.gob"), nil)
	require.Error(t, err)
}

func TestSetWeightsError(t *testing.T) {
	net := smallNet(t, 1)
	require.Error(t, net.SetWeights([]LayerData{{Layer: 99}}))
	require.Error(t, net.SetWeights([]LayerData{{Layer: 1, Values: [][]float32{{1}}}}))
	w := net.Weights()
	w[0].Values[0] = w[0].Values[0][:1]
	require.Error(t, net.SetWeights(w))
}

func TestTrain(t *testing.T) {
	log := logs.NewTestingLog(t)
	rng := rand.New(rand.NewSource(5))
	net := smallNet(t, 5)
	net.MaxEpoch = 8
	train := NewDataset(newTestData(rng, 400, 2, 2, 1), net.Config.TrainBatch, 0, rng)
	valid := NewDataset(newTestData(rng, 100, 2, 2, 1), net.Config.TestBatch, 0, rng)
	file := filepath.Join(t.TempDir(), "best.gob")
	h, err := Train(context.Background(), log, net, train, valid,
		NewEarlyStopping("val_loss", 3, true),
		NewReduceLROnPlateau("val_loss", 0.5, 2, 1e-6),
		NewCheckpoint(file, "val_accuracy"),
	)
	require.NoError(t, err)
	require.NotEmpty(t, h)
	require.LessOrEqual(t, len(h), 8)
	require.Less(t, h.Last().Loss, h[0].Loss)
	require.Greater(t, h.Best("val_accuracy").ValAccuracy, 0.85)

	best, epoch, err := LoadCheckpoint(file, nil)
	require.NoError(t, err)
	require.Equal(t, h.Best("val_accuracy").Epoch, epoch)
	res := best.Evaluate(valid)
	require.InDelta(t, h.Best("val_accuracy").ValAccuracy, res.Accuracy, 1e-6)
	require.Len(t, res.Pred, 100)
	require.Equal(t, []int{100, 2}, res.Probs.Dims())
}

func TestTrainCancel(t *testing.T) {
	log := logs.NewTestingLog(t)
	rng := rand.New(rand.NewSource(5))
	net := smallNet(t, 5)
	net.MaxEpoch = 5
	train := NewDataset(newTestData(rng, 64, 2, 2, 1), 16, 0, rng)
	valid := NewDataset(newTestData(rng, 32, 2, 2, 1), 16, 0, rng)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h, err := Train(ctx, log, net, train, valid)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, h)
}
