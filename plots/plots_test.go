package plots

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/img"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/nnet"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/stats"
	"github.com/stretchr/testify/require"
)

func testHistory() nnet.History {
	var h nnet.History
	for i := 1; i <= 5; i++ {
		x := float64(i)
		h = append(h, nnet.Stats{Epoch: i, Loss: 2 / x, Accuracy: 0.5 + x/20, ValLoss: 2.2 / x, ValAccuracy: 0.45 + x/20})
	}
	return h
}

func decodePNG(t *testing.T, file string) (width, height int) {
	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestHistory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "training_history.png")
	require.NoError(t, History(testHistory(), file))
	w, h := decodePNG(t, file)
	require.Greater(t, w, h)
}

func TestHistorySVG(t *testing.T) {
	data, err := HistorySVG(testHistory(), "loss", 400, 300)
	require.NoError(t, err)
	require.True(t, bytes.Contains(data, []byte("<svg")))

	_, err = HistorySVG(nil, "accuracy", 400, 300)
	require.NoError(t, err)
}

func TestClassAccuracy(t *testing.T) {
	acc := stats.PerClass([]int32{0, 0, 1, 2, 2, 2}, []int32{0, 1, 1, 2, 0, 2}, []string{"cat", "dog", "frog"})
	file := filepath.Join(t.TempDir(), "class_accuracy.png")
	require.NoError(t, ClassAccuracy(acc, file))
	decodePNG(t, file)
}

func TestPredictionGrid(t *testing.T) {
	images := make([]*img.Image, 5)
	for i := range images {
		images[i] = img.NewRGB(32, 32)
		for j := range images[i].Pix {
			images[i].Pix[j] = float32(i) / 5
		}
	}
	data, err := img.NewData([]string{"cat", "dog"}, []int32{0, 1, 0, 1, 1}, images)
	require.NoError(t, err)
	pred := []int32{0, 0, 0, 1, 0}
	dir := t.TempDir()

	file := filepath.Join(dir, "predictions.png")
	require.NoError(t, PredictionGrid(file, data, pred, []int{0, 1, 2, 3, 4}, 3))
	w, h := decodePNG(t, file)
	require.Equal(t, 3*GridCell, w)
	require.Equal(t, 2*(3*32+GridCaption), h)

	errs := stats.Misclassified(data.Labels, pred)
	require.Equal(t, []int{1, 4}, errs)
	file = filepath.Join(dir, "errors.png")
	require.NoError(t, PredictionGrid(file, data, pred, errs, 8))
	w, _ = decodePNG(t, file)
	require.Equal(t, 2*GridCell, w)

	require.Error(t, PredictionGrid(file, data, pred, nil, 4))
	require.Error(t, PredictionGrid(file, data, pred, []int{7}, 4))
}
