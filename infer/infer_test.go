package infer

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/cifar10"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/nnet"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
	"github.com/stretchr/testify/require"
)

func testModel(t *testing.T) string {
	conf := nnet.Config{}.AddLayers(
		nnet.Augment{Trans: "HorizFlip Pan"},
		nnet.Conv{Nfeats: 4},
		nnet.BatchNorm{},
		nnet.Activation{Atype: "relu"},
		nnet.MaxPool{},
		nnet.Flatten{},
		nnet.Linear{Nout: 10},
		nnet.Activation{Atype: "softmax"},
	)
	rng := rand.New(rand.NewSource(1))
	net := nnet.New(num.NewQueue(2), conf, []int{cifar10.Height, cifar10.Width, cifar10.Channels}, rng)
	net.InitWeights(rng)
	dir := filepath.Join(t.TempDir(), "model")
	require.NoError(t, nnet.SaveModel(dir, net, cifar10.Classes))
	return dir
}

func writePNG(t *testing.T, file string, w, h int) {
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, color.RGBA{uint8(4 * x), uint8(4 * y), 128, 255})
		}
	}
	f, err := os.Create(file)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, m))
	require.NoError(t, f.Close())
}

func TestPredictFile(t *testing.T) {
	p, err := Load(testModel(t), nil)
	require.NoError(t, err)
	dir := t.TempDir()
	for _, size := range []int{32, 64} {
		file := filepath.Join(dir, "test.png")
		writePNG(t, file, size, size)
		res := p.PredictFile(file)
		require.True(t, res.OK(), res.Error)
		require.Len(t, res.Probabilities, 10)
		sum, best, bestClass := 0.0, 0.0, ""
		for class, v := range res.Probabilities {
			require.GreaterOrEqual(t, v, 0.0)
			sum += v
			if v > best {
				best, bestClass = v, class
			}
		}
		require.InDelta(t, 1, sum, 1e-5)
		require.Equal(t, bestClass, res.Class)
		require.Equal(t, cifar10.Classes[res.ClassID], res.Class)
		require.Equal(t, res.Probabilities[res.Class], res.Confidence)
		t.Log(res)
	}
}

func TestPredictErrors(t *testing.T) {
	p, err := Load(testModel(t), nil)
	require.NoError(t, err)

	res := p.PredictFile(filepath.Join(t.TempDir(), "missing.jpg"))
	require.False(t, res.OK())
	require.Empty(t, res.Class)
	require.Nil(t, res.Probabilities)
	data, err := json.Marshal(res)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	require.Len(t, m, 1)
	require.Contains(t, m, "error")

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0644))
	require.False(t, p.PredictFile(bad).OK())
	require.False(t, p.PredictImage(nil).OK())
}

func TestResultJSON(t *testing.T) {
	res := Result{Class: "airplane", ClassID: 0, Confidence: 0.9, Probabilities: map[string]float64{"airplane": 0.9, "bird": 0.1}}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	require.Equal(t, "airplane", m["class"])
	require.Equal(t, 0.0, m["class_id"])
	require.Equal(t, 0.9, m["confidence"])
	require.Len(t, m["all_probabilities"], 2)
	require.NotContains(t, m, "error")
}

func TestNewPredictor(t *testing.T) {
	conf := nnet.Config{}.AddLayers(nnet.Flatten{}, nnet.Linear{Nout: 3}, nnet.Activation{Atype: "softmax"})
	net := nnet.New(nil, conf, []int{4, 4, 3}, rand.New(rand.NewSource(1)))
	_, err := NewPredictor(net, cifar10.Classes)
	require.Error(t, err)
	p, err := NewPredictor(net, []string{"a", "b", "c"})
	require.NoError(t, err)
	res := p.PredictImage(image.NewRGBA(image.Rect(0, 0, 10, 10)))
	require.True(t, res.OK(), res.Error)
}
