package nnet

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/cifar10"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
	"github.com/stretchr/testify/require"
)

func TestSaveModel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conf := Config{}.AddLayers(
		Augment{Trans: "HorizFlip Rotate Zoom Pan"},
		Conv{Nfeats: 4},
		BatchNorm{},
		Activation{Atype: "relu"},
		MaxPool{},
		Dropout{Ratio: 0.25},
		Flatten{},
		Linear{Nout: 10},
		Activation{Atype: "softmax"},
	)
	net := New(num.NewQueue(2), conf, []int{8, 8, 3}, rng)
	net.InitWeights(rng)
	dir := filepath.Join(t.TempDir(), "export")
	require.NoError(t, SaveModel(dir, net, cifar10.Classes))

	for _, name := range []string{ModelFile, VariablesFile, ClassFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}
	data, err := os.ReadFile(filepath.Join(dir, ClassFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Equal(t, []string{"airplane", "automobile", "bird", "cat", "deer", "dog", "frog", "horse", "ship", "truck"}, lines)

	loaded, classes, err := LoadModel(dir, num.NewQueue(1))
	require.NoError(t, err)
	require.Equal(t, cifar10.Classes, classes)
	require.Len(t, loaded.Layers, len(net.Layers)-1)
	for _, l := range loaded.Config.Layers {
		require.NotEqual(t, "augment", l.Type)
	}
	x := randInput(rng, 3, 8, 8, 3)
	require.Equal(t, net.Predict(x, nil).Data, loaded.Predict(x, nil).Data)
	// original network is not modified
	require.Equal(t, "augment", net.Config.Layers[0].Type)
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()
	_, _, err := LoadModel(dir, nil)
	require.Error(t, err)

	rng := rand.New(rand.NewSource(1))
	conf := Config{}.AddLayers(Flatten{}, Linear{Nout: 3}, Activation{Atype: "softmax"})
	net := New(nil, conf, []int{2}, rng)
	require.NoError(t, SaveModel(dir, net, []string{"a", "b", "c"}))
	require.NoError(t, WriteClassFile(filepath.Join(dir, ClassFile), []string{"a", "b"}))
	_, _, err = LoadModel(dir, nil)
	require.Error(t, err)
}

func TestClassFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "classes.txt")
	require.NoError(t, os.WriteFile(file, []byte("cat\n\n dog \nbird"), 0644))
	classes, err := LoadClassFile(file)
	require.NoError(t, err)
	require.Equal(t, []string{"cat", "dog", "bird"}, classes)
	_, err = LoadClassFile(file + ".missing")
	require.Error(t, err)
}
