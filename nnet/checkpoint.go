package nnet

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
)

// LayerData holds the parameter and state values for one layer.
type LayerData struct {
	Layer  int
	Values [][]float32
}

// Data persisted to a checkpoint file
type checkpointData struct {
	Conf    Config
	InShape []int
	Epoch   int
	Eta     float64
	Params  []LayerData
}

// SaveCheckpoint writes the network definition and weights to file in gob format.
func SaveCheckpoint(file string, net *Network, epoch int) error {
	data := checkpointData{
		Conf:    net.Config,
		InShape: net.InShape(),
		Epoch:   epoch,
		Eta:     net.Optimiser.LearningRate(),
		Params:  net.Weights(),
	}
	return writeGob(file, &data)
}

// LoadCheckpoint reads back a network saved with SaveCheckpoint and returns it with the
// epoch at which it was saved.
func LoadCheckpoint(file string, q *num.Queue) (*Network, int, error) {
	var data checkpointData
	if err := readGob(file, &data); err != nil {
		return nil, 0, err
	}
	net, err := build(q, data.Conf, data.InShape, data.Params)
	if err != nil {
		return nil, 0, fmt.Errorf("error loading %s: %w", file, err)
	}
	net.Optimiser.SetLearningRate(data.Eta)
	return net, data.Epoch, nil
}

// construct a network and import the weights, catching panics from invalid layer configs
func build(q *num.Queue, conf Config, inShape []int, params []LayerData) (net *Network, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid network: %v", r)
		}
	}()
	net = New(q, conf, inShape, SetSeed(conf.RandSeed))
	if err = net.SetWeights(params); err != nil {
		return nil, err
	}
	return net, nil
}

func writeGob(file string, v interface{}) error {
	tmpFile := file + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err = gob.NewEncoder(w).Encode(v); err == nil {
		err = w.Flush()
	}
	if err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpFile, file)
}

func readGob(file string, v interface{}) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	if err = gob.NewDecoder(bufio.NewReader(f)).Decode(v); err != nil {
		return fmt.Errorf("error decoding %s: %w", file, err)
	}
	return nil
}
