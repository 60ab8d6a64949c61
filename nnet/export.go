package nnet

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
)

// Files written to an exported model directory
const (
	ModelFile     = "model.json"
	VariablesFile = "variables.gob"
	ClassFile     = "classes.txt"
)

// Model definition written to model.json
type ModelConfig struct {
	InShape []int
	Classes []string
	Config  Config
}

// SaveModel exports the network for inference. Augmentation stages are stripped, the layer
// definitions are written as JSON, the weights in gob format and the class names to a text file.
func SaveModel(dir string, net *Network, classes []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	s := net.Strip()
	mc := ModelConfig{InShape: s.InShape(), Classes: classes, Config: s.Config}
	data, err := json.MarshalIndent(mc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ModelFile), data, 0644); err != nil {
		return err
	}
	if err := writeGob(filepath.Join(dir, VariablesFile), s.Weights()); err != nil {
		return err
	}
	return WriteClassFile(filepath.Join(dir, ClassFile), classes)
}

// LoadModel reads back a model saved with SaveModel.
func LoadModel(dir string, q *num.Queue) (*Network, []string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, nil, err
	}
	var mc ModelConfig
	if err := json.Unmarshal(data, &mc); err != nil {
		return nil, nil, fmt.Errorf("error decoding %s: %w", ModelFile, err)
	}
	var params []LayerData
	if err := readGob(filepath.Join(dir, VariablesFile), &params); err != nil {
		return nil, nil, err
	}
	net, err := build(q, mc.Config, mc.InShape, params)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading model from %s: %w", dir, err)
	}
	classes, err := LoadClassFile(filepath.Join(dir, ClassFile))
	if err != nil {
		classes = mc.Classes
	}
	if n := num.Prod(net.OutShape()); len(classes) != n {
		return nil, nil, fmt.Errorf("model has %d outputs but %d class names", n, len(classes))
	}
	return net, classes, nil
}

// WriteClassFile writes one class name per line.
func WriteClassFile(file string, classes []string) error {
	var sb strings.Builder
	for _, c := range classes {
		sb.WriteString(c)
		sb.WriteByte('\n')
	}
	return os.WriteFile(file, []byte(sb.String()), 0644)
}

// LoadClassFile reads a list of class names, one per line, skipping blank lines.
func LoadClassFile(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	classes := []string{}
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	return classes, s.Err()
}
