// Classify image files using a model exported by the train command.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/infer"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
)

type prediction struct {
	File   string       `json:"file"`
	Result infer.Result `json:"result"`
}

func main() {
	parser := argparse.NewParser("predict", "Classify images with an exported CIFAR-10 model")
	modelDir := parser.String("m", "model", &argparse.Options{Help: "Exported model directory", Default: "cifar10_model"})
	images := parser.StringList("i", "image", &argparse.Options{Help: "Image file to classify, may be repeated", Required: true})
	threads := parser.Int("t", "threads", &argparse.Options{Help: "Number of worker threads", Default: 1})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	p, err := infer.Load(*modelDir, num.NewQueue(*threads))
	if err != nil {
		logger.Errorf("error loading model: %v", err)
		os.Exit(1)
	}
	logger.Infof("loaded model from %s with classes %v", *modelDir, p.Classes)

	failed := 0
	res := make([]prediction, len(*images))
	for i, file := range *images {
		res[i] = prediction{File: file, Result: p.PredictFile(file)}
		if !res[i].Result.OK() {
			failed++
		}
		logger.Infof("%s: %s", file, res[i].Result)
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(res); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(2)
	}
}
