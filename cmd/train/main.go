// Train a convolutional network on the CIFAR-10 dataset, evaluate it on the test set and export
// the best model for inference.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/cifar10"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/img"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/infer"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/nnet"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/plots"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/stats"
	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/web"
	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
)

// Output file names
const (
	checkpointFile = "best_model.ckpt"
	historyFile    = "history.json"
	historyPlot    = "training_history.png"
	classPlot      = "class_accuracy.png"
	predictPlot    = "predictions.png"
	errorPlot      = "errors.png"
	exportDir      = "cifar10_model"
	gridImages     = 25
	gridCols       = 5
)

type options struct {
	dataDir  string
	outDir   string
	config   string
	settings []string
	webAddr  string
	user     string
	password string
}

func main() {
	parser := argparse.NewParser("train", "Train a CIFAR-10 image classifier")
	dataDir := parser.String("d", "data", &argparse.Options{Help: "Directory for the CIFAR-10 dataset, downloaded if not present", Default: "data"})
	outDir := parser.String("o", "out", &argparse.Options{Help: "Directory for checkpoint, plots and exported model", Default: "."})
	config := parser.String("c", "config", &argparse.Options{Help: "Network config file, uses the default architecture if not set", Default: ""})
	epochs := parser.Int("e", "epochs", &argparse.Options{Help: "Maximum number of training epochs", Default: 0})
	batch := parser.Int("b", "batch", &argparse.Options{Help: "Training batch size", Default: 0})
	seed := parser.Int("s", "seed", &argparse.Options{Help: "Random number seed, time based if negative", Default: 0})
	samples := parser.Int("", "samples", &argparse.Options{Help: "Limit the number of training samples per epoch", Default: 0})
	threads := parser.Int("t", "threads", &argparse.Options{Help: "Number of worker threads, all cores if zero", Default: 0})
	debug := parser.Int("", "debug", &argparse.Options{Help: "Debug logging level", Default: 0})
	settings := parser.StringList("", "set", &argparse.Options{Help: "Override a config setting with Name=value"})
	webAddr := parser.String("w", "web", &argparse.Options{Help: "Serve the training monitor at this address, e.g. localhost:8080", Default: ""})
	user := parser.String("", "user", &argparse.Options{Help: "User name for the training monitor", Default: ""})
	password := parser.String("", "password", &argparse.Options{Help: "Password for the training monitor", Default: ""})
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

	opts := options{
		dataDir:  *dataDir,
		outDir:   *outDir,
		config:   *config,
		webAddr:  *webAddr,
		user:     *user,
		password: *password,
	}
	// flags are applied after any --set values
	opts.settings = append(opts.settings, *settings...)
	for key, val := range map[string]int{"MaxEpoch": *epochs, "TrainBatch": *batch, "RandSeed": *seed, "MaxSamples": *samples, "Threads": *threads, "DebugLevel": *debug} {
		if val != 0 {
			opts.settings = append(opts.settings, fmt.Sprintf("%s=%d", key, val))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, logger, opts); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func loadConfig(opts options) (nnet.Config, error) {
	conf := nnet.DefaultConfig()
	if opts.config != "" {
		var err error
		if conf, err = nnet.LoadConfig(opts.config); err != nil {
			return conf, err
		}
	}
	return conf.SetValues(opts.settings)
}

func run(ctx context.Context, log logs.Log, opts options) error {
	conf, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return err
	}
	outFile := func(name string) string { return filepath.Join(opts.outDir, name) }

	// load the data and hold back the tail of the training set for validation
	trainData, testData, err := cifar10.Load(ctx, log, opts.dataDir)
	if err != nil {
		return err
	}
	trainData, validData, err := cifar10.Split(trainData, cifar10.ValidSize)
	if err != nil {
		return err
	}
	log.Infof("train: %d  validation: %d  test: %d images", trainData.Len(), validData.Len(), testData.Len())

	q := num.NewQueue(conf.Threads)
	rng := nnet.SetSeed(conf.RandSeed)
	net := nnet.New(q, conf, trainData.Shape(), rng)
	net.InitWeights(rng)
	log.Infof("%s", net)

	trainSet := nnet.NewDataset(trainData, conf.TrainBatch, conf.MaxSamples, rng)
	validSet := nnet.NewDataset(validData, conf.TestBatch, 0, rng)
	testSet := nnet.NewDataset(testData, conf.TestBatch, 0, rng)

	var monitors []nnet.Monitor
	if conf.StopAfter > 0 {
		monitors = append(monitors, nnet.NewEarlyStopping("val_loss", conf.StopAfter, conf.RestoreBest))
	}
	if conf.ReduceAfter > 0 {
		monitors = append(monitors, nnet.NewReduceLROnPlateau("val_loss", conf.ReduceFactor, conf.ReduceAfter, conf.MinEta))
	}
	monitors = append(monitors, nnet.NewCheckpoint(outFile(checkpointFile), "val_accuracy"))

	var server *web.Server
	if opts.webAddr != "" {
		var auth *web.AuthMiddleware
		if opts.user != "" {
			auth = web.NewAuthMiddleware(log, opts.user, opts.password)
		}
		server = web.NewServer(log, "cifar10", conf.MaxEpoch, auth)
		monitors = append(monitors, server)
		go func() {
			if err := server.ListenAndServe(ctx, opts.webAddr); err != nil {
				log.Errorf("web server: %v", err)
			}
		}()
	}

	history, err := nnet.Train(ctx, log, net, trainSet, validSet, monitors...)
	if errors.Is(err, context.Canceled) && len(history) > 0 {
		log.Warnf("training interrupted after %d epochs", len(history))
	} else if err != nil {
		return err
	}
	if err := saveHistory(outFile(historyFile), history); err != nil {
		return err
	}
	if err := plots.History(history, outFile(historyPlot)); err != nil {
		return err
	}
	log.Infof("saved training history to %s", outFile(historyPlot))

	// evaluate the best model on the test set
	best, epoch, err := nnet.LoadCheckpoint(outFile(checkpointFile), q)
	if err != nil {
		return err
	}
	log.Infof("loaded best model from epoch %d", epoch)
	res := best.Evaluate(testSet)
	log.Infof("Test accuracy: %.2f%%  Test loss: %.4f", 100*res.Accuracy, res.Loss)

	if err := predictionPlots(log, opts.outDir, testData, res.Pred); err != nil {
		return err
	}
	acc := stats.PerClass(res.Labels, res.Pred, cifar10.Classes)
	log.Infof("Per-class accuracy:")
	for _, a := range acc {
		log.Infof("  %s", a)
	}
	if err := plots.ClassAccuracy(acc, outFile(classPlot)); err != nil {
		return err
	}
	if server != nil {
		server.SetPredictions(testData, res.Pred)
	}

	// inference helper on a sample test image
	predictor, err := infer.NewPredictor(best, cifar10.Classes)
	if err != nil {
		return err
	}
	sample := predictor.PredictImage(testData.Images[0])
	data, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	log.Infof("sample prediction (true class %s): %s", cifar10.Classes[testData.Labels[0]], data)

	dir := outFile(exportDir)
	if err := nnet.SaveModel(dir, best, cifar10.Classes); err != nil {
		return err
	}
	log.Infof("model exported to %s", dir)

	if server != nil && ctx.Err() == nil {
		log.Infof("training complete - press Ctrl-C to stop the web server")
		<-ctx.Done()
	}
	return nil
}

// grids of the first test images and the first misclassified images
func predictionPlots(log logs.Log, dir string, data *img.Data, pred []int32) error {
	index := make([]int, min(gridImages, data.Len()))
	for i := range index {
		index[i] = i
	}
	file := filepath.Join(dir, predictPlot)
	if err := plots.PredictionGrid(file, data, pred, index, gridCols); err != nil {
		return err
	}
	errs := stats.Misclassified(data.Labels, pred)
	log.Infof("%d of %d test images misclassified", len(errs), data.Len())
	if len(errs) == 0 {
		return nil
	}
	file = filepath.Join(dir, errorPlot)
	return plots.PredictionGrid(file, data, pred, errs[:min(gridImages, len(errs))], gridCols)
}

func saveHistory(file string, h nnet.History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, data, 0644)
}
