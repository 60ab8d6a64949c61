package nnet

import "github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/img"

// conv => batchNorm => relu
func convBN(nfeat int) []ConfigLayer {
	return []ConfigLayer{
		Conv{Nfeats: nfeat, Size: 3},
		BatchNorm{},
		Activation{Atype: "relu"},
	}
}

// two conv layers followed by pooling and dropout
func convBlock(nfeat int, dropout float64) []ConfigLayer {
	layers := append(convBN(nfeat), convBN(nfeat)...)
	return append(layers, MaxPool{Size: 2}, Dropout{Ratio: dropout})
}

// DefaultConfig returns the training settings and layer definition for the CIFAR-10 classifier.
func DefaultConfig() Config {
	conf := Config{
		Eta:          1e-3,
		MinEta:       1e-6,
		Beta1:        0.9,
		Beta2:        0.999,
		Shuffle:      true,
		TrainBatch:   64,
		TestBatch:    256,
		MaxEpoch:     100,
		LogEvery:     1,
		StopAfter:    10,
		RestoreBest:  true,
		ReduceAfter:  5,
		ReduceFactor: 0.5,
		RandSeed:     42,
	}
	layers := []ConfigLayer{Augment{Trans: img.Augment.String(), Amount: 1}}
	layers = append(layers, convBlock(32, 0.25)...)
	layers = append(layers, convBlock(64, 0.25)...)
	layers = append(layers, convBlock(128, 0.25)...)
	layers = append(layers,
		Flatten{},
		Linear{Nout: 512},
		BatchNorm{},
		Activation{Atype: "relu"},
		Dropout{Ratio: 0.5},
		Linear{Nout: 10},
		Activation{Atype: "softmax"},
	)
	return conf.AddLayers(layers...)
}
