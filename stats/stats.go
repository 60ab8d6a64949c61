// Package stats has helpers for summarising training and evaluation results.
package stats

import (
	"fmt"
	"math"
)

// Calc exponentional moving average
type EMA float64

func (e EMA) Add(val, n float64) float64 {
	if e == 0 {
		return val
	}
	k := 2.0 / (n + 1.0)
	return val*k + float64(e)*(1-k)
}

// Running mean and stddev as per http://www.johndcook.com/blog/standard_deviation/
type Average struct {
	Count, Mean float64
	Var, StdDev float64
	oldM, oldV  float64
}

func (s *Average) Add(x float64) {
	s.Count++
	if s.Count == 1 {
		s.oldM, s.Mean = x, x
		s.oldV = 0
	} else {
		s.Mean = s.oldM + (x-s.oldM)/s.Count
		s.Var = s.oldV + (x-s.oldM)*(x-s.Mean)
		s.oldM, s.oldV = s.Mean, s.Var
		if s.Count > 1 {
			s.StdDev = math.Sqrt(s.Var / (s.Count - 1))
		}
	}
}

func (s *Average) String() string {
	if s.Mean > 10 {
		if s.StdDev < 0.1 {
			return fmt.Sprintf("%.1f", s.Mean)
		}
		return fmt.Sprintf("%.1f±%.1f", s.Mean, s.StdDev)
	}
	if s.StdDev < 0.01 {
		return fmt.Sprintf("%.2f", s.Mean)
	}
	return fmt.Sprintf("%.2f±%.2f", s.Mean, s.StdDev)
}

// ClassAccuracy is the fraction of examples with a given true label which were classified correctly.
type ClassAccuracy struct {
	Class    string  `json:"class"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

func (c ClassAccuracy) String() string {
	return fmt.Sprintf("%-12s %6.2f%% (%d/%d)", c.Class, 100*c.Accuracy, c.Correct, c.Total)
}

// PerClass groups the examples by true label and returns the accuracy for each class.
// Classes with no examples have zero accuracy.
func PerClass(labels, pred []int32, classes []string) []ClassAccuracy {
	if len(labels) != len(pred) {
		panic("PerClass: labels and predictions must be same length")
	}
	res := make([]ClassAccuracy, len(classes))
	for i, name := range classes {
		res[i].Class = name
	}
	for i, label := range labels {
		res[label].Total++
		if pred[i] == label {
			res[label].Correct++
		}
	}
	for i := range res {
		if res[i].Total > 0 {
			res[i].Accuracy = float64(res[i].Correct) / float64(res[i].Total)
		}
	}
	return res
}

// Confusion returns a matrix where entry [i][j] counts examples of class i predicted as class j.
func Confusion(labels, pred []int32, nclass int) [][]int {
	m := make([][]int, nclass)
	for i := range m {
		m[i] = make([]int, nclass)
	}
	for i, label := range labels {
		m[label][pred[i]]++
	}
	return m
}

// Misclassified returns the indexes of the examples where the prediction differs from the label.
func Misclassified(labels, pred []int32) []int {
	var index []int
	for i, label := range labels {
		if pred[i] != label {
			index = append(index, i)
		}
	}
	return index
}
