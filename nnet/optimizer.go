package nnet

import (
	"math"

	"github.com/Thanushalakkireddy/IMAGE-CLASSIFICATION-MODEL/num"
	"github.com/chewxy/math32"
)

// Optimiser updates the network parameters given their gradients.
type Optimiser interface {
	Update(params, grads []*num.Array)
	LearningRate() float64
	SetLearningRate(eta float64)
}

// Adam optimiser with bias corrected first and second moment estimates.
type Adam struct {
	Eta, Beta1, Beta2, Epsilon float64
	step                       int
	m, v                       [][]float32
}

// NewAdam returns an Adam optimiser with the given learning rate and default decay rates.
func NewAdam(eta float64) *Adam {
	return &Adam{Eta: eta, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7}
}

func (a *Adam) LearningRate() float64 { return a.Eta }

func (a *Adam) SetLearningRate(eta float64) { a.Eta = eta }

// Update applies one optimisation step. The moment buffers are allocated on the first call.
func (a *Adam) Update(params, grads []*num.Array) {
	if a.m == nil {
		a.m = make([][]float32, len(params))
		a.v = make([][]float32, len(params))
		for i, p := range params {
			a.m[i] = make([]float32, p.Size())
			a.v[i] = make([]float32, p.Size())
		}
	}
	a.step++
	b1, b2 := float32(a.Beta1), float32(a.Beta2)
	c1 := float32(1 - math.Pow(a.Beta1, float64(a.step)))
	c2 := float32(1 - math.Pow(a.Beta2, float64(a.step)))
	eta, eps := float32(a.Eta), float32(a.Epsilon)
	for i, p := range params {
		m, v := a.m[i], a.v[i]
		for j, g := range grads[i].Data {
			m[j] = b1*m[j] + (1-b1)*g
			v[j] = b2*v[j] + (1-b2)*g*g
			mHat := m[j] / c1
			vHat := v[j] / c2
			p.Data[j] -= eta * mHat / (math32.Sqrt(vHat) + eps)
		}
	}
}
