package ensemble

import (
	"math"

	"github.com/YuminosukeSato/landstack/pkg/errors"
)

// ObjectiveFunction supplies the per-sample derivatives a boosting round
// fits against. Predictions are raw scores (log-odds for BinaryLogLoss).
type ObjectiveFunction interface {
	CalculateGradient(prediction, target float64) float64
	CalculateHessian(prediction, target float64) float64
	CalculateLoss(prediction, target float64) float64
	GetInitScore(targets []float64) float64
	Name() string
}

// BinaryLogLoss is the Bernoulli deviance used by gbm's "bernoulli" distribution.
type BinaryLogLoss struct{}

// NewBinaryLogLoss creates the objective.
func NewBinaryLogLoss() *BinaryLogLoss {
	return &BinaryLogLoss{}
}

func (o *BinaryLogLoss) CalculateGradient(prediction, target float64) float64 {
	return errors.Sigmoid(prediction) - target
}

func (o *BinaryLogLoss) CalculateHessian(prediction, target float64) float64 {
	p := errors.Sigmoid(prediction)
	return math.Max(p*(1-p), 1e-16)
}

func (o *BinaryLogLoss) CalculateLoss(prediction, target float64) float64 {
	p := errors.ClipValue(errors.Sigmoid(prediction), 1e-15, 1-1e-15)
	return -(target*math.Log(p) + (1-target)*math.Log(1-p))
}

// GetInitScore returns the log-odds of the positive rate.
func (o *BinaryLogLoss) GetInitScore(targets []float64) float64 {
	var pos float64
	for _, t := range targets {
		pos += t
	}
	p := errors.ClipValue(pos/float64(len(targets)), 1e-6, 1-1e-6)
	return math.Log(p / (1 - p))
}

func (o *BinaryLogLoss) Name() string {
	return "binary_logloss"
}
