// Package model defines the classifier contracts shared by every learner and
// the msgpack envelope used to persist fitted classifiers.
package model

import "gonum.org/v1/gonum/mat"

// Fitter はモデルを訓練データで学習させるインターフェース
type Fitter interface {
	// Fit learns from X (n×p) and binary targets y (n×1, values 0/1).
	Fit(X, y mat.Matrix) error
}

// Classifier is a fitted-once binary classifier.
//
// PredictProba returns an n×2 matrix whose columns are P(y=0) and P(y=1).
// A classifier is never mutated after Fit returns successfully.
type Classifier interface {
	Fitter
	PredictProba(X mat.Matrix) (mat.Matrix, error)
	IsFitted() bool
}

// Factory builds a fresh, unfitted classifier. Tuning and cross-validation
// call it once per fold so that no state leaks between folds.
type Factory func() Classifier

// Transformer はデータ変換のインターフェース
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// PositiveColumn extracts P(y=1) from a PredictProba result.
func PositiveColumn(proba mat.Matrix) []float64 {
	r, c := proba.Dims()
	out := make([]float64, r)
	col := c - 1
	for i := 0; i < r; i++ {
		out[i] = proba.At(i, col)
	}
	return out
}

// BinaryProba builds the n×2 probability matrix from positive-class probabilities.
func BinaryProba(p []float64) *mat.Dense {
	out := mat.NewDense(len(p), 2, nil)
	for i, v := range p {
		out.Set(i, 0, 1-v)
		out.Set(i, 1, v)
	}
	return out
}
