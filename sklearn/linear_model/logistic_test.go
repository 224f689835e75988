package linear_model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// noisyLogistic draws n rows of p standard-normal features with
// P(y=1) = sigmoid(b0 + sum(beta_j * x_j)).
func noisyLogistic(seed int64, n int, b0 float64, beta []float64, extra int) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewSource(seed))
	p := len(beta) + extra
	X := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		z := b0
		for j := 0; j < p; j++ {
			v := rng.NormFloat64()
			X.Set(i, j, v)
			if j < len(beta) {
				z += beta[j] * v
			}
		}
		if rng.Float64() < 1/(1+math.Exp(-z)) {
			y.SetVec(i, 1)
		}
	}
	return X, y
}

func TestLogisticRegression_RecoversCoefficients(t *testing.T) {
	X, y := noisyLogistic(1, 4000, -0.5, []float64{1.5, -2.0}, 0)

	lr := NewLogisticRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}
	if !lr.Converged() {
		t.Errorf("IRLS did not converge in %d iterations", lr.NIter())
	}

	want := []float64{1.5, -2.0}
	for j, w := range want {
		if math.Abs(lr.Coef()[j]-w) > 0.25 {
			t.Errorf("coef[%d] = %v, want about %v", j, lr.Coef()[j], w)
		}
	}
	if math.Abs(lr.Intercept()+0.5) > 0.2 {
		t.Errorf("intercept = %v, want about -0.5", lr.Intercept())
	}
	if aic := lr.AIC(); math.Abs(aic-(lr.Deviance()+6)) > 1e-9 {
		t.Errorf("AIC = %v, want deviance + 6", aic)
	}
}

func TestLogisticRegression_PredictProba(t *testing.T) {
	X, y := noisyLogistic(2, 500, 0, []float64{2}, 0)
	lr := NewLogisticRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	proba, err := lr.PredictProba(mat.NewDense(2, 1, []float64{-3, 3}))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if s := proba.At(i, 0) + proba.At(i, 1); math.Abs(s-1) > 1e-12 {
			t.Errorf("row %d probabilities sum to %v", i, s)
		}
	}
	if proba.At(0, 1) > 0.1 || proba.At(1, 1) < 0.9 {
		t.Errorf("unexpected probabilities: %v, %v", proba.At(0, 1), proba.At(1, 1))
	}

	acc, err := lr.Score(X, y)
	if err != nil {
		t.Fatal(err)
	}
	if acc < 0.7 {
		t.Errorf("training accuracy %v too low", acc)
	}
}

func TestLogisticRegression_SeparableStillRanks(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9})
	y := mat.NewVecDense(6, []float64{0, 0, 0, 1, 1, 1})

	lr := NewLogisticRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("separable data should not fail: %v", err)
	}
	p := model.PositiveColumn(mustProba(t, lr, X))
	for i := 1; i < len(p); i++ {
		if p[i] < p[i-1] {
			t.Errorf("probabilities not monotone in x: %v", p)
		}
	}
	if p[0] > 0.01 || p[5] < 0.99 {
		t.Errorf("separable classes should be pushed to the extremes: %v", p)
	}
}

func TestLogisticRegression_Errors(t *testing.T) {
	lr := NewLogisticRegression()
	if _, err := lr.PredictProba(mat.NewDense(1, 1, nil)); err == nil {
		t.Error("expected NotFittedError")
	}

	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	if err := lr.Fit(X, mat.NewVecDense(3, []float64{1, 1, 1})); !errors.Is(err, errors.ErrSingleClass) {
		t.Errorf("expected ErrSingleClass, got %v", err)
	}
	if err := lr.Fit(X, mat.NewVecDense(3, []float64{0, 2, 1})); err == nil {
		t.Error("expected error for non-binary target")
	}
	if err := lr.Fit(X, mat.NewVecDense(2, []float64{0, 1})); err == nil {
		t.Error("expected dimension error")
	}
}

func TestLogisticRegression_Binary(t *testing.T) {
	X, y := noisyLogistic(3, 200, 0.3, []float64{1}, 1)
	lr := NewLogisticRegression(WithLRC(10))
	if err := lr.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	data, err := lr.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	restored := NewLogisticRegression()
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	a := mustProba(t, lr, X)
	b := mustProba(t, restored, X)
	if !mat.Equal(a, b) {
		t.Error("restored model predicts differently")
	}
}

func mustProba(t *testing.T, c model.Classifier, X mat.Matrix) mat.Matrix {
	t.Helper()
	p, err := c.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
