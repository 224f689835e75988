// Package linear_model provides the binomial GLM learners: an IRLS logistic
// regression and its stepwise AIC variant.
package linear_model

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// KindLogistic is the registered model kind of LogisticRegression.
const KindLogistic = "glm"

// LogisticRegression is a binomial GLM with logit link fitted by iteratively
// reweighted least squares.
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	C            float64 // Inverse L2 strength; +Inf disables the penalty
	fitIntercept bool
	maxIter      int
	tol          float64 // Relative deviance change that counts as converged

	// Model parameters
	coef_      []float64
	intercept_ float64
	deviance_  float64
	nIter_     int
	converged_ bool

	quiet bool // suppress ConvergenceWarning for throwaway candidate fits
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		C:            math.Inf(1),
		fitIntercept: true,
		maxIter:      25,
		tol:          1e-8,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRMaxIter sets the maximum number of IRLS iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// Kind implements model.Persistent.
func (lr *LogisticRegression) Kind() string { return KindLogistic }

// Fit trains the logistic regression model. y holds 0/1 targets.
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	return lr.fit(X, nSamples, nFeatures, y)
}

// fit accepts a nil X with nFeatures == 0 for the intercept-only model.
func (lr *LogisticRegression) fit(X mat.Matrix, nSamples, nFeatures int, y mat.Matrix) error {
	yRows, yCols := y.Dims()
	if nSamples == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("LogisticRegression.Fit", fmt.Sprintf("y must be a column vector: got shape (%d, %d)", yRows, yCols))
	}
	target, err := binaryTarget("LogisticRegression.Fit", y)
	if err != nil {
		return err
	}

	if nFeatures == 0 && !lr.fitIntercept {
		return errors.NewValueError("LogisticRegression.Fit", "model has no terms")
	}
	beta, dev, iter, converged, err := lr.irls(X, nSamples, nFeatures, target)
	if err != nil {
		return err
	}
	if lr.fitIntercept {
		lr.intercept_ = beta[0]
		lr.coef_ = beta[1:]
	} else {
		lr.intercept_ = 0
		lr.coef_ = beta
	}
	lr.deviance_ = dev
	lr.nIter_ = iter
	lr.converged_ = converged
	if !converged && !lr.quiet {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", iter, "IRLS deviance did not stabilise; classes may be separable"))
	}

	lr.state.SetFitted(nFeatures, nSamples)
	return nil
}

// irls returns the coefficient vector (intercept first when fitted), the
// residual deviance and the number of iterations.
func (lr *LogisticRegression) irls(X mat.Matrix, n, p int, y []float64) ([]float64, float64, int, bool, error) {
	offset := 0
	if lr.fitIntercept {
		offset = 1
	}
	k := p + offset

	design := func(i, j int) float64 {
		if offset == 1 {
			if j == 0 {
				return 1
			}
			return X.At(i, j-1)
		}
		return X.At(i, j)
	}

	lambda := 0.0
	if !math.IsInf(lr.C, 1) && lr.C > 0 {
		lambda = 1 / lr.C
	}

	beta := make([]float64, k)
	if offset == 1 {
		var mean float64
		for _, v := range y {
			mean += v
		}
		mean = errors.ClipValue(mean/float64(n), 1e-6, 1-1e-6)
		beta[0] = math.Log(mean / (1 - mean))
	}

	eta := make([]float64, n)
	mu := make([]float64, n)
	update := func() float64 {
		var dev float64
		for i := 0; i < n; i++ {
			e := 0.0
			for j := 0; j < k; j++ {
				e += design(i, j) * beta[j]
			}
			eta[i] = e
			mu[i] = errors.ClipValue(errors.Sigmoid(e), 1e-10, 1-1e-10)
			dev += binomialDeviance(y[i], mu[i])
		}
		return dev
	}

	dev := update()
	A := mat.NewSymDense(k, nil)
	b := mat.NewVecDense(k, nil)
	next := mat.NewVecDense(k, nil)

	iter := 0
	converged := false
	for iter < lr.maxIter {
		iter++
		A.Zero()
		b.Zero()
		for i := 0; i < n; i++ {
			w := mu[i] * (1 - mu[i])
			z := eta[i] + (y[i]-mu[i])/w
			for r := 0; r < k; r++ {
				xr := design(i, r)
				b.SetVec(r, b.AtVec(r)+w*xr*z)
				for c := r; c < k; c++ {
					A.SetSym(r, c, A.At(r, c)+w*xr*design(i, c))
				}
			}
		}
		for j := offset; j < k; j++ {
			A.SetSym(j, j, A.At(j, j)+lambda)
		}
		if err := solveSPD(A, b, next); err != nil {
			return nil, 0, iter, false, errors.NewModelError("LogisticRegression.Fit", "IRLS step", err)
		}
		for j := 0; j < k; j++ {
			beta[j] = next.AtVec(j)
		}
		if err := errors.CheckNumericalStability("LogisticRegression.Fit", beta, iter); err != nil {
			return nil, 0, iter, false, err
		}

		newDev := update()
		if math.Abs(newDev-dev)/(math.Abs(newDev)+0.1) < lr.tol {
			dev = newDev
			converged = true
			break
		}
		dev = newDev
	}
	return beta, dev, iter, converged, nil
}

// solveSPD solves A x = b by Cholesky, adding a growing ridge if A is not
// numerically positive definite.
func solveSPD(A *mat.SymDense, b, x *mat.VecDense) error {
	var chol mat.Cholesky
	if chol.Factorize(A) {
		return conditioned(chol.SolveVecTo(x, b))
	}
	k := A.SymmetricDim()
	jitter := 1e-10
	for attempt := 0; attempt < 8; attempt++ {
		B := mat.NewSymDense(k, nil)
		B.CopySym(A)
		for j := 0; j < k; j++ {
			B.SetSym(j, j, B.At(j, j)+jitter)
		}
		if chol.Factorize(B) {
			return conditioned(chol.SolveVecTo(x, b))
		}
		jitter *= 100
	}
	return errors.ErrSingularMatrix
}

// conditioned accepts an ill-conditioned solve. Separable data drives the
// IRLS weights towards zero; the step is still usable and the deviance test
// decides convergence.
func conditioned(err error) error {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return nil
	}
	return err
}

func binomialDeviance(y, mu float64) float64 {
	if y == 1 {
		return -2 * math.Log(mu)
	}
	return -2 * math.Log(1-mu)
}

func binaryTarget(op string, y mat.Matrix) ([]float64, error) {
	n, _ := y.Dims()
	out := make([]float64, n)
	var pos int
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if v != 0 && v != 1 {
			return nil, errors.NewValueError(op, fmt.Sprintf("target must be 0 or 1, got %v at row %d", v, i))
		}
		out[i] = v
		pos += int(v)
	}
	if pos == 0 || pos == n {
		return nil, errors.NewModelError(op, "single class", errors.ErrSingleClass)
	}
	return out, nil
}

// DecisionFunction returns the linear predictor for each row.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) ([]float64, error) {
	_, p := X.Dims()
	if err := lr.state.CheckPredict("LogisticRegression", p); err != nil {
		return nil, err
	}
	n, _ := X.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		z := lr.intercept_
		for j, w := range lr.coef_ {
			z += X.At(i, j) * w
		}
		out[i] = z
	}
	return out, nil
}

// PredictProba returns P(y=0) and P(y=1) per row.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	z, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	for i := range z {
		z[i] = errors.Sigmoid(z[i])
	}
	return model.BinaryProba(z), nil
}

// Predict thresholds P(y=1) at 0.5.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	z, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(z), 1, nil)
	for i, v := range z {
		if v >= 0 {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// Score returns the accuracy of Predict against y.
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	pred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	n, _ := y.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// IsFitted reports whether Fit has completed.
func (lr *LogisticRegression) IsFitted() bool { return lr.state.IsFitted() }

// Coef returns the fitted slopes.
func (lr *LogisticRegression) Coef() []float64 { return lr.coef_ }

// Intercept returns the fitted intercept.
func (lr *LogisticRegression) Intercept() float64 { return lr.intercept_ }

// Deviance returns the residual deviance (-2 log-likelihood).
func (lr *LogisticRegression) Deviance() float64 { return lr.deviance_ }

// AIC returns deviance + 2 * number of estimated parameters.
func (lr *LogisticRegression) AIC() float64 {
	k := len(lr.coef_)
	if lr.fitIntercept {
		k++
	}
	return lr.deviance_ + 2*float64(k)
}

// NIter returns the number of IRLS iterations used.
func (lr *LogisticRegression) NIter() int { return lr.nIter_ }

// Converged reports whether IRLS met its tolerance.
func (lr *LogisticRegression) Converged() bool { return lr.converged_ }

type logisticSnapshot struct {
	C            float64
	FitIntercept bool
	MaxIter      int
	Tol          float64
	Coef         []float64
	Intercept    float64
	Deviance     float64
	NIter        int
	Converged    bool
	State        model.ModelState
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (lr *LogisticRegression) MarshalBinary() ([]byte, error) {
	return model.GobMarshal(logisticSnapshot{
		C: lr.C, FitIntercept: lr.fitIntercept, MaxIter: lr.maxIter, Tol: lr.tol,
		Coef: lr.coef_, Intercept: lr.intercept_, Deviance: lr.deviance_,
		NIter: lr.nIter_, Converged: lr.converged_, State: lr.state.GetState(),
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (lr *LogisticRegression) UnmarshalBinary(data []byte) error {
	var s logisticSnapshot
	if err := model.GobUnmarshal(data, &s); err != nil {
		return err
	}
	if lr.state == nil {
		lr.state = model.NewStateManager()
	}
	lr.C, lr.fitIntercept, lr.maxIter, lr.tol = s.C, s.FitIntercept, s.MaxIter, s.Tol
	lr.coef_, lr.intercept_, lr.deviance_ = s.Coef, s.Intercept, s.Deviance
	lr.nIter_, lr.converged_ = s.NIter, s.Converged
	lr.state.SetState(s.State)
	return nil
}

func init() {
	model.Register(KindLogistic, func() model.Persistent { return NewLogisticRegression() })
}
