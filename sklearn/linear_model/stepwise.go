package linear_model

import (
	"sort"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// KindStepwise is the registered model kind of StepwiseLogistic.
const KindStepwise = "glmStepAIC"

// StepwiseLogistic selects a subset of features for a logistic regression by
// AIC, adding or dropping one term per step until no move lowers the AIC.
// The search starts from the full model; the intercept is always kept.
type StepwiseLogistic struct {
	state *model.StateManager

	maxSteps int
	opts     []LogisticRegressionOption

	selected_ []int
	aic_      float64
	steps_    int
	final_    *LogisticRegression
}

// StepwiseOption configures a StepwiseLogistic.
type StepwiseOption func(*StepwiseLogistic)

// WithMaxSteps bounds the number of add/drop moves.
func WithMaxSteps(n int) StepwiseOption {
	return func(s *StepwiseLogistic) { s.maxSteps = n }
}

// WithLogisticOptions passes options to every candidate LogisticRegression.
func WithLogisticOptions(opts ...LogisticRegressionOption) StepwiseOption {
	return func(s *StepwiseLogistic) { s.opts = append(s.opts, opts...) }
}

// NewStepwiseLogistic creates an unfitted stepwise learner.
func NewStepwiseLogistic(opts ...StepwiseOption) *StepwiseLogistic {
	s := &StepwiseLogistic{state: model.NewStateManager(), maxSteps: 1000}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind implements model.Persistent.
func (s *StepwiseLogistic) Kind() string { return KindStepwise }

// Fit runs the bidirectional search and keeps the best model.
func (s *StepwiseLogistic) Fit(X, y mat.Matrix) error {
	n, p := X.Dims()
	if n == 0 {
		return errors.NewModelError("StepwiseLogistic.Fit", "empty data", errors.ErrEmptyData)
	}
	if _, err := binaryTarget("StepwiseLogistic.Fit", y); err != nil {
		return err
	}
	logger := log.GetLogger().With(log.ModelNameKey, KindStepwise)

	fit := func(cols []int) (*LogisticRegression, error) {
		lr := NewLogisticRegression(s.opts...)
		// candidate fits routinely stop early on separable subsets
		lr.quiet = true
		return lr, lr.fit(columns(X, cols), n, len(cols), y)
	}

	current := make([]int, p)
	for j := range current {
		current[j] = j
	}
	best, err := fit(current)
	if err != nil {
		return err
	}
	bestAIC := best.AIC()

	steps := 0
	for ; steps < s.maxSteps; steps++ {
		var (
			moveCols  []int
			moveModel *LogisticRegression
			moveAIC   = bestAIC
		)
		for _, cand := range neighbours(current, p) {
			lr, err := fit(cand)
			if err != nil {
				if errors.Is(err, errors.ErrSingularMatrix) {
					continue
				}
				return err
			}
			if aic := lr.AIC(); aic < moveAIC-1e-9 {
				moveCols, moveModel, moveAIC = cand, lr, aic
			}
		}
		if moveModel == nil {
			break
		}
		logger.Debug("stepAIC move",
			log.IterationKey, steps+1,
			"terms", len(moveCols),
			"aic", moveAIC,
		)
		current, best, bestAIC = moveCols, moveModel, moveAIC
	}

	if !best.Converged() {
		errors.Warn(errors.NewConvergenceWarning("StepwiseLogistic", best.NIter(), "selected model did not converge"))
	}
	s.selected_ = current
	s.final_ = best
	s.aic_ = bestAIC
	s.steps_ = steps
	s.state.SetFitted(p, n)
	return nil
}

// neighbours lists every model one add or one drop away from current.
func neighbours(current []int, p int) [][]int {
	in := make(map[int]bool, len(current))
	for _, j := range current {
		in[j] = true
	}
	var out [][]int
	for drop := range current {
		cand := make([]int, 0, len(current)-1)
		cand = append(cand, current[:drop]...)
		cand = append(cand, current[drop+1:]...)
		out = append(out, cand)
	}
	for j := 0; j < p; j++ {
		if in[j] {
			continue
		}
		cand := append(append(make([]int, 0, len(current)+1), current...), j)
		sort.Ints(cand)
		out = append(out, cand)
	}
	return out
}

// columns copies the given columns of X; it returns nil for the
// intercept-only model.
func columns(X mat.Matrix, cols []int) mat.Matrix {
	if len(cols) == 0 {
		return nil
	}
	n, _ := X.Dims()
	out := mat.NewDense(n, len(cols), nil)
	for i := 0; i < n; i++ {
		for k, j := range cols {
			out.Set(i, k, X.At(i, j))
		}
	}
	return out
}

// PredictProba applies the selected model to the matching columns of X.
func (s *StepwiseLogistic) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	_, p := X.Dims()
	if err := s.state.CheckPredict("StepwiseLogistic", p); err != nil {
		return nil, err
	}
	if len(s.selected_) == 0 {
		n, _ := X.Dims()
		p1 := errors.Sigmoid(s.final_.Intercept())
		out := make([]float64, n)
		for i := range out {
			out[i] = p1
		}
		return model.BinaryProba(out), nil
	}
	return s.final_.PredictProba(columns(X, s.selected_))
}

// IsFitted reports whether Fit has completed.
func (s *StepwiseLogistic) IsFitted() bool { return s.state.IsFitted() }

// Selected returns the indices of the retained features.
func (s *StepwiseLogistic) Selected() []int { return s.selected_ }

// AIC returns the AIC of the selected model.
func (s *StepwiseLogistic) AIC() float64 { return s.aic_ }

// Steps returns the number of moves taken.
func (s *StepwiseLogistic) Steps() int { return s.steps_ }

// Model returns the fitted logistic regression on the selected features.
func (s *StepwiseLogistic) Model() *LogisticRegression { return s.final_ }

type stepwiseSnapshot struct {
	MaxSteps int
	Selected []int
	AIC      float64
	Steps    int
	Final    []byte
	State    model.ModelState
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *StepwiseLogistic) MarshalBinary() ([]byte, error) {
	if s.final_ == nil {
		return nil, errors.NewNotFittedError("StepwiseLogistic", "MarshalBinary")
	}
	final, err := s.final_.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return model.GobMarshal(stepwiseSnapshot{
		MaxSteps: s.maxSteps, Selected: s.selected_, AIC: s.aic_,
		Steps: s.steps_, Final: final, State: s.state.GetState(),
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *StepwiseLogistic) UnmarshalBinary(data []byte) error {
	var snap stepwiseSnapshot
	if err := model.GobUnmarshal(data, &snap); err != nil {
		return err
	}
	final := NewLogisticRegression()
	if err := final.UnmarshalBinary(snap.Final); err != nil {
		return err
	}
	if s.state == nil {
		s.state = model.NewStateManager()
	}
	s.maxSteps, s.selected_, s.aic_, s.steps_ = snap.MaxSteps, snap.Selected, snap.AIC, snap.Steps
	if s.selected_ == nil {
		s.selected_ = []int{}
	}
	s.final_ = final
	s.state.SetState(snap.State)
	return nil
}

func init() {
	model.Register(KindStepwise, func() model.Persistent { return NewStepwiseLogistic() })
}
