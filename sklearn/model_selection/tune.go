package model_selection

import (
	"context"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// Candidate is one hyperparameter setting of a learner family.
type Candidate struct {
	Params  map[string]float64
	Factory model.Factory
}

// CandidateResult pairs a candidate with its cross-validated AUC.
type CandidateResult struct {
	Params map[string]float64
	CV     *CVResult
}

// TuneResult is the outcome of a grid search: every candidate's score, the
// winner, and the winner refitted on all rows.
type TuneResult struct {
	Results   []CandidateResult
	BestIndex int
	Model     model.Classifier
}

// Best returns the winning candidate's result.
func (r *TuneResult) Best() CandidateResult {
	return r.Results[r.BestIndex]
}

// Tune cross-validates every candidate on the same folds, picks the highest
// mean AUC (first wins ties) and refits it on all of X.
func Tune(ctx context.Context, candidates []Candidate, X mat.Matrix, y []float64, splitter Splitter, workers int) (*TuneResult, error) {
	if len(candidates) == 0 {
		return nil, errors.NewValueError("Tune", "no candidates")
	}
	logger := log.GetLogger()

	res := &TuneResult{Results: make([]CandidateResult, len(candidates))}
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cv, err := CrossValidate(ctx, c.Factory, X, y, splitter, workers)
		if err != nil {
			return nil, err
		}
		res.Results[i] = CandidateResult{Params: c.Params, CV: cv}
		if cv.MeanAUC > res.Results[res.BestIndex].CV.MeanAUC {
			res.BestIndex = i
		}
		logger.Debug("candidate evaluated", "params", c.Params, log.AUCKey, cv.MeanAUC)
	}

	final := candidates[res.BestIndex].Factory()
	err := errors.SafeExecute("Tune refit", func() error {
		return final.Fit(X, mat.NewVecDense(len(y), append([]float64(nil), y...)))
	})
	if err != nil {
		return nil, errors.Wrap(err, "refit best candidate")
	}
	res.Model = final
	return res, nil
}
