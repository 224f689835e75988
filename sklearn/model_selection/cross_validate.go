package model_selection

import (
	"context"
	"fmt"
	"time"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/core/parallel"
	"github.com/YuminosukeSato/landstack/metrics"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CVResult holds the per-fold held-out AUCs of one configuration.
type CVResult struct {
	FoldAUC  []float64
	MeanAUC  float64
	StdAUC   float64
	Duration time.Duration
}

// CrossValidate fits a fresh classifier from factory on every training fold
// and scores AUC on the matching test fold. Folds run on a pool of workers
// (<= 0 means one per CPU). Any fold failure aborts the whole run.
func CrossValidate(ctx context.Context, factory model.Factory, X mat.Matrix, y []float64, splitter Splitter, workers int) (*CVResult, error) {
	n, _ := X.Dims()
	if n != len(y) {
		return nil, errors.NewDimensionError("CrossValidate", n, len(y), 0)
	}
	folds, err := splitter.Split(y)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	aucs := make([]float64, len(folds))
	pool := parallel.NewPool(workers)
	err = pool.Run(ctx, len(folds), func(ctx context.Context, f int) error {
		fold := folds[f]
		return errors.SafeExecute(fmt.Sprintf("CrossValidate fold %d", f), func() error {
			clf := factory()
			if err := clf.Fit(Rows(X, fold.TrainIndices), mat.NewVecDense(len(fold.TrainIndices), Take(y, fold.TrainIndices))); err != nil {
				return errors.Wrapf(err, "fold %d", f)
			}
			proba, err := clf.PredictProba(Rows(X, fold.TestIndices))
			if err != nil {
				return errors.Wrapf(err, "fold %d", f)
			}
			auc, err := metrics.AUCSlice(Take(y, fold.TestIndices), model.PositiveColumn(proba))
			if err != nil {
				return errors.Wrapf(err, "fold %d", f)
			}
			aucs[f] = auc
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	res := &CVResult{FoldAUC: aucs, Duration: time.Since(start)}
	res.MeanAUC, res.StdAUC = stat.MeanStdDev(aucs, nil)
	if len(aucs) < 2 {
		res.StdAUC = 0
	}
	log.GetLogger().Debug("cross-validation finished",
		log.OperationKey, "cross_validate",
		"folds", len(folds),
		log.AUCKey, res.MeanAUC,
		log.DurationMsKey, res.Duration.Milliseconds(),
	)
	return res, nil
}

// Rows copies the selected rows of X into a new dense matrix.
func Rows(X mat.Matrix, idx []int) *mat.Dense {
	_, p := X.Dims()
	out := mat.NewDense(len(idx), p, nil)
	for r, i := range idx {
		for j := 0; j < p; j++ {
			out.Set(r, j, X.At(i, j))
		}
	}
	return out
}

// Take returns v[idx...].
func Take(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for r, i := range idx {
		out[r] = v[i]
	}
	return out
}
