package stacking

import (
	"context"
	"time"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/core/parallel"
	"github.com/YuminosukeSato/landstack/dataset"
	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/YuminosukeSato/landstack/sklearn/model_selection"
	"gonum.org/v1/gonum/mat"
)

// BaseLearnerBank fits several independent classifiers of one label on the
// same features and CV folds, then predicts one probability raster per
// learner.
type BaseLearnerBank struct {
	cfg stageConfig
}

// NewBaseLearnerBank defaults to the four standard learners, 10-fold CV and
// a tune length of 3.
func NewBaseLearnerBank(opts ...StageOption) *BaseLearnerBank {
	return &BaseLearnerBank{cfg: newStageConfig(log.StageBase, 10, 1, opts)}
}

// Learners returns the configured learner families.
func (b *BaseLearnerBank) Learners() []string { return b.cfg.learners }

// Run fits every learner on the calibration samples of in and predicts the
// feature stack. The output raster has one band per learner named
// <label>_<learner>.
func (b *BaseLearnerBank) Run(ctx context.Context, in StageInput) (*StageOutput, error) {
	if len(b.cfg.learners) == 0 {
		return nil, errors.NewValidationError("learners", "at least one base learner is required", b.cfg.learners)
	}
	for _, m := range b.cfg.learners {
		if !KnownMethod(m) {
			return nil, errors.NewValidationError("learner", "unknown method", m)
		}
	}
	X, y, sel, err := calibrationData(in)
	if err != nil {
		return nil, err
	}
	logger := b.cfg.logger.With(log.LabelKey, in.Label)
	_, p := X.Dims()
	splitter := model_selection.NewStratifiedKFold(b.cfg.folds, true, in.Seed)

	models := make([]FittedModel, len(b.cfg.learners))
	pool := parallel.NewPool(b.cfg.workers)
	err = pool.Run(ctx, len(b.cfg.learners), func(ctx context.Context, i int) error {
		method := b.cfg.learners[i]
		start := time.Now()
		cands, err := Candidates(method, p, b.cfg.tuneLength, DeriveSeed(in.Seed, log.StageBase, method), b.cfg.settings)
		if err != nil {
			return err
		}
		res, err := model_selection.Tune(ctx, cands, X, y, splitter, b.cfg.cvWorkers)
		if err != nil {
			return errors.Wrapf(err, "%s %s", in.Label, method)
		}
		fm, err := fitted(method, res, in.Features.Names)
		if err != nil {
			return err
		}
		models[i] = fm
		logger.Info("base learner fitted",
			log.LearnerKey, method,
			log.AUCKey, fm.CVAUC,
			"params", fm.Params,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &StageOutput{Label: in.Label, Stage: log.StageBase, Seed: in.Seed, Models: models, Raster: geo.NewStack(sel.Def)}
	for _, m := range models {
		band := BandName(in.Label, m.Learner)
		probs, err := PredictRaster(m.Classifier, sel, b.cfg.progressFor(log.StageBase, in.Label, band))
		if err != nil {
			return nil, errors.Wrapf(err, "predict %s", band)
		}
		if err := out.Raster.AddBand(band, probs); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// calibrationData reads the stage features at the calibration points.
func calibrationData(in StageInput) (*mat.Dense, []float64, *geo.Stack, error) {
	if in.Partition == nil || len(in.Partition.Calibration) == 0 {
		return nil, nil, nil, errors.NewValueError("stage input", "no calibration partition for "+in.Label)
	}
	if in.Partition.Label != in.Label {
		return nil, nil, nil, errors.NewValueError("stage input", "partition of "+in.Partition.Label+" used for "+in.Label)
	}
	if in.Stack == nil {
		return nil, nil, nil, errors.NewValueError("stage input", "no input raster for "+in.Label)
	}
	if err := in.Features.Validate(in.Stack); err != nil {
		return nil, nil, nil, err
	}
	sel, err := in.Stack.Select(in.Features.Name, in.Features.Names)
	if err != nil {
		return nil, nil, nil, err
	}
	X, err := dataset.SampleStack(sel, in.Samples, in.Partition.Calibration)
	if err != nil {
		return nil, nil, nil, err
	}
	return X, dataset.Targets(in.Samples, in.Partition.Calibration, in.Label), sel, nil
}

func fitted(method string, res *model_selection.TuneResult, features []string) (FittedModel, error) {
	clf, ok := res.Model.(model.Persistent)
	if !ok {
		return FittedModel{}, errors.NewModelError("fitted", method, errors.New("classifier cannot be persisted"))
	}
	best := res.Best()
	return FittedModel{
		Learner:    method,
		Classifier: clf,
		Features:   append([]string(nil), features...),
		Params:     best.Params,
		CVAUC:      best.CV.MeanAUC,
	}, nil
}
