package stacking

import (
	"context"
	"time"

	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/YuminosukeSato/landstack/sklearn/model_selection"
)

// metaLearner fits one stepwise logistic regression on probability bands of
// an earlier stage and predicts a single band named after the label.
type metaLearner struct {
	stage string
	cfg   stageConfig
}

func (m *metaLearner) run(ctx context.Context, in StageInput) (*StageOutput, error) {
	X, y, sel, err := calibrationData(in)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	_, p := X.Dims()
	cands, err := Candidates(MethodGLMStepAIC, p, 1, in.Seed, m.cfg.settings)
	if err != nil {
		return nil, err
	}
	splitter := model_selection.NewRepeatedStratifiedKFold(m.cfg.folds, m.cfg.repeats, in.Seed)
	res, err := model_selection.Tune(ctx, cands, X, y, splitter, m.cfg.cvWorkers)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", m.stage, in.Label)
	}
	fm, err := fitted(MethodGLMStepAIC, res, in.Features.Names)
	if err != nil {
		return nil, err
	}
	m.cfg.logger.Info("model fitted",
		log.LabelKey, in.Label,
		log.LearnerKey, MethodGLMStepAIC,
		log.FeaturesKey, p,
		log.AUCKey, fm.CVAUC,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	probs, err := PredictRaster(fm.Classifier, sel, m.cfg.progressFor(m.stage, in.Label, in.Label))
	if err != nil {
		return nil, errors.Wrapf(err, "predict %s %s", m.stage, in.Label)
	}
	out := &StageOutput{Label: in.Label, Stage: m.stage, Seed: in.Seed, Models: []FittedModel{fm}, Raster: geo.NewStack(sel.Def)}
	if err := out.Raster.AddBand(in.Label, probs); err != nil {
		return nil, err
	}
	return out, nil
}

// Ensembler combines the base learners of one label. Its features are the
// label's base prediction bands; CV is 10-fold repeated 3 times by default.
type Ensembler struct {
	metaLearner
}

// NewEnsembler creates the per-label ensemble stage.
func NewEnsembler(opts ...StageOption) *Ensembler {
	return &Ensembler{metaLearner{stage: log.StageEnsemble, cfg: newStageConfig(log.StageEnsemble, 10, 3, opts)}}
}

// Features names the base bands the ensembler of label reads.
func (e *Ensembler) Features(label string, learners []string) []string {
	out := make([]string, len(learners))
	for i, l := range learners {
		out[i] = BandName(label, l)
	}
	return out
}

// Run fits the ensemble of in.Label and predicts its band.
func (e *Ensembler) Run(ctx context.Context, in StageInput) (*StageOutput, error) {
	return e.run(ctx, in)
}

// MultilabelStacker predicts each label from the ensemble bands of all
// labels, so correlations between labels can be used.
type MultilabelStacker struct {
	metaLearner
}

// NewMultilabelStacker creates the final stage.
func NewMultilabelStacker(opts ...StageOption) *MultilabelStacker {
	return &MultilabelStacker{metaLearner{stage: log.StageStack, cfg: newStageConfig(log.StageStack, 10, 3, opts)}}
}

// Run fits the stacker of in.Label and predicts its final band.
func (s *MultilabelStacker) Run(ctx context.Context, in StageInput) (*StageOutput, error) {
	return s.run(ctx, in)
}
