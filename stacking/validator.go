package stacking

import (
	"github.com/YuminosukeSato/landstack/dataset"
	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/metrics"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
)

// ValidationResult is the ROC analysis of one raster band at the held-out
// points of its label.
type ValidationResult struct {
	Label      string
	Stage      string
	Band       string
	AUC        float64
	LogLoss    float64
	FPR        []float64
	TPR        []float64
	Thresholds []float64
	N          int
	Positives  int
}

// Validator scores probability rasters against validation points. It never
// refits anything.
type Validator struct {
	logger log.Logger
}

// NewValidator uses logger, or the global logger when nil.
func NewValidator(logger log.Logger) *Validator {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Validator{logger: logger.With(log.StageKey, log.StageValidate)}
}

// Validate samples band of raster at the validation points of part and
// computes the ROC curve, the AUC and the log-loss of the band read as a
// probability.
func (v *Validator) Validate(stage string, raster *geo.Stack, band string, samples []dataset.Sample, part *dataset.Partition) (*ValidationResult, error) {
	if part == nil || len(part.Validation) == 0 {
		return nil, errors.NewValueError("Validate", "empty validation partition")
	}
	sel, err := raster.Select(log.StageValidate, []string{band})
	if err != nil {
		return nil, err
	}
	X, err := dataset.SampleStack(sel, samples, part.Validation)
	if err != nil {
		return nil, err
	}
	y := dataset.Targets(samples, part.Validation, part.Label)
	score := make([]float64, len(y))
	pos := 0
	for i := range score {
		score[i] = X.At(i, 0)
		if y[i] == 1 {
			pos++
		}
	}
	fpr, tpr, thr, err := metrics.ROCCurve(y, score)
	if err != nil {
		return nil, err
	}
	auc, err := metrics.AUCSlice(y, score)
	if err != nil {
		return nil, err
	}
	logLoss, err := metrics.LogLoss(y, score)
	if err != nil {
		return nil, err
	}
	res := &ValidationResult{
		Label: part.Label, Stage: stage, Band: band,
		AUC: auc, LogLoss: logLoss, FPR: fpr, TPR: tpr, Thresholds: thr,
		N: len(y), Positives: pos,
	}
	v.logger.Info("validated",
		log.LabelKey, part.Label,
		"band", band,
		"evaluated_stage", stage,
		log.SamplesKey, res.N,
		log.AUCKey, auc,
		log.LogLossKey, logLoss,
	)
	return res, nil
}
