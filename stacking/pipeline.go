package stacking

import (
	"context"
	"sync"
	"time"

	"github.com/YuminosukeSato/landstack/core/parallel"
	"github.com/YuminosukeSato/landstack/dataset"
	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
)

// ArtifactSink persists what the pipeline produces. A label of "" means the
// raster covers every label.
type ArtifactSink interface {
	SaveModel(stage, label string, seed uint64, m FittedModel) error
	SaveRaster(stage, label string, s *geo.Stack) error
}

// PipelineConfig holds the run-wide settings.
type PipelineConfig struct {
	Labels              []string
	BaseFeatures        dataset.FeatureSet
	CalibrationFraction float64
	Seed                uint64
	// LabelConcurrency bounds how many labels go through the base and
	// ensemble stages at once. 1 runs them one after another.
	LabelConcurrency int
}

// Result collects every stage output of a run.
type Result struct {
	Partitions     map[string]*dataset.Partition
	Base           map[string]*StageOutput
	Ensemble       map[string]*StageOutput
	EnsembleRaster *geo.Stack
	Stack          map[string]*StageOutput
	FinalRaster    *geo.Stack
	Validation     []ValidationResult
	States         map[string]State
}

// Pipeline runs base bank, ensembler, stacker and validator for every label.
type Pipeline struct {
	cfg       PipelineConfig
	bank      *BaseLearnerBank
	ensembler *Ensembler
	stacker   *MultilabelStacker
	validator *Validator
	sink      ArtifactSink
	logger    log.Logger

	mu     sync.Mutex
	states map[string]State
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithSink persists models and rasters as they are produced.
func WithSink(s ArtifactSink) PipelineOption {
	return func(p *Pipeline) { p.sink = s }
}

// WithPipelineLogger overrides the global logger.
func WithPipelineLogger(l log.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline wires the stages. Nil stages get their defaults.
func NewPipeline(cfg PipelineConfig, bank *BaseLearnerBank, ens *Ensembler, stk *MultilabelStacker, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{cfg: cfg, bank: bank, ensembler: ens, stacker: stk}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.GetLogger()
	}
	if p.bank == nil {
		p.bank = NewBaseLearnerBank(WithStageLogger(p.logger))
	}
	if p.ensembler == nil {
		p.ensembler = NewEnsembler(WithStageLogger(p.logger))
	}
	if p.stacker == nil {
		p.stacker = NewMultilabelStacker(WithStageLogger(p.logger))
	}
	p.validator = NewValidator(p.logger)
	if p.cfg.CalibrationFraction == 0 {
		p.cfg.CalibrationFraction = 0.8
	}
	if p.cfg.LabelConcurrency <= 0 {
		p.cfg.LabelConcurrency = 1
	}
	return p
}

func (p *Pipeline) validate(stack *geo.Stack, samples []dataset.Sample) error {
	if len(p.cfg.Labels) == 0 {
		return errors.NewValidationError("labels", "at least one label is required", p.cfg.Labels)
	}
	seen := map[string]bool{}
	for _, l := range p.cfg.Labels {
		if l == "" || seen[l] {
			return errors.NewValidationError("labels", "labels must be unique and non-empty", p.cfg.Labels)
		}
		seen[l] = true
	}
	if len(samples) == 0 {
		return errors.ErrEmptyData
	}
	return p.cfg.BaseFeatures.Validate(stack)
}

func (p *Pipeline) transition(label string, s State) {
	p.mu.Lock()
	p.states[label] = s
	p.mu.Unlock()
	p.logger.Debug("state", log.LabelKey, label, log.StateKey, string(s))
}

// Run executes the whole workflow. Labels go through base and ensemble
// stages independently; the stacker starts once every ensemble exists.
// The first failure stops the run; the partial result is returned with it.
func (p *Pipeline) Run(ctx context.Context, stack *geo.Stack, samples []dataset.Sample) (*Result, error) {
	if err := p.validate(stack, samples); err != nil {
		return nil, err
	}
	start := time.Now()
	labels := p.cfg.Labels
	p.states = make(map[string]State, len(labels))
	res := &Result{
		Partitions: make(map[string]*dataset.Partition, len(labels)),
		Base:       make(map[string]*StageOutput, len(labels)),
		Ensemble:   make(map[string]*StageOutput, len(labels)),
		Stack:      make(map[string]*StageOutput, len(labels)),
		States:     p.states,
	}
	for _, l := range labels {
		p.transition(l, StateLinked)
	}
	fail := func(label string, err error) error {
		p.transition(label, StateFailed)
		p.logger.Error("label failed", err, log.LabelKey, label)
		return err
	}
	var resMu sync.Mutex

	// one sample split for all labels, so no label validates on points
	// another label was calibrated on
	parts, err := Partitions(samples, labels, p.cfg.CalibrationFraction, p.cfg.Seed)
	if err != nil {
		for _, l := range labels {
			p.transition(l, StateFailed)
		}
		return res, err
	}
	for _, label := range labels {
		part := parts[label]
		res.Partitions[label] = part
		p.logger.Info("partition drawn",
			log.LabelKey, label,
			"calibration", len(part.Calibration),
			"validation", len(part.Validation),
			log.RandomSeedKey, part.Seed,
		)
	}

	// base bank and ensembler, per label
	pool := parallel.NewPool(p.cfg.LabelConcurrency)
	err = pool.Run(ctx, len(labels), func(ctx context.Context, i int) error {
		label := labels[i]
		part := parts[label]

		base, err := p.bank.Run(ctx, StageInput{
			Label: label, Stack: stack, Features: p.cfg.BaseFeatures,
			Samples: samples, Partition: part, Seed: DeriveSeed(p.cfg.Seed, log.StageBase, label),
		})
		if err != nil {
			return fail(label, err)
		}
		p.transition(label, StateBaseModelsTrained)
		if err := p.persist(base); err != nil {
			return fail(label, err)
		}
		p.transition(label, StateBaseRastersProduced)

		ens, err := p.ensembler.Run(ctx, StageInput{
			Label: label, Stack: base.Raster,
			Features: dataset.FeatureSet{Name: log.StageEnsemble, Names: base.Raster.Names},
			Samples:  samples, Partition: part, Seed: DeriveSeed(p.cfg.Seed, log.StageEnsemble, label),
		})
		if err != nil {
			return fail(label, err)
		}
		p.transition(label, StateEnsembleModelTrained)
		if err := p.persistModels(ens); err != nil {
			return fail(label, err)
		}
		p.transition(label, StateEnsembleRasterProduced)

		resMu.Lock()
		res.Base[label], res.Ensemble[label] = base, ens
		resMu.Unlock()
		return nil
	})
	if err != nil {
		return res, err
	}

	ensRasters := make([]*geo.Stack, len(labels))
	for i, l := range labels {
		ensRasters[i] = res.Ensemble[l].Raster
	}
	if res.EnsembleRaster, err = geo.Merge(ensRasters...); err != nil {
		return res, err
	}
	if err := p.saveRaster(log.StageEnsemble, "", res.EnsembleRaster); err != nil {
		return res, err
	}

	// multilabel stacker
	stackFeatures := dataset.FeatureSet{Name: log.StageStack, Names: append([]string(nil), labels...)}
	err = pool.Run(ctx, len(labels), func(ctx context.Context, i int) error {
		label := labels[i]
		out, err := p.stacker.Run(ctx, StageInput{
			Label: label, Stack: res.EnsembleRaster, Features: stackFeatures,
			Samples: samples, Partition: res.Partitions[label], Seed: DeriveSeed(p.cfg.Seed, log.StageStack, label),
		})
		if err != nil {
			return fail(label, err)
		}
		p.transition(label, StateStackModelTrained)
		if err := p.persistModels(out); err != nil {
			return fail(label, err)
		}
		p.transition(label, StateStackRasterProduced)
		resMu.Lock()
		res.Stack[label] = out
		resMu.Unlock()
		return nil
	})
	if err != nil {
		return res, err
	}

	finals := make([]*geo.Stack, len(labels))
	for i, l := range labels {
		finals[i] = res.Stack[l].Raster
	}
	if res.FinalRaster, err = geo.Merge(finals...); err != nil {
		return res, err
	}
	if err := p.saveRaster(log.StageStack, "", res.FinalRaster); err != nil {
		return res, err
	}

	// validation of every stage against the held-out points
	for _, label := range labels {
		part := res.Partitions[label]
		var targets []validationTarget
		for _, name := range res.Base[label].Raster.Names {
			targets = append(targets, validationTarget{log.StageBase, res.Base[label].Raster, name})
		}
		targets = append(targets,
			validationTarget{log.StageEnsemble, res.EnsembleRaster, label},
			validationTarget{log.StageStack, res.FinalRaster, label},
		)
		for _, t := range targets {
			v, err := p.validator.Validate(t.stage, t.raster, t.band, samples, part)
			if err != nil {
				return res, fail(label, err)
			}
			res.Validation = append(res.Validation, *v)
		}
		p.transition(label, StateValidated)
	}

	p.logger.Info("pipeline finished",
		"labels", len(labels),
		log.SamplesKey, len(samples),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Partitions draws the calibration/validation partitions of labels the way
// Run does, so persisted rasters can be re-scored against the same points.
func Partitions(samples []dataset.Sample, labels []string, fraction float64, seed uint64) (map[string]*dataset.Partition, error) {
	return dataset.NewPartitions(samples, labels, fraction, DeriveSeed(seed, "partition", ""))
}

type validationTarget struct {
	stage  string
	raster *geo.Stack
	band   string
}

// ValidationFor returns the validation of label at stage for band.
func (r *Result) ValidationFor(label, stage, band string) *ValidationResult {
	for i := range r.Validation {
		v := &r.Validation[i]
		if v.Label == label && v.Stage == stage && v.Band == band {
			return v
		}
	}
	return nil
}

func (p *Pipeline) persist(out *StageOutput) error {
	if err := p.persistModels(out); err != nil {
		return err
	}
	return p.saveRaster(out.Stage, out.Label, out.Raster)
}

func (p *Pipeline) persistModels(out *StageOutput) error {
	if p.sink == nil {
		return nil
	}
	for _, m := range out.Models {
		if err := p.sink.SaveModel(out.Stage, out.Label, out.Seed, m); err != nil {
			return errors.Wrapf(err, "save %s %s model", out.Stage, m.Learner)
		}
	}
	return nil
}

func (p *Pipeline) saveRaster(stage, label string, s *geo.Stack) error {
	if p.sink == nil {
		return nil
	}
	return errors.Wrapf(p.sink.SaveRaster(stage, label, s), "save %s raster", stage)
}
