package stacking

import (
	"github.com/YuminosukeSato/landstack/pkg/log"
)

// stageConfig is shared by the three model stages.
type stageConfig struct {
	folds      int
	repeats    int
	tuneLength int
	workers    int // concurrent learner fits
	cvWorkers  int // concurrent folds inside one fit
	settings   LearnerSettings
	learners   []string
	logger     log.Logger
	progress   func(stage, label, band string) ProgressFunc
}

// StageOption configures a stage.
type StageOption func(*stageConfig)

// WithFolds sets the number of cross-validation folds.
func WithFolds(k int) StageOption {
	return func(c *stageConfig) { c.folds = k }
}

// WithRepeats sets how many times the K-fold split is repeated.
func WithRepeats(n int) StageOption {
	return func(c *stageConfig) { c.repeats = n }
}

// WithTuneLength sets the number of values tried per tuning parameter.
func WithTuneLength(n int) StageOption {
	return func(c *stageConfig) { c.tuneLength = n }
}

// WithWorkers bounds concurrent learner fits (<= 0 means one per CPU).
func WithWorkers(n int) StageOption {
	return func(c *stageConfig) { c.workers = n }
}

// WithCVWorkers bounds concurrent folds within one tuning run.
func WithCVWorkers(n int) StageOption {
	return func(c *stageConfig) { c.cvWorkers = n }
}

// WithLearners sets the base-learner families.
func WithLearners(methods ...string) StageOption {
	return func(c *stageConfig) { c.learners = methods }
}

// WithLearnerSettings sets the fixed learner settings.
func WithLearnerSettings(s LearnerSettings) StageOption {
	return func(c *stageConfig) { c.settings = s }
}

// WithStageLogger overrides the global logger.
func WithStageLogger(l log.Logger) StageOption {
	return func(c *stageConfig) { c.logger = l }
}

// WithProgress installs a factory for raster prediction progress callbacks.
func WithProgress(f func(stage, label, band string) ProgressFunc) StageOption {
	return func(c *stageConfig) { c.progress = f }
}

func newStageConfig(stage string, folds, repeats int, opts []StageOption) stageConfig {
	c := stageConfig{
		folds:      folds,
		repeats:    repeats,
		tuneLength: 3,
		settings:   DefaultLearnerSettings(),
		learners:   DefaultLearners,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = log.GetLogger()
	}
	c.logger = c.logger.With(log.StageKey, stage)
	return c
}

func (c *stageConfig) progressFor(stage, label, band string) ProgressFunc {
	if c.progress == nil {
		return nil
	}
	return c.progress(stage, label, band)
}
