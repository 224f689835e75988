// Package config loads the YAML run configuration.
package config

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/YuminosukeSato/landstack/dataset"
	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/YuminosukeSato/landstack/stacking"
	"gopkg.in/yaml.v3"
)

// Config holds one run.
type Config struct {
	Seed                uint64   `yaml:"seed"`
	Labels              []string `yaml:"labels"`
	CalibrationFraction float64  `yaml:"calibration_fraction"`

	Points   PointsConfig       `yaml:"points"`
	Raster   RasterConfig       `yaml:"raster"`
	Features dataset.FeatureSet `yaml:"features"`

	Learners        []string                 `yaml:"learners"`
	LearnerSettings stacking.LearnerSettings `yaml:"learner_settings"`
	Base            StageConfig              `yaml:"base"`
	Ensemble        StageConfig              `yaml:"ensemble"`
	Stack           StageConfig              `yaml:"stack"`

	Workers          int  `yaml:"workers"`
	LabelConcurrency int  `yaml:"label_concurrency"`
	AllowOutOfExtent bool `yaml:"allow_out_of_extent"`

	Output  string        `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// PointsConfig locates the survey CSV. Coordinates are WGS84 lon/lat.
type PointsConfig struct {
	Path      string `yaml:"path"`
	IDColumn  string `yaml:"id_column"`
	LonColumn string `yaml:"lon_column"`
	LatColumn string `yaml:"lat_column"`
}

// RasterConfig locates the feature stack: either one ESRI ASCII grid per
// layer or a BIL stack written by a previous run.
type RasterConfig struct {
	CRS    string      `yaml:"crs"`
	Layers []geo.Layer `yaml:"layers"`
	BIL    string      `yaml:"bil"`
}

// StageConfig sets the resampling of one model stage.
type StageConfig struct {
	Folds      int `yaml:"folds"`
	Repeats    int `yaml:"repeats"`
	TuneLength int `yaml:"tune_length"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads path, applies defaults, resolves relative paths against the
// file's directory and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	cfg.resolve(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse yaml")
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if len(c.Labels) == 0 {
		c.Labels = []string{"BP", "CP", "WP"}
	}
	if c.CalibrationFraction == 0 {
		c.CalibrationFraction = 0.8
	}
	if c.Points.LonColumn == "" {
		c.Points.LonColumn = "lon"
	}
	if c.Points.LatColumn == "" {
		c.Points.LatColumn = "lat"
	}
	if c.Raster.CRS == "" {
		c.Raster.CRS = "EPSG:4326"
	}
	if c.Features.Name == "" {
		c.Features.Name = log.StageBase
	}
	if len(c.Learners) == 0 {
		c.Learners = slices.Clone(stacking.DefaultLearners)
	}
	def := stacking.DefaultLearnerSettings()
	s := &c.LearnerSettings
	if s.RFTrees == 0 {
		s.RFTrees = def.RFTrees
	}
	if s.GBMTreeStep == 0 {
		s.GBMTreeStep = def.GBMTreeStep
	}
	if s.GBMShrinkage == 0 {
		s.GBMShrinkage = def.GBMShrinkage
	}
	if s.GBMMinObs == 0 {
		s.GBMMinObs = def.GBMMinObs
	}
	if s.NNetEpochs == 0 {
		s.NNetEpochs = def.NNetEpochs
	}
	if s.NNetLearnRate == 0 {
		s.NNetLearnRate = def.NNetLearnRate
	}
	if s.StepwiseMaxSteps == 0 {
		s.StepwiseMaxSteps = def.StepwiseMaxSteps
	}
	c.Base.fill(10, 1, 3)
	c.Ensemble.fill(10, 3, 1)
	c.Stack.fill(10, 3, 1)
	if c.LabelConcurrency == 0 {
		c.LabelConcurrency = 1
	}
	if c.Output == "" {
		c.Output = "output"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (s *StageConfig) fill(folds, repeats, tuneLength int) {
	if s.Folds == 0 {
		s.Folds = folds
	}
	if s.Repeats == 0 {
		s.Repeats = repeats
	}
	if s.TuneLength == 0 {
		s.TuneLength = tuneLength
	}
}

func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Points.Path = abs(c.Points.Path)
	c.Raster.BIL = abs(c.Raster.BIL)
	for i := range c.Raster.Layers {
		c.Raster.Layers[i].Path = abs(c.Raster.Layers[i].Path)
	}
	c.Output = abs(c.Output)
}

// Validate checks the settings that do not need the input files.
func (c *Config) Validate() error {
	if c.CalibrationFraction <= 0 || c.CalibrationFraction >= 1 {
		return errors.NewValidationError("calibration_fraction", "must be in (0, 1)", c.CalibrationFraction)
	}
	seen := make(map[string]bool, len(c.Labels))
	for _, l := range c.Labels {
		if l == "" || seen[l] {
			return errors.NewValidationError("labels", "must be unique and non-empty", c.Labels)
		}
		seen[l] = true
	}
	if c.Points.Path == "" {
		return errors.NewValidationError("points.path", "is required", "")
	}
	if (c.Raster.BIL == "") == (len(c.Raster.Layers) == 0) {
		return errors.NewValidationError("raster", "set exactly one of layers or bil", c.Raster.BIL)
	}
	if _, err := geo.ParseCRS(c.Raster.CRS); err != nil {
		return err
	}
	if len(c.Features.Names) == 0 {
		return errors.NewValidationError("features.features", "must name at least one layer", c.Features.Names)
	}
	for _, m := range c.Learners {
		if !stacking.KnownMethod(m) {
			return errors.NewValidationError("learners", "unknown method "+m, c.Learners)
		}
	}
	for name, s := range map[string]StageConfig{"base": c.Base, "ensemble": c.Ensemble, "stack": c.Stack} {
		if s.Folds < 2 || s.Repeats < 1 || s.TuneLength < 1 {
			return errors.NewValidationError(name, "folds >= 2, repeats >= 1 and tune_length >= 1 required", s)
		}
	}
	if c.LabelConcurrency < 1 {
		return errors.NewValidationError("label_concurrency", "must be positive", c.LabelConcurrency)
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// Schema is the CSV schema of the survey points.
func (c *Config) Schema() dataset.Schema {
	return dataset.Schema{
		IDColumn:  c.Points.IDColumn,
		LonColumn: c.Points.LonColumn,
		LatColumn: c.Points.LatColumn,
		Labels:    c.Labels,
	}
}

// LoadPoints reads the survey CSV.
func (c *Config) LoadPoints() ([]dataset.Point, error) {
	return dataset.ReadPointsCSV(c.Points.Path, c.Schema())
}

// LoadStack reads the feature stack and checks the base feature set against
// it.
func (c *Config) LoadStack() (*geo.Stack, error) {
	var (
		s   *geo.Stack
		err error
	)
	if c.Raster.BIL != "" {
		s, err = geo.ReadBIL(c.Raster.BIL)
		if err == nil && s.Def.CRS == "" {
			s.Def.CRS = c.Raster.CRS
		}
	} else {
		s, err = geo.ReadASCIIStack(c.Raster.Layers, c.Raster.CRS)
	}
	if err != nil {
		return nil, err
	}
	if err := c.Features.Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// PipelineConfig is the run-wide part of the pipeline settings.
func (c *Config) PipelineConfig() stacking.PipelineConfig {
	return stacking.PipelineConfig{
		Labels:              c.Labels,
		BaseFeatures:        c.Features,
		CalibrationFraction: c.CalibrationFraction,
		Seed:                c.Seed,
		LabelConcurrency:    c.LabelConcurrency,
	}
}

// StageOptions translates one stage's settings. extra is appended last.
func (c *Config) StageOptions(stage string, extra ...stacking.StageOption) []stacking.StageOption {
	s := c.Base
	switch stage {
	case log.StageEnsemble:
		s = c.Ensemble
	case log.StageStack:
		s = c.Stack
	}
	opts := []stacking.StageOption{
		stacking.WithFolds(s.Folds),
		stacking.WithRepeats(s.Repeats),
		stacking.WithTuneLength(s.TuneLength),
		stacking.WithWorkers(c.Workers),
		stacking.WithLearnerSettings(c.LearnerSettings),
	}
	if stage == log.StageBase {
		opts = append(opts, stacking.WithLearners(c.Learners...))
	}
	return append(opts, extra...)
}

// Marshal encodes the effective configuration, as recorded in the ledger.
func (c *Config) Marshal() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "marshal config")
	}
	return string(data), nil
}
