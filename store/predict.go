package store

import (
	"fmt"

	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/YuminosukeSato/landstack/stacking"
)

// PredictLabel rebuilds the raster of label at stage from the persisted
// models, without refitting. input must hold the bands the models were
// fitted on: the feature stack for the base stage, the label's base raster
// for the ensemble and the merged ensemble raster for the stack. learners
// only matters for the base stage.
func (s *ArtifactStore) PredictLabel(stage, label string, learners []string, input *geo.Stack, progress stacking.ProgressFunc) (*geo.Stack, error) {
	if input == nil {
		return nil, errors.NewValueError("PredictLabel", "no input raster for "+label)
	}
	if stage != log.StageBase {
		learners = []string{""}
	}
	out := geo.NewStack(input.Def)
	for _, learner := range learners {
		env, clf, err := s.LoadModel(stage, label, learner)
		if err != nil {
			return nil, errors.Wrapf(err, "load %s model of %s", stage, label)
		}
		if env.Stage != stage || env.Label != label {
			return nil, errors.NewValueError("PredictLabel",
				fmt.Sprintf("model file holds %s/%s, expected %s/%s", env.Stage, env.Label, stage, label))
		}
		sel, err := input.Select(stage, env.Features)
		if err != nil {
			return nil, err
		}
		band := label
		if stage == log.StageBase {
			band = stacking.BandName(label, env.Learner)
		}
		probs, err := stacking.PredictRaster(clf, sel, progress)
		if err != nil {
			return nil, errors.Wrapf(err, "predict %s", band)
		}
		if err := out.AddBand(band, probs); err != nil {
			return nil, err
		}
	}
	return out, nil
}
