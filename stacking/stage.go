// Package stacking implements the three model stages of the land-cover
// workflow (base-learner bank, per-label ensembler, multilabel stacker),
// the validator, and the pipeline that runs them in order for every label.
package stacking

import (
	"hash/fnv"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/dataset"
	"github.com/YuminosukeSato/landstack/geo"
)

// State is the progress of one label through the pipeline.
type State string

// Pipeline states, in order.
const (
	StatePending                State = "Pending"
	StateLinked                 State = "Linked"
	StateBaseModelsTrained      State = "BaseModelsTrained"
	StateBaseRastersProduced    State = "BaseRastersProduced"
	StateEnsembleModelTrained   State = "EnsembleModelTrained"
	StateEnsembleRasterProduced State = "EnsembleRasterProduced"
	StateStackModelTrained      State = "StackModelTrained"
	StateStackRasterProduced    State = "StackRasterProduced"
	StateValidated              State = "Validated"
	StateFailed                 State = "Failed"
)

// StageInput is everything a stage reads. Stages never modify it.
type StageInput struct {
	Label     string
	Stack     *geo.Stack // raster the stage's features are read from
	Features  dataset.FeatureSet
	Samples   []dataset.Sample
	Partition *dataset.Partition
	Seed      uint64
}

// FittedModel is one fitted classifier together with what it was fitted on.
type FittedModel struct {
	Learner    string
	Classifier model.Persistent
	Features   []string
	Params     map[string]float64
	CVAUC      float64
}

// StageOutput is what a stage produces: the fitted models and a probability
// raster with one band per model.
type StageOutput struct {
	Label  string
	Stage  string
	Seed   uint64
	Models []FittedModel
	Raster *geo.Stack
}

// Model returns the fitted model of learner, or nil.
func (o *StageOutput) Model(learner string) *FittedModel {
	for i := range o.Models {
		if o.Models[i].Learner == learner {
			return &o.Models[i]
		}
	}
	return nil
}

// DeriveSeed mixes a run seed with a stage and label name so that every
// stage of every label gets its own reproducible stream.
func DeriveSeed(base uint64, stage, label string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(stage))
	h.Write([]byte{0})
	h.Write([]byte(label))
	// splitmix64 finaliser
	z := base + h.Sum64() + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// BandName is the raster band holding a base learner's predictions.
func BandName(label, learner string) string { return label + "_" + learner }
