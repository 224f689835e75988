// Package store lays out the artifacts of a run on disk and keeps the run
// ledger.
package store

import (
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/YuminosukeSato/landstack/stacking"
)

// Directory names under the store root.
const (
	BaseDir    = "base_learner"
	ResultsDir = "results"
)

// ArtifactStore maps (stage, label, learner) onto files:
//
//	base_learner/<label>/<learner>.model
//	base_learner/<label>.bil (+ .hdr, .yaml)
//	results/<label>_ensemble.model, results/ensemble.bil
//	results/<label>_stack.model,    results/stack.bil
//	results/roc_<label>.png, results/samples.png, results/samples.geojson
//	results/ledger.db
type ArtifactStore struct {
	Root string
}

// NewArtifactStore creates the directory tree under root.
func NewArtifactStore(root string) (*ArtifactStore, error) {
	for _, d := range []string{BaseDir, ResultsDir} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", d)
		}
	}
	return &ArtifactStore{Root: root}, nil
}

// ModelPath is the envelope file of one fitted model.
func (s *ArtifactStore) ModelPath(stage, label, learner string) string {
	if stage == log.StageBase {
		return filepath.Join(s.Root, BaseDir, label, learner+".model")
	}
	return filepath.Join(s.Root, ResultsDir, label+"_"+stage+".model")
}

// RasterBase is the BIL path without extension. Base rasters are per label;
// ensemble and stack rasters hold every label.
func (s *ArtifactStore) RasterBase(stage, label string) string {
	if stage == log.StageBase {
		return filepath.Join(s.Root, BaseDir, label)
	}
	return filepath.Join(s.Root, ResultsDir, stage)
}

// ROCPath is the ROC plot of label.
func (s *ArtifactStore) ROCPath(label string) string {
	return filepath.Join(s.Root, ResultsDir, "roc_"+label+".png")
}

// SamplesPNGPath is the static sample-location map.
func (s *ArtifactStore) SamplesPNGPath() string {
	return filepath.Join(s.Root, ResultsDir, "samples.png")
}

// SamplesGeoJSONPath is the sample export.
func (s *ArtifactStore) SamplesGeoJSONPath() string {
	return filepath.Join(s.Root, ResultsDir, "samples.geojson")
}

// LedgerPath is the SQLite run ledger.
func (s *ArtifactStore) LedgerPath() string {
	return filepath.Join(s.Root, ResultsDir, "ledger.db")
}

// SaveModel implements stacking.ArtifactSink.
func (s *ArtifactStore) SaveModel(stage, label string, seed uint64, m stacking.FittedModel) error {
	meta := model.Envelope{
		Label:    label,
		Stage:    stage,
		Learner:  m.Learner,
		Features: m.Features,
		Seed:     int64(seed),
		CVAUC:    m.CVAUC,
	}
	return model.SaveModel(s.ModelPath(stage, label, m.Learner), meta, m.Classifier)
}

// SaveRaster implements stacking.ArtifactSink.
func (s *ArtifactStore) SaveRaster(stage, label string, r *geo.Stack) error {
	return geo.WriteBIL(s.RasterBase(stage, label), r)
}

// LoadModel reads a persisted model back.
func (s *ArtifactStore) LoadModel(stage, label, learner string) (model.Envelope, model.Persistent, error) {
	return model.LoadModel(s.ModelPath(stage, label, learner))
}

// LoadRaster reads a persisted raster back.
func (s *ArtifactStore) LoadRaster(stage, label string) (*geo.Stack, error) {
	return geo.ReadBIL(s.RasterBase(stage, label))
}

var _ stacking.ArtifactSink = (*ArtifactStore)(nil)
