package dataset

import (
	"math"

	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// Sample is a linked survey point: its location in both CRSs, its labels and
// one value per feature of the linking FeatureSet. Samples are not modified
// after Link returns.
type Sample struct {
	ID        string
	Location  orb.Point // lon, lat
	Projected orb.Point // raster CRS
	Labels    map[string]int
	Features  []float64
}

// FeatureSet is a named, ordered list of raster layers a stage consumes.
type FeatureSet struct {
	Name  string   `yaml:"name"`
	Names []string `yaml:"features"`
}

// Validate fails with errors.FeatureSetError when any feature is not a layer
// of s.
func (fs FeatureSet) Validate(s *geo.Stack) error {
	if len(fs.Names) == 0 {
		return errors.NewValidationError("features", "feature set "+fs.Name+" is empty", fs.Names)
	}
	seen := make(map[string]bool, len(fs.Names))
	for _, n := range fs.Names {
		if seen[n] {
			return errors.NewValidationError("features", "duplicate feature in "+fs.Name, n)
		}
		seen[n] = true
	}
	if missing := s.Missing(fs.Names); len(missing) > 0 {
		return errors.NewFeatureSetError(fs.Name, missing)
	}
	return nil
}

// Matrix stacks the feature vectors of samples[idx] into an n×p matrix.
// A nil idx selects every sample.
func Matrix(samples []Sample, idx []int) *mat.Dense {
	if idx == nil {
		idx = make([]int, len(samples))
		for i := range idx {
			idx[i] = i
		}
	}
	if len(idx) == 0 {
		return nil
	}
	p := len(samples[idx[0]].Features)
	out := mat.NewDense(len(idx), p, nil)
	for r, i := range idx {
		out.SetRow(r, samples[i].Features)
	}
	return out
}

// Targets returns the 0/1 values of label for samples[idx].
func Targets(samples []Sample, idx []int, label string) []float64 {
	out := make([]float64, len(idx))
	for r, i := range idx {
		out[r] = float64(samples[i].Labels[label])
	}
	return out
}

// SampleStack reads every layer of s at the projected location of
// samples[idx]. It is used by the later stages to build features from the
// probability rasters of the stage before. Undefined values are an error:
// the rasters were predicted from the same layers the samples were linked on.
func SampleStack(s *geo.Stack, samples []Sample, idx []int) (*mat.Dense, error) {
	if len(idx) == 0 {
		return nil, errors.ErrEmptyData
	}
	out := mat.NewDense(len(idx), s.NBands(), nil)
	for r, i := range idx {
		smp := samples[i]
		vals, ok := s.Sample(smp.Projected[0], smp.Projected[1])
		if !ok {
			return nil, errors.NewExtentError("SampleStack", 1, []string{smp.ID})
		}
		for b, v := range vals {
			if math.IsNaN(v) {
				return nil, errors.NewValueError("SampleStack", "undefined "+s.Names[b]+" at sample "+smp.ID)
			}
		}
		out.SetRow(r, vals)
	}
	return out, nil
}
