package dataset

import (
	"context"
	"math"

	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
)

// maxReported caps the point ids carried by an ExtentError.
const maxReported = 10

// LinkResult is the output of Link. Samples keep the input order; the other
// fields list the ids of the points that were dropped and why.
type LinkResult struct {
	Samples      []Sample
	FeatureNames []string
	Incomplete   []string // at least one feature undefined
	OutOfExtent  []string // outside the raster
}

// Linker samples a feature stack at survey points.
type Linker struct {
	stack            *geo.Stack
	features         FeatureSet
	projector        *geo.Projector
	allowOutOfExtent bool
	logger           log.Logger
}

// LinkerOption configures a Linker.
type LinkerOption func(*Linker)

// WithAllowOutOfExtent drops points outside the raster with a warning
// instead of failing.
func WithAllowOutOfExtent(allow bool) LinkerOption {
	return func(l *Linker) { l.allowOutOfExtent = allow }
}

// WithLinkerLogger overrides the global logger.
func WithLinkerLogger(logger log.Logger) LinkerOption {
	return func(l *Linker) { l.logger = logger }
}

// NewLinker validates features against stack and builds a projector into the
// stack's CRS.
func NewLinker(stack *geo.Stack, features FeatureSet, opts ...LinkerOption) (*Linker, error) {
	if err := features.Validate(stack); err != nil {
		return nil, err
	}
	crs := stack.Def.CRS
	if crs == "" {
		crs = "EPSG:4326"
	}
	proj, err := geo.NewProjector(crs)
	if err != nil {
		return nil, err
	}
	l := &Linker{stack: stack, features: features, projector: proj}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.GetLogger()
	}
	l.logger = l.logger.With(log.StageKey, log.StageLink)
	return l, nil
}

// Link projects every point, reads each feature at the nearest cell and
// returns the complete samples. Points with an undefined feature are dropped,
// never imputed.
func (l *Linker) Link(ctx context.Context, points []Point) (*LinkResult, error) {
	sel, err := l.stack.Select(l.features.Name, l.features.Names)
	if err != nil {
		return nil, err
	}
	res := &LinkResult{FeatureNames: append([]string(nil), l.features.Names...)}

	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		xy, err := l.projector.Project(p.Location)
		if err != nil {
			return nil, errors.Wrapf(err, "point %s", p.ID)
		}
		vals, ok := sel.Sample(xy[0], xy[1])
		if !ok {
			res.OutOfExtent = append(res.OutOfExtent, p.ID)
			continue
		}
		if !complete(vals) {
			res.Incomplete = append(res.Incomplete, p.ID)
			continue
		}
		res.Samples = append(res.Samples, Sample{
			ID:        p.ID,
			Location:  p.Location,
			Projected: xy,
			Labels:    p.Labels,
			Features:  vals,
		})
	}

	if n := len(res.OutOfExtent); n > 0 {
		if !l.allowOutOfExtent {
			return nil, errors.NewExtentError("Link", n, head(res.OutOfExtent, maxReported))
		}
		l.logger.Warn("points outside raster extent dropped", log.DroppedKey, n, "points", head(res.OutOfExtent, maxReported))
	}
	if n := len(res.Incomplete); n > 0 {
		l.logger.Info("points with undefined features dropped", log.DroppedKey, n)
	}
	l.logger.Info("points linked",
		log.SamplesKey, len(res.Samples),
		log.FeaturesKey, len(res.FeatureNames),
	)
	if len(res.Samples) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "no complete samples after linking")
	}
	return res, nil
}

// Projector exposes the projector used for linking.
func (l *Linker) Projector() *geo.Projector { return l.projector }

func complete(vals []float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func head(ids []string, n int) []string {
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}
