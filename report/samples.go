package report

import (
	"image/color"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/landstack/dataset"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Sample status values in the GeoJSON export.
const (
	StatusLinked      = "linked"
	StatusIncomplete  = "incomplete"
	StatusOutOfExtent = "out_of_extent"
)

// SamplesCollection builds one GeoJSON point per survey point with its
// labels, link status and, for linked points, the partition it fell into
// for every label.
func SamplesCollection(points []dataset.Point, link *dataset.LinkResult, parts map[string]*dataset.Partition) *geojson.FeatureCollection {
	status := make(map[string]string, len(points))
	for _, id := range link.Incomplete {
		status[id] = StatusIncomplete
	}
	for _, id := range link.OutOfExtent {
		status[id] = StatusOutOfExtent
	}
	set := make(map[string]map[string]string, len(parts))
	for label, p := range parts {
		m := make(map[string]string, len(p.Calibration)+len(p.Validation))
		for _, i := range p.Calibration {
			m[link.Samples[i].ID] = "calibration"
		}
		for _, i := range p.Validation {
			m[link.Samples[i].ID] = "validation"
		}
		set[label] = m
	}

	fc := geojson.NewFeatureCollection()
	for _, pt := range points {
		f := geojson.NewFeature(pt.Location)
		f.Properties["id"] = pt.ID
		st, dropped := status[pt.ID]
		if !dropped {
			st = StatusLinked
		}
		f.Properties["status"] = st
		for label, v := range pt.Labels {
			f.Properties[label] = v
			if m, ok := set[label]; ok && !dropped {
				if s, ok := m[pt.ID]; ok {
					f.Properties[label+"_set"] = s
				}
			}
		}
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes fc to path.
func WriteGeoJSON(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "marshal geojson")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create report directory")
	}
	return os.WriteFile(path, data, 0o644)
}

// PlotSamples draws the survey points on lon/lat axes: positives of label
// in red, negatives in grey, dropped points as crosses.
func PlotSamples(path, label string, points []dataset.Point, link *dataset.LinkResult) error {
	dropped := make(map[string]bool, len(link.Incomplete)+len(link.OutOfExtent))
	for _, id := range link.Incomplete {
		dropped[id] = true
	}
	for _, id := range link.OutOfExtent {
		dropped[id] = true
	}
	var pos, neg, out plotter.XYs
	for _, pt := range points {
		xy := plotter.XY{X: pt.Location.Lon(), Y: pt.Location.Lat()}
		switch {
		case dropped[pt.ID]:
			out = append(out, xy)
		case pt.Labels[label] == 1:
			pos = append(pos, xy)
		default:
			neg = append(neg, xy)
		}
	}

	p := plot.New()
	p.Title.Text = "Survey points (" + label + ")"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	layers := []struct {
		name  string
		pts   plotter.XYs
		color color.RGBA
		glyph draw.GlyphDrawer
	}{
		{label + " = 0", neg, color.RGBA{R: 150, G: 150, B: 150, A: 255}, draw.CircleGlyph{}},
		{label + " = 1", pos, color.RGBA{R: 220, G: 30, B: 30, A: 255}, draw.CircleGlyph{}},
		{"dropped", out, color.RGBA{A: 255}, draw.CrossGlyph{}},
	}
	for _, l := range layers {
		if len(l.pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(l.pts)
		if err != nil {
			return errors.Wrapf(err, "scatter %s", l.name)
		}
		s.Color = l.color
		s.Shape = l.glyph
		s.Radius = vg.Points(1.5)
		p.Add(s)
		p.Legend.Add(l.name, s)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create report directory")
	}
	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}
