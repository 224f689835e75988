// Package report renders run results: ROC plots, the sample-location map,
// the GeoJSON sample export and a plain-text AUC table.
package report

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/YuminosukeSato/landstack/stacking"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var palette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 255},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 255},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 255},
	{R: 0xd6, G: 0x27, B: 0x28, A: 255},
	{R: 0x94, G: 0x67, B: 0xbd, A: 255},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 255},
}

// PlotROC draws the ROC curves of every band validated for label into a PNG
// at path. The stacked curve is drawn thicker.
func PlotROC(path, label string, results []stacking.ValidationResult) error {
	p := plot.New()
	p.Title.Text = "ROC " + label
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Legend.Top = false
	p.Legend.Left = false

	diag, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return errors.Wrap(err, "diagonal")
	}
	diag.Color = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	diag.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(diag)

	k := 0
	for _, r := range results {
		if r.Label != label {
			continue
		}
		pts := make(plotter.XYs, len(r.FPR))
		for i := range r.FPR {
			pts[i] = plotter.XY{X: r.FPR[i], Y: r.TPR[i]}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "curve %s", r.Band)
		}
		l.Color = palette[k%len(palette)]
		l.Width = vg.Points(1)
		if r.Stage == log.StageStack {
			l.Width = vg.Points(2.5)
		}
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("%s %s (AUC %.3f)", r.Stage, r.Band, r.AUC), l)
		k++
	}
	if k == 0 {
		return errors.NewValueError("PlotROC", "no validation results for "+label)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create report directory")
	}
	if err := p.Save(5*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}

// WriteAUCTable prints one row per validated band.
func WriteAUCTable(w io.Writer, results []stacking.ValidationResult) error {
	sorted := append([]stacking.ValidationResult(nil), results...)
	order := map[string]int{log.StageBase: 0, log.StageEnsemble: 1, log.StageStack: 2}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Label != sorted[j].Label {
			return sorted[i].Label < sorted[j].Label
		}
		return order[sorted[i].Stage] < order[sorted[j].Stage]
	})
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tSTAGE\tBAND\tAUC\tLOGLOSS\tN\tPOSITIVES")
	for _, r := range sorted {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%.4f\t%d\t%d\n", r.Label, r.Stage, r.Band, r.AUC, r.LogLoss, r.N, r.Positives)
	}
	return tw.Flush()
}
