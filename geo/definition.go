// Package geo holds the raster side of the workflow: grid definitions,
// co-registered layer stacks, ESRI ASCII / BIL readers and writers, and the
// point projector used by the data linker.
package geo

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/paulmach/orb"
)

// DefaultNoData is written for undefined cells when a definition has none.
const DefaultNoData = -9999.

// Definition describes a north-up regular grid. Row 0 is the northern-most
// row; (XLL, YLL) is the lower-left corner of the lower-left cell.
type Definition struct {
	NRows    int     `yaml:"nrows"`
	NCols    int     `yaml:"ncols"`
	XLL      float64 `yaml:"xll"`
	YLL      float64 `yaml:"yll"`
	CellSize float64 `yaml:"cellsize"`
	NoData   float64 `yaml:"nodata"`
	CRS      string  `yaml:"crs"`
}

// Validate checks the grid shape.
func (d Definition) Validate() error {
	if d.NRows <= 0 || d.NCols <= 0 {
		return errors.NewValidationError("shape", "nrows and ncols must be positive", fmt.Sprintf("%dx%d", d.NRows, d.NCols))
	}
	if !(d.CellSize > 0) {
		return errors.NewValidationError("cellsize", "must be positive", d.CellSize)
	}
	return nil
}

// NCells is NRows*NCols.
func (d Definition) NCells() int { return d.NRows * d.NCols }

// Bound is the grid extent in the grid's CRS.
func (d Definition) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{d.XLL, d.YLL},
		Max: orb.Point{d.XLL + float64(d.NCols)*d.CellSize, d.YLL + float64(d.NRows)*d.CellSize},
	}
}

// CellAt returns the cell containing (x, y). Points on the outer edge belong
// to the last row/column; anything outside the extent reports ok=false.
func (d Definition) CellAt(x, y float64) (row, col int, ok bool) {
	b := d.Bound()
	if math.IsNaN(x) || math.IsNaN(y) || !b.Contains(orb.Point{x, y}) {
		return 0, 0, false
	}
	col = int(math.Floor((x - d.XLL) / d.CellSize))
	row = int(math.Floor((b.Max[1] - y) / d.CellSize))
	if col >= d.NCols {
		col = d.NCols - 1
	}
	if row >= d.NRows {
		row = d.NRows - 1
	}
	return row, col, true
}

// CellCenter returns the coordinates of the centre of (row, col).
func (d Definition) CellCenter(row, col int) (x, y float64) {
	x = d.XLL + (float64(col)+0.5)*d.CellSize
	y = d.YLL + (float64(d.NRows-row)-0.5)*d.CellSize
	return x, y
}

// Index flattens (row, col) in row-major order.
func (d Definition) Index(row, col int) int { return row*d.NCols + col }

// SameGrid reports whether two definitions describe the same cells.
// Nodata may differ; it is normalised to NaN on read.
func (d Definition) SameGrid(o Definition) bool {
	const eps = 1e-6
	return d.NRows == o.NRows && d.NCols == o.NCols &&
		math.Abs(d.XLL-o.XLL) < eps && math.Abs(d.YLL-o.YLL) < eps &&
		math.Abs(d.CellSize-o.CellSize) < eps &&
		(d.CRS == "" || o.CRS == "" || d.CRS == o.CRS)
}

// IsNoData reports whether v marks an undefined cell.
func (d Definition) IsNoData(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v == d.NoData
}

func (d Definition) String() string {
	return fmt.Sprintf("Definition(%dx%d, ll=(%g,%g), cell=%g, crs=%s)", d.NRows, d.NCols, d.XLL, d.YLL, d.CellSize, d.CRS)
}
