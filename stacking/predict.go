package stacking

import (
	"math"
	"sync"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/core/parallel"
	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// predictBlockRows bounds the rows predicted in one PredictProba call.
const predictBlockRows = 32

// ProgressFunc is told how many raster rows were just finished. It is called
// from several goroutines at once.
type ProgressFunc func(rows int)

// PredictRaster applies clf to every cell of in and returns P(y=1) per cell.
// Cells where any input band is undefined stay NaN. Rows are split across
// CPU cores.
func PredictRaster(clf model.Classifier, in *geo.Stack, progress ProgressFunc) ([]float64, error) {
	def := in.Def
	out := geo.NaNBand(def)
	nb := in.NBands()
	if nb == 0 {
		return nil, errors.NewValueError("PredictRaster", "input stack has no bands")
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	parallel.Parallelize(def.NRows, func(start, end int) {
		for r0 := start; r0 < end; r0 += predictBlockRows {
			r1 := min(r0+predictBlockRows, end)
			cells := make([]int, 0, (r1-r0)*def.NCols)
			for i := r0 * def.NCols; i < r1*def.NCols; i++ {
				if defined(in, i) {
					cells = append(cells, i)
				}
			}
			if len(cells) > 0 {
				X := mat.NewDense(len(cells), nb, nil)
				for k, i := range cells {
					for b := 0; b < nb; b++ {
						X.Set(k, b, in.Bands[b][i])
					}
				}
				err := errors.SafeExecute("PredictRaster", func() error {
					proba, err := clf.PredictProba(X)
					if err != nil {
						return err
					}
					for k, p := range model.PositiveColumn(proba) {
						out[cells[k]] = p
					}
					return nil
				})
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
			if progress != nil {
				progress(r1 - r0)
			}
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func defined(s *geo.Stack, i int) bool {
	for _, band := range s.Bands {
		v := band[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
