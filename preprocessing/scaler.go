// Package preprocessing provides feature transforms fitted on calibration
// data and replayed on raster cells.
package preprocessing

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each feature on its mean and divides by its sample
// standard deviation (the "center", "scale" preprocessing of a caret train call).
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64
	// Scale は各特徴量の標準偏差
	Scale []float64

	WithMean bool
	WithStd  bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XScaled, err := scaler.FitTransform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit computes per-feature mean and standard deviation. Constant columns get
// a scale of 1 so that Transform never divides by zero.
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			col[i] = X.At(i, j)
		}
		mean, std := stat.MeanStdDev(col, nil)
		if r == 1 {
			std = 0
		}
		if err := errors.CheckScalar("StandardScaler.Fit", mean, 0); err != nil {
			return err
		}
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1
		if s.WithStd && !math.IsNaN(std) && std > 1e-8 {
			s.Scale[j] = std
		}
	}

	s.state.SetFitted(c, r)
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.CheckPredict("StandardScaler", colsOf(X)); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// FitTransform はFitとTransformを同時に実行する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// IsFitted reports whether Fit has completed.
func (s *StandardScaler) IsFitted() bool {
	return s.state.IsFitted()
}

type scalerSnapshot struct {
	Mean     []float64
	Scale    []float64
	WithMean bool
	WithStd  bool
	State    model.ModelState
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *StandardScaler) MarshalBinary() ([]byte, error) {
	return model.GobMarshal(scalerSnapshot{
		Mean: s.Mean, Scale: s.Scale,
		WithMean: s.WithMean, WithStd: s.WithStd,
		State: s.state.GetState(),
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *StandardScaler) UnmarshalBinary(data []byte) error {
	var snap scalerSnapshot
	if err := model.GobUnmarshal(data, &snap); err != nil {
		return err
	}
	if s.state == nil {
		s.state = model.NewStateManager()
	}
	s.Mean, s.Scale = snap.Mean, snap.Scale
	s.WithMean, s.WithStd = snap.WithMean, snap.WithStd
	s.state.SetState(snap.State)
	return nil
}

func (s *StandardScaler) String() string {
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
}

func colsOf(X mat.Matrix) int {
	_, c := X.Dims()
	return c
}
