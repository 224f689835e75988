// Package pipeline chains feature standardization with a classifier so that
// the fitted scaler always travels with the model it was fitted for.
package pipeline

import (
	"fmt"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/preprocessing"
	"gonum.org/v1/gonum/mat"
)

// KindPipeline is the registered model kind of Pipeline.
const KindPipeline = "pipeline"

// Pipeline centers and scales X, then fits or applies the wrapped estimator.
type Pipeline struct {
	Scaler    *preprocessing.StandardScaler
	Estimator model.Persistent
}

// New wraps est behind a fresh StandardScaler. A nil scaler is never used;
// pass scale=false to keep raw features (the scaler then becomes identity).
func New(est model.Persistent, scale bool) *Pipeline {
	return &Pipeline{
		Scaler:    preprocessing.NewStandardScaler(scale, scale),
		Estimator: est,
	}
}

// Kind implements model.Persistent.
func (p *Pipeline) Kind() string { return KindPipeline }

// Fit fits the scaler on X and the estimator on the scaled X.
func (p *Pipeline) Fit(X, y mat.Matrix) error {
	if p.Estimator == nil {
		return errors.NewValueError("Pipeline.Fit", "no estimator")
	}
	Xs, err := p.Scaler.FitTransform(X)
	if err != nil {
		return errors.Wrap(err, "pipeline scaler")
	}
	if err := p.Estimator.Fit(Xs, y); err != nil {
		return errors.Wrapf(err, "pipeline %s", p.Estimator.Kind())
	}
	return nil
}

// PredictProba scales X with the fitted statistics and delegates.
func (p *Pipeline) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !p.IsFitted() {
		return nil, errors.NewNotFittedError("Pipeline", "PredictProba")
	}
	Xs, err := p.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.Estimator.PredictProba(Xs)
}

// IsFitted reports whether both steps are fitted.
func (p *Pipeline) IsFitted() bool {
	return p.Estimator != nil && p.Scaler.IsFitted() && p.Estimator.IsFitted()
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("Pipeline(%s, %v)", p.Scaler, p.Estimator)
}

type pipelineSnapshot struct {
	Scaler        []byte
	EstimatorKind string
	Estimator     []byte
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *Pipeline) MarshalBinary() ([]byte, error) {
	scaler, err := p.Scaler.MarshalBinary()
	if err != nil {
		return nil, err
	}
	est, err := p.Estimator.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return model.GobMarshal(pipelineSnapshot{Scaler: scaler, EstimatorKind: p.Estimator.Kind(), Estimator: est})
}

// UnmarshalBinary restores both steps; the estimator kind must be registered.
func (p *Pipeline) UnmarshalBinary(data []byte) error {
	var snap pipelineSnapshot
	if err := model.GobUnmarshal(data, &snap); err != nil {
		return err
	}
	scaler := preprocessing.NewStandardScalerDefault()
	if err := scaler.UnmarshalBinary(snap.Scaler); err != nil {
		return err
	}
	est, err := model.New(snap.EstimatorKind)
	if err != nil {
		return err
	}
	if err := est.UnmarshalBinary(snap.Estimator); err != nil {
		return err
	}
	p.Scaler, p.Estimator = scaler, est
	return nil
}

func init() {
	model.Register(KindPipeline, func() model.Persistent { return &Pipeline{Scaler: preprocessing.NewStandardScalerDefault()} })
}
