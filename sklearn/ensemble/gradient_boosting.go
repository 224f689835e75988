package ensemble

import (
	"fmt"
	"math/rand"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// KindGradientBoosting is the registered model kind of GradientBoosting.
const KindGradientBoosting = "gbm"

// TrainingParams holds the boosting hyperparameters, named after gbm's
// arguments where one exists.
type TrainingParams struct {
	NTrees           int     // n.trees
	InteractionDepth int     // interaction.depth, used as maximum tree depth
	Shrinkage        float64 // shrinkage (learning rate)
	MinObsInNode     int     // n.minobsinnode
	BagFraction      float64 // bag.fraction; 1 disables subsampling
	Lambda           float64 // L2 penalty on leaf values
	Seed             int64
}

// DefaultTrainingParams mirrors gbm's defaults for the bernoulli distribution.
func DefaultTrainingParams() TrainingParams {
	return TrainingParams{
		NTrees:           100,
		InteractionDepth: 1,
		Shrinkage:        0.1,
		MinObsInNode:     10,
		BagFraction:      0.5,
		Lambda:           0,
		Seed:             1,
	}
}

// GradientBoosting is a binary gradient boosting machine on regression trees
// with Newton leaf values.
type GradientBoosting struct {
	state  *model.StateManager
	params TrainingParams

	initScore  float64
	trees      []Tree
	importance []float64
	trainLoss  []float64
}

// GradientBoostingOption configures a GradientBoosting.
type GradientBoostingOption func(*TrainingParams)

// WithBoostingRounds sets n.trees.
func WithBoostingRounds(n int) GradientBoostingOption {
	return func(p *TrainingParams) { p.NTrees = n }
}

// WithInteractionDepth sets the maximum tree depth.
func WithInteractionDepth(d int) GradientBoostingOption {
	return func(p *TrainingParams) { p.InteractionDepth = d }
}

// WithShrinkage sets the learning rate.
func WithShrinkage(s float64) GradientBoostingOption {
	return func(p *TrainingParams) { p.Shrinkage = s }
}

// WithMinObsInNode sets the minimum leaf size.
func WithMinObsInNode(n int) GradientBoostingOption {
	return func(p *TrainingParams) { p.MinObsInNode = n }
}

// WithBagFraction sets the per-round subsample fraction.
func WithBagFraction(f float64) GradientBoostingOption {
	return func(p *TrainingParams) { p.BagFraction = f }
}

// WithBoostingSeed seeds the subsampling.
func WithBoostingSeed(seed int64) GradientBoostingOption {
	return func(p *TrainingParams) { p.Seed = seed }
}

// NewGradientBoosting creates an unfitted booster.
func NewGradientBoosting(opts ...GradientBoostingOption) *GradientBoosting {
	params := DefaultTrainingParams()
	for _, opt := range opts {
		opt(&params)
	}
	return &GradientBoosting{state: model.NewStateManager(), params: params}
}

// Kind implements model.Persistent.
func (gb *GradientBoosting) Kind() string { return KindGradientBoosting }

// Params returns the hyperparameters.
func (gb *GradientBoosting) Params() TrainingParams { return gb.params }

func (gb *GradientBoosting) validate() error {
	p := gb.params
	switch {
	case p.NTrees <= 0:
		return errors.NewValidationError("n.trees", "must be positive", p.NTrees)
	case p.InteractionDepth <= 0:
		return errors.NewValidationError("interaction.depth", "must be positive", p.InteractionDepth)
	case p.Shrinkage <= 0 || p.Shrinkage > 1:
		return errors.NewValidationError("shrinkage", "must be in (0, 1]", p.Shrinkage)
	case p.BagFraction <= 0 || p.BagFraction > 1:
		return errors.NewValidationError("bag.fraction", "must be in (0, 1]", p.BagFraction)
	case p.MinObsInNode <= 0:
		return errors.NewValidationError("n.minobsinnode", "must be positive", p.MinObsInNode)
	}
	return nil
}

// Fit boosts NTrees trees against the binary log-loss.
func (gb *GradientBoosting) Fit(X, y mat.Matrix) error {
	if err := gb.validate(); err != nil {
		return err
	}
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewModelError("GradientBoosting.Fit", "empty data", errors.ErrEmptyData)
	}
	classes, err := intTargets("GradientBoosting.Fit", y, n)
	if err != nil {
		return err
	}
	targets := make([]float64, n)
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		targets[i] = float64(classes[i])
		rows[i] = mat.Row(nil, i, X)
	}

	obj := NewBinaryLogLoss()
	rng := rand.New(rand.NewSource(gb.params.Seed))
	gb.initScore = obj.GetInitScore(targets)
	gb.trees = make([]Tree, 0, gb.params.NTrees)
	gb.importance = make([]float64, p)
	gb.trainLoss = make([]float64, 0, gb.params.NTrees)

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = gb.initScore
	}
	builder := &treeBuilder{
		X:          rows,
		gradients:  make([]float64, n),
		hessians:   make([]float64, n),
		maxDepth:   gb.params.InteractionDepth,
		minLeaf:    gb.params.MinObsInNode,
		lambda:     gb.params.Lambda,
		importance: gb.importance,
	}

	bagSize := int(gb.params.BagFraction * float64(n))
	if bagSize < 2*gb.params.MinObsInNode {
		bagSize = n
	}
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for iter := 0; iter < gb.params.NTrees; iter++ {
		for i := 0; i < n; i++ {
			builder.gradients[i] = obj.CalculateGradient(scores[i], targets[i])
			builder.hessians[i] = obj.CalculateHessian(scores[i], targets[i])
		}

		bag := all
		if bagSize < n {
			rng.Shuffle(len(all), func(a, b int) { all[a], all[b] = all[b], all[a] })
			bag = append([]int(nil), all[:bagSize]...)
		}
		tree := builder.build(bag)
		for k := range tree.Nodes {
			tree.Nodes[k].Value *= gb.params.Shrinkage
		}
		gb.trees = append(gb.trees, tree)

		var loss float64
		for i := 0; i < n; i++ {
			scores[i] += tree.Predict(rows[i])
			loss += obj.CalculateLoss(scores[i], targets[i])
		}
		if err := errors.CheckScalar("GradientBoosting.Fit", loss, iter); err != nil {
			return err
		}
		gb.trainLoss = append(gb.trainLoss, loss/float64(n))
	}

	gb.state.SetFitted(p, n)
	return nil
}

// DecisionFunction returns the raw log-odds score per row.
func (gb *GradientBoosting) DecisionFunction(X mat.Matrix) ([]float64, error) {
	n, p := X.Dims()
	if err := gb.state.CheckPredict("GradientBoosting", p); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		s := gb.initScore
		for t := range gb.trees {
			s += gb.trees[t].Predict(row)
		}
		out[i] = s
	}
	return out, nil
}

// PredictProba applies the logistic link to DecisionFunction.
func (gb *GradientBoosting) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	z, err := gb.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	for i := range z {
		z[i] = errors.Sigmoid(z[i])
	}
	return model.BinaryProba(z), nil
}

// IsFitted reports whether Fit has completed.
func (gb *GradientBoosting) IsFitted() bool { return gb.state.IsFitted() }

// FeatureImportance returns the total split gain per feature.
func (gb *GradientBoosting) FeatureImportance() []float64 { return gb.importance }

// TrainLoss returns the mean training log-loss after each round.
func (gb *GradientBoosting) TrainLoss() []float64 { return gb.trainLoss }

func (gb *GradientBoosting) String() string {
	return fmt.Sprintf("GradientBoosting(n.trees=%d, depth=%d, shrinkage=%g)",
		gb.params.NTrees, gb.params.InteractionDepth, gb.params.Shrinkage)
}

type boostingSnapshot struct {
	Params     TrainingParams
	InitScore  float64
	Trees      []Tree
	Importance []float64
	State      model.ModelState
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (gb *GradientBoosting) MarshalBinary() ([]byte, error) {
	return model.GobMarshal(boostingSnapshot{
		Params: gb.params, InitScore: gb.initScore, Trees: gb.trees,
		Importance: gb.importance, State: gb.state.GetState(),
	})
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (gb *GradientBoosting) UnmarshalBinary(data []byte) error {
	var s boostingSnapshot
	if err := model.GobUnmarshal(data, &s); err != nil {
		return err
	}
	if gb.state == nil {
		gb.state = model.NewStateManager()
	}
	gb.params, gb.initScore, gb.trees, gb.importance = s.Params, s.InitScore, s.Trees, s.Importance
	gb.state.SetState(s.State)
	return nil
}

func init() {
	model.Register(KindGradientBoosting, func() model.Persistent { return NewGradientBoosting() })
}
