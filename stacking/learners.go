package stacking

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/sklearn/ensemble"
	"github.com/YuminosukeSato/landstack/sklearn/linear_model"
	"github.com/YuminosukeSato/landstack/sklearn/model_selection"
	"github.com/YuminosukeSato/landstack/sklearn/neural_network"
	"github.com/YuminosukeSato/landstack/sklearn/pipeline"
)

// Learner method names, as used in configuration and artifact paths.
const (
	MethodGLMStepAIC = "glmStepAIC"
	MethodRF         = "rf"
	MethodGBM        = "gbm"
	MethodNNet       = "nnet"
)

// DefaultLearners is the base-learner bank used when none is configured.
var DefaultLearners = []string{MethodGLMStepAIC, MethodRF, MethodGBM, MethodNNet}

// LearnerSettings holds the fixed (untuned) settings of each family.
type LearnerSettings struct {
	RFTrees          int     `yaml:"rf_trees"`
	GBMTreeStep      int     `yaml:"gbm_tree_step"` // candidate n.trees are multiples of this
	GBMShrinkage     float64 `yaml:"gbm_shrinkage"`
	GBMMinObs        int     `yaml:"gbm_min_obs"`
	NNetEpochs       int     `yaml:"nnet_epochs"`
	NNetLearnRate    float64 `yaml:"nnet_learning_rate"`
	StepwiseMaxSteps int     `yaml:"stepwise_max_steps"`
}

// DefaultLearnerSettings mirrors the usual caret defaults.
func DefaultLearnerSettings() LearnerSettings {
	return LearnerSettings{
		RFTrees:          500,
		GBMTreeStep:      50,
		GBMShrinkage:     0.1,
		GBMMinObs:        10,
		NNetEpochs:       100,
		NNetLearnRate:    0.01,
		StepwiseMaxSteps: 1000,
	}
}

// KnownMethod reports whether name is a supported learner family.
func KnownMethod(name string) bool {
	switch name {
	case MethodGLMStepAIC, MethodRF, MethodGBM, MethodNNet:
		return true
	}
	return false
}

// Candidates builds the tuning grid of one learner family for p features.
// Every candidate centers and scales its inputs.
func Candidates(method string, p, tuneLength int, seed uint64, set LearnerSettings) ([]model_selection.Candidate, error) {
	if p <= 0 {
		return nil, errors.NewValidationError("features", "must be positive", p)
	}
	if tuneLength <= 0 {
		tuneLength = 1
	}
	wrap := func(est model.Persistent) model.Classifier { return pipeline.New(est, true) }

	var out []model_selection.Candidate
	switch method {
	case MethodGLMStepAIC:
		out = append(out, model_selection.Candidate{
			Params: map[string]float64{},
			Factory: func() model.Classifier {
				return wrap(linear_model.NewStepwiseLogistic(linear_model.WithMaxSteps(set.StepwiseMaxSteps)))
			},
		})

	case MethodRF:
		for _, m := range mtryGrid(p, tuneLength) {
			out = append(out, model_selection.Candidate{
				Params: map[string]float64{"mtry": float64(m)},
				Factory: func() model.Classifier {
					return wrap(ensemble.NewRandomForest(ensemble.WithNTrees(set.RFTrees), ensemble.WithMTry(m)))
				},
			})
		}

	case MethodGBM:
		for depth := 1; depth <= tuneLength; depth++ {
			for k := 1; k <= tuneLength; k++ {
				depth, trees := depth, k*set.GBMTreeStep
				out = append(out, model_selection.Candidate{
					Params: map[string]float64{"interaction.depth": float64(depth), "n.trees": float64(trees)},
					Factory: func() model.Classifier {
						return wrap(ensemble.NewGradientBoosting(
							ensemble.WithInteractionDepth(depth),
							ensemble.WithBoostingRounds(trees),
							ensemble.WithShrinkage(set.GBMShrinkage),
							ensemble.WithMinObsInNode(set.GBMMinObs),
							ensemble.WithBoostingSeed(int64(seed)),
						))
					},
				})
			}
		}

	case MethodNNet:
		for k := 1; k <= tuneLength; k++ {
			size := 2*k - 1
			out = append(out, model_selection.Candidate{
				Params: map[string]float64{"size": float64(size)},
				Factory: func() model.Classifier {
					return wrap(neural_network.NewMLPClassifier(
						neural_network.WithHiddenSize(size),
						neural_network.WithEpochs(set.NNetEpochs),
						neural_network.WithLearningRate(set.NNetLearnRate),
					))
				},
			})
		}

	default:
		return nil, errors.NewValidationError("learner", fmt.Sprintf("unknown method, expected one of %v", DefaultLearners), method)
	}
	return out, nil
}

// mtryGrid spaces tuneLength values evenly over [2, p], or floor(sqrt(p))
// for a single candidate.
func mtryGrid(p, tuneLength int) []int {
	if tuneLength == 1 || p < 2 {
		return []int{max(1, int(math.Floor(math.Sqrt(float64(p)))))}
	}
	var out []int
	seen := map[int]bool{}
	for k := 0; k < tuneLength; k++ {
		v := 2 + int(math.Floor(float64(k)*float64(p-2)/float64(tuneLength-1)))
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
