package ensemble

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/metrics"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	randomforest "github.com/malaschitz/randomForest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// threshold data: y = 1 iff x0 > 0.5, with two uniform noise columns.
func thresholdData(seed int64, n int) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			X.Set(i, j, rng.Float64())
		}
		if X.At(i, 0) > 0.5 {
			y.SetVec(i, 1)
		}
	}
	return X, y
}

func aucOf(t *testing.T, c model.Classifier, X mat.Matrix, y *mat.VecDense) float64 {
	t.Helper()
	proba, err := c.PredictProba(X)
	require.NoError(t, err)
	auc, err := metrics.AUCSlice(y.RawVector().Data, model.PositiveColumn(proba))
	require.NoError(t, err)
	return auc
}

func TestRandomForest_LearnsThreshold(t *testing.T) {
	X, y := thresholdData(1, 400)
	rf := NewRandomForest(WithNTrees(50), WithMTry(2))
	require.NoError(t, rf.Fit(X, y))

	Xt, yt := thresholdData(2, 200)
	assert.Greater(t, aucOf(t, rf, Xt, yt), 0.95)

	proba, err := rf.PredictProba(Xt)
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, 200, r)
	assert.Equal(t, 2, c)
}

func TestRandomForest_RoundTrip(t *testing.T) {
	X, y := thresholdData(3, 200)
	rf := NewRandomForest(WithNTrees(20))
	require.NoError(t, rf.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, model.Encode(&buf, model.Envelope{Learner: "rf"}, rf))
	_, restored, err := model.Decode(&buf)
	require.NoError(t, err)

	a, err := rf.PredictProba(X)
	require.NoError(t, err)
	b, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestRandomForest_RoundTripKeepsSplitValues(t *testing.T) {
	// split points at 1/7 steps need more than five decimals
	n := 120
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i)/7)
		if i%3 == 0 {
			y.SetVec(i, 1)
		}
	}
	rf := NewRandomForest(WithNTrees(10))
	require.NoError(t, rf.Fit(X, y))

	data, err := rf.MarshalBinary()
	require.NoError(t, err)
	restored := NewRandomForest()
	require.NoError(t, restored.UnmarshalBinary(data))

	require.Len(t, restored.forest.Trees, len(rf.forest.Trees))
	for i := range rf.forest.Trees {
		assert.Equal(t, splitValues(&rf.forest.Trees[i].Root), splitValues(&restored.forest.Trees[i].Root), "tree %d", i)
	}
	a, err := rf.PredictProba(X)
	require.NoError(t, err)
	b, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func splitValues(b *randomforest.Branch) []float64 {
	if b == nil || b.IsLeaf {
		return nil
	}
	out := []float64{b.Value}
	out = append(out, splitValues(b.Branch0)...)
	return append(out, splitValues(b.Branch1)...)
}

func TestRandomForest_SingleClass(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewVecDense(4, []float64{1, 1, 1, 1})
	err := NewRandomForest(WithNTrees(5)).Fit(X, y)
	assert.True(t, errors.Is(err, errors.ErrSingleClass))
}

func TestGradientBoosting_LearnsThreshold(t *testing.T) {
	X, y := thresholdData(4, 400)
	gb := NewGradientBoosting(WithBoostingRounds(60), WithInteractionDepth(2), WithBoostingSeed(9))
	require.NoError(t, gb.Fit(X, y))

	loss := gb.TrainLoss()
	require.Len(t, loss, 60)
	assert.Less(t, loss[len(loss)-1], loss[0])

	Xt, yt := thresholdData(5, 200)
	assert.Greater(t, aucOf(t, gb, Xt, yt), 0.95)

	imp := gb.FeatureImportance()
	assert.Greater(t, imp[0], imp[1])
	assert.Greater(t, imp[0], imp[2])
}

func TestGradientBoosting_SeedDeterminism(t *testing.T) {
	X, y := thresholdData(6, 200)
	fit := func() mat.Matrix {
		gb := NewGradientBoosting(WithBoostingRounds(20), WithBoostingSeed(42))
		require.NoError(t, gb.Fit(X, y))
		p, err := gb.PredictProba(X)
		require.NoError(t, err)
		return p
	}
	assert.True(t, mat.Equal(fit(), fit()))
}

func TestGradientBoosting_RoundTrip(t *testing.T) {
	X, y := thresholdData(7, 150)
	gb := NewGradientBoosting(WithBoostingRounds(10))
	require.NoError(t, gb.Fit(X, y))

	data, err := gb.MarshalBinary()
	require.NoError(t, err)
	restored := NewGradientBoosting()
	require.NoError(t, restored.UnmarshalBinary(data))
	assert.Equal(t, gb.Params(), restored.Params())

	a, err := gb.PredictProba(X)
	require.NoError(t, err)
	b, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestGradientBoosting_Validation(t *testing.T) {
	X, y := thresholdData(8, 50)
	tests := []struct {
		name string
		opt  GradientBoostingOption
	}{
		{"zero trees", WithBoostingRounds(0)},
		{"zero depth", WithInteractionDepth(0)},
		{"bad shrinkage", WithShrinkage(0)},
		{"bad bag", WithBagFraction(1.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGradientBoosting(tt.opt).Fit(X, y)
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}

func TestBinaryLogLoss(t *testing.T) {
	obj := NewBinaryLogLoss()
	assert.InDelta(t, -0.5, obj.CalculateGradient(0, 1), 1e-12)
	assert.InDelta(t, 0.25, obj.CalculateHessian(0, 1), 1e-12)
	assert.InDelta(t, 0.0, obj.GetInitScore([]float64{0, 1, 0, 1}), 1e-12)
}
