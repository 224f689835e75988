// Package ensemble provides tree-ensemble classifiers: a random forest backed
// by github.com/malaschitz/randomForest and a gradient boosting machine with
// binary log-loss.
package ensemble

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	randomforest "github.com/malaschitz/randomForest"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"
)

// KindRandomForest is the registered model kind of RandomForest.
const KindRandomForest = "rf"

// RandomForest is a binary random-forest classifier. P(y=1) is the share of
// tree votes for the positive class.
type RandomForest struct {
	state *model.StateManager

	NTrees   int // number of trees grown
	MTry     int // features tried per split; 0 means floor(sqrt(p))
	LeafSize int // minimum samples in a leaf
	MaxDepth int

	forest *randomforest.Forest
}

// RandomForestOption configures a RandomForest.
type RandomForestOption func(*RandomForest)

// WithNTrees sets the number of trees.
func WithNTrees(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.NTrees = n }
}

// WithMTry sets the number of candidate features per split.
func WithMTry(m int) RandomForestOption {
	return func(rf *RandomForest) { rf.MTry = m }
}

// WithLeafSize sets the minimum leaf size.
func WithLeafSize(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.LeafSize = n }
}

// WithMaxDepth bounds tree depth.
func WithMaxDepth(d int) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxDepth = d }
}

// NewRandomForest creates an unfitted forest with 500 trees, leaf size 1 and
// sqrt(p) features per split.
func NewRandomForest(opts ...RandomForestOption) *RandomForest {
	rf := &RandomForest{
		state:    model.NewStateManager(),
		NTrees:   500,
		LeafSize: 1,
		MaxDepth: 30,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Kind implements model.Persistent.
func (rf *RandomForest) Kind() string { return KindRandomForest }

// Fit grows the forest on X and 0/1 targets y.
func (rf *RandomForest) Fit(X, y mat.Matrix) error {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewModelError("RandomForest.Fit", "empty data", errors.ErrEmptyData)
	}
	classes, err := intTargets("RandomForest.Fit", y, n)
	if err != nil {
		return err
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}

	mtry := rf.MTry
	if mtry <= 0 {
		mtry = int(math.Max(1, math.Floor(math.Sqrt(float64(p)))))
	}
	if mtry > p {
		mtry = p
	}

	forest := &randomforest.Forest{
		MFeatures: mtry,
		LeafSize:  rf.LeafSize,
		MaxDepth:  rf.MaxDepth,
	}
	forest.Data = randomforest.ForestData{X: rows, Class: classes}
	err = errors.SafeExecute("RandomForest.Fit", func() error {
		forest.Train(rf.NTrees)
		return nil
	})
	if err != nil {
		return err
	}
	// the training rows are not needed for voting and would bloat the artifact
	forest.Data = randomforest.ForestData{}

	rf.forest = forest
	rf.MTry = mtry
	rf.state.SetFitted(p, n)
	return nil
}

// PredictProba returns the vote shares for class 0 and class 1.
func (rf *RandomForest) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, p := X.Dims()
	if err := rf.state.CheckPredict("RandomForest", p); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		votes := rf.forest.Vote(row)
		if len(votes) > 1 {
			out[i] = votes[1]
		}
	}
	return model.BinaryProba(out), nil
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForest) IsFitted() bool { return rf.state.IsFitted() }

// FeatureImportance returns the library's per-feature importance scores.
func (rf *RandomForest) FeatureImportance() []float64 {
	if rf.forest == nil {
		return nil
	}
	return rf.forest.FeatureImportance
}

func (rf *RandomForest) String() string {
	return fmt.Sprintf("RandomForest(ntree=%d, mtry=%d, leaf=%d)", rf.NTrees, rf.MTry, rf.LeafSize)
}

type forestSnapshot struct {
	NTrees   int                  `msgpack:"ntrees"`
	MTry     int                  `msgpack:"mtry"`
	LeafSize int                  `msgpack:"leaf_size"`
	MaxDepth int                  `msgpack:"max_depth"`
	State    model.ModelState     `msgpack:"state"`
	Forest   *randomforest.Forest `msgpack:"forest"`
}

// MarshalBinary encodes the trees with msgpack. The library's own JSON
// form rounds split values, which would move predictions after a reload.
func (rf *RandomForest) MarshalBinary() ([]byte, error) {
	if rf.forest == nil {
		return nil, errors.NewNotFittedError("RandomForest", "MarshalBinary")
	}
	data, err := msgpack.Marshal(forestSnapshot{
		NTrees: rf.NTrees, MTry: rf.MTry, LeafSize: rf.LeafSize, MaxDepth: rf.MaxDepth,
		State: rf.state.GetState(), Forest: rf.forest,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode forest")
	}
	return data, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (rf *RandomForest) UnmarshalBinary(data []byte) error {
	var snap forestSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return errors.Wrap(err, "failed to decode forest snapshot")
	}
	if snap.Forest == nil {
		return errors.NewValueError("RandomForest.UnmarshalBinary", "snapshot has no forest")
	}
	if rf.state == nil {
		rf.state = model.NewStateManager()
	}
	rf.NTrees, rf.MTry, rf.LeafSize, rf.MaxDepth = snap.NTrees, snap.MTry, snap.LeafSize, snap.MaxDepth
	rf.forest = snap.Forest
	rf.state.SetState(snap.State)
	return nil
}

// intTargets converts a 0/1 column into class indices and rejects
// single-class targets.
func intTargets(op string, y mat.Matrix, n int) ([]int, error) {
	rows, _ := y.Dims()
	if rows != n {
		return nil, errors.NewDimensionError(op, n, rows, 0)
	}
	out := make([]int, n)
	pos := 0
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if v != 0 && v != 1 {
			return nil, errors.NewValueError(op, fmt.Sprintf("target must be 0 or 1, got %v at row %d", v, i))
		}
		out[i] = int(v)
		pos += out[i]
	}
	if pos == 0 || pos == n {
		return nil, errors.NewModelError(op, "single class", errors.ErrSingleClass)
	}
	return out, nil
}

func init() {
	model.Register(KindRandomForest, func() model.Persistent { return NewRandomForest() })
}
