// Package model_selection provides resampling splitters, cross-validated AUC
// and the candidate grid search used to tune every learner.
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/landstack/pkg/errors"
)

// Splitter produces train/test index folds for n samples with labels y.
type Splitter interface {
	Split(y []float64) ([]CVFold, error)
	GetNSplits() int
}

// CVFold represents a single fold in cross-validation
type CVFold struct {
	Repeat       int
	TrainIndices []int
	TestIndices  []int
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// KFold implements plain k-fold cross-validation.
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, seed uint64) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: seed}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int { return kf.NSplits }

// Split generates train/test indices for each fold
func (kf *KFold) Split(y []float64) ([]CVFold, error) {
	n := len(y)
	if n < kf.NSplits {
		return nil, errors.NewValueError("KFold.Split", "fewer samples than folds")
	}
	indices := seq(n)
	if kf.Shuffle {
		r := newRand(kf.RandomSeed)
		r.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	}

	assign := make([]int, n)
	foldSize, remainder := n/kf.NSplits, n%kf.NSplits
	pos := 0
	for f := 0; f < kf.NSplits; f++ {
		size := foldSize
		if f < remainder {
			size++
		}
		for _, idx := range indices[pos : pos+size] {
			assign[idx] = f
		}
		pos += size
	}
	return foldsFromAssignment(assign, kf.NSplits, 0), nil
}

// StratifiedKFold keeps the class ratio of y in every fold.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, seed uint64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: seed}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int { return skf.NSplits }

// Split deals each class round-robin over the folds after an optional shuffle.
func (skf *StratifiedKFold) Split(y []float64) ([]CVFold, error) {
	assign, err := stratifiedAssignment(y, skf.NSplits, skf.Shuffle, skf.RandomSeed)
	if err != nil {
		return nil, err
	}
	return foldsFromAssignment(assign, skf.NSplits, 0), nil
}

// RepeatedStratifiedKFold runs StratifiedKFold NRepeats times with a
// different shuffle per repeat ("repeatedcv").
type RepeatedStratifiedKFold struct {
	NSplits    int
	NRepeats   int
	RandomSeed uint64
}

// NewRepeatedStratifiedKFold creates the splitter.
func NewRepeatedStratifiedKFold(nSplits, nRepeats int, seed uint64) *RepeatedStratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	if nRepeats < 1 {
		nRepeats = 1
	}
	return &RepeatedStratifiedKFold{NSplits: nSplits, NRepeats: nRepeats, RandomSeed: seed}
}

// GetNSplits returns folds × repeats.
func (r *RepeatedStratifiedKFold) GetNSplits() int { return r.NSplits * r.NRepeats }

// Split concatenates the folds of every repeat.
func (r *RepeatedStratifiedKFold) Split(y []float64) ([]CVFold, error) {
	var out []CVFold
	for rep := 0; rep < r.NRepeats; rep++ {
		assign, err := stratifiedAssignment(y, r.NSplits, true, r.RandomSeed+uint64(rep)*7919)
		if err != nil {
			return nil, err
		}
		out = append(out, foldsFromAssignment(assign, r.NSplits, rep)...)
	}
	return out, nil
}

func stratifiedAssignment(y []float64, k int, shuffle bool, seed uint64) ([]int, error) {
	n := len(y)
	if n < k {
		return nil, errors.NewValueError("StratifiedKFold.Split", "fewer samples than folds")
	}
	byClass := make(map[float64][]int)
	for i, v := range y {
		byClass[v] = append(byClass[v], i)
	}
	labels := make([]float64, 0, len(byClass))
	for v := range byClass {
		labels = append(labels, v)
	}
	sort.Float64s(labels)

	r := newRand(seed)
	assign := make([]int, n)
	// continue the round-robin across classes so fold sizes stay balanced
	next := 0
	for _, label := range labels {
		idx := byClass[label]
		if shuffle {
			r.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
		for _, i := range idx {
			assign[i] = next % k
			next++
		}
	}
	return assign, nil
}

func foldsFromAssignment(assign []int, k, repeat int) []CVFold {
	folds := make([]CVFold, k)
	for f := range folds {
		folds[f].Repeat = repeat
	}
	for i, f := range assign {
		folds[f].TestIndices = append(folds[f].TestIndices, i)
		for g := 0; g < k; g++ {
			if g != f {
				folds[g].TrainIndices = append(folds[g].TrainIndices, i)
			}
		}
	}
	return folds
}

// StratifiedSplit draws a seeded, class-stratified train/test partition.
// Each class contributes round(trainFraction * classSize) samples to train.
// Both index slices are sorted.
func StratifiedSplit(y []float64, trainFraction float64, seed uint64) (train, test []int, err error) {
	if trainFraction <= 0 || trainFraction >= 1 {
		return nil, nil, errors.NewValidationError("trainFraction", "must be in (0, 1)", trainFraction)
	}
	if len(y) == 0 {
		return nil, nil, errors.ErrEmptyData
	}
	byClass := make(map[float64][]int)
	for i, v := range y {
		byClass[v] = append(byClass[v], i)
	}
	labels := make([]float64, 0, len(byClass))
	for v := range byClass {
		labels = append(labels, v)
	}
	sort.Float64s(labels)

	r := newRand(seed)
	for _, label := range labels {
		idx := byClass[label]
		r.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTrain := int(math.Round(trainFraction * float64(len(idx))))
		train = append(train, idx[:nTrain]...)
		test = append(test, idx[nTrain:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
