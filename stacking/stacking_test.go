package stacking

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/YuminosukeSato/landstack/core/model"
	"github.com/YuminosukeSato/landstack/dataset"
	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/metrics"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/YuminosukeSato/landstack/sklearn/linear_model"
	"github.com/YuminosukeSato/landstack/sklearn/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// world is a synthetic raster with point samples on distinct cells.
type world struct {
	stack   *geo.Stack
	samples []dataset.Sample
}

// newWorld fills nBands uniform layers named f1..fN on a size×size grid and
// places n samples on distinct cells. label computes the labels of a cell.
func newWorld(t *testing.T, seed uint64, size, nBands, n int, label func(v []float64) map[string]int) *world {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed^0x5eed))
	def := geo.Definition{NRows: size, NCols: size, XLL: 0, YLL: 0, CellSize: 1, NoData: -9999, CRS: "EPSG:4326"}
	s := geo.NewStack(def)
	for b := 0; b < nBands; b++ {
		band := make([]float64, def.NCells())
		for i := range band {
			band[i] = r.Float64()
		}
		require.NoError(t, s.AddBand("f"+string(rune('1'+b)), band))
	}
	cells := r.Perm(def.NCells())[:n]
	samples := make([]dataset.Sample, n)
	for k, c := range cells {
		row, col := c/size, c%size
		x, y := def.CellCenter(row, col)
		v := s.Cell(c)
		samples[k] = dataset.Sample{
			ID:        string(rune('A'+k%26)) + string(rune('a'+k/26%26)),
			Projected: [2]float64{x, y},
			Labels:    label(v),
			Features:  v,
		}
	}
	return &world{stack: s, samples: samples}
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestMtryGrid(t *testing.T) {
	tests := []struct {
		p, tl int
		want  []int
	}{
		{3, 1, []int{1}},
		{9, 1, []int{3}},
		{3, 3, []int{2, 3}},
		{10, 3, []int{2, 6, 10}},
		{1, 3, []int{1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mtryGrid(tt.p, tt.tl), "p=%d tuneLength=%d", tt.p, tt.tl)
	}
}

func TestCandidates(t *testing.T) {
	set := DefaultLearnerSettings()
	tests := []struct {
		method string
		want   int
	}{
		{MethodGLMStepAIC, 1},
		{MethodRF, 3},
		{MethodGBM, 9},
		{MethodNNet, 3},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			c, err := Candidates(tt.method, 10, 3, 1, set)
			require.NoError(t, err)
			assert.Len(t, c, tt.want)
			clf := c[0].Factory()
			_, ok := clf.(*pipeline.Pipeline)
			assert.True(t, ok, "candidates must standardize their inputs")
		})
	}

	c, err := Candidates(MethodNNet, 3, 3, 1, set)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 5}, []float64{c[0].Params["size"], c[1].Params["size"], c[2].Params["size"]})

	_, err = Candidates("svm", 3, 3, 1, set)
	assert.Error(t, err)
}

func TestDeriveSeed(t *testing.T) {
	a := DeriveSeed(42, log.StageBase, "BP")
	assert.Equal(t, a, DeriveSeed(42, log.StageBase, "BP"))
	assert.NotEqual(t, a, DeriveSeed(42, log.StageBase, "CP"))
	assert.NotEqual(t, a, DeriveSeed(42, log.StageEnsemble, "BP"))
	assert.NotEqual(t, a, DeriveSeed(43, log.StageBase, "BP"))
}

func TestPredictRaster(t *testing.T) {
	def := geo.Definition{NRows: 70, NCols: 5, CellSize: 1}
	s := geo.NewStack(def)
	band := make([]float64, def.NCells())
	for i := range band {
		band[i] = float64(i % 10)
	}
	band[17] = math.NaN()
	require.NoError(t, s.AddBand("x", band))

	X := mat.NewDense(10, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	y := mat.NewVecDense(10, []float64{0, 0, 0, 1, 0, 1, 0, 1, 1, 1})
	clf := pipeline.New(linear_model.NewLogisticRegression(), true)
	require.NoError(t, clf.Fit(X, y))

	var mu sync.Mutex
	rows := 0
	out, err := PredictRaster(clf, s, func(n int) {
		mu.Lock()
		rows += n
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, def.NRows, rows)
	assert.True(t, math.IsNaN(out[17]))
	for i, v := range out {
		if i == 17 {
			continue
		}
		assert.True(t, v > 0 && v < 1)
		if band[i] == 9 {
			assert.Greater(t, v, out[0])
		}
	}
}

// memorySink records what the pipeline persists.
type memorySink struct {
	mu      sync.Mutex
	models  []string
	rasters []string
}

func (m *memorySink) SaveModel(stage, label string, _ uint64, fm FittedModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = append(m.models, stage+"/"+label+"/"+fm.Learner)
	return nil
}

func (m *memorySink) SaveRaster(stage, label string, _ *geo.Stack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rasters = append(m.rasters, stage+"/"+label)
	return nil
}

func TestStackerUsesCorrelatedLabel(t *testing.T) {
	// CP follows BP except for 5% of cells. The CP ensemble band is a weak
	// predictor of CP, the BP band a strong one.
	r := rand.New(rand.NewPCG(11, 12))
	def := geo.Definition{NRows: 50, NCols: 50, CellSize: 1}
	bp := make([]int, def.NCells())
	cp := make([]int, def.NCells())
	bpBand := make([]float64, def.NCells())
	cpBand := make([]float64, def.NCells())
	for i := range bp {
		bp[i] = bit(r.Float64() < 0.4)
		cp[i] = bp[i]
		if r.Float64() < 0.05 {
			cp[i] = 1 - cp[i]
		}
		bpBand[i] = 0.6*float64(bp[i]) + 0.4*r.Float64()
		cpBand[i] = 0.15*float64(cp[i]) + 0.85*r.Float64()
	}
	ens := geo.NewStack(def)
	require.NoError(t, ens.AddBand("BP", bpBand))
	require.NoError(t, ens.AddBand("CP", cpBand))

	cells := r.Perm(def.NCells())[:1000]
	samples := make([]dataset.Sample, len(cells))
	for k, c := range cells {
		x, y := def.CellCenter(c/def.NCols, c%def.NCols)
		samples[k] = dataset.Sample{ID: "s", Projected: [2]float64{x, y}, Labels: map[string]int{"BP": bp[c], "CP": cp[c]}}
	}
	part, err := dataset.NewPartition(samples, "CP", 0.8, 3)
	require.NoError(t, err)

	tl, _ := log.NewTestLogger(log.LevelWarn)
	ctx := context.Background()
	ensOut, err := NewEnsembler(WithStageLogger(tl)).Run(ctx, StageInput{
		Label: "CP", Stack: ens, Features: dataset.FeatureSet{Name: "ensemble", Names: []string{"CP"}},
		Samples: samples, Partition: part, Seed: 1,
	})
	require.NoError(t, err)
	stkOut, err := NewMultilabelStacker(WithStageLogger(tl)).Run(ctx, StageInput{
		Label: "CP", Stack: ens, Features: dataset.FeatureSet{Name: "stack", Names: []string{"BP", "CP"}},
		Samples: samples, Partition: part, Seed: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CP"}, stkOut.Raster.Names)

	v := NewValidator(tl)
	ensVal, err := v.Validate(log.StageEnsemble, ensOut.Raster, "CP", samples, part)
	require.NoError(t, err)
	stkVal, err := v.Validate(log.StageStack, stkOut.Raster, "CP", samples, part)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stkVal.AUC, ensVal.AUC)
	assert.Greater(t, stkVal.AUC, 0.9)
	assert.Equal(t, len(part.Validation), stkVal.N)
	// a calibrated stack beats the constant 0.5 forecast
	assert.Less(t, stkVal.LogLoss, math.Ln2)
}

// Every learner has to rank its own calibration points at least as well as
// chance; anything lower means an inverted probability column.
func TestLearners_InSampleAUCFloor(t *testing.T) {
	w := newWorld(t, 31, 20, 3, 300, func(v []float64) map[string]int {
		return map[string]int{
			"BP": bit(v[0]+0.3*v[1] > 0.65),
			"CP": bit(v[2] > 0.4),
		}
	})
	part, err := dataset.NewPartition(w.samples, "BP", 0.8, 5)
	require.NoError(t, err)
	X := dataset.Matrix(w.samples, part.Calibration)
	y := dataset.Targets(w.samples, part.Calibration, "BP")
	yv := mat.NewVecDense(len(y), y)
	_, p := X.Dims()

	set := DefaultLearnerSettings()
	set.RFTrees = 50
	set.NNetEpochs = 30
	tl, _ := log.NewTestLogger(log.LevelWarn)
	inSample := &dataset.Partition{Label: "BP", Validation: part.Calibration}
	features := dataset.FeatureSet{Name: "calibration", Names: []string{"f1", "f2", "f3"}}
	ctx := context.Background()

	type scorer func(t *testing.T) float64
	tests := map[string]scorer{}
	for _, method := range DefaultLearners {
		tests[method] = func(t *testing.T) float64 {
			cands, err := Candidates(method, p, 1, 3, set)
			require.NoError(t, err)
			clf := cands[0].Factory()
			require.NoError(t, clf.Fit(X, yv))
			proba, err := clf.PredictProba(X)
			require.NoError(t, err)
			auc, err := metrics.AUCSlice(y, model.PositiveColumn(proba))
			require.NoError(t, err)
			return auc
		}
	}
	tests["ensemble/"+MethodGLMStepAIC] = func(t *testing.T) float64 {
		out, err := NewEnsembler(WithFolds(3), WithRepeats(1), WithStageLogger(tl)).Run(ctx, StageInput{
			Label: "BP", Stack: w.stack, Features: features, Samples: w.samples, Partition: part, Seed: 1,
		})
		require.NoError(t, err)
		v, err := NewValidator(tl).Validate(log.StageEnsemble, out.Raster, "BP", w.samples, inSample)
		require.NoError(t, err)
		return v.AUC
	}
	tests["stack/"+MethodGLMStepAIC] = func(t *testing.T) float64 {
		out, err := NewMultilabelStacker(WithFolds(3), WithRepeats(1), WithStageLogger(tl)).Run(ctx, StageInput{
			Label: "BP", Stack: w.stack, Features: features, Samples: w.samples, Partition: part, Seed: 1,
		})
		require.NoError(t, err)
		v, err := NewValidator(tl).Validate(log.StageStack, out.Raster, "BP", w.samples, inSample)
		require.NoError(t, err)
		return v.AUC
	}

	for name, score := range tests {
		t.Run(name, func(t *testing.T) {
			assert.GreaterOrEqual(t, score(t), 0.5)
		})
	}
}

func TestStageInputErrors(t *testing.T) {
	w := newWorld(t, 1, 10, 2, 50, func(v []float64) map[string]int {
		return map[string]int{"BP": bit(v[0] > 0.5)}
	})
	part, err := dataset.NewPartition(w.samples, "BP", 0.8, 1)
	require.NoError(t, err)
	bank := NewBaseLearnerBank(WithLearners(MethodGLMStepAIC), WithFolds(3))
	ctx := context.Background()

	_, err = bank.Run(ctx, StageInput{Label: "BP", Stack: w.stack, Features: dataset.FeatureSet{Name: "base", Names: []string{"f1", "slope"}}, Samples: w.samples, Partition: part})
	assert.Error(t, err)

	_, err = bank.Run(ctx, StageInput{Label: "CP", Stack: w.stack, Features: dataset.FeatureSet{Name: "base", Names: []string{"f1"}}, Samples: w.samples, Partition: part})
	assert.Error(t, err, "partition of another label")

	_, err = NewBaseLearnerBank(WithLearners("svm")).Run(ctx, StageInput{Label: "BP", Stack: w.stack, Features: dataset.FeatureSet{Name: "base", Names: []string{"f1"}}, Samples: w.samples, Partition: part})
	assert.Error(t, err)
}

func TestPipeline_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end pipeline")
	}
	w := newWorld(t, 2024, 40, 3, 1000, func(v []float64) map[string]int {
		return map[string]int{
			"BP": bit(v[0] > 0.5),
			"CP": bit(v[1] > 0.5),
			"WP": bit(v[0]+v[2] > 1),
		}
	})

	set := DefaultLearnerSettings()
	set.RFTrees = 50
	set.NNetEpochs = 30
	tl, _ := log.NewTestLogger(log.LevelInfo)
	bank := NewBaseLearnerBank(WithFolds(3), WithTuneLength(1), WithLearnerSettings(set), WithStageLogger(tl))
	ens := NewEnsembler(WithFolds(5), WithRepeats(1), WithStageLogger(tl))
	stk := NewMultilabelStacker(WithFolds(5), WithRepeats(1), WithStageLogger(tl))
	sink := &memorySink{}
	p := NewPipeline(PipelineConfig{
		Labels:       []string{"BP", "CP", "WP"},
		BaseFeatures: dataset.FeatureSet{Name: "base", Names: []string{"f1", "f2", "f3"}},
		Seed:         7,
	}, bank, ens, stk, WithSink(sink), WithPipelineLogger(tl))

	res, err := p.Run(context.Background(), w.stack, w.samples)
	require.NoError(t, err)

	for _, l := range []string{"BP", "CP", "WP"} {
		assert.Equal(t, StateValidated, res.States[l], l)
		part := res.Partitions[l]
		assert.Equal(t, 1000, len(part.Calibration)+len(part.Validation))
		assert.InDelta(t, 200, len(part.Validation), 4)
		// every label is known everywhere, so all labels hold out the same points
		assert.Equal(t, res.Partitions["BP"].Validation, part.Validation, l)
	}
	assert.Equal(t, []string{"BP", "CP", "WP"}, res.FinalRaster.Names)
	assert.Equal(t, []string{"BP_glmStepAIC", "BP_rf", "BP_gbm", "BP_nnet"}, res.Base["BP"].Raster.Names)

	best := 0.0
	for _, learner := range DefaultLearners {
		v := res.ValidationFor("BP", log.StageBase, BandName("BP", learner))
		require.NotNil(t, v, learner)
		best = math.Max(best, v.AUC)
	}
	assert.Greater(t, best, 0.95)
	ensAUC := res.ValidationFor("BP", log.StageEnsemble, "BP").AUC
	stkAUC := res.ValidationFor("BP", log.StageStack, "BP").AUC
	assert.GreaterOrEqual(t, ensAUC, best-0.02)
	assert.GreaterOrEqual(t, stkAUC, best-0.02)

	// 3 labels × (4 base + ensemble + stack)
	assert.Len(t, sink.models, 18)
	assert.Contains(t, sink.rasters, "base/BP")
	assert.Contains(t, sink.rasters, "ensemble/")
	assert.Contains(t, sink.rasters, "stack/")
}

func TestPipeline_DeterministicPartitions(t *testing.T) {
	w := newWorld(t, 5, 20, 2, 300, func(v []float64) map[string]int {
		return map[string]int{"BP": bit(v[0] > 0.5), "CP": bit(v[0]+v[1] > 1)}
	})
	w.samples[3].Labels["CP"] = dataset.Unknown

	labels := []string{"BP", "CP"}
	a, err := Partitions(w.samples, labels, 0.8, 9)
	require.NoError(t, err)
	b, err := Partitions(w.samples, labels, 0.8, 9)
	require.NoError(t, err)
	for _, l := range labels {
		assert.Equal(t, a[l].Calibration, b[l].Calibration, l)
		assert.Equal(t, a[l].Validation, b[l].Validation, l)
	}

	// no point validates one label after calibrating another
	for _, cal := range labels {
		for _, val := range labels {
			for _, i := range a[val].Validation {
				assert.NotContains(t, a[cal].Calibration, i, "%s validation / %s calibration", val, cal)
			}
		}
	}
	assert.Equal(t, 299, len(a["CP"].Calibration)+len(a["CP"].Validation))
	assert.Equal(t, 300, len(a["BP"].Calibration)+len(a["BP"].Validation))
}
