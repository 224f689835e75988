package dataset

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/YuminosukeSato/landstack/geo"
	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/pkg/log"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lonLatStack covers lon 33..35, lat -15..-13 with 0.1 degree cells.
func lonLatStack(t *testing.T) *geo.Stack {
	t.Helper()
	def := geo.Definition{NRows: 20, NCols: 20, XLL: 33, YLL: -15, CellSize: 0.1, NoData: -9999, CRS: "EPSG:4326"}
	s := geo.NewStack(def)
	elev := make([]float64, def.NCells())
	ndvi := make([]float64, def.NCells())
	for r := 0; r < def.NRows; r++ {
		for c := 0; c < def.NCols; c++ {
			elev[def.Index(r, c)] = float64(r)
			ndvi[def.Index(r, c)] = float64(c) / 20
		}
	}
	// one undefined cell at row 0, col 0
	ndvi[0] = math.NaN()
	require.NoError(t, s.AddBand("elev", elev))
	require.NoError(t, s.AddBand("ndvi", ndvi))
	return s
}

var baseFeatures = FeatureSet{Name: "base", Names: []string{"elev", "ndvi"}}

func TestDecodePoints(t *testing.T) {
	src := "pid,lon,lat,BP,CP\n" +
		"a,33.5,-14.2,1,0\n" +
		"b,34.1,-13.9,0,NA\n"
	pts, err := DecodePoints(strings.NewReader(src), Schema{IDColumn: "pid", LonColumn: "lon", LatColumn: "lat", Labels: []string{"BP", "CP"}})
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, "a", pts[0].ID)
	assert.Equal(t, orb.Point{33.5, -14.2}, pts[0].Location)
	assert.Equal(t, 1, pts[0].Labels["BP"])
	assert.Equal(t, Unknown, pts[1].Labels["CP"])
}

func TestDecodePoints_Errors(t *testing.T) {
	schema := Schema{LonColumn: "lon", LatColumn: "lat", Labels: []string{"BP"}}
	tests := []struct {
		name string
		src  string
	}{
		{"missing column", "lon,lat\n1,2\n"},
		{"bad label", "lon,lat,BP\n1,2,7\n"},
		{"bad coordinate", "lon,lat,BP\nx,2,1\n"},
		{"no rows", "lon,lat,BP\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePoints(strings.NewReader(tt.src), schema)
			assert.Error(t, err)
		})
	}
}

func TestFeatureSet_Validate(t *testing.T) {
	s := lonLatStack(t)
	assert.NoError(t, baseFeatures.Validate(s))

	err := FeatureSet{Name: "base", Names: []string{"elev", "slope"}}.Validate(s)
	var fserr *errors.FeatureSetError
	require.True(t, errors.As(err, &fserr))
	assert.Equal(t, []string{"slope"}, fserr.Missing)

	assert.Error(t, FeatureSet{Name: "empty"}.Validate(s))
	assert.Error(t, FeatureSet{Name: "dup", Names: []string{"elev", "elev"}}.Validate(s))
}

func TestLinker_Link(t *testing.T) {
	s := lonLatStack(t)
	tl, _ := log.NewTestLogger(log.LevelDebug)
	l, err := NewLinker(s, baseFeatures, WithLinkerLogger(tl))
	require.NoError(t, err)

	pts := []Point{
		{ID: "in", Location: orb.Point{33.55, -14.25}, Labels: map[string]int{"BP": 1}},
		{ID: "nodata", Location: orb.Point{33.05, -13.05}, Labels: map[string]int{"BP": 0}},
		{ID: "in2", Location: orb.Point{34.95, -14.95}, Labels: map[string]int{"BP": 0}},
	}
	res, err := l.Link(context.Background(), pts)
	require.NoError(t, err)
	require.Len(t, res.Samples, 2)
	assert.Equal(t, []string{"nodata"}, res.Incomplete)
	assert.Empty(t, res.OutOfExtent)
	assert.Equal(t, []string{"elev", "ndvi"}, res.FeatureNames)

	// (33.55, -14.25): row 12, col 5
	assert.Equal(t, []float64{12, 0.25}, res.Samples[0].Features)
	assert.True(t, tl.ContainsMessage("points linked"))
}

func TestLinker_OutOfExtent(t *testing.T) {
	s := lonLatStack(t)
	pts := []Point{
		{ID: "in", Location: orb.Point{33.55, -14.25}, Labels: map[string]int{"BP": 1}},
		{ID: "far", Location: orb.Point{36.5, -14.0}, Labels: map[string]int{"BP": 1}},
	}

	strict, err := NewLinker(s, baseFeatures)
	require.NoError(t, err)
	_, err = strict.Link(context.Background(), pts)
	var exErr *errors.ExtentError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, 1, exErr.Count)
	assert.Equal(t, []string{"far"}, exErr.Sample)

	tl, _ := log.NewTestLogger(log.LevelDebug)
	lenient, err := NewLinker(s, baseFeatures, WithAllowOutOfExtent(true), WithLinkerLogger(tl))
	require.NoError(t, err)
	res, err := lenient.Link(context.Background(), pts)
	require.NoError(t, err)
	assert.Len(t, res.Samples, 1)
	assert.Equal(t, []string{"far"}, res.OutOfExtent)
	assert.True(t, tl.ContainsMessage("points outside raster extent dropped"))
}

func TestLinker_AcrossUTMZoneEdge(t *testing.T) {
	proj, err := geo.NewProjector("UTM:36S")
	require.NoError(t, err)
	west, err := proj.Project(orb.Point{35.9, -14.0})
	require.NoError(t, err)

	// 100 km wide raster in zone 36 reaching past 36E into zone 37 longitudes
	def := geo.Definition{NRows: 20, NCols: 100, XLL: 760000, YLL: west[1] - 10000, CellSize: 1000, CRS: "UTM:36S"}
	s := geo.NewStack(def)
	band := make([]float64, def.NCells())
	for i := range band {
		band[i] = float64(i % def.NCols)
	}
	require.NoError(t, s.AddBand("elev", band))

	strict, err := NewLinker(s, FeatureSet{Name: "base", Names: []string{"elev"}})
	require.NoError(t, err)
	res, err := strict.Link(context.Background(), []Point{
		{ID: "west", Location: orb.Point{35.9, -14.0}},
		{ID: "east", Location: orb.Point{36.02, -14.0}},
	})
	require.NoError(t, err)
	require.Len(t, res.Samples, 2)
	assert.Empty(t, res.OutOfExtent)
	assert.InDelta(t, west[0], res.Samples[0].Projected[0], 1e-6)

	// the eastern point lands about 13 columns further east
	cols := res.Samples[1].Features[0] - res.Samples[0].Features[0]
	assert.InDelta(t, 13, cols, 1)
}

func syntheticSamples(n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		bp := 0
		if i%4 == 0 {
			bp = 1
		}
		out[i] = Sample{ID: string(rune('a' + i%26)), Labels: map[string]int{"BP": bp}, Features: []float64{float64(i)}}
	}
	return out
}

func TestPartition_DisjointAndStratified(t *testing.T) {
	samples := syntheticSamples(103)
	samples[7].Labels["BP"] = Unknown

	p, err := NewPartition(samples, "BP", 0.8, 42)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, i := range p.Calibration {
		seen[i] = true
	}
	for _, i := range p.Validation {
		assert.False(t, seen[i], "index %d in both partitions", i)
	}
	assert.Equal(t, 102, len(p.Calibration)+len(p.Validation))
	assert.NotContains(t, p.Calibration, 7)
	assert.NotContains(t, p.Validation, 7)

	// 26 positives, 76 negatives: round(20.8)=21, round(60.8)=61
	assert.Len(t, p.Calibration, 82)
	assert.InDelta(t, Prevalence(samples, p.Calibration, "BP"), Prevalence(samples, p.Validation, "BP"), 0.05)
}

func TestPartition_Deterministic(t *testing.T) {
	samples := syntheticSamples(200)
	a, err := NewPartition(samples, "BP", 0.8, 7)
	require.NoError(t, err)
	b, err := NewPartition(samples, "BP", 0.8, 7)
	require.NoError(t, err)
	assert.Equal(t, a.Calibration, b.Calibration)
	assert.Equal(t, a.Validation, b.Validation)

	c, err := NewPartition(samples, "BP", 0.8, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a.Calibration, c.Calibration)
}

func TestPartitions_SharedAcrossLabels(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	samples := make([]Sample, 1000)
	known := map[string]int{}
	for i := range samples {
		labels := map[string]int{}
		for _, l := range []string{"BP", "CP", "WP"} {
			v := 0
			if rng.Float64() < 0.3 {
				v = 1
			}
			if rng.Float64() < 0.05 {
				v = Unknown
			} else {
				known[l]++
			}
			labels[l] = v
		}
		samples[i] = Sample{ID: fmt.Sprintf("s%d", i), Labels: labels}
	}

	parts, err := NewPartitions(samples, []string{"BP", "CP", "WP"}, 0.8, 7)
	require.NoError(t, err)
	require.Len(t, parts, 3)

	calibration := map[int]bool{}
	for _, p := range parts {
		for _, i := range p.Calibration {
			calibration[i] = true
		}
	}
	for label, p := range parts {
		assert.Equal(t, known[label], len(p.Calibration)+len(p.Validation), label)
		for _, i := range p.Validation {
			assert.False(t, calibration[i], "%s validation sample %d is calibration for another label", label, i)
		}
		share := float64(len(p.Calibration)) / float64(known[label])
		assert.InDelta(t, 0.8, share, 0.03, label)
		assert.InDelta(t, Prevalence(samples, p.Calibration, label), Prevalence(samples, p.Validation, label), 0.05, label)
	}

	// the single-label form is the same split for that label alone
	one, err := NewPartitions(samples, []string{"BP"}, 0.8, 7)
	require.NoError(t, err)
	single, err := NewPartition(samples, "BP", 0.8, 7)
	require.NoError(t, err)
	assert.Equal(t, one["BP"], single)
}

func TestPartitions_Errors(t *testing.T) {
	samples := syntheticSamples(20)
	_, err := NewPartitions(samples, nil, 0.8, 1)
	assert.Error(t, err)
	_, err = NewPartitions(nil, []string{"BP"}, 0.8, 1)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
	_, err = NewPartitions(samples, []string{"BP", "WP"}, 0.8, 1)
	assert.True(t, errors.Is(err, errors.ErrEmptyData), "WP is never recorded")
}

func TestSampleStackAndMatrix(t *testing.T) {
	s := lonLatStack(t)
	l, err := NewLinker(s, baseFeatures)
	require.NoError(t, err)
	res, err := l.Link(context.Background(), []Point{
		{ID: "a", Location: orb.Point{33.55, -14.25}, Labels: map[string]int{"BP": 1}},
		{ID: "b", Location: orb.Point{34.55, -13.25}, Labels: map[string]int{"BP": 0}},
	})
	require.NoError(t, err)

	X := Matrix(res.Samples, nil)
	r, c := X.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)

	sub, err := s.Select("ensemble", []string{"ndvi"})
	require.NoError(t, err)
	got, err := SampleStack(sub, res.Samples, []int{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, got.At(0, 0), 1e-12)
	assert.InDelta(t, 0.25, got.At(1, 0), 1e-12)
	assert.Equal(t, []float64{0, 1}, Targets(res.Samples, []int{1, 0}, "BP"))
}
