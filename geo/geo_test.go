package geo

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/im7mortal/UTM"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDef() Definition {
	return Definition{NRows: 3, NCols: 4, XLL: 100, YLL: 200, CellSize: 10, NoData: -9999, CRS: "UTM:36S"}
}

func TestDefinition_CellAt(t *testing.T) {
	d := testDef()
	tests := []struct {
		name     string
		x, y     float64
		row, col int
		ok       bool
	}{
		{"upper left", 101, 229, 0, 0, true},
		{"lower right", 139, 201, 2, 3, true},
		{"interior", 125, 215, 1, 2, true},
		{"max edge", 140, 200, 2, 3, true},
		{"west of extent", 99, 215, 0, 0, false},
		{"north of extent", 120, 231, 0, 0, false},
		{"nan", math.NaN(), 215, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, col, ok := d.CellAt(tt.x, tt.y)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.row, row)
				assert.Equal(t, tt.col, col)
			}
		})
	}
}

func TestDefinition_CellCenterRoundTrip(t *testing.T) {
	d := testDef()
	for r := 0; r < d.NRows; r++ {
		for c := 0; c < d.NCols; c++ {
			x, y := d.CellCenter(r, c)
			rr, cc, ok := d.CellAt(x, y)
			require.True(t, ok)
			assert.Equal(t, r, rr)
			assert.Equal(t, c, cc)
		}
	}
}

func TestDefinition_Validate(t *testing.T) {
	assert.NoError(t, testDef().Validate())
	bad := testDef()
	bad.CellSize = 0
	var verr *errors.ValidationError
	assert.True(t, errors.As(bad.Validate(), &verr))
}

func seqBand(def Definition, offset float64) []float64 {
	out := make([]float64, def.NCells())
	for i := range out {
		out[i] = offset + float64(i)
	}
	return out
}

func TestStack_SelectAndMerge(t *testing.T) {
	d := testDef()
	s := NewStack(d)
	require.NoError(t, s.AddBand("a", seqBand(d, 0)))
	require.NoError(t, s.AddBand("b", seqBand(d, 100)))
	assert.Error(t, s.AddBand("a", seqBand(d, 0)))
	assert.Error(t, s.AddBand("short", []float64{1}))

	sel, err := s.Select("base", []string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, sel.Names)

	_, err = s.Select("base", []string{"a", "zz"})
	var fserr *errors.FeatureSetError
	require.True(t, errors.As(err, &fserr))
	assert.Equal(t, []string{"zz"}, fserr.Missing)

	other := NewStack(d)
	require.NoError(t, other.AddBand("c", seqBand(d, 200)))
	merged, err := Merge(s, other)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, merged.Names)

	vals, ok := merged.Sample(125, 215)
	require.True(t, ok)
	assert.Equal(t, []float64{6, 106, 206}, vals)

	shifted := d
	shifted.XLL += 5
	_, err = Merge(s, NewStack(shifted))
	assert.Error(t, err)
}

func TestASCII_RoundTrip(t *testing.T) {
	d := testDef()
	data := seqBand(d, 0.5)
	data[3] = math.NaN()
	path := filepath.Join(t.TempDir(), "layer.asc")
	require.NoError(t, WriteASCII(path, d, data))

	got, vals, err := ReadASCII(path)
	require.NoError(t, err)
	assert.True(t, d.SameGrid(got))
	assert.True(t, math.IsNaN(vals[3]))
	for i, v := range data {
		if i == 3 {
			continue
		}
		assert.InDelta(t, v, vals[i], 1e-12)
	}

	s, err := ReadASCIIStack([]Layer{{Name: "x", Path: path}, {Name: "y", Path: path}}, "UTM:36S")
	require.NoError(t, err)
	assert.Equal(t, 2, s.NBands())
	assert.Equal(t, "UTM:36S", s.Def.CRS)
}

func TestBIL_RoundTrip(t *testing.T) {
	d := testDef()
	s := NewStack(d)
	a := seqBand(d, 0)
	a[5] = math.NaN()
	require.NoError(t, s.AddBand("BP_rf", a))
	require.NoError(t, s.AddBand("BP_gbm", seqBand(d, 0.25)))

	base := filepath.Join(t.TempDir(), "base_learner", "BP")
	require.NoError(t, WriteBIL(base, s))

	got, err := ReadBIL(base)
	require.NoError(t, err)
	assert.Equal(t, s.Names, got.Names)
	assert.Equal(t, "UTM:36S", got.Def.CRS)
	assert.True(t, d.SameGrid(got.Def))
	assert.True(t, math.IsNaN(got.Bands[0][5]))
	for b := range s.Bands {
		for i, v := range s.Bands[b] {
			if math.IsNaN(v) {
				continue
			}
			assert.InDelta(t, v, got.Bands[b][i], 1e-5)
		}
	}
}

func TestParseCRS(t *testing.T) {
	tests := []struct {
		in      string
		want    CRS
		wantErr bool
	}{
		{"EPSG:4326", CRS{Geographic: true}, false},
		{"utm:36s", CRS{Zone: 36, Northern: false}, false},
		{"UTM:33N", CRS{Zone: 33, Northern: true}, false},
		{"EPSG:32736", CRS{Zone: 36, Northern: false}, false},
		{"EPSG:32617", CRS{Zone: 17, Northern: true}, false},
		{"UTM:61S", CRS{}, true},
		{"UTM:S", CRS{}, true},
		{"EPSG:3857", CRS{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCRS(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProjector_UTM(t *testing.T) {
	p, err := NewProjector("UTM:36S")
	require.NoError(t, err)

	// Lilongwe
	ll := orb.Point{33.787, -13.9626}
	xy, err := p.Project(ll)
	require.NoError(t, err)
	assert.Greater(t, xy[0], 500000.0)
	assert.Less(t, xy[0], 700000.0)
	assert.Greater(t, xy[1], 8300000.0)
	assert.Less(t, xy[1], 8600000.0)

	back, err := p.Unproject(xy)
	require.NoError(t, err)
	assert.InDelta(t, ll[0], back[0], 1e-5)
	assert.InDelta(t, ll[1], back[1], 1e-5)

	_, err = p.Project(orb.Point{33, -95})
	assert.Error(t, err)
}

func TestProjector_MatchesUTMInsideZone(t *testing.T) {
	p, err := NewProjector("UTM:36S")
	require.NoError(t, err)
	for _, ll := range []orb.Point{{33.787, -13.9626}, {30.2, -1.5}, {35.4, -25}} {
		e, n, zone, _, err := UTM.FromLatLon(ll.Lat(), ll.Lon(), false)
		require.NoError(t, err)
		require.Equal(t, 36, zone)
		xy, err := p.Project(ll)
		require.NoError(t, err)
		assert.InDelta(t, e, xy[0], 1e-6)
		assert.InDelta(t, n, xy[1], 1e-6)
	}
}

func TestProjector_AcrossZoneEdge(t *testing.T) {
	p, err := NewProjector("UTM:36S")
	require.NoError(t, err)

	// 36E is the eastern edge of zone 36
	west, err := p.Project(orb.Point{35.9, -14})
	require.NoError(t, err)
	east, err := p.Project(orb.Point{36.02, -14})
	require.NoError(t, err)

	// both stay in the zone 36 frame: about 12.9 km apart along the parallel
	assert.Greater(t, east[0], west[0])
	assert.InDelta(t, 12950, east[0]-west[0], 150)
	assert.InDelta(t, west[1], east[1], 400)
	assert.Greater(t, east[0], 800000.0)

	back, err := p.Unproject(east)
	require.NoError(t, err)
	assert.InDelta(t, 36.02, back[0], 1e-5)
	assert.InDelta(t, -14.0, back[1], 1e-5)
}

func TestProjector_Geographic(t *testing.T) {
	p, err := NewProjector("EPSG:4326")
	require.NoError(t, err)
	pt := orb.Point{34.1, -12.3}
	got, err := p.Project(pt)
	require.NoError(t, err)
	assert.Equal(t, pt, got)
}
