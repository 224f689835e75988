package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/landstack/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWorkspace lays out two 20x20 grids, 300 points and a run
// configuration with a small glmStepAIC-only bank.
func writeWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	def := geo.Definition{NRows: 20, NCols: 20, XLL: 33, YLL: -15, CellSize: 0.1, NoData: -9999}
	elev := make([]float64, def.NCells())
	ndvi := make([]float64, def.NCells())
	for r := 0; r < def.NRows; r++ {
		for c := 0; c < def.NCols; c++ {
			elev[def.Index(r, c)] = float64(r*7%20) / 20
			ndvi[def.Index(r, c)] = float64(c) / 20
		}
	}
	require.NoError(t, geo.WriteASCII(filepath.Join(dir, "elev.asc"), def, elev))
	require.NoError(t, geo.WriteASCII(filepath.Join(dir, "ndvi.asc"), def, ndvi))

	var csv strings.Builder
	csv.WriteString("pid,lon,lat,BP,CP\n")
	for i := 0; i < 300; i++ {
		cell := i * 397 % def.NCells()
		r, c := cell/def.NCols, cell%def.NCols
		x, y := def.CellCenter(r, c)
		bp := 0
		if ndvi[cell] > 0.5 {
			bp = 1
		}
		if i%10 == 0 {
			bp = 1 - bp
		}
		cp := bp
		if i%7 == 0 {
			cp = 1 - cp
		}
		fmt.Fprintf(&csv, "p%d,%.6f,%.6f,%d,%d\n", i, x, y, bp, cp)
	}
	// outside the grid
	csv.WriteString("far,40.0,-14.0,1,0\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "points.csv"), []byte(csv.String()), 0o644))

	cfg := `
seed: 11
labels: [BP, CP]
points: {path: points.csv, id_column: pid}
raster:
  layers:
    - {name: elev, path: elev.asc}
    - {name: ndvi, path: ndvi.asc}
features: {name: base, features: [elev, ndvi]}
learners: [glmStepAIC]
base: {folds: 3, tune_length: 1}
ensemble: {folds: 3, repeats: 1}
stack: {folds: 3, repeats: 1}
allow_out_of_extent: true
output: out
logging: {level: error}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.yaml"), []byte(cfg), 0o644))
	return dir
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Contains(t, execute(t, "version"), "landstack dev")
}

func TestLink(t *testing.T) {
	dir := writeWorkspace(t)
	out := execute(t, "link", "-c", filepath.Join(dir, "run.yaml"))

	assert.Contains(t, out, "points:        301")
	assert.Contains(t, out, "linked:        300")
	assert.Contains(t, out, "out of extent: 1")
	// one split shared by both labels
	assert.Contains(t, out, "BP: calibration 240")
	assert.Contains(t, out, "CP: calibration 240")
	assert.FileExists(t, filepath.Join(dir, "out", "results", "samples.geojson"))
	assert.FileExists(t, filepath.Join(dir, "out", "results", "samples.png"))
}

func TestRunThenValidate(t *testing.T) {
	if testing.Short() {
		t.Skip("fits every stage")
	}
	dir := writeWorkspace(t)
	cfg := filepath.Join(dir, "run.yaml")

	out := execute(t, "run", "-c", cfg, "--no-progress")
	assert.Contains(t, out, "BP_glmStepAIC")
	for _, f := range []string{
		"base_learner/BP/glmStepAIC.model",
		"base_learner/CP.bil",
		"results/BP_ensemble.model",
		"results/CP_stack.model",
		"results/ensemble.bil",
		"results/stack.bil",
		"results/roc_BP.png",
		"results/ledger.db",
	} {
		assert.FileExists(t, filepath.Join(dir, "out", filepath.FromSlash(f)))
	}

	again := execute(t, "validate", "-c", cfg)
	lines := strings.Split(strings.TrimSpace(again), "\n")
	// header + (base, ensemble, stack) for each label
	require.Len(t, lines, 7)
	first := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, first, 7)
	for i := range lines {
		// rasters are reread as float32, so only the band columns must match
		assert.Equal(t, strings.Fields(first[i])[:3], strings.Fields(lines[i])[:3])
	}

	// rebuild every stage from the saved models
	outDir := filepath.Join(dir, "out")
	before, err := geo.ReadBIL(filepath.Join(outDir, "base_learner", "BP"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(outDir, "results", "stack.bil")))

	rebuilt := execute(t, "predict", "-c", cfg, "--stage", "all")
	assert.Contains(t, rebuilt, "base BP: [BP_glmStepAIC]")
	assert.Contains(t, rebuilt, "ensemble: [BP CP]")
	assert.Contains(t, rebuilt, "stack: [BP CP]")
	assert.FileExists(t, filepath.Join(outDir, "results", "stack.bil"))

	after, err := geo.ReadBIL(filepath.Join(outDir, "base_learner", "BP"))
	require.NoError(t, err)
	assert.Equal(t, before.Names, after.Names)
	assert.InDeltaSlice(t, before.Bands[0], after.Bands[0], 1e-6)

	final := strings.Split(strings.TrimSpace(execute(t, "validate", "-c", cfg)), "\n")
	require.Len(t, final, 7)
}

func TestPredict_UnknownStage(t *testing.T) {
	dir := writeWorkspace(t)
	rootCmd.SetArgs([]string{"predict", "-c", filepath.Join(dir, "run.yaml"), "--stage", "nnet"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	assert.Error(t, rootCmd.Execute())
	predictStage = "all"
}
