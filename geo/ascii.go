package geo

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/landstack/pkg/errors"
)

// Layer names a raster file on disk.
type Layer struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// ReadASCII reads an ESRI ASCII grid. Nodata cells become NaN.
func ReadASCII(path string) (Definition, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Definition{}, nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	sc.Split(bufio.ScanWords)

	def := Definition{NoData: DefaultNoData}
	var (
		center  bool
		pending string
	)
	// ヘッダーは数値が現れるまで続く
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			pending = sc.Text()
			break
		}
		if !sc.Scan() {
			return def, nil, errors.Newf("%s: header key %q has no value", path, key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return def, nil, errors.Wrapf(err, "%s: header %s", path, key)
		}
		switch key {
		case "ncols":
			def.NCols = int(v)
		case "nrows":
			def.NRows = int(v)
		case "xllcorner":
			def.XLL = v
		case "yllcorner":
			def.YLL = v
		case "xllcenter":
			def.XLL, center = v, true
		case "yllcenter":
			def.YLL, center = v, true
		case "cellsize":
			def.CellSize = v
		case "nodata_value":
			def.NoData = v
		default:
			return def, nil, errors.Newf("%s: unknown header key %q", path, key)
		}
	}
	if center {
		def.XLL -= def.CellSize / 2
		def.YLL -= def.CellSize / 2
	}
	if err := def.Validate(); err != nil {
		return def, nil, errors.Wrap(err, path)
	}

	data := make([]float64, 0, def.NCells())
	push := func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.Wrapf(err, "%s: cell %d", path, len(data))
		}
		if def.IsNoData(v) {
			v = math.NaN()
		}
		data = append(data, v)
		return nil
	}
	if pending != "" {
		if err := push(pending); err != nil {
			return def, nil, err
		}
	}
	for sc.Scan() {
		if err := push(sc.Text()); err != nil {
			return def, nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return def, nil, errors.Wrap(err, path)
	}
	if len(data) != def.NCells() {
		return def, nil, errors.NewDimensionError("ReadASCII "+path, def.NCells(), len(data), 0)
	}
	return def, data, nil
}

// WriteASCII writes data as an ESRI ASCII grid; NaN cells get def.NoData.
func WriteASCII(path string, def Definition, data []float64) error {
	if len(data) != def.NCells() {
		return errors.NewDimensionError("WriteASCII", def.NCells(), len(data), 0)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create raster directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ncols %d\nnrows %d\nxllcorner %g\nyllcorner %g\ncellsize %g\nNODATA_value %g\n",
		def.NCols, def.NRows, def.XLL, def.YLL, def.CellSize, def.NoData)
	for r := 0; r < def.NRows; r++ {
		for c := 0; c < def.NCols; c++ {
			v := data[def.Index(r, c)]
			if math.IsNaN(v) {
				v = def.NoData
			}
			if c > 0 {
				w.WriteByte(' ')
			}
			w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

// ReadASCIIStack loads one ASCII grid per layer into a stack. Every layer
// must share the first layer's grid; crs is attached to the definition.
func ReadASCIIStack(layers []Layer, crs string) (*Stack, error) {
	if len(layers) == 0 {
		return nil, errors.NewValueError("ReadASCIIStack", "no layers")
	}
	var s *Stack
	for _, l := range layers {
		def, data, err := ReadASCII(l.Path)
		if err != nil {
			return nil, err
		}
		def.CRS = crs
		if s == nil {
			s = NewStack(def)
		} else if !s.Def.SameGrid(def) {
			return nil, errors.NewValueError("ReadASCIIStack", fmt.Sprintf("layer %s is not co-registered: %s vs %s", l.Name, def, s.Def))
		}
		if err := s.AddBand(l.Name, data); err != nil {
			return nil, err
		}
	}
	return s, nil
}
