package geo

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/landstack/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Sidecar is the YAML file written next to a BIL stack. The ESRI header has
// no place for band names or the CRS, so they travel here.
type Sidecar struct {
	Definition Definition `yaml:"definition"`
	Bands      []string   `yaml:"bands"`
}

// WriteBIL writes s as a float32 little-endian band-interleaved-by-line
// raster: base.bil, base.hdr and base.yaml. base has no extension.
func WriteBIL(base string, s *Stack) error {
	if s.NBands() == 0 {
		return errors.NewValueError("WriteBIL", "empty stack")
	}
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return errors.Wrap(err, "create raster directory")
	}
	def := s.Def
	// 0 は確率ラスタの有効値なので nodata には使わない
	if def.NoData == 0 || math.IsNaN(def.NoData) {
		def.NoData = DefaultNoData
	}

	f, err := os.Create(base + ".bil")
	if err != nil {
		return errors.Wrapf(err, "create %s.bil", base)
	}
	w := bufio.NewWriter(f)
	line := make([]float32, def.NCols)
	for r := 0; r < def.NRows; r++ {
		for _, band := range s.Bands {
			for c := range line {
				v := band[def.Index(r, c)]
				if math.IsNaN(v) {
					v = def.NoData
				}
				line[c] = float32(v)
			}
			if err := binary.Write(w, binary.LittleEndian, line); err != nil {
				f.Close()
				return errors.Wrapf(err, "write %s.bil", base)
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s.bil", base)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := writeHDR(base+".hdr", def, s.NBands()); err != nil {
		return err
	}
	side, err := yaml.Marshal(Sidecar{Definition: def, Bands: s.Names})
	if err != nil {
		return errors.Wrap(err, "marshal sidecar")
	}
	return os.WriteFile(base+".yaml", side, 0o644)
}

func writeHDR(path string, def Definition, nbands int) error {
	ulx, uly := def.CellCenter(0, 0)
	hdr := fmt.Sprintf("BYTEORDER I\nLAYOUT BIL\nNROWS %d\nNCOLS %d\nNBANDS %d\nNBITS 32\nPIXELTYPE FLOAT\nBANDROWBYTES %d\nTOTALROWBYTES %d\nULXMAP %v\nULYMAP %v\nXDIM %v\nYDIM %v\nNODATA %v\n",
		def.NRows, def.NCols, nbands, 4*def.NCols, 4*def.NCols*nbands, ulx, uly, def.CellSize, def.CellSize, def.NoData)
	return os.WriteFile(path, []byte(hdr), 0o644)
}

// readHDR parses the subset of the ESRI .hdr keys written by WriteBIL.
func readHDR(path string) (def Definition, nbands int, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return def, 0, errors.Wrapf(err, "read %s", path)
	}
	kv := map[string]string{}
	for _, ln := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(ln)
		if len(fields) >= 2 {
			kv[strings.ToUpper(fields[0])] = fields[1]
		}
	}
	if v := kv["BYTEORDER"]; v != "" && v != "I" {
		return def, 0, errors.Newf("%s: unsupported byte order %s", path, v)
	}
	if v := kv["NBITS"]; v != "" && v != "32" {
		return def, 0, errors.Newf("%s: unsupported NBITS %s", path, v)
	}
	num := func(key string, dst *float64) {
		if err != nil {
			return
		}
		s, ok := kv[key]
		if !ok {
			err = errors.Newf("%s: missing %s", path, key)
			return
		}
		*dst, err = strconv.ParseFloat(s, 64)
	}
	var nr, nc, nb, ulx, uly, xdim, nodata float64
	nb, nodata = 1, DefaultNoData
	num("NROWS", &nr)
	num("NCOLS", &nc)
	num("ULXMAP", &ulx)
	num("ULYMAP", &uly)
	num("XDIM", &xdim)
	if err != nil {
		return def, 0, err
	}
	if _, ok := kv["NBANDS"]; ok {
		num("NBANDS", &nb)
	}
	if _, ok := kv["NODATA"]; ok {
		num("NODATA", &nodata)
	}
	if err != nil {
		return def, 0, err
	}
	def = Definition{
		NRows:    int(nr),
		NCols:    int(nc),
		CellSize: xdim,
		XLL:      ulx - xdim/2,
		YLL:      uly + xdim/2 - nr*xdim,
		NoData:   nodata,
	}
	return def, int(nb), def.Validate()
}

// ReadBIL reads a stack written by WriteBIL. Band names and CRS come from the
// YAML sidecar when present; otherwise bands are named band1..bandN.
func ReadBIL(base string) (*Stack, error) {
	def, nb, err := readHDR(base + ".hdr")
	if err != nil {
		return nil, err
	}
	names := make([]string, nb)
	for i := range names {
		names[i] = fmt.Sprintf("band%d", i+1)
	}
	if raw, err := os.ReadFile(base + ".yaml"); err == nil {
		var side Sidecar
		if err := yaml.Unmarshal(raw, &side); err != nil {
			return nil, errors.Wrapf(err, "parse %s.yaml", base)
		}
		if len(side.Bands) != nb {
			return nil, errors.NewDimensionError("ReadBIL sidecar", nb, len(side.Bands), 1)
		}
		names = side.Bands
		def.CRS = side.Definition.CRS
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "read %s.yaml", base)
	}

	f, err := os.Open(base + ".bil")
	if err != nil {
		return nil, errors.Wrapf(err, "open %s.bil", base)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	bands := make([][]float64, nb)
	for b := range bands {
		bands[b] = make([]float64, def.NCells())
	}
	line := make([]float32, def.NCols)
	for row := 0; row < def.NRows; row++ {
		for b := 0; b < nb; b++ {
			if err := binary.Read(r, binary.LittleEndian, line); err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					return nil, errors.Newf("%s.bil: truncated at row %d band %d", base, row, b)
				}
				return nil, errors.Wrapf(err, "read %s.bil", base)
			}
			for c, v := range line {
				fv := float64(v)
				if def.IsNoData(fv) || fv == float64(float32(def.NoData)) {
					fv = math.NaN()
				}
				bands[b][def.Index(row, c)] = fv
			}
		}
	}

	s := NewStack(def)
	for b, n := range names {
		if err := s.AddBand(n, bands[b]); err != nil {
			return nil, err
		}
	}
	return s, nil
}
