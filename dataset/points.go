// Package dataset links ground-truth survey points to raster features and
// draws the per-label calibration/validation partitions.
package dataset

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/paulmach/orb"
)

// Unknown marks a label that was not recorded for a point. Such points are
// left out of that label's partition only.
const Unknown = -1

// Point is one survey record before linking: WGS84 location and labels.
type Point struct {
	ID       string
	Location orb.Point // lon, lat
	Labels   map[string]int
}

// Schema names the CSV columns holding the point data.
type Schema struct {
	IDColumn  string   `yaml:"id_column"`
	LonColumn string   `yaml:"lon_column"`
	LatColumn string   `yaml:"lat_column"`
	Labels    []string `yaml:"labels"`
}

// ReadPointsCSV reads survey points from a headed CSV file.
func ReadPointsCSV(path string, schema Schema) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	pts, err := DecodePoints(bufio.NewReader(f), schema)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return pts, nil
}

// DecodePoints parses CSV rows. Labels must be 0 or 1; an empty or "NA" cell
// is recorded as Unknown. Rows without an id column are numbered from 1.
func DecodePoints(r io.Reader, schema Schema) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	need := append([]string{schema.LonColumn, schema.LatColumn}, schema.Labels...)
	var missing []string
	for _, c := range need {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewFeatureSetError("points", missing)
	}
	idCol, hasID := cols[schema.IDColumn]

	var pts []Point
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		id := strconv.Itoa(line - 1)
		if hasID && schema.IDColumn != "" {
			id = rec[idCol]
		}
		lon, err := strconv.ParseFloat(rec[cols[schema.LonColumn]], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: %s", line, schema.LonColumn)
		}
		lat, err := strconv.ParseFloat(rec[cols[schema.LatColumn]], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: %s", line, schema.LatColumn)
		}
		p := Point{ID: id, Location: orb.Point{lon, lat}, Labels: make(map[string]int, len(schema.Labels))}
		for _, l := range schema.Labels {
			v, err := parseLabel(rec[cols[l]])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: %s", line, l)
			}
			p.Labels[l] = v
		}
		pts = append(pts, p)
	}
	if len(pts) == 0 {
		return nil, errors.ErrEmptyData
	}
	return pts, nil
}

func parseLabel(s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NA", "NAN":
		return Unknown, nil
	case "0", "N", "FALSE":
		return 0, nil
	case "1", "Y", "TRUE":
		return 1, nil
	}
	return 0, errors.NewValueError("parseLabel", "label must be 0 or 1, got "+strconv.Quote(s))
}
