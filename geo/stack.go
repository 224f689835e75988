package geo

import (
	"math"

	"github.com/YuminosukeSato/landstack/pkg/errors"
)

// Stack is a set of named, co-registered float layers. Undefined cells hold
// NaN regardless of the nodata value of the source file.
//
// A Stack is built with AddBand and treated as read-only afterwards; stages
// derive new stacks instead of modifying the ones they receive.
type Stack struct {
	Def   Definition
	Names []string
	Bands [][]float64

	index map[string]int
}

// NewStack returns an empty stack over def.
func NewStack(def Definition) *Stack {
	return &Stack{Def: def, index: map[string]int{}}
}

// NBands returns the number of layers.
func (s *Stack) NBands() int { return len(s.Bands) }

// AddBand appends a layer. data is row-major with NRows*NCols values and is
// not copied.
func (s *Stack) AddBand(name string, data []float64) error {
	if s.index == nil {
		s.reindex()
	}
	if _, dup := s.index[name]; dup {
		return errors.NewValueError("Stack.AddBand", "duplicate band "+name)
	}
	if len(data) != s.Def.NCells() {
		return errors.NewDimensionError("Stack.AddBand", s.Def.NCells(), len(data), 0)
	}
	s.index[name] = len(s.Bands)
	s.Names = append(s.Names, name)
	s.Bands = append(s.Bands, data)
	return nil
}

func (s *Stack) reindex() {
	s.index = make(map[string]int, len(s.Names))
	for i, n := range s.Names {
		s.index[n] = i
	}
}

// Index returns the band position of name, or -1.
func (s *Stack) Index(name string) int {
	if s.index == nil {
		s.reindex()
	}
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Band returns the layer called name.
func (s *Stack) Band(name string) ([]float64, error) {
	i := s.Index(name)
	if i < 0 {
		return nil, errors.NewFeatureSetError("stack", []string{name})
	}
	return s.Bands[i], nil
}

// Missing lists the names not present in the stack, in request order.
func (s *Stack) Missing(names []string) []string {
	var missing []string
	for _, n := range names {
		if s.Index(n) < 0 {
			missing = append(missing, n)
		}
	}
	return missing
}

// Select returns a stack sharing the named layers in the given order.
func (s *Stack) Select(stage string, names []string) (*Stack, error) {
	if missing := s.Missing(names); len(missing) > 0 {
		return nil, errors.NewFeatureSetError(stage, missing)
	}
	out := NewStack(s.Def)
	for _, n := range names {
		if err := out.AddBand(n, s.Bands[s.Index(n)]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Merge returns a stack holding the layers of every input. All inputs must
// share one grid and band names must be unique across them.
func Merge(stacks ...*Stack) (*Stack, error) {
	if len(stacks) == 0 {
		return nil, errors.NewValueError("Merge", "no stacks")
	}
	out := NewStack(stacks[0].Def)
	for _, s := range stacks {
		if !out.Def.SameGrid(s.Def) {
			return nil, errors.NewValueError("Merge", "stacks are not co-registered: "+s.Def.String())
		}
		for i, n := range s.Names {
			if err := out.AddBand(n, s.Bands[i]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Sample returns every layer's value at (x, y). ok is false when the point
// is outside the grid.
func (s *Stack) Sample(x, y float64) (values []float64, ok bool) {
	row, col, ok := s.Def.CellAt(x, y)
	if !ok {
		return nil, false
	}
	return s.Cell(s.Def.Index(row, col)), true
}

// Cell returns every layer's value at flat index i.
func (s *Stack) Cell(i int) []float64 {
	out := make([]float64, len(s.Bands))
	for b, band := range s.Bands {
		out[b] = band[i]
	}
	return out
}

// NaNBand allocates a layer of undefined cells.
func NaNBand(def Definition) []float64 {
	out := make([]float64, def.NCells())
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
