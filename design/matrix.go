package design

import (
	"fmt"
	"math"
	"slices"

	"github.com/kshedden/mipool/statmodel"
	"github.com/kshedden/mipool/trial"
)

// Intercept is the name of the constant column added by Dataset.
const Intercept = "icept"

// Matrix is a column-oriented design matrix with its outcome.
type Matrix struct {
	Outcome string

	// Names of the design columns
	Names []string

	// X[j] is design column j
	X [][]float64

	Y []float64
}

// Build constructs the design matrix of a complete table.  Numeric terms
// are copied.  Categorical terms are expanded to one indicator column per
// non-reference level, named "term[level]".  The reference level of a
// term is its first level unless refLevels names another.  No intercept
// column is included.  The column set depends only on the table's fields
// and levels, not on its values.
func Build(tbl *trial.Table, f *Formula, refLevels map[string]string) (*Matrix, error) {

	f = f.Expand(tbl.Names())

	y := tbl.Column(f.Outcome)
	if y == nil {
		return nil, &trial.DataError{Field: f.Outcome, Row: -1, Msg: "outcome not found"}
	}
	if tbl.IsCategorical(f.Outcome) {
		return nil, &trial.DataError{Field: f.Outcome, Row: -1, Msg: "outcome must be numeric"}
	}
	if err := complete(f.Outcome, y); err != nil {
		return nil, err
	}

	for na := range refLevels {
		if !slices.Contains(f.Terms, na) {
			return nil, fmt.Errorf("reference level given for '%s', which is not a term", na)
		}
	}

	m := &Matrix{
		Outcome: f.Outcome,
		Y:       slices.Clone(y),
	}

	for _, term := range f.Terms {

		x := tbl.Column(term)
		if x == nil {
			return nil, &trial.DataError{Field: term, Row: -1, Msg: "term not found"}
		}
		if err := complete(term, x); err != nil {
			return nil, err
		}

		if !tbl.IsCategorical(term) {
			m.Names = append(m.Names, term)
			m.X = append(m.X, slices.Clone(x))
			continue
		}

		levels := tbl.Levels(term)
		ref := 0
		if lev, ok := refLevels[term]; ok {
			ref = slices.Index(levels, lev)
			if ref < 0 {
				return nil, &trial.DataError{Field: term, Row: -1, Msg: fmt.Sprintf("reference level '%s' not found", lev)}
			}
		}

		for k, lev := range levels {
			if k == ref {
				continue
			}
			z := make([]float64, len(x))
			for i, v := range x {
				if int(v) == k {
					z[i] = 1
				}
			}
			m.Names = append(m.Names, fmt.Sprintf("%s[%s]", term, lev))
			m.X = append(m.X, z)
		}
	}

	if len(m.Names) == 0 {
		return nil, fmt.Errorf("design for '%s' has no columns", f)
	}

	return m, nil
}

func complete(name string, x []float64) error {
	for i, v := range x {
		if math.IsNaN(v) {
			return &trial.DataError{Field: name, Row: i, Msg: "missing value in model field"}
		}
	}
	return nil
}

// NumRows returns the number of observations.
func (m *Matrix) NumRows() int {
	return len(m.Y)
}

// Column returns the named design column, or nil.
func (m *Matrix) Column(name string) []float64 {
	j := slices.Index(m.Names, name)
	if j < 0 {
		return nil
	}
	return m.X[j]
}

// SelectRows returns the matrix restricted to the given rows.
func (m *Matrix) SelectRows(rows []int) *Matrix {

	sub := func(x []float64) []float64 {
		z := make([]float64, len(rows))
		for i, r := range rows {
			z[i] = x[r]
		}
		return z
	}

	s := &Matrix{
		Outcome: m.Outcome,
		Names:   slices.Clone(m.Names),
		X:       make([][]float64, len(m.X)),
		Y:       sub(m.Y),
	}
	for j, x := range m.X {
		s.X[j] = sub(x)
	}

	return s
}

// Dataset returns the outcome, an intercept column and the given design
// columns, in that order, as a Dataset.  If cols is nil all columns are
// used.
func (m *Matrix) Dataset(cols []string) (statmodel.Dataset, error) {

	if cols == nil {
		cols = m.Names
	}

	one := make([]float64, m.NumRows())
	for i := range one {
		one[i] = 1
	}

	data := [][]float64{m.Y, one}
	names := []string{m.Outcome, Intercept}
	for _, na := range cols {
		x := m.Column(na)
		if x == nil {
			return statmodel.Dataset{}, fmt.Errorf("design has no column '%s'", na)
		}
		data = append(data, x)
		names = append(names, na)
	}

	return statmodel.NewDataset(data, names), nil
}
