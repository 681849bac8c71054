// Package trial holds the participant table of the smoking cessation
// trial: loading it from disk, preparing it for analysis, and simulating
// synthetic trials with known effects.
package trial

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/kshedden/mipool/statmodel"
)

// Table is a column-oriented table of participant records.  Missing
// cells hold NaN.  Categorical columns hold integer level codes that
// index into the column's levels.
type Table struct {
	names  []string
	cols   [][]float64
	pos    map[string]int
	levels map[string][]string
}

// NewTable returns a table with the given numeric columns.  The columns
// are not copied.
func NewTable(names []string, cols [][]float64) (*Table, error) {

	if len(names) != len(cols) {
		return nil, &ShapeError{Msg: fmt.Sprintf("%d names for %d columns", len(names), len(cols))}
	}

	tbl := &Table{
		pos:    make(map[string]int),
		levels: make(map[string][]string),
	}

	for j, na := range names {
		if err := tbl.AddColumn(na, cols[j], nil); err != nil {
			return nil, err
		}
	}

	return tbl, nil
}

// AddColumn appends a column.  If levels is not nil the column is
// categorical and its values are level codes.
func (tbl *Table) AddColumn(name string, x []float64, levels []string) error {

	if _, ok := tbl.pos[name]; ok {
		return &ShapeError{Msg: fmt.Sprintf("duplicate column '%s'", name)}
	}
	if len(tbl.cols) > 0 && len(x) != tbl.NumRows() {
		return &ShapeError{Msg: fmt.Sprintf("column '%s' has %d rows, table has %d", name, len(x), tbl.NumRows())}
	}

	tbl.pos[name] = len(tbl.names)
	tbl.names = append(tbl.names, name)
	tbl.cols = append(tbl.cols, x)
	if levels != nil {
		tbl.levels[name] = levels
	}

	return nil
}

// DropColumn removes the named column if it is present.
func (tbl *Table) DropColumn(name string) {

	j, ok := tbl.pos[name]
	if !ok {
		return
	}

	tbl.names = slices.Delete(tbl.names, j, j+1)
	tbl.cols = slices.Delete(tbl.cols, j, j+1)
	delete(tbl.levels, name)

	tbl.pos = make(map[string]int, len(tbl.names))
	for k, na := range tbl.names {
		tbl.pos[na] = k
	}
}

// Names returns the column names in table order.
func (tbl *Table) Names() []string {
	return tbl.names
}

// NumRows returns the number of records.
func (tbl *Table) NumRows() int {
	if len(tbl.cols) == 0 {
		return 0
	}
	return len(tbl.cols[0])
}

// Has returns true if the table has the named column.
func (tbl *Table) Has(name string) bool {
	_, ok := tbl.pos[name]
	return ok
}

// Column returns the named column, or nil if it is absent.  The returned
// slice is shared with the table.
func (tbl *Table) Column(name string) []float64 {
	j, ok := tbl.pos[name]
	if !ok {
		return nil
	}
	return tbl.cols[j]
}

// IsCategorical returns true if the named column is categorical.
func (tbl *Table) IsCategorical(name string) bool {
	_, ok := tbl.levels[name]
	return ok
}

// Levels returns the levels of a categorical column, or nil.
func (tbl *Table) Levels(name string) []string {
	return tbl.levels[name]
}

// Label returns the text of cell i in the named column.  Missing cells
// are returned as an empty string.
func (tbl *Table) Label(name string, i int) string {
	x := tbl.Column(name)
	if x == nil || math.IsNaN(x[i]) {
		return ""
	}
	if lev, ok := tbl.levels[name]; ok {
		return lev[int(x[i])]
	}
	return strconv.FormatFloat(x[i], 'g', -1, 64)
}

// CountMissing returns the number of missing cells in the named column.
func (tbl *Table) CountMissing(name string) int {
	var n int
	for _, v := range tbl.Column(name) {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the table.
func (tbl *Table) Clone() *Table {

	c := &Table{
		names:  slices.Clone(tbl.names),
		cols:   make([][]float64, len(tbl.cols)),
		pos:    make(map[string]int, len(tbl.pos)),
		levels: make(map[string][]string, len(tbl.levels)),
	}

	for j, x := range tbl.cols {
		c.cols[j] = slices.Clone(x)
	}
	for k, v := range tbl.pos {
		c.pos[k] = v
	}
	for k, v := range tbl.levels {
		c.levels[k] = slices.Clone(v)
	}

	return c
}

// SelectRows returns a new table containing the given rows, in the
// given order.
func (tbl *Table) SelectRows(rows []int) *Table {

	c := &Table{
		names:  slices.Clone(tbl.names),
		cols:   make([][]float64, len(tbl.cols)),
		pos:    make(map[string]int, len(tbl.pos)),
		levels: make(map[string][]string, len(tbl.levels)),
	}

	for j, x := range tbl.cols {
		y := make([]float64, len(rows))
		for i, r := range rows {
			y[i] = x[r]
		}
		c.cols[j] = y
	}
	for k, v := range tbl.pos {
		c.pos[k] = v
	}
	for k, v := range tbl.levels {
		c.levels[k] = slices.Clone(v)
	}

	return c
}

// CastCategorical converts a numeric column to a categorical column
// whose levels are the distinct observed values in increasing order.
// Categorical columns are left unchanged.
func (tbl *Table) CastCategorical(name string) error {

	x := tbl.Column(name)
	if x == nil {
		return &DataError{Field: name, Row: -1, Msg: "column not found"}
	}
	if tbl.IsCategorical(name) {
		return nil
	}

	var vals []float64
	for _, v := range x {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	sort.Float64s(vals)
	vals = slices.Compact(vals)

	code := make(map[float64]int, len(vals))
	levels := make([]string, len(vals))
	for k, v := range vals {
		code[v] = k
		levels[k] = strconv.FormatFloat(v, 'g', -1, 64)
	}

	for i, v := range x {
		if !math.IsNaN(v) {
			x[i] = float64(code[v])
		}
	}
	tbl.levels[name] = levels

	return nil
}

// Dataset returns the table as a statmodel Dataset sharing its columns.
func (tbl *Table) Dataset() statmodel.Dataset {
	return statmodel.NewDataset(tbl.cols, tbl.names)
}

// SameShape returns a ShapeError if the two tables differ in row count,
// column names or categorical levels.
func SameShape(a, b *Table) error {

	if a.NumRows() != b.NumRows() {
		return &ShapeError{Msg: fmt.Sprintf("row counts differ: %d != %d", a.NumRows(), b.NumRows())}
	}

	if !slices.Equal(a.names, b.names) {
		return &ShapeError{Msg: fmt.Sprintf("column sets differ: %v != %v", a.names, b.names)}
	}

	for na, lev := range a.levels {
		if !slices.Equal(lev, b.levels[na]) {
			return &ShapeError{Msg: fmt.Sprintf("levels of '%s' differ", na)}
		}
	}
	if len(a.levels) != len(b.levels) {
		return &ShapeError{Msg: "categorical column sets differ"}
	}

	return nil
}
