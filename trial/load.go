package trial

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Load reads a participant table from a .csv file or from the first
// sheet of a .xlsx workbook.  The first row must hold the column names.
// Empty cells and NA are missing.  Columns whose non-missing cells all
// parse as numbers are numeric, all others are categorical with levels
// in sorted order.
func Load(path string) (*Table, error) {

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("data file not found: %w", err)
	}

	var rows [][]string
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readExcel(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
	if err != nil {
		return nil, err
	}

	return FromRecords(rows)
}

func readCSV(path string) ([][]string, error) {

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}

	return rows, nil
}

func readExcel(path string) ([][]string, error) {

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file %s has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	return rows, nil
}

func isMissing(s string) bool {
	switch s {
	case "", "NA", "NaN", "nan", ".":
		return true
	}
	return false
}

// FromRecords builds a table from rows of text cells, the first of
// which holds the column names.  Short rows are padded with missing cells.
func FromRecords(rows [][]string) (*Table, error) {

	if len(rows) < 2 {
		return nil, fmt.Errorf("data must have a header row and at least one data row")
	}

	header := make([]string, len(rows[0]))
	for j, h := range rows[0] {
		header[j] = strings.TrimSpace(h)
		if header[j] == "" {
			return nil, &DataError{Field: fmt.Sprintf("#%d", j+1), Row: -1, Msg: "empty column name"}
		}
	}

	nrow := len(rows) - 1
	tbl := &Table{
		pos:    make(map[string]int),
		levels: make(map[string][]string),
	}

	cell := func(i, j int) string {
		r := rows[i+1]
		if j >= len(r) {
			return ""
		}
		return strings.TrimSpace(r[j])
	}

	for j, na := range header {

		x := make([]float64, nrow)
		numeric := true
		for i := range x {
			s := cell(i, j)
			if isMissing(s) {
				x[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				numeric = false
				break
			}
			x[i] = v
		}

		var levels []string
		if !numeric {
			for i := range x {
				if s := cell(i, j); !isMissing(s) {
					levels = append(levels, s)
				}
			}
			sort.Strings(levels)
			levels = slices.Compact(levels)
			code := make(map[string]int, len(levels))
			for k, s := range levels {
				code[s] = k
			}
			for i := range x {
				if s := cell(i, j); isMissing(s) {
					x[i] = math.NaN()
				} else {
					x[i] = float64(code[s])
				}
			}
		}

		if err := tbl.AddColumn(na, x, levels); err != nil {
			return nil, err
		}
	}

	return tbl, nil
}

// WriteCSV writes the table as CSV with a header row.  Categorical
// cells are written as their level labels, missing cells as NA.
func (tbl *Table) WriteCSV(w io.Writer) error {

	cw := csv.NewWriter(w)
	if err := cw.Write(tbl.names); err != nil {
		return err
	}

	rec := make([]string, len(tbl.names))
	for i := 0; i < tbl.NumRows(); i++ {
		for j, na := range tbl.names {
			rec[j] = tbl.Label(na, i)
			if rec[j] == "" {
				rec[j] = "NA"
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
