package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/kshedden/mipool/statmodel"
	"github.com/xuri/excelize/v2"
)

// sheetRows returns the header and body of a table as spreadsheet rows.
// Missing numbers become empty cells.
func sheetRows(st *statmodel.SummaryTable) ([][]interface{}, error) {

	header := make([]interface{}, len(st.ColNames))
	for j, na := range st.ColNames {
		header[j] = strings.TrimSpace(na)
	}
	rows := [][]interface{}{header}

	for j, col := range st.Cols {
		var cells []interface{}
		switch x := col.(type) {
		case []string:
			for _, v := range x {
				cells = append(cells, v)
			}
		case []int:
			for _, v := range x {
				cells = append(cells, v)
			}
		case []float64:
			for _, v := range x {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					cells = append(cells, nil)
				} else {
					cells = append(cells, v)
				}
			}
		default:
			return nil, fmt.Errorf("table '%s': column '%s' has unsupported type %T", st.Title, st.ColNames[j], col)
		}

		for i, c := range cells {
			for len(rows) <= i+1 {
				rows = append(rows, make([]interface{}, len(st.ColNames)))
			}
			rows[i+1][j] = c
		}
	}

	return rows, nil
}

// WriteWorkbook writes each table to its own sheet of an Excel
// workbook.  Sheet names are truncated to the 31 characters Excel
// allows.
func WriteWorkbook(path string, names []string, tabs []*statmodel.SummaryTable) error {

	if len(names) != len(tabs) {
		return fmt.Errorf("%d sheet names for %d tables", len(names), len(tabs))
	}
	if len(tabs) == 0 {
		return fmt.Errorf("no tables to write")
	}

	f := excelize.NewFile()
	defer f.Close()

	for k, st := range tabs {

		sheet := names[k]
		if len(sheet) > 31 {
			sheet = sheet[:31]
		}
		if k == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		rows, err := sheetRows(st)
		if err != nil {
			return err
		}
		for i, r := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet, cell, &r); err != nil {
				return err
			}
		}
	}

	f.SetActiveSheet(0)
	return f.SaveAs(path)
}
