// Package impute produces multiply imputed copies of a participant table.
package impute

import (
	"context"
	"fmt"
	"math"

	"github.com/kshedden/mipool/trial"
)

// Imputer produces m completed copies of a table.  Cells that are
// observed in the input are never changed.
type Imputer interface {
	Impute(ctx context.Context, tbl *trial.Table, m int, seed uint64) ([]*trial.Table, error)
}

// Check verifies that imputed holds m completed copies of orig: the
// same fields, levels and row count, the same value in every observed
// cell, and no missing cells.
func Check(orig *trial.Table, imputed []*trial.Table, m int) error {

	if len(imputed) != m {
		return &trial.ShapeError{Msg: fmt.Sprintf("expected %d imputed tables, got %d", m, len(imputed))}
	}

	for k, tbl := range imputed {

		if err := trial.SameShape(orig, tbl); err != nil {
			return fmt.Errorf("imputation %d: %w", k, err)
		}

		for _, na := range orig.Names() {
			x := orig.Column(na)
			y := tbl.Column(na)
			for i, v := range y {
				switch {
				case math.IsNaN(v):
					return &trial.ShapeError{Msg: fmt.Sprintf("imputation %d: field '%s' row %d is still missing", k, na, i)}
				case !math.IsNaN(x[i]) && x[i] != v:
					return &trial.ShapeError{Msg: fmt.Sprintf("imputation %d: observed cell of '%s' row %d was changed", k, na, i)}
				}
			}
		}
	}

	return nil
}
