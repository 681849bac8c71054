package evaluate

import (
	"fmt"
	"math"

	"github.com/kshedden/mipool/trial"
	"gonum.org/v1/gonum/stat/distuv"
)

// Association is a Pearson chi-square test of independence between a
// categorical field and a binary outcome.
type Association struct {
	Field string

	Stat   float64
	DF     int
	PValue float64

	// Rows where both the field and the outcome are observed
	N int
}

// Associate tests every categorical field of tbl, other than the
// outcome, against the outcome.  Rows with a missing field or outcome
// are skipped.  Levels and outcome values that never occur do not count
// toward the degrees of freedom.  A field with fewer than two observed
// levels has a NaN statistic and p-value and zero degrees of freedom.
func Associate(tbl *trial.Table, outcome string) ([]Association, error) {

	y := tbl.Column(outcome)
	if y == nil {
		return nil, &trial.DataError{Field: outcome, Row: -1, Msg: "outcome is absent"}
	}

	var assoc []Association
	for _, na := range tbl.Names() {
		if na == outcome || !tbl.IsCategorical(na) {
			continue
		}
		a, err := chiSquare(na, tbl.Column(na), len(tbl.Levels(na)), y)
		if err != nil {
			return nil, err
		}
		assoc = append(assoc, a)
	}

	return assoc, nil
}

func chiSquare(name string, x []float64, nlev int, y []float64) (Association, error) {

	a := Association{Field: name, Stat: math.NaN(), PValue: math.NaN()}

	counts := make([][2]float64, nlev)
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		if y[i] != 0 && y[i] != 1 {
			return a, &trial.DataError{Field: name, Row: i, Msg: fmt.Sprintf("outcome has value %g, expected 0 or 1", y[i])}
		}
		counts[int(x[i])][int(y[i])]++
		a.N++
	}

	var rowTot []float64
	var colTot [2]float64
	var obs [][2]float64
	for _, c := range counts {
		if c[0]+c[1] == 0 {
			continue
		}
		obs = append(obs, c)
		rowTot = append(rowTot, c[0]+c[1])
		colTot[0] += c[0]
		colTot[1] += c[1]
	}
	if len(obs) < 2 || colTot[0] == 0 || colTot[1] == 0 {
		return a, nil
	}

	n := float64(a.N)
	a.Stat = 0
	for r, c := range obs {
		for j := range 2 {
			e := rowTot[r] * colTot[j] / n
			d := c[j] - e
			a.Stat += d * d / e
		}
	}
	a.DF = len(obs) - 1
	a.PValue = distuv.ChiSquared{K: float64(a.DF)}.Survival(a.Stat)

	return a, nil
}
