// Package pool combines coefficient estimates across imputed datasets
// using Rubin's rules.
package pool

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/kshedden/mipool/trial"
)

// Estimate is the pooled estimate of one coefficient.
type Estimate struct {
	Predictor string

	// Pooled point estimate and standard error
	Mean float64
	SE   float64

	// Population variance of the estimates (divisor M) and sample
	// variance (divisor M-1)
	Within  float64
	Between float64

	// Number of estimates pooled, and how many of them are nonzero
	M       int
	NonZero int
}

// Pool combines the coefficient vectors of M imputations.  Every vector
// must hold exactly the predictors in names, which also gives the order
// of the results.  Missing (NaN) estimates are ignored and M counts the
// remaining ones.  Zero estimates, from imputations where a predictor
// was not selected, are included.
//
// The pooled standard error is sqrt(within + (1 + 1/M) * between).
func Pool(names []string, coefs []map[string]float64) ([]Estimate, error) {

	if len(coefs) == 0 {
		return nil, &trial.ShapeError{Msg: "no coefficient vectors to pool"}
	}

	want := slices.Clone(names)
	sort.Strings(want)
	for k, c := range coefs {
		have := make([]string, 0, len(c))
		for na := range c {
			have = append(have, na)
		}
		sort.Strings(have)
		if !slices.Equal(want, have) {
			return nil, &trial.ShapeError{Msg: fmt.Sprintf("coefficient vector %d has predictors %v, expected %v", k, have, want)}
		}
	}

	est := make([]Estimate, len(names))
	for j, na := range names {

		var x []float64
		var nz int
		for _, c := range coefs {
			v := c[na]
			if math.IsNaN(v) {
				continue
			}
			x = append(x, v)
			if v != 0 {
				nz++
			}
		}

		est[j] = combine(na, x)
		est[j].NonZero = nz
	}

	return est, nil
}

func combine(na string, x []float64) Estimate {

	e := Estimate{Predictor: na, M: len(x)}

	switch {
	case len(x) == 0:
		e.Mean, e.SE, e.Within, e.Between = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return e
	case allEqual(x):
		// Exact, with no rounding in the variances.
		e.Mean = x[0]
		return e
	}

	e.Mean, _ = stats.Mean(x)
	e.Within, _ = stats.PopulationVariance(x)
	e.Between, _ = stats.SampleVariance(x)

	m := float64(len(x))
	e.SE = math.Sqrt(e.Within + (1+1/m)*e.Between)

	return e
}

func allEqual(x []float64) bool {
	for _, v := range x {
		if v != x[0] {
			return false
		}
	}
	return true
}

// Selected returns the estimates whose pooled mean is not exactly zero.
func Selected(est []Estimate) []Estimate {
	var sel []Estimate
	for _, e := range est {
		if e.Mean != 0 {
			sel = append(sel, e)
		}
	}
	return sel
}
