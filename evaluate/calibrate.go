package evaluate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Bin is one bin of a calibration table.
type Bin struct {

	// Prediction range covered by the bin
	Lower float64
	Upper float64

	Count int

	// Mean predicted probability
	Expected float64

	// Mean observed outcome and its sample standard deviation
	Observed   float64
	ObservedSD float64
}

// Calibrate pools the (prediction, outcome) pairs of all prediction
// vectors, which share the outcomes y, and groups them into nbins
// equal-width bins spanning the range of the predictions.  The largest
// prediction falls in the last bin.  Empty bins have NaN means, and the
// standard deviation is NaN in bins with fewer than two pairs.
func Calibrate(preds [][]float64, y []float64, nbins int) ([]Bin, error) {

	if nbins < 1 {
		return nil, fmt.Errorf("evaluate: number of bins must be positive, got %d", nbins)
	}
	if len(preds) == 0 {
		return nil, errors.New("evaluate: no prediction vectors")
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for k, p := range preds {
		if len(p) != len(y) {
			return nil, fmt.Errorf("evaluate: prediction vector %d has length %d, expected %d", k, len(p), len(y))
		}
		for _, v := range p {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("evaluate: prediction vector %d has missing values", k)
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	width := (hi - lo) / float64(nbins)

	pv := make([][]float64, nbins)
	ov := make([][]float64, nbins)
	for _, p := range preds {
		for i, v := range p {
			b := nbins - 1
			if width > 0 {
				b = min(int((v-lo)/width), nbins-1)
			}
			pv[b] = append(pv[b], v)
			ov[b] = append(ov[b], y[i])
		}
	}

	bins := make([]Bin, nbins)
	for b := range bins {
		bins[b] = Bin{
			Lower:      lo + float64(b)*width,
			Upper:      lo + float64(b+1)*width,
			Count:      len(pv[b]),
			Expected:   math.NaN(),
			Observed:   math.NaN(),
			ObservedSD: math.NaN(),
		}
		if len(pv[b]) == 0 {
			continue
		}
		bins[b].Expected, _ = stats.Mean(pv[b])
		bins[b].Observed, _ = stats.Mean(ov[b])
		if len(ov[b]) > 1 {
			bins[b].ObservedSD, _ = stats.StandardDeviationSample(ov[b])
		}
	}
	bins[nbins-1].Upper = hi

	return bins, nil
}

// Loess returns a tricube-weighted local linear smooth of y on x,
// evaluated at the points in at.  Each local fit uses the nearest
// ceil(span * n) observations.
func Loess(x, y []float64, span float64, at []float64) ([]float64, error) {

	n := len(x)
	if n != len(y) {
		return nil, fmt.Errorf("evaluate: loess x has length %d, y has length %d", n, len(y))
	}
	if n < 2 {
		return nil, errors.New("evaluate: loess needs at least two points")
	}
	if span <= 0 || span > 1 {
		return nil, fmt.Errorf("evaluate: loess span %g is not in (0, 1]", span)
	}
	k := max(int(math.Ceil(span*float64(n))), 2)

	fit := make([]float64, len(at))
	dist := make([]float64, n)
	w := make([]float64, n)
	for q, a := range at {

		for i, v := range x {
			dist[i] = math.Abs(v - a)
		}
		sd := append([]float64(nil), dist...)
		sort.Float64s(sd)
		h := sd[k-1]
		if h == 0 {
			h = 1e-12
		}
		h *= 1 + 1e-10

		for i, d := range dist {
			w[i] = 0
			if u := d / h; u < 1 {
				w[i] = math.Pow(1-u*u*u, 3)
			}
		}

		// A local line needs two distinct x values with weight.
		if spread(x, w) {
			alpha, beta := stat.LinearRegression(x, y, w, false)
			fit[q] = alpha + beta*a
		} else {
			fit[q] = stat.Mean(y, w)
		}
	}

	return fit, nil
}

func spread(x, w []float64) bool {
	first := math.NaN()
	for i, v := range x {
		if w[i] == 0 {
			continue
		}
		if math.IsNaN(first) {
			first = v
		} else if v != first {
			return true
		}
	}
	return false
}

// LinearFit returns the least squares line of y on x, evaluated at x.
func LinearFit(x, y []float64) ([]float64, error) {

	if len(x) != len(y) {
		return nil, fmt.Errorf("evaluate: linear fit x has length %d, y has length %d", len(x), len(y))
	}

	s := make(stats.Series, len(x))
	for i := range x {
		s[i] = stats.Coordinate{X: x[i], Y: y[i]}
	}

	r, err := stats.LinearRegression(s)
	if err != nil {
		return nil, fmt.Errorf("evaluate: linear fit: %w", err)
	}

	fit := make([]float64, len(r))
	for i, c := range r {
		fit[i] = c.Y
	}

	return fit, nil
}
