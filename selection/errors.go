package selection

import (
	"fmt"
	"math"
)

// ConvergenceError reports a penalized fit that could not be completed:
// the cross-validation curve has no finite minimum, or the selected fit
// did not converge.
type ConvergenceError struct {

	// "lasso" or "subset"
	Model string

	// The imputation being fit, or -1 if unknown
	Imputation int

	Reason string
}

func (e *ConvergenceError) Error() string {
	if e.Imputation < 0 {
		return fmt.Sprintf("convergence error: %s: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("convergence error: %s, imputation %d: %s", e.Model, e.Imputation, e.Reason)
}

// tieTol is the relative tolerance within which two cross-validation
// errors are considered tied.
const tieTol = 1e-12

// ArgMinTie returns the position of the smallest finite value.  Values
// within a relative tolerance of the minimum are tied, and among tied
// positions the one whose params tuple is lexicographically smallest
// is returned.  It returns -1 if no value is finite.
func ArgMinTie(values []float64, params [][]float64) int {

	vmin := math.Inf(1)
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v < vmin {
			vmin = v
		}
	}
	if math.IsInf(vmin, 1) {
		return -1
	}

	tol := tieTol * math.Max(1, math.Abs(vmin))
	best := -1
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v-vmin > tol {
			continue
		}
		if best == -1 || lexLess(params[i], params[best]) {
			best = i
		}
	}

	return best
}

func lexLess(a, b []float64) bool {
	for k := range a {
		switch {
		case a[k] < b[k]:
			return true
		case a[k] > b[k]:
			return false
		}
	}
	return false
}
