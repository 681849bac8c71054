// Package crossval produces the train/test split and the cross-validation
// fold assignments.  All randomness comes from seeded PCG streams, so
// that the same seed always gives the same partition.
package crossval

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// Stream identifiers, combined with the seed to form independent PCG
// streams.
const (
	splitStream uint64 = 1
	foldStream  uint64 = 2
)

// Mask is a partition of the rows 0..n-1 into training and test rows.
type Mask struct {

	// Sorted row indices
	Train []int
	Test  []int

	test []bool
}

// NumRows returns the number of rows covered by the mask.
func (m *Mask) NumRows() int {
	return len(m.test)
}

// IsTest returns true if row i is a test row.
func (m *Mask) IsTest(i int) bool {
	return m.test[i]
}

// Equal returns true if the two masks select the same test rows.
func (m *Mask) Equal(o *Mask) bool {
	return slices.Equal(m.test, o.test)
}

// strata groups row indices by the distinct values of y, in increasing
// order of the value.
func strata(y []float64) ([][]int, error) {

	var vals []float64
	for i, v := range y {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("crossval: stratum variable is missing at row %d", i)
		}
		vals = append(vals, v)
	}
	slices.Sort(vals)
	vals = slices.Compact(vals)

	groups := make([][]int, len(vals))
	for i, v := range y {
		k, _ := slices.BinarySearch(vals, v)
		groups[k] = append(groups[k], i)
	}

	return groups, nil
}

// StratifiedSplit sends round(n_s * testFrac) randomly chosen rows of each
// stratum of y to the test set, and the remaining rows to the training
// set.  Both sets must be non-empty.
func StratifiedSplit(y []float64, testFrac float64, seed uint64) (*Mask, error) {

	if testFrac <= 0 || testFrac >= 1 {
		return nil, fmt.Errorf("crossval: test fraction %g is not in (0, 1)", testFrac)
	}

	groups, err := strata(y)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(seed, splitStream))
	m := &Mask{test: make([]bool, len(y))}

	for _, g := range groups {
		g = slices.Clone(g)
		rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
		nt := int(math.Round(float64(len(g)) * testFrac))
		for _, i := range g[:nt] {
			m.test[i] = true
		}
	}

	for i, t := range m.test {
		if t {
			m.Test = append(m.Test, i)
		} else {
			m.Train = append(m.Train, i)
		}
	}

	if len(m.Test) == 0 || len(m.Train) == 0 {
		return nil, fmt.Errorf("crossval: split of %d rows with test fraction %g leaves an empty set", len(y), testFrac)
	}

	return m, nil
}

// Folds assigns each of n rows to one of k folds, numbered 0..k-1.  Fold
// sizes differ by at most one.
func Folds(n, k int, seed uint64) []int {

	rng := rand.New(rand.NewPCG(seed, foldStream))

	ids := make([]int, n)
	for i := range ids {
		ids[i] = i % k
	}
	rng.Shuffle(n, func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	return ids
}

// StratifiedFolds assigns rows to k folds so that every stratum of y is
// spread as evenly as possible over the folds.
func StratifiedFolds(y []float64, k int, seed uint64) ([]int, error) {

	if k < 2 {
		return nil, fmt.Errorf("crossval: need at least 2 folds, got %d", k)
	}
	if k > len(y) {
		return nil, fmt.Errorf("crossval: %d folds for %d rows", k, len(y))
	}

	groups, err := strata(y)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(seed, foldStream))
	ids := make([]int, len(y))

	// Continue the fold rotation across strata so that fold sizes stay
	// balanced overall.
	var off int
	for _, g := range groups {
		g = slices.Clone(g)
		rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
		for r, i := range g {
			ids[i] = (off + r) % k
		}
		off += len(g)
	}

	return ids, nil
}
