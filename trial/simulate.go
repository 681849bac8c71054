package trial

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
)

// SimConfig describes a synthetic trial.
type SimConfig struct {

	// Number of records, including the one anomalous education record.
	Rows int

	Seed uint64

	// Probability that a covariate cell is missing, completely at random.
	// The id, outcome and treatment flags are never missing.
	Missing float64

	// Intercept of the logistic outcome model.
	Intercept float64

	// Log odds ratios per standard deviation of the numeric covariates.
	// Covariates not listed have no effect.
	Coef map[string]float64
}

// SimNumeric are the numeric covariates of a simulated trial, all
// standard normal.
var SimNumeric = []string{"age", "ftcd", "bdi", "qsu", "nmr", "cpd", "bmi", "years_smoked"}

// DefaultSimConfig returns a trial with three predictive covariates.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Rows:      300,
		Seed:      1,
		Intercept: -0.5,
		Coef: map[string]float64{
			"ftcd": -1.0,
			"nmr":  -0.8,
			"bdi":  0.9,
		},
	}
}

// Simulate generates a raw trial table, in the layout expected by
// Prepare, from a logistic outcome model.
func Simulate(cfg SimConfig) (*Table, error) {

	if cfg.Rows < 2 {
		return nil, fmt.Errorf("simulate: at least two rows are needed, got %d", cfg.Rows)
	}
	if cfg.Missing < 0 || cfg.Missing >= 1 {
		return nil, fmt.Errorf("simulate: missing rate %g is not in [0, 1)", cfg.Missing)
	}
	for na := range cfg.Coef {
		if !slices.Contains(SimNumeric, na) {
			return nil, fmt.Errorf("simulate: no covariate named '%s'", na)
		}
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, 0x7269616c))
	n := cfg.Rows

	bern := func(p float64) []float64 {
		x := make([]float64, n)
		for i := range x {
			if rng.Float64() < p {
				x[i] = 1
			}
		}
		return x
	}

	codes := func(k int) []float64 {
		x := make([]float64, n)
		for i := range x {
			x[i] = float64(1 + rng.IntN(k))
		}
		return x
	}

	id := make([]float64, n)
	for i := range id {
		id[i] = float64(1001 + i)
	}

	cols := map[string][]float64{
		"id":          id,
		"varenicline": bern(0.5),
		"ba":          bern(0.5),
		"sex":         bern(0.55),
		"white":       bern(0.6),
		"black":       bern(0.3),
		"hispanic":    bern(0.1),
		"education":   codes(len(EducationLabels)),
		"income":      codes(len(IncomeLabels)),
	}

	// One record carries the anomalous education code.
	cols["education"][rng.IntN(n)] = DefaultPrepareConfig().AnomalousEducation

	lp := make([]float64, n)
	for i := range lp {
		lp[i] = cfg.Intercept
	}

	// Iterate in a fixed order so the stream is reproducible.
	for _, na := range SimNumeric {
		x := make([]float64, n)
		for i := range x {
			x[i] = rng.NormFloat64()
			lp[i] += cfg.Coef[na] * x[i]
		}
		cols[na] = x
	}

	y := make([]float64, n)
	for i := range y {
		if rng.Float64() < 1/(1+math.Exp(-lp[i])) {
			y[i] = 1
		}
	}
	cols["abstinent"] = y

	names := []string{"id", "abstinent", "varenicline", "ba"}
	names = append(names, SimNumeric...)
	names = append(names, "sex", "white", "black", "hispanic", "education", "income")

	if cfg.Missing > 0 {
		anom := DefaultPrepareConfig().AnomalousEducation
		masked := slices.Clone(names[4:])
		sort.Strings(masked)
		for _, na := range masked {
			x := cols[na]
			for i := range x {
				if rng.Float64() < cfg.Missing && !(na == "education" && x[i] == anom) {
					x[i] = math.NaN()
				}
			}
		}
	}

	data := make([][]float64, len(names))
	for j, na := range names {
		data[j] = cols[na]
	}

	return NewTable(names, data)
}
