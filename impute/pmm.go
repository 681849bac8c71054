package impute

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kshedden/mipool/glm"
	"github.com/kshedden/mipool/statmodel"
	"github.com/kshedden/mipool/trial"
)

// ChainedPMM imputes by chained equations with predictive mean matching.
// Each incomplete field is regressed on all other fields, and each
// missing cell takes the observed value of a donor chosen at random
// among the observed rows whose predicted means are closest.  Fills are
// therefore always values that occur in the data, including for
// categorical fields, which are matched on their level codes.
type ChainedPMM struct {

	// Number of sweeps over the incomplete fields
	MaxIter int `yaml:"max_iter"`

	// Number of candidate donors for each missing cell
	Donors int `yaml:"donors"`

	// Ridge penalty of the imputation regressions
	Ridge float64 `yaml:"ridge"`

	// Fields that are neither imputed nor used as predictors
	Exclude []string `yaml:"exclude"`

	Log *zap.Logger `yaml:"-"`
}

// NewChainedPMM returns an imputer with the default settings.  The
// given fields, usually the identifier and the outcome, are excluded.
func NewChainedPMM(exclude ...string) *ChainedPMM {
	return &ChainedPMM{
		MaxIter: 10,
		Donors:  5,
		Ridge:   1e-5,
		Exclude: exclude,
	}
}

// Stream offset of the per-imputation random streams.
const chainStream uint64 = 100

// Impute returns m completed copies of tbl.  Copy k depends only on tbl
// and the PCG stream (seed, 100+k), and the copies are computed
// concurrently.
func (pmm *ChainedPMM) Impute(ctx context.Context, tbl *trial.Table, m int, seed uint64) ([]*trial.Table, error) {

	if m < 1 {
		return nil, fmt.Errorf("impute: number of imputations must be positive, got %d", m)
	}
	if pmm.Donors < 1 {
		return nil, fmt.Errorf("impute: number of donors must be positive, got %d", pmm.Donors)
	}

	logger := pmm.Log
	if logger == nil {
		logger = zap.NewNop()
	}

	var use, todo []string
	for _, na := range tbl.Names() {
		excluded := slices.Contains(pmm.Exclude, na)
		nmiss := tbl.CountMissing(na)
		switch {
		case excluded && nmiss > 0:
			return nil, &trial.DataError{Field: na, Row: -1, Msg: fmt.Sprintf("%d missing values in a field that is not imputed", nmiss)}
		case excluded:
			continue
		case nmiss == tbl.NumRows():
			return nil, &trial.DataError{Field: na, Row: -1, Msg: "no observed values"}
		case nmiss > 0:
			todo = append(todo, na)
		}
		use = append(use, na)
	}

	logger.Info("imputing",
		zap.Int("m", m),
		zap.Strings("fields", todo),
		zap.Int("rows", tbl.NumRows()))

	out := make([]*trial.Table, m)
	g, ctx := errgroup.WithContext(ctx)
	for k := range out {
		g.Go(func() error {
			c := &chain{
				pmm:  pmm,
				tbl:  tbl.Clone(),
				orig: tbl,
				use:  use,
				todo: todo,
				rng:  rand.New(rand.NewPCG(seed, chainStream+uint64(k))),
				log:  logger.With(zap.Int("imputation", k)),
			}
			if err := c.run(ctx); err != nil {
				return fmt.Errorf("impute: imputation %d: %w", k, err)
			}
			out[k] = c.tbl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// chain is one imputation.
type chain struct {
	pmm  *ChainedPMM
	tbl  *trial.Table
	orig *trial.Table
	use  []string
	todo []string
	rng  *rand.Rand
	log  *zap.Logger
}

func (c *chain) run(ctx context.Context) error {

	// Start from random draws of the observed values.
	for _, na := range c.todo {
		obs, miss := c.rows(na)
		x := c.tbl.Column(na)
		for _, i := range miss {
			x[i] = x[obs[c.rng.IntN(len(obs))]]
		}
	}

	for iter := 0; iter < c.pmm.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, na := range c.todo {
			if err := c.step(na); err != nil {
				return fmt.Errorf("field '%s': %w", na, err)
			}
		}
		c.log.Debug("imputation sweep", zap.Int("iter", iter))
	}

	return nil
}

// rows returns the rows where the field is observed and missing in the
// original table.
func (c *chain) rows(na string) (obs, miss []int) {
	for i, v := range c.orig.Column(na) {
		if math.IsNaN(v) {
			miss = append(miss, i)
		} else {
			obs = append(obs, i)
		}
	}
	return obs, miss
}

// predictors returns the current values of all fields other than
// target, with categorical fields expanded to indicators of their
// non-first levels.
func (c *chain) predictors(target string) ([]string, [][]float64) {

	var names []string
	var cols [][]float64
	for _, na := range c.use {
		if na == target {
			continue
		}
		x := c.tbl.Column(na)
		if !c.tbl.IsCategorical(na) {
			names = append(names, na)
			cols = append(cols, x)
			continue
		}
		for k, lev := range c.tbl.Levels(na)[1:] {
			z := make([]float64, len(x))
			for i, v := range x {
				if int(v) == k+1 {
					z[i] = 1
				}
			}
			names = append(names, fmt.Sprintf("%s[%s]", na, lev))
			cols = append(cols, z)
		}
	}

	return names, cols
}

func subset(x []float64, rows []int) []float64 {
	z := make([]float64, len(rows))
	for i, r := range rows {
		z[i] = x[r]
	}
	return z
}

func constant(x []float64) bool {
	for _, v := range x {
		if v != x[0] {
			return false
		}
	}
	return true
}

// step refreshes the fills of one field.
func (c *chain) step(target string) error {

	obs, miss := c.rows(target)
	y := c.tbl.Column(target)
	names, cols := c.predictors(target)

	// Build the regression on the observed rows, dropping predictors
	// that do not vary there.
	data := [][]float64{subset(y, obs), make([]float64, len(obs))}
	dnames := []string{target, "icept"}
	for i := range data[1] {
		data[1][i] = 1
	}
	var xcols [][]float64
	for j, x := range cols {
		xo := subset(x, obs)
		if constant(xo) {
			continue
		}
		data = append(data, xo)
		dnames = append(dnames, names[j])
		xcols = append(xcols, x)
	}

	pen := make(map[string]float64)
	for _, na := range dnames[2:] {
		pen[na] = c.pmm.Ridge
	}
	cfg := glm.DefaultConfig()
	cfg.ScaleType = statmodel.Variance
	if len(pen) > 0 {
		cfg.L2Penalty = pen
	}
	cfg.Log = c.log

	model, err := glm.NewGLM(statmodel.NewDataset(data, dnames), target, dnames[1:], cfg)
	if err != nil {
		return err
	}
	rslt, err := model.Fit()
	if err != nil {
		return err
	}
	beta := rslt.Params()
	bstar := c.drawCoef(rslt, len(obs))

	pred := func(b []float64, i int) float64 {
		v := b[0]
		for j, x := range xcols {
			v += b[j+1] * x[i]
		}
		return v
	}

	// Observed rows are matched on the fitted coefficients, missing rows
	// on the drawn coefficients.
	type donor struct {
		mu float64
		v  float64
	}
	donors := make([]donor, len(obs))
	for k, i := range obs {
		donors[k] = donor{mu: pred(beta, i), v: y[i]}
	}
	sort.SliceStable(donors, func(a, b int) bool { return donors[a].mu < donors[b].mu })
	mus := make([]float64, len(donors))
	for k := range donors {
		mus[k] = donors[k].mu
	}

	nd := min(c.pmm.Donors, len(donors))
	for _, i := range miss {
		k := nearest(mus, pred(bstar, i), nd)
		y[i] = donors[k[c.rng.IntN(len(k))]].v
	}

	return nil
}

// drawCoef draws regression coefficients from their approximate
// posterior distribution given the fit, so that the imputations reflect
// the uncertainty of the imputation model.
func (c *chain) drawCoef(rslt *glm.Results, nobs int) []float64 {

	beta := rslt.Params()
	vcov := rslt.VCov()
	p := len(beta)
	df := nobs - p
	if vcov == nil || df < 1 {
		c.log.Debug("imputation model covariance not available, using point estimates")
		return beta
	}

	// Residual variance drawn as scale * df / chi2(df)
	chi := distuv.ChiSquared{K: float64(df), Src: c.rng}
	f := float64(df) / chi.Rand()

	sig := mat.NewSymDense(p, nil)
	for j1 := 0; j1 < p; j1++ {
		for j2 := 0; j2 <= j1; j2++ {
			sig.SetSym(j1, j2, f*vcov[j1*p+j2])
		}
	}

	norm, ok := distmv.NewNormal(beta, sig, c.rng)
	if !ok {
		c.log.Debug("imputation model covariance not positive definite, using point estimates")
		return beta
	}

	return norm.Rand(nil)
}

// nearest returns the positions of the k values of the sorted slice mus
// that are closest to v.
func nearest(mus []float64, v float64, k int) []int {

	hi := sort.SearchFloat64s(mus, v)
	lo := hi - 1
	var pos []int
	for len(pos) < k {
		switch {
		case lo < 0:
			pos = append(pos, hi)
			hi++
		case hi >= len(mus):
			pos = append(pos, lo)
			lo--
		case v-mus[lo] <= mus[hi]-v:
			pos = append(pos, lo)
			lo--
		default:
			pos = append(pos, hi)
			hi++
		}
	}

	return pos
}
