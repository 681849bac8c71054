package selection

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/kshedden/mipool/design"
	"github.com/kshedden/mipool/glm"
	"github.com/kshedden/mipool/statmodel"
)

// SubsetConfig configures a cross-validated L0L2 best subset fit.  The
// objective for a support S is the negative log-likelihood plus
// gamma * sum(b_j^2) over the standardized slopes plus lambda * |S|.
type SubsetConfig struct {

	// The ridge penalties gamma are log-spaced over [GammaMin, GammaMax].
	NGamma   int     `yaml:"n_gamma"`
	GammaMin float64 `yaml:"gamma_min"`
	GammaMax float64 `yaml:"gamma_max"`

	// Largest support considered
	MaxSupport int `yaml:"max_support"`

	// Number of best-scoring candidates refit at each forward step
	Screen int `yaml:"screen"`

	Log *zap.Logger `yaml:"-"`
}

// DefaultSubsetConfig returns the default best subset settings.
func DefaultSubsetConfig() *SubsetConfig {
	return &SubsetConfig{
		NGamma:     10,
		GammaMin:   1e-4,
		GammaMax:   10,
		MaxSupport: 10,
		Screen:     3,
	}
}

// SubsetCV is one cell of the best subset cross-validation grid.
type SubsetCV struct {
	Gamma  float64
	Lambda float64

	// Support size chosen with all rows
	Size int

	// Mean held-out deviance per observation and its standard error
	CVMean float64
	CVSE   float64
}

// SubsetFit is a cross-validated L0L2 best subset logistic regression.
type SubsetFit struct {

	// The selected penalties
	Gamma  float64
	Lambda float64

	// Names of the selected columns, in design order
	Support []string

	// The cross-validation grid
	CV []SubsetCV

	lin *linear
}

// Intercept returns the fitted intercept.
func (f *SubsetFit) Intercept() float64 {
	return f.lin.intercept
}

// Coefficients returns the slopes, zero outside the support.
func (f *SubsetFit) Coefficients() map[string]float64 {
	return f.lin.coefficients()
}

// Predict returns the predicted probabilities for the rows of x.
func (f *SubsetFit) Predict(x *design.Matrix) ([]float64, error) {
	return f.lin.predict(x)
}

// gammas returns the ridge penalties in increasing order.
func (cfg *SubsetConfig) gammas() ([]float64, error) {

	if cfg.NGamma < 1 {
		return nil, fmt.Errorf("selection: need at least one gamma, got %d", cfg.NGamma)
	}
	if cfg.GammaMin <= 0 || cfg.GammaMax < cfg.GammaMin {
		return nil, fmt.Errorf("selection: invalid gamma range [%g, %g]", cfg.GammaMin, cfg.GammaMax)
	}
	if cfg.NGamma == 1 {
		return []float64{cfg.GammaMin}, nil
	}

	g := make([]float64, cfg.NGamma)
	a, b := math.Log(cfg.GammaMin), math.Log(cfg.GammaMax)
	for k := range g {
		g[k] = math.Exp(a + float64(k)*(b-a)/float64(cfg.NGamma-1))
	}

	return g, nil
}

// subsetPath holds the best support found at each size, starting with
// the empty support.
type subsetPath struct {
	fits []*linear
	loss []float64
}

// size returns the support size minimizing loss + lambda*size, the
// smaller size on ties.
func (sp *subsetPath) size(lambda float64) int {
	best := 0
	for s := range sp.loss {
		if sp.loss[s]+lambda*float64(s) < sp.loss[best]+lambda*float64(best) {
			best = s
		}
	}
	return best
}

// lambdas returns one L0 penalty inside each interval over which a path
// size is optimal, in decreasing order.  The optimal sizes are the
// vertices of the lower convex hull of (size, loss).
func (sp *subsetPath) lambdas() []float64 {

	hull := []int{0}
	for s := 1; s < len(sp.loss); s++ {
		for len(hull) >= 2 {
			a, b := hull[len(hull)-2], hull[len(hull)-1]
			// Remove b if it lies on or above the segment from a to s.
			if (sp.loss[b]-sp.loss[a])*float64(s-a) >= (sp.loss[s]-sp.loss[a])*float64(b-a) {
				hull = hull[:len(hull)-1]
				continue
			}
			break
		}
		hull = append(hull, s)
	}

	// Slopes between consecutive hull vertices, decreasing
	var slope []float64
	for k := 1; k < len(hull); k++ {
		a, b := hull[k-1], hull[k]
		d := (sp.loss[a] - sp.loss[b]) / float64(b-a)
		if d <= 0 {
			break
		}
		slope = append(slope, d)
	}

	if len(slope) == 0 {
		return []float64{1}
	}

	lam := []float64{2 * slope[0]}
	for k := 1; k < len(slope); k++ {
		lam = append(lam, math.Sqrt(slope[k-1]*slope[k]))
	}
	lam = append(lam, slope[len(slope)-1]/2)

	return lam
}

// subsetFitter fits ridge-penalized logistic regressions on given
// supports of one design matrix.
type subsetFitter struct {
	x     *design.Matrix
	ds    statmodel.Dataset
	gamma float64
	sd    []float64
	log   *zap.Logger
}

// fit returns the fit on the given (sorted) support and its penalized
// negative log-likelihood.
func (sf *subsetFitter) fit(support []int, start *linear) (*linear, float64, error) {

	n := float64(sf.x.NumRows())
	preds := []string{design.Intercept}
	pen := make(map[string]float64, len(support))
	for _, j := range support {
		na := sf.x.Names[j]
		preds = append(preds, na)
		pen[na] = 2 * sf.gamma / n
	}

	gc := &glm.Config{
		Family:    glm.NewFamily(glm.BinomialFamily),
		L2Penalty: pen,
		ScaleType: statmodel.Variance,
		Start:     start.start(support),
		Log:       sf.log,
	}

	model, err := glm.NewGLM(sf.ds, sf.x.Outcome, preds, gc)
	if err != nil {
		return nil, 0, err
	}
	rslt, err := model.Fit()
	if err != nil {
		return nil, 0, err
	}

	return newLinear(sf.x.Names, support, rslt.Params()), -rslt.LogLike(), nil
}

// scores returns the absolute standardized score of every column at
// the fit, with -1 for columns in the support or without variation.
func (sf *subsetFitter) scores(lin *linear, support []int) []float64 {

	mu, _ := lin.predict(sf.x)
	sc := make([]float64, len(sf.x.Names))
	for j := range sc {
		if sf.sd[j] == 0 || slices.Contains(support, j) {
			sc[j] = -1
			continue
		}
		var g float64
		for i, y := range sf.x.Y {
			g += (y - mu[i]) * sf.x.X[j][i]
		}
		sc[j] = math.Abs(g) / sf.sd[j]
	}

	return sc
}

// top returns up to k columns with the largest non-negative scores.
func top(sc []float64, k int) []int {
	var idx []int
	for j, v := range sc {
		if v >= 0 {
			idx = append(idx, j)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return sc[idx[a]] > sc[idx[b]] })
	if len(idx) > k {
		idx = idx[:k]
	}
	return idx
}

func withColumn(support []int, j int) []int {
	s := append(slices.Clone(support), j)
	slices.Sort(s)
	return s
}

func swapColumn(support []int, out, in int) []int {
	s := slices.DeleteFunc(slices.Clone(support), func(j int) bool { return j == out })
	return withColumn(s, in)
}

// path builds the supports of sizes 0 to maxSupport.  Each size adds
// the best of the top screened columns to the previous support, then
// tries swapping each earlier member for the best-scoring outside
// column.
func (sf *subsetFitter) path(maxSupport, screen int) (*subsetPath, error) {

	cur, loss, err := interceptOnly(sf.x)
	if err != nil {
		return nil, err
	}

	sp := &subsetPath{fits: []*linear{cur}, loss: []float64{loss}}
	var support []int

	for s := 1; s <= maxSupport; s++ {

		var next *linear
		var nextSupp []int
		nextLoss := math.Inf(1)
		cands := top(sf.scores(cur, support), screen)
		for _, j := range cands {
			supp := withColumn(support, j)
			lin, l, err := sf.fit(supp, cur)
			if err != nil {
				sf.log.Warn("subset fit failed", zap.Ints("support", supp), zap.Error(err))
				continue
			}
			if l < nextLoss {
				next, nextSupp, nextLoss = lin, supp, l
			}
		}
		if next == nil {
			if s == 1 && len(cands) > 0 {
				return nil, &ConvergenceError{Model: "subset", Imputation: -1,
					Reason: "no single-column fit succeeded"}
			}
			sf.log.Warn("support path stopped early", zap.Int("size", s-1), zap.Int("max", maxSupport))
			break
		}

		// One pass of swaps over the members other than the newest.
		added := nextSupp[slices.IndexFunc(nextSupp, func(j int) bool { return !slices.Contains(support, j) })]
		for _, out := range slices.Clone(nextSupp) {
			if out == added {
				continue
			}
			cand := top(sf.scores(next, nextSupp), 1)
			if len(cand) == 0 {
				break
			}
			supp := swapColumn(nextSupp, out, cand[0])
			lin, l, err := sf.fit(supp, next)
			if err != nil {
				sf.log.Warn("subset swap fit failed", zap.Ints("support", supp), zap.Error(err))
				continue
			}
			if l < nextLoss-1e-10 {
				next, nextSupp, nextLoss = lin, supp, l
			}
		}

		cur, support = next, nextSupp
		sp.fits = append(sp.fits, cur)
		sp.loss = append(sp.loss, nextLoss)
	}

	return sp, nil
}

func (cfg *SubsetConfig) newFitter(x *design.Matrix, gamma float64, logger *zap.Logger) (*subsetFitter, error) {
	ds, err := x.Dataset(nil)
	if err != nil {
		return nil, err
	}
	return &subsetFitter{x: x, ds: ds, gamma: gamma, sd: popSD(x), log: logger}, nil
}

// CVBestSubset fits an L0L2 penalized logistic regression of x.Y on the
// columns of x.  For each ridge penalty gamma a path of supports is
// built, and the L0 penalties lambda are taken from the path fit to all
// rows.  Each (gamma, lambda) pair is scored by the mean held-out
// deviance over the given fold ids.  The pair with the smallest error is
// selected, ties going to the smallest gamma and then the smallest
// lambda.
func CVBestSubset(x *design.Matrix, folds []int, cfg *SubsetConfig) (*SubsetFit, error) {

	if cfg == nil {
		cfg = DefaultSubsetConfig()
	}
	logger := cfg.Log
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(folds) != x.NumRows() {
		return nil, fmt.Errorf("selection: %d fold ids for %d rows", len(folds), x.NumRows())
	}
	if cfg.MaxSupport < 1 {
		return nil, fmt.Errorf("selection: maximum support size %d is not positive", cfg.MaxSupport)
	}
	screen := max(cfg.Screen, 1)
	maxSupp := min(cfg.MaxSupport, len(x.Names))

	gammas, err := cfg.gammas()
	if err != nil {
		return nil, err
	}

	nfold := numFolds(folds)
	type foldData struct {
		train, test *design.Matrix
	}
	fd := make([]foldData, nfold)
	for k := range fd {
		train, test := foldRows(folds, k)
		if len(test) == 0 {
			return nil, fmt.Errorf("selection: fold %d is empty", k)
		}
		fd[k] = foldData{x.SelectRows(train), x.SelectRows(test)}
	}

	fit := &SubsetFit{}
	var paths []*subsetPath
	var values []float64
	var params [][]float64

	for _, gam := range gammas {

		sf, err := cfg.newFitter(x, gam, logger)
		if err != nil {
			return nil, err
		}
		full, err := sf.path(maxSupp, screen)
		if err != nil {
			return nil, err
		}
		paths = append(paths, full)
		lams := full.lambdas()

		total := make([]float64, len(lams))
		foldMean := make([][]float64, len(lams))
		for k := range fd {
			ff, err := cfg.newFitter(fd[k].train, gam, logger)
			if err != nil {
				return nil, err
			}
			fp, err := ff.path(maxSupp, screen)
			if err != nil {
				return nil, fmt.Errorf("selection: subset fold %d: %w", k, err)
			}
			for l, lam := range lams {
				p, err := fp.fits[fp.size(lam)].predict(fd[k].test)
				if err != nil {
					return nil, err
				}
				d := Deviance(fd[k].test.Y, p)
				total[l] += d
				foldMean[l] = append(foldMean[l], d/float64(fd[k].test.NumRows()))
			}
		}

		for l, lam := range lams {
			cv := SubsetCV{
				Gamma:  gam,
				Lambda: lam,
				Size:   full.size(lam),
				CVMean: total[l] / float64(x.NumRows()),
				CVSE:   math.NaN(),
			}
			if nfold > 1 {
				sd, _ := stats.StandardDeviationSample(foldMean[l])
				cv.CVSE = sd / math.Sqrt(float64(nfold))
			}
			fit.CV = append(fit.CV, cv)
			values = append(values, cv.CVMean)
			params = append(params, []float64{gam, lam})
		}
	}

	best := ArgMinTie(values, params)
	if best < 0 {
		return nil, &ConvergenceError{Model: "subset", Imputation: -1, Reason: "cross-validation error has no finite minimum"}
	}

	sel := fit.CV[best]
	fit.Gamma = sel.Gamma
	fit.Lambda = sel.Lambda

	full := paths[slices.Index(gammas, sel.Gamma)]
	fit.lin = full.fits[sel.Size]
	for j, na := range x.Names {
		if fit.lin.coef[j] != 0 {
			fit.Support = append(fit.Support, na)
		}
	}
	if sel.Size > 0 && len(fit.Support) == 0 {
		return nil, &ConvergenceError{Model: "subset", Imputation: -1, Reason: "selected fit has no nonzero slopes"}
	}

	logger.Debug("best subset selected",
		zap.Float64("gamma", fit.Gamma),
		zap.Float64("lambda", fit.Lambda),
		zap.Strings("support", fit.Support),
		zap.Float64("cv_deviance", sel.CVMean))

	return fit, nil
}
