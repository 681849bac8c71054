package glm

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/kshedden/mipool/statmodel"
)

// Config defines configuration parameters for a GLM.
type Config struct {

	// The GLM family, required.
	Family *Family

	// The link function, the canonical link of the family is used if nil.
	Link *Link

	// The variance function, the family default is used if nil.
	VarFunc *Variance

	// Name of a case weight variable, optional.
	WeightVar string

	// Name of an offset variable, optional.
	OffsetVar string

	// L1 (lasso) penalty weights by covariate name.  Covariates not
	// present are not penalized.  If any L1 weights are given the
	// model is fit by coordinate descent.
	L1Penalty map[string]float64

	// L2 (ridge) penalty weights by covariate name.  If L1 penalties
	// are not present, the model is fit by gradient optimization.
	L2Penalty map[string]float64

	// The internal scaling of the covariates.  Penalties apply to the
	// scaled coefficients, reported coefficients are always on the
	// original scale.
	ScaleType statmodel.ScaleType

	// Either IRLS (default), gradient, or coordinate.
	FitMethod string

	// Starting values on the original covariate scale, optional.
	Start []float64

	// Maximum number of IRLS iterations.
	MaxIter int

	// Convergence tolerance for the IRLS deviance.
	DevTol float64

	// Coordinate descent settings, the defaults are used if nil.
	L1Reg *statmodel.L1RegConfig

	// Optimization method and settings for gradient fitting.
	OptMethod   optimize.Method
	OptSettings *optimize.Settings

	// Use concurrent calculations in IRLS if the sample size is at least
	// as large as this value.
	ConcurrentIRLS int

	// If not nil, write log messages here
	Log *zap.Logger
}

// DefaultConfig returns default configuration values for a GLM.
func DefaultConfig() *Config {
	return &Config{
		Family:         NewFamily(GaussianFamily),
		FitMethod:      "IRLS",
		MaxIter:        20,
		DevTol:         1e-8,
		ConcurrentIRLS: 1000,
	}
}

// GLM represents a generalized linear model.
type GLM struct {

	// Columns in the order outcome, covariates, weight, offset
	data [][]statmodel.Dtype

	// Names of the columns in data
	varnames []string

	// Positions of the covariates
	xpos []int

	// Position of the outcome variable
	ypos int

	// Position of the offset and weight variables, or -1 if absent.
	offsetpos int
	weightpos int

	// The covariates on their original scale, and after internal scaling.
	xraw [][]statmodel.Dtype
	xs   [][]statmodel.Dtype

	// The internal scale factor of every covariate.
	xn []float64

	fam  *Family
	link *Link
	vari *Variance

	// Either irls, gradient, or coordinate
	fitMethod string

	// Starting values on the original scale, optional.
	start []float64

	// Penalty weights, nil if no penalty of the given type is used.
	l1wgt []float64
	l2wgt []float64

	maxiter int
	dtol    float64
	l1cfg   *statmodel.L1RegConfig

	// Optimization settings
	settings *optimize.Settings

	// Optimization method
	method optimize.Method

	log *zap.Logger

	concurrentIRLS int
}

// GLMParams represents the model parameters for a GLM.
type GLMParams struct {
	coeff []float64
	scale float64
}

// NewGLMParams returns a parameter value with the given coefficients and scale.
func NewGLMParams(coeff []float64, scale float64) *GLMParams {
	return &GLMParams{coeff: coeff, scale: scale}
}

// GetCoeff returns the coefficients (slopes for individual
// covariates) from the parameter.
func (p *GLMParams) GetCoeff() []float64 {
	return p.coeff
}

// SetCoeff sets the coefficients (slopes for individual covariates)
// for the parameter.
func (p *GLMParams) SetCoeff(coeff []float64) {
	p.coeff = coeff
}

// Clone produces a deep copy of the parameter value.
func (p *GLMParams) Clone() statmodel.Parameter {
	coeff := make([]float64, len(p.coeff))
	copy(coeff, p.coeff)
	return &GLMParams{
		coeff: coeff,
		scale: p.scale,
	}
}

// NewGLM creates a GLM for the given outcome and covariates, which are
// taken by name from data.  No intercept is added, include a column of
// ones in predictors if one is desired.
func NewGLM(data statmodel.Dataset, outcome string, predictors []string, config *Config) (*GLM, error) {

	if config == nil {
		config = DefaultConfig()
	}

	if config.Family == nil {
		return nil, errors.New("glm: the family must be provided")
	}

	if len(predictors) == 0 {
		return nil, errors.New("glm: no covariates")
	}

	n := data.NumObs()
	get := func(name, role string) ([]statmodel.Dtype, error) {
		x := data.Get(name)
		if x == nil {
			return nil, fmt.Errorf("glm: %s variable '%s' not found", role, name)
		}
		if len(x) != n {
			return nil, fmt.Errorf("glm: %s variable '%s' has length %d, expected %d", role, name, len(x), n)
		}
		for _, v := range x {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("glm: %s variable '%s' has missing values", role, name)
			}
		}
		return x, nil
	}

	glm := &GLM{
		fam:            config.Family,
		link:           config.Link,
		vari:           config.VarFunc,
		weightpos:      -1,
		offsetpos:      -1,
		maxiter:        config.MaxIter,
		dtol:           config.DevTol,
		l1cfg:          config.L1Reg,
		settings:       config.OptSettings,
		method:         config.OptMethod,
		log:            config.Log,
		concurrentIRLS: config.ConcurrentIRLS,
	}

	y, err := get(outcome, "outcome")
	if err != nil {
		return nil, err
	}
	glm.data = append(glm.data, y)
	glm.varnames = append(glm.varnames, outcome)

	for _, na := range predictors {
		x, err := get(na, "covariate")
		if err != nil {
			return nil, err
		}
		glm.xpos = append(glm.xpos, len(glm.data))
		glm.data = append(glm.data, x)
		glm.varnames = append(glm.varnames, na)
		glm.xraw = append(glm.xraw, x)
	}

	if config.WeightVar != "" {
		w, err := get(config.WeightVar, "weight")
		if err != nil {
			return nil, err
		}
		glm.weightpos = len(glm.data)
		glm.data = append(glm.data, w)
		glm.varnames = append(glm.varnames, config.WeightVar)
	}

	if config.OffsetVar != "" {
		off, err := get(config.OffsetVar, "offset")
		if err != nil {
			return nil, err
		}
		glm.offsetpos = len(glm.data)
		glm.data = append(glm.data, off)
		glm.varnames = append(glm.varnames, config.OffsetVar)
	}

	if glm.link == nil {
		glm.link = glm.fam.CanonicalLink()
	}
	if !glm.fam.IsValidLink(glm.link) {
		return nil, fmt.Errorf("glm: link %s is not valid for family %s", glm.link.Name, glm.fam.Name)
	}
	if glm.vari == nil {
		glm.vari = NewVariance(glm.fam.defaultVar)
	}

	glm.fitMethod = strings.ToLower(config.FitMethod)
	if glm.fitMethod == "" {
		glm.fitMethod = "irls"
	}
	switch glm.fitMethod {
	case "irls", "gradient", "coordinate":
	default:
		return nil, fmt.Errorf("glm: fitting method '%s' not allowed", config.FitMethod)
	}

	if glm.l1wgt, err = penaltyVector(config.L1Penalty, predictors, "L1"); err != nil {
		return nil, err
	}
	if glm.l2wgt, err = penaltyVector(config.L2Penalty, predictors, "L2"); err != nil {
		return nil, err
	}

	if config.Start != nil {
		if len(config.Start) != len(predictors) {
			return nil, fmt.Errorf("glm: %d starting values for %d covariates", len(config.Start), len(predictors))
		}
		glm.start = config.Start
	}

	if glm.maxiter <= 0 {
		glm.maxiter = 20
	}
	if glm.dtol <= 0 {
		glm.dtol = 1e-8
	}
	if glm.concurrentIRLS <= 0 {
		glm.concurrentIRLS = 1000
	}
	if glm.log == nil {
		glm.log = zap.NewNop()
	}

	glm.doScale(config.ScaleType)

	return glm, nil
}

// penaltyVector converts named penalty weights to positional weights.
func penaltyVector(pen map[string]float64, names []string, kind string) ([]float64, error) {

	if len(pen) == 0 {
		return nil, nil
	}

	pos := make(map[string]int, len(names))
	for j, na := range names {
		pos[na] = j
	}

	v := make([]float64, len(names))
	for na, w := range pen {
		j, ok := pos[na]
		if !ok {
			return nil, fmt.Errorf("glm: %s penalty given for unknown covariate '%s'", kind, na)
		}
		if w < 0 {
			return nil, fmt.Errorf("glm: %s penalty for '%s' is negative", kind, na)
		}
		v[j] = w
	}

	return v, nil
}

// doScale calculates covariate scaling factors.  Covariates that do not
// vary are never scaled.
func (glm *GLM) doScale(scaletype statmodel.ScaleType) {

	glm.xn = make([]float64, len(glm.xraw))
	glm.xs = make([][]statmodel.Dtype, len(glm.xraw))

	for j, x := range glm.xraw {

		glm.xn[j] = 1
		glm.xs[j] = x

		if scaletype == statmodel.NoScale || isConstant(x) {
			continue
		}

		switch scaletype {
		case statmodel.L2Norm:
			glm.xn[j] = floats.Norm(x, 2)
		case statmodel.Variance:
			n := float64(len(x))
			m := floats.Sum(x) / n
			var v float64
			for _, z := range x {
				v += (z - m) * (z - m)
			}
			glm.xn[j] = math.Sqrt(v / n)
		}

		xs := make([]float64, len(x))
		floats.ScaleTo(xs, 1/glm.xn[j], x)
		glm.xs[j] = xs
	}
}

func isConstant(x []float64) bool {
	for _, v := range x {
		if v != x[0] {
			return false
		}
	}
	return true
}

// NumParams returns the number of covariates in the model.
func (glm *GLM) NumParams() int {
	return len(glm.xpos)
}

// NumObs returns the number of observations used to fit the model.
func (glm *GLM) NumObs() int {
	return len(glm.data[glm.ypos])
}

// Xpos returns the positions of the covariates in the model's dataset.
func (glm *GLM) Xpos() []int {
	return glm.xpos
}

// Dataset returns the data columns used to fit the model.
func (glm *GLM) Dataset() [][]statmodel.Dtype {
	return glm.data
}

// Family returns the family of the model.
func (glm *GLM) Family() *Family {
	return glm.fam
}

// CovariateNames returns the names of the covariates, in coefficient order.
func (glm *GLM) CovariateNames() []string {
	var xna []string
	for _, j := range glm.xpos {
		xna = append(xna, glm.varnames[j])
	}
	return xna
}

func (glm *GLM) weights() []statmodel.Dtype {
	if glm.weightpos == -1 {
		return nil
	}
	return glm.data[glm.weightpos]
}

func (glm *GLM) offset() []statmodel.Dtype {
	if glm.offsetpos == -1 {
		return nil
	}
	return glm.data[glm.offsetpos]
}

// linpred calculates the linear predictor for covariates x and the
// corresponding coefficients, including the offset if present.
func (glm *GLM) linpred(x [][]statmodel.Dtype, coeff, lp []float64) {
	zero(lp)
	for j := range x {
		floats.AddScaled(lp, coeff[j], x[j])
	}
	if off := glm.offset(); off != nil {
		floats.Add(lp, off)
	}
}

// LogLike returns the log-likelihood value for the generalized linear
// model at the given parameter values, less any L2 penalty.
func (glm *GLM) LogLike(params statmodel.Parameter, exact bool) float64 {
	gpar := params.(*GLMParams)
	return glm.loglike(glm.xraw, glm.xn, gpar.coeff, gpar.scale, exact)
}

// Score returns the score vector for the generalized linear model at
// the given parameter values.
func (glm *GLM) Score(params statmodel.Parameter, score []float64) {
	glm.score(glm.xraw, glm.xn, params.GetCoeff(), score)
}

// Hessian returns the Hessian matrix for the model.  The Hessian is
// returned as a one-dimensional array, which is the vectorized form
// of the Hessian matrix.  Either the observed or expected Hessian can
// be calculated.
func (glm *GLM) Hessian(params statmodel.Parameter, ht statmodel.HessType, hess []float64) {
	glm.hessian(glm.xraw, glm.xn, params.GetCoeff(), ht, hess)
}

// The penalty applies to coeff[j]*pscale[j], which is the coefficient of
// the scaled covariate.
func (glm *GLM) loglike(x [][]statmodel.Dtype, pscale, coeff []float64, scale float64, exact bool) float64 {

	n := glm.NumObs()
	lp := make([]float64, n)
	mn := make([]float64, n)

	glm.linpred(x, coeff, lp)
	glm.link.InvLink(lp, mn)
	loglike := glm.fam.LogLike(glm.data[glm.ypos], mn, glm.weights(), scale, exact)

	// Account for the L2 penalty
	if glm.l2wgt != nil {
		nobs := float64(n)
		for j, v := range glm.l2wgt {
			b := coeff[j] * pscale[j]
			loglike -= nobs * v * b * b / 2
		}
	}

	return loglike
}

func scoreFactor(yda, mn, deriv, va, sfac []float64) {
	for i, y := range yda {
		sfac[i] = (y - mn[i]) / (deriv[i] * va[i])
	}
}

func (glm *GLM) score(x [][]statmodel.Dtype, pscale, coeff, score []float64) {

	n := glm.NumObs()
	lp := make([]float64, n)
	mn := make([]float64, n)
	deriv := make([]float64, n)
	va := make([]float64, n)
	fac := make([]float64, n)

	glm.linpred(x, coeff, lp)
	glm.link.InvLink(lp, mn)
	glm.link.Deriv(mn, deriv)
	glm.vari.Var(mn, va)

	scoreFactor(glm.data[glm.ypos], mn, deriv, va, fac)
	if wgts := glm.weights(); wgts != nil {
		floats.Mul(fac, wgts)
	}

	for j := range x {
		score[j] = floats.Dot(fac, x[j])
	}

	// Account for the L2 penalty
	if glm.l2wgt != nil {
		nobs := float64(n)
		for j, v := range glm.l2wgt {
			score[j] -= nobs * v * coeff[j] * pscale[j] * pscale[j]
		}
	}
}

func (glm *GLM) hessian(x [][]statmodel.Dtype, pscale, coeff []float64, ht statmodel.HessType, hess []float64) {

	n := glm.NumObs()
	nvar := len(x)
	lp := make([]float64, n)
	mn := make([]float64, n)
	lderiv := make([]float64, n)
	va := make([]float64, n)
	fac := make([]float64, n)

	zero(hess)
	yda := glm.data[glm.ypos]
	wgts := glm.weights()

	glm.linpred(x, coeff, lp)
	glm.link.InvLink(lp, mn)
	glm.link.Deriv(mn, lderiv)
	glm.vari.Var(mn, va)

	// Factor for the expected Hessian
	for i := range lderiv {
		fac[i] = 1 / (lderiv[i] * lderiv[i] * va[i])
	}

	// Adjust the factor for the observed Hessian
	if ht == statmodel.ObsHess {
		vad := make([]float64, n)
		lderiv2 := make([]float64, n)
		sfac := make([]float64, n)
		glm.link.Deriv2(mn, lderiv2)
		glm.vari.Deriv(mn, vad)
		scoreFactor(yda, mn, lderiv, va, sfac)

		for i := range fac {
			h := va[i]*lderiv2[i] + lderiv[i]*vad[i]
			fac[i] *= 1 + h*sfac[i]
		}
	}

	if wgts != nil {
		floats.Mul(fac, wgts)
	}

	glm.hessXprod(x, fac, hess)

	// Fill in the upper triangle
	for j1 := 0; j1 < nvar; j1++ {
		for j2 := 0; j2 < j1; j2++ {
			hess[j2*nvar+j1] = hess[j1*nvar+j2]
		}
	}

	// Account for the L2 penalty
	if glm.l2wgt != nil {
		nobs := float64(n)
		for j, v := range glm.l2wgt {
			hess[j*nvar+j] -= nobs * v * pscale[j] * pscale[j]
		}
	}
}

// hessXprod fills the lower triangle of -x' diag(fac) x.
func (glm *GLM) hessXprod(x [][]statmodel.Dtype, fac, hess []float64) {

	nvar := len(x)

	cell := func(j1, j2 int) {
		x1 := x[j1]
		x2 := x[j2]
		var u float64
		for i := range x1 {
			u += fac[i] * x1[i] * x2[i]
		}
		hess[j1*nvar+j2] = -u
	}

	if len(fac) < glm.concurrentIRLS {
		for j1 := 0; j1 < nvar; j1++ {
			for j2 := 0; j2 <= j1; j2++ {
				cell(j1, j2)
			}
		}
		return
	}

	var wg sync.WaitGroup
	for j1 := 0; j1 < nvar; j1++ {
		for j2 := 0; j2 <= j1; j2++ {
			wg.Add(1)
			go func(j1, j2 int) {
				defer wg.Done()
				cell(j1, j2)
			}(j1, j2)
		}
	}
	wg.Wait()
}

// LinPred returns the linear predictor, with the coefficients given on
// the internally scaled covariate scale.  Used in coordinate descent.
func (glm *GLM) LinPred(coeff []float64) []float64 {
	lp := make([]float64, glm.NumObs())
	glm.linpred(glm.xs, coeff, lp)
	return lp
}

// Column returns covariate j after internal scaling.
func (glm *GLM) Column(j int) []float64 {
	return glm.xs[j]
}

// Focus returns a model for the single (scaled) covariate j, with the
// effects of the remaining covariates and any offset captured through
// the provided offset.  The method is exposed for use in elastic net
// fitting, but is unlikely to be useful for ordinary users.
func (glm *GLM) Focus(j int, offset []float64) statmodel.RegFitter {

	x := glm.xs[j]
	data := [][]statmodel.Dtype{glm.data[glm.ypos], x}
	varnames := []string{glm.varnames[glm.ypos], glm.varnames[glm.xpos[j]]}

	fglm := &GLM{
		xpos:           []int{1},
		ypos:           0,
		weightpos:      -1,
		xraw:           [][]statmodel.Dtype{x},
		xs:             [][]statmodel.Dtype{x},
		xn:             []float64{1},
		fam:            glm.fam,
		link:           glm.link,
		vari:           glm.vari,
		log:            glm.log,
		concurrentIRLS: glm.concurrentIRLS,
	}

	if w := glm.weights(); w != nil {
		fglm.weightpos = len(data)
		data = append(data, w)
		varnames = append(varnames, glm.varnames[glm.weightpos])
	}

	fglm.offsetpos = len(data)
	data = append(data, offset)
	varnames = append(varnames, "offset")

	if glm.l2wgt != nil {
		fglm.l2wgt = []float64{glm.l2wgt[j]}
	}

	fglm.data = data
	fglm.varnames = varnames

	return fglm
}

// Results describes the results of a fitted generalized linear model.
type Results struct {
	statmodel.BaseResults

	scale float64

	converged bool

	penalized bool
}

// Scale returns the estimated scale parameter.
func (rslt *Results) Scale() float64 {
	return rslt.scale
}

// Converged reports whether the fitting algorithm met its convergence
// criterion.
func (rslt *Results) Converged() bool {
	return rslt.converged
}

// Predict returns the fitted means for the rows of data, which must
// contain every covariate of the model (and the offset if one was used)
// by name.
func (rslt *Results) Predict(data statmodel.Dataset) ([]float64, error) {

	glm := rslt.Model().(*GLM)
	params := rslt.Params()
	n := data.NumObs()
	lp := make([]float64, n)

	for j, na := range rslt.Names() {
		x := data.Get(na)
		if x == nil {
			return nil, fmt.Errorf("glm: covariate '%s' not found", na)
		}
		if len(x) != n {
			return nil, fmt.Errorf("glm: covariate '%s' has length %d, expected %d", na, len(x), n)
		}
		floats.AddScaled(lp, params[j], x)
	}

	if glm.offsetpos != -1 {
		na := glm.varnames[glm.offsetpos]
		off := data.Get(na)
		if off == nil {
			return nil, fmt.Errorf("glm: offset '%s' not found", na)
		}
		floats.Add(lp, off)
	}

	mn := make([]float64, n)
	glm.link.InvLink(lp, mn)

	return mn, nil
}

// scaledStart returns the starting values on the internal scale.
func (glm *GLM) scaledStart() []float64 {
	start := make([]float64, glm.NumParams())
	if glm.start != nil {
		for j := range start {
			start[j] = glm.start[j] * glm.xn[j]
		}
	}
	return start
}

// fitRegularized estimates the parameters of the GLM using L1
// regularization (with optional L2 regularization).  This invokes
// coordinate descent optimization.
func (glm *GLM) fitRegularized() (*Results, error) {

	glm.log.Debug("regularized fitting", zap.Int("nvar", glm.NumParams()))

	cfg := statmodel.DefaultL1RegConfig()
	if glm.l1cfg != nil {
		c := *glm.l1cfg
		cfg = &c
	}
	if glm.fam.TypeCode == GaussianFamily && glm.link.TypeCode == IdentityLink {
		cfg.CheckStep = false
	}

	l1wgt := glm.l1wgt
	if l1wgt == nil {
		l1wgt = make([]float64, glm.NumParams())
	}

	start := &GLMParams{
		coeff: glm.scaledStart(),
		scale: 1,
	}

	par, converged := statmodel.FitL1Reg(glm, start, l1wgt, cfg)
	if !converged {
		glm.log.Warn("coordinate descent did not converge", zap.Int("maxiter", cfg.MaxIter))
	}

	// Back-transform to the original scale
	coeff := par.GetCoeff()
	for j := range coeff {
		coeff[j] /= glm.xn[j]
	}

	scale := glm.EstimateScale(coeff)
	ll := glm.LogLike(&GLMParams{coeff, scale}, true)

	return &Results{
		BaseResults: statmodel.NewBaseResults(glm, ll, coeff, glm.CovariateNames(), nil),
		scale:       scale,
		converged:   converged,
		penalized:   true,
	}, nil
}

// Fit estimates the parameters of the GLM and returns a results
// object.  Models with L1 penalties are fit by coordinate descent,
// models with only L2 penalties are fit by gradient optimization.
func (glm *GLM) Fit() (*Results, error) {

	if glm.l1wgt != nil || glm.fitMethod == "coordinate" {
		return glm.fitRegularized()
	}

	method := glm.fitMethod
	if glm.l2wgt != nil {
		method = "gradient"
	}

	var params []float64
	var err error
	converged := true

	if method == "gradient" {
		glm.log.Debug("fitting using gradient optimization")
		params, err = glm.fitGradient(glm.scaledStart())
	} else {
		glm.log.Debug("fitting using IRLS")
		params, converged, err = glm.fitIRLS(glm.start)
	}
	if err != nil {
		return nil, err
	}

	scale := glm.EstimateScale(params)

	vcov, err := statmodel.GetVcov(glm, &GLMParams{params, scale})
	if err != nil {
		glm.log.Warn("covariance matrix not available", zap.Error(err))
		vcov = nil
	} else {
		floats.Scale(scale, vcov)
	}

	ll := glm.LogLike(&GLMParams{params, scale}, true)

	return &Results{
		BaseResults: statmodel.NewBaseResults(glm, ll, params, glm.CovariateNames(), vcov),
		scale:       scale,
		converged:   converged,
		penalized:   glm.l2wgt != nil,
	}, nil
}

// fitGradient uses gradient-based optimization to obtain the fitted
// GLM parameters, starting from values on the internal scale.
func (glm *GLM) fitGradient(start []float64) ([]float64, error) {

	ones := make([]float64, glm.NumParams())
	one(ones)

	p := optimize.Problem{
		Func: func(x []float64) float64 {
			return -glm.loglike(glm.xs, ones, x, 1, false)
		},
		Grad: func(grad, x []float64) {
			glm.score(glm.xs, ones, x, grad)
			floats.Scale(-1, grad)
		},
	}

	settings := glm.settings
	if settings == nil {
		settings = &optimize.Settings{
			GradientThreshold: 1e-6,
		}
	}

	method := glm.method
	if method == nil {
		method = &optimize.BFGS{}
	}

	optrslt, err := optimize.Minimize(p, start, settings, method)
	if err != nil {
		if optrslt != nil {
			glm.failMessage(optrslt)
		}
		return nil, fmt.Errorf("glm: gradient optimization failed: %w", err)
	}
	if err = optrslt.Status.Err(); err != nil {
		glm.failMessage(optrslt)
		return nil, fmt.Errorf("glm: gradient optimization failed: %w", err)
	}

	params := make([]float64, len(optrslt.X))
	for j := range optrslt.X {
		params[j] = optrslt.X[j] / glm.xn[j]
	}

	return params, nil
}

// failMessage logs information that can help diagnose optimization failures.
func (glm *GLM) failMessage(optrslt *optimize.Result) {

	for j, x := range optrslt.X {
		na := glm.varnames[glm.xpos[j]]
		xr := glm.xraw[j]
		n := float64(len(xr))
		mn := floats.Sum(xr) / n
		var sd float64
		for _, v := range xr {
			sd += (v - mn) * (v - mn)
		}
		sd = math.Sqrt(sd / n)

		var g float64
		if j < len(optrslt.Gradient) {
			g = optrslt.Gradient[j]
		}

		glm.log.Warn("optimization failure",
			zap.String("covariate", na),
			zap.Float64("point", x),
			zap.Float64("gradient", g),
			zap.Float64("mean", mn),
			zap.Float64("sd", sd))
	}
}

// EstimateScale returns an estimate of the GLM scale parameter at the
// given parameter values.
func (glm *GLM) EstimateScale(params []float64) float64 {

	if glm.fam.Dispersion == DispersionFixed {
		return 1
	}

	n := glm.NumObs()
	lp := make([]float64, n)
	mn := make([]float64, n)
	va := make([]float64, n)

	glm.linpred(glm.xraw, params, lp)
	glm.link.InvLink(lp, mn)
	glm.vari.Var(mn, va)

	wgt := glm.weights()
	var scale, ws float64
	for i, y := range glm.data[glm.ypos] {
		r := y - mn[i]
		if wgt == nil {
			scale += r * r / va[i]
			ws++
		} else {
			scale += wgt[i] * r * r / va[i]
			ws += wgt[i]
		}
	}

	return scale / (ws - float64(glm.NumParams()))
}

// zero sets all elements of the slice to 0
func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

// one sets all elements of the slice to 1
func one(x []float64) {
	for i := range x {
		x[i] = 1
	}
}

// Summary summarizes a fitted generalized linear model.
type Summary struct {

	// The GLM
	glm *GLM

	// The results structure
	results *Results

	// Transform the parameters with this function.  If nil,
	// no transformation is applied.  If paramXform is provided,
	// the standard error and Z-score are not shown.
	paramXform func(float64) float64

	// Messages that are appended to the table
	messages []string
}

// SetScale sets the scale on which the parameter results are
// displayed in the summary.  'xf' is a function that maps
// parameters and confidence limits from the linear scale to
// the desired scale.  'msg' is a message that is appended
// to the summary table.
func (gs *Summary) SetScale(xf func(float64) float64, msg string) *Summary {
	gs.paramXform = xf
	gs.messages = append(gs.messages, msg)
	return gs
}

// Table returns the summary as a table.  Fits without a covariance
// matrix show only the point estimates.
func (gs *Summary) Table() *statmodel.SummaryTable {

	xf := func(x float64) float64 {
		return x
	}
	if gs.paramXform != nil {
		xf = gs.paramXform
	}

	sum := &statmodel.SummaryTable{
		Title: "Generalized linear model analysis",
		Msg:   append([]string(nil), gs.messages...),
		Top: []string{
			fmt.Sprintf("Family:   %s", gs.glm.fam.Name),
			fmt.Sprintf("Link:     %s", gs.glm.link.Name),
			fmt.Sprintf("Variance: %s", gs.glm.vari.Name),
			fmt.Sprintf("Num obs:  %d", gs.glm.NumObs()),
			fmt.Sprintf("Scale:    %f", gs.results.scale),
		},
	}
	if !gs.results.converged {
		sum.Msg = append(sum.Msg, "The fit did not converge.")
	}

	fs := statmodel.StringFmter
	fn := statmodel.FloatFmter
	names := gs.results.Names()

	se := gs.results.StdErr()
	if se == nil {
		sum.ColNames = []string{"Variable   ", "Parameter"}
		sum.ColFmt = []statmodel.Fmter{fs, fn}
		par := make([]float64, len(gs.results.Params()))
		for j, v := range gs.results.Params() {
			par[j] = xf(v)
		}
		sum.Cols = []interface{}{names, par}
		return sum
	}

	// Limits are two standard errors from the estimate on the linear scale
	var par, lcb, ucb []float64
	for j, v := range gs.results.Params() {
		par = append(par, xf(v))
		lcb = append(lcb, xf(v-2*se[j]))
		ucb = append(ucb, xf(v+2*se[j]))
	}

	if gs.paramXform == nil {
		sum.ColNames = []string{"Variable   ", "Parameter", "SE", "LCB", "UCB", "Z-score", "P-value"}
		sum.ColFmt = []statmodel.Fmter{fs, fn, fn, fn, fn, fn, fn}
		sum.Cols = []interface{}{names, par, se, lcb, ucb, gs.results.ZScores(), gs.results.PValues()}
	} else {
		sum.ColNames = []string{"Variable   ", "Parameter", "LCB", "UCB", "P-value"}
		sum.ColFmt = []statmodel.Fmter{fs, fn, fn, fn, fn}
		sum.Cols = []interface{}{names, par, lcb, ucb, gs.results.PValues()}
	}

	return sum
}

// String returns the summary table as text.
func (gs *Summary) String() string {
	return gs.Table().String()
}

// Summary displays a summary table of the model results.
func (rslt *Results) Summary() *Summary {
	return &Summary{
		glm:     rslt.Model().(*GLM),
		results: rslt,
	}
}
