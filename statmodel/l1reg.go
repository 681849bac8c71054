package statmodel

import (
	"math"
)

// Focuser is a regression model that can be restricted to a single
// covariate, with the effects of all other covariates absorbed into an
// offset.
type Focuser interface {
	NumParams() int
	NumObs() int

	// LinPred returns the linear predictor, including any fixed offset,
	// at the given coefficients.
	LinPred(coeff []float64) []float64

	// Column returns the j^th covariate as seen by the fitter.
	Column(j int) []float64

	// Focus returns a one-covariate model for covariate j, using the
	// given offset in place of the contributions of the other covariates.
	Focus(j int, offset []float64) RegFitter
}

// L1RegConfig controls the coordinate descent fitter.
type L1RegConfig struct {

	// Maximum number of full sweeps over the coordinates.
	MaxIter int

	// Convergence tolerance for the largest coefficient change in a
	// sweep.  If zero, a tolerance proportional to the sample size is used.
	Tol float64

	// If true, each quadratic step is checked against the penalized
	// objective, falling back to a line search.  Not needed for OLS.
	CheckStep bool
}

// DefaultL1RegConfig returns the default coordinate descent settings.
func DefaultL1RegConfig() *L1RegConfig {
	return &L1RegConfig{
		MaxIter:   400,
		CheckStep: true,
	}
}

// FitL1Reg minimizes -loglike/n + sum_j l1wgt[j]*|coeff[j]| by cyclic
// coordinate descent, starting at the coefficients held in param.  The
// coefficients of param are updated in place.  The second return value
// reports whether the sweeps converged before MaxIter was reached.
func FitL1Reg(model Focuser, param Parameter, l1wgt []float64, config *L1RegConfig) (Parameter, bool) {

	if config == nil {
		config = DefaultL1RegConfig()
	}

	// A parameter for the 1-d focused model.
	param1d := param.Clone()
	param1d.SetCoeff([]float64{0})

	nvar := model.NumParams()
	nobs := model.NumObs()

	// Since we are using non-normalized log-likelihood, the
	// tolerance can scale with the sample size.
	tol := config.Tol
	if tol <= 0 {
		tol = 1e-7 * float64(nobs)
		if tol > 0.1 {
			tol = 0.1
		}
	}

	coeff := param.GetCoeff()
	offset := make([]float64, nobs)

	for iter := 0; iter < config.MaxIter; iter++ {

		// Refresh the linear predictor once per sweep so that
		// rounding errors do not accumulate.
		lp := model.LinPred(coeff)

		// L-inf of the increment in the parameter vector
		px := 0.0

		for j := 0; j < nvar; j++ {

			// Remove the contribution of covariate j.
			x := model.Column(j)
			for i := range offset {
				offset[i] = lp[i] - coeff[j]*x[i]
			}

			fmodel := model.Focus(j, offset)
			np := opt1d(fmodel, coeff[j], param1d, float64(nobs)*l1wgt[j], config.CheckStep)

			d := math.Abs(np - coeff[j])
			if d > px {
				px = d
			}

			coeff[j] = np
			for i := range lp {
				lp[i] = offset[i] + np*x[i]
			}
		}

		if px < tol {
			return param, true
		}
	}

	return param, false
}

// Use a local quadratic approximation, then fall back to a line
// search if needed.
func opt1d(m1 RegFitter, coeff float64, par Parameter, l1wgt float64, checkstep bool) float64 {

	// Quadratic approximation coefficients
	bv := make([]float64, 1)
	par.SetCoeff([]float64{coeff})
	m1.Score(par, bv)
	b := -bv[0]
	cv := make([]float64, 1)
	m1.Hessian(par, ObsHess, cv)
	c := -cv[0]

	// A flat or concave direction has no quadratic minimizer.
	if c <= 0 {
		if math.Abs(b) <= l1wgt {
			return 0
		}
		return coeff
	}

	// The optimum point of the quadratic approximation
	d := b - c*coeff

	if l1wgt > math.Abs(d) {
		// The optimum is achieved by hard thresholding to zero
		return 0
	}

	// coeff + h is the minimizer of Q(x) + l1wgt*abs(x)
	var h float64
	if d >= 0 {
		h = (l1wgt - b) / c
	} else {
		h = -(l1wgt + b) / c
	}

	if !checkstep {
		return coeff + h
	}

	obj := func(z float64) float64 {
		par.SetCoeff([]float64{z})
		return -m1.LogLike(par, false) + l1wgt*math.Abs(z)
	}

	// Accept the step if it does not increase the penalized objective.
	if obj(coeff+h) <= obj(coeff)+1e-10 {
		return coeff + h
	}

	// Fallback for models where the loss is not quadratic
	return bisection(obj, coeff-1, coeff+1, 1e-7)
}

// bisection minimizes f, first searching for a bracket around the
// starting interval [xl, xu].  If no bracket is found the best point
// evaluated is returned.
func bisection(f func(float64) float64, xl, xu, tol float64) float64 {

	x0, x2 := xl, xu
	x1 := (x0 + x2) / 2
	f0, f1, f2 := f(x0), f(x1), f(x2)

	bracketed := false
	for k := 0; k < 100; k++ {

		if f1 < f0 && f1 < f2 {
			bracketed = true
			break
		}

		switch {
		case f0 > f1 && f1 > f2:
			// Slide right
			w := 1.5 * (x2 - x1)
			x0, f0 = x1, f1
			x1, f1 = x2, f2
			x2 += w
			f2 = f(x2)
		case f0 < f1 && f1 < f2:
			// Slide left
			w := 1.5 * (x1 - x0)
			x2, f2 = x1, f1
			x1, f1 = x0, f0
			x0 -= w
			f0 = f(x0)
		default:
			// Flat or irregular, widen around the center
			x0 = x1 - 2*(x1-x0)
			x2 = x1 + 2*(x2-x1)
			f0, f2 = f(x0), f(x2)
		}
	}

	if !bracketed {
		switch {
		case f0 <= f1 && f0 <= f2:
			return x0
		case f1 <= f0 && f1 <= f2:
			return x1
		default:
			return x2
		}
	}

	for x2-x0 > tol {
		if x1-x0 > x2-x1 {
			xx := (x0 + x1) / 2
			ff := f(xx)
			if ff < f1 {
				x2 = x1
				x1, f1 = xx, ff
			} else {
				x0 = xx
			}
		} else {
			xx := (x1 + x2) / 2
			ff := f(xx)
			if ff < f1 {
				x0 = x1
				x1, f1 = xx, ff
			} else {
				x2 = xx
			}
		}
	}

	return x1
}
