// Package statmodel holds the pieces shared by the regression models in
// this module: parameter values, fitted results, the L1 coordinate descent
// driver and plain-text summary tables.
package statmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type Dtype = float64

// HessType indicates the type of a Hessian matrix for a log-likelihood.
type HessType int

// ObsHess (observed Hessian) and ExpHess (expected Hessian) are the two type of log-likelihood
// Hessian matrices
const (
	ObsHess HessType = iota
	ExpHess
)

// ScaleType defines the way that the covariates are scaled prior to fitting a model.  This
// scaling is hidden from the caller, the results are back-transformed after fitting.
type ScaleType int

// NoScale indicates that covariates are not internally scaled prior to fitting, L2Norm
// indicates that each covariate is scaled to have unit L2Norm prior to fitting, and Variance
// indicates that each covariate is scaled to have unit variance prior to fitting.  L2Norm
// and Variance scaling is not performed for covariates that do not vary (i.e. an intercept).
const (
	NoScale ScaleType = iota
	L2Norm
	Variance
)

// Parameter is the parameter of a model.
type Parameter interface {

	// Get the coefficients of the covariates in the linear
	// predictor.  The returned value should be a reference so
	// that changes to it lead to corresponding changes in the
	// parameter itself.
	GetCoeff() []float64

	// Set the coefficients of the covariates in the linear
	// predictor.
	SetCoeff([]float64)

	// Clone creates a deep copy of the Parameter struct.
	Clone() Parameter
}

// RegFitter is a regression model that can be fit to data.
type RegFitter interface {

	// Number of parameters in the model.
	NumParams() int

	// Number of observations in the data set
	NumObs() int

	// Positions of the covariates
	Xpos() []int

	Dataset() [][]Dtype

	// The log-likelihood function
	LogLike(Parameter, bool) float64

	// The score vector
	Score(Parameter, []float64)

	// The Hessian matrix
	Hessian(Parameter, HessType, []float64)
}

// BaseResults contains the results after fitting a model to data.
type BaseResults struct {
	model   RegFitter
	loglike float64
	params  []float64
	xnames  []string
	vcov    []float64
	stderr  []float64
	zscores []float64
	pvalues []float64
}

// NewBaseResults returns a BaseResults corresponding to the given fitted model.
func NewBaseResults(model RegFitter, loglike float64, params []float64, xnames []string, vcov []float64) BaseResults {
	return BaseResults{
		model:   model,
		loglike: loglike,
		params:  params,
		xnames:  xnames,
		vcov:    vcov,
	}
}

// Model produces the model value used to produce the results.
func (rslt *BaseResults) Model() RegFitter {
	return rslt.model
}

// FittedValues returns the fitted linear predictor for a regression
// model.  If da is nil, the fitted values are based on the data used
// to fit the model.  Otherwise da must have the same column layout as
// the training data, but may have any number of rows.
func (rslt *BaseResults) FittedValues(da [][]Dtype) ([]float64, error) {

	xpos := rslt.model.Xpos()

	if da == nil {
		da = rslt.model.Dataset()
	}

	if len(da) != len(rslt.model.Dataset()) {
		return nil, fmt.Errorf("data has incorrect number of columns, %d != %d",
			len(da), len(rslt.model.Dataset()))
	}

	fv := make([]float64, len(da[xpos[0]]))
	for k, j := range xpos {
		for i, z := range da[j] {
			fv[i] += rslt.params[k] * z
		}
	}

	return fv, nil
}

// Names returns the covariate names for the variables in the model.
func (rslt *BaseResults) Names() []string {
	return rslt.xnames
}

// Params returns the point estimates for the parameters in the model.
func (rslt *BaseResults) Params() []float64 {
	return rslt.params
}

// VCov returns the sampling variance/covariance model for the parameters in the model.
// The matrix is vetorized to one dimension.
func (rslt *BaseResults) VCov() []float64 {
	return rslt.vcov
}

// LogLike returns the log-likelihood or objective function value for the fitted model.
func (rslt *BaseResults) LogLike() float64 {
	return rslt.loglike
}

// StdErr returns the standard errors for the parameters in the model.
func (rslt *BaseResults) StdErr() []float64 {

	// No vcov, no standard error
	if rslt.vcov == nil {
		return nil
	}
	if rslt.stderr != nil {
		return rslt.stderr
	}

	p := len(rslt.params)
	rslt.stderr = make([]float64, p)
	for i := range rslt.stderr {
		rslt.stderr[i] = math.Sqrt(rslt.vcov[i*p+i])
	}

	return rslt.stderr
}

// ZScores returns the Z-scores (the parameter estimates divided by the standard errors).
func (rslt *BaseResults) ZScores() []float64 {

	std := rslt.StdErr()
	if std == nil {
		return nil
	}
	if rslt.zscores != nil {
		return rslt.zscores
	}

	rslt.zscores = make([]float64, len(std))
	for i := range std {
		rslt.zscores[i] = rslt.params[i] / std[i]
	}

	return rslt.zscores
}

func normcdf(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt(2))
}

// PValues returns the p-values for the null hypothesis that each parameter's population
// value is equal to zero.
func (rslt *BaseResults) PValues() []float64 {

	zs := rslt.ZScores()
	if zs == nil {
		return nil
	}
	if rslt.pvalues != nil {
		return rslt.pvalues
	}

	rslt.pvalues = make([]float64, len(zs))
	for i, z := range zs {
		rslt.pvalues[i] = 2 * normcdf(-math.Abs(z))
	}

	return rslt.pvalues
}

// ErrSingular is returned when the Hessian at the fitted value cannot be inverted.
var ErrSingular = errors.New("statmodel: Hessian is singular")

// GetVcov returns the sampling variance/covariance matrix for the parameter estimates.
func GetVcov(model RegFitter, params Parameter) ([]float64, error) {
	nvar := model.NumParams()
	n2 := nvar * nvar
	hess := make([]float64, n2)
	model.Hessian(params, ExpHess, hess)
	hmat := mat.NewDense(nvar, nvar, hess)
	hessi := make([]float64, n2)
	himat := mat.NewDense(nvar, nvar, hessi)
	if err := himat.Inverse(hmat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	himat.Scale(-1, himat)

	return hessi, nil
}
