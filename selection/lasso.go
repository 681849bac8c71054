package selection

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/mipool/design"
	"github.com/kshedden/mipool/glm"
	"github.com/kshedden/mipool/statmodel"
)

// LassoConfig configures a cross-validated Lasso fit.
type LassoConfig struct {

	// Number of penalty values on the path
	NLambda int `yaml:"n_lambda"`

	// Smallest penalty as a fraction of the largest
	LambdaMinRatio float64 `yaml:"lambda_min_ratio"`

	// An explicit decreasing penalty path, used in place of the
	// generated path if not empty.
	Lambdas []float64 `yaml:"lambdas"`

	// Coordinate descent settings, the defaults are used if nil.
	L1Reg *statmodel.L1RegConfig `yaml:"-"`

	Log *zap.Logger `yaml:"-"`
}

// DefaultLassoConfig returns the default Lasso settings.
func DefaultLassoConfig() *LassoConfig {
	return &LassoConfig{
		NLambda:        100,
		LambdaMinRatio: 0.01,
	}
}

// LassoFit is a cross-validated Lasso logistic regression.
type LassoFit struct {

	// The selected penalty
	Lambda float64

	// The penalty path, in decreasing order
	Path []float64

	// Mean held-out deviance per observation, and its standard error,
	// at each penalty on the path
	CVMean []float64
	CVSE   []float64

	// Number of nonzero slopes at each penalty, fit to all rows
	NonZero []int

	lin *linear
}

// Intercept returns the fitted intercept at the selected penalty.
func (f *LassoFit) Intercept() float64 {
	return f.lin.intercept
}

// Coefficients returns the slopes at the selected penalty.
func (f *LassoFit) Coefficients() map[string]float64 {
	return f.lin.coefficients()
}

// Predict returns the predicted probabilities for the rows of x.
func (f *LassoFit) Predict(x *design.Matrix) ([]float64, error) {
	return f.lin.predict(x)
}

// LambdaMax returns the smallest penalty at which all slopes of the
// Lasso logistic regression are zero, with covariates standardized.
func LambdaMax(x *design.Matrix) (float64, error) {

	n := float64(x.NumRows())
	if _, _, err := interceptOnly(x); err != nil {
		return 0, err
	}

	ybar := floats.Sum(x.Y) / n

	var lmax float64
	for j, sd := range popSD(x) {
		if sd == 0 {
			continue
		}
		var g float64
		for i, y := range x.Y {
			g += (y - ybar) * x.X[j][i]
		}
		lmax = math.Max(lmax, math.Abs(g)/(n*sd))
	}

	if lmax == 0 {
		return 0, errors.New("selection: no covariate varies")
	}

	return lmax, nil
}

// lambdaPath returns the decreasing log-spaced penalty path.
func (cfg *LassoConfig) lambdaPath(x *design.Matrix) ([]float64, error) {

	if len(cfg.Lambdas) > 0 {
		for k := 1; k < len(cfg.Lambdas); k++ {
			if cfg.Lambdas[k] >= cfg.Lambdas[k-1] {
				return nil, errors.New("selection: penalty path must be decreasing")
			}
		}
		return slices.Clone(cfg.Lambdas), nil
	}

	if cfg.NLambda < 2 {
		return nil, fmt.Errorf("selection: need at least 2 penalty values, got %d", cfg.NLambda)
	}
	if cfg.LambdaMinRatio <= 0 || cfg.LambdaMinRatio >= 1 {
		return nil, fmt.Errorf("selection: lambda ratio %g is not in (0, 1)", cfg.LambdaMinRatio)
	}

	lmax, err := LambdaMax(x)
	if err != nil {
		return nil, err
	}

	path := make([]float64, cfg.NLambda)
	step := math.Log(cfg.LambdaMinRatio) / float64(cfg.NLambda-1)
	for k := range path {
		path[k] = lmax * math.Exp(float64(k)*step)
	}

	return path, nil
}

// lassoPath fits the Lasso at each penalty in turn, using each fit as
// the starting point of the next.
func (cfg *LassoConfig) lassoPath(x *design.Matrix, lambdas []float64) ([]*linear, []bool, error) {

	lin, _, err := interceptOnly(x)
	if err != nil {
		return nil, nil, err
	}

	ds, err := x.Dataset(nil)
	if err != nil {
		return nil, nil, err
	}

	all := make([]int, len(x.Names))
	for j := range all {
		all[j] = j
	}
	preds := append([]string{design.Intercept}, x.Names...)

	fits := make([]*linear, len(lambdas))
	conv := make([]bool, len(lambdas))

	for k, lam := range lambdas {

		pen := make(map[string]float64, len(x.Names))
		for _, na := range x.Names {
			pen[na] = lam
		}

		gc := &glm.Config{
			Family:    glm.NewFamily(glm.BinomialFamily),
			L1Penalty: pen,
			ScaleType: statmodel.Variance,
			Start:     lin.start(all),
			L1Reg:     cfg.L1Reg,
			Log:       cfg.Log,
		}

		model, err := glm.NewGLM(ds, x.Outcome, preds, gc)
		if err != nil {
			return nil, nil, err
		}
		rslt, err := model.Fit()
		if err != nil {
			return nil, nil, err
		}

		lin = newLinear(x.Names, all, rslt.Params())
		fits[k] = lin
		conv[k] = rslt.Converged()
	}

	return fits, conv, nil
}

// CVLasso fits a Lasso logistic regression of x.Y on the columns of x,
// choosing the penalty by cross-validation over the given fold ids (one
// per row).  The intercept is not penalized.  The covariates are
// standardized internally and the coefficients are reported on their
// original scale.  The penalty with the smallest mean held-out deviance
// is selected, ties going to the smallest penalty.
func CVLasso(x *design.Matrix, folds []int, cfg *LassoConfig) (*LassoFit, error) {

	if cfg == nil {
		cfg = DefaultLassoConfig()
	}
	logger := cfg.Log
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(folds) != x.NumRows() {
		return nil, fmt.Errorf("selection: %d fold ids for %d rows", len(folds), x.NumRows())
	}

	path, err := cfg.lambdaPath(x)
	if err != nil {
		return nil, err
	}

	nfold := numFolds(folds)
	nl := len(path)
	total := make([]float64, nl)
	foldMean := make([][]float64, nl)

	for k := 0; k < nfold; k++ {

		train, test := foldRows(folds, k)
		if len(test) == 0 {
			return nil, fmt.Errorf("selection: fold %d is empty", k)
		}
		xtr := x.SelectRows(train)
		xte := x.SelectRows(test)

		fits, conv, err := cfg.lassoPath(xtr, path)
		if err != nil {
			return nil, fmt.Errorf("selection: lasso fold %d: %w", k, err)
		}

		for l, lin := range fits {
			if !conv[l] {
				total[l] = math.NaN()
				continue
			}
			p, err := lin.predict(xte)
			if err != nil {
				return nil, err
			}
			d := Deviance(xte.Y, p)
			total[l] += d
			foldMean[l] = append(foldMean[l], d/float64(len(test)))
		}
	}

	fit := &LassoFit{
		Path:   path,
		CVMean: make([]float64, nl),
		CVSE:   make([]float64, nl),
	}
	params := make([][]float64, nl)
	for l := range path {
		fit.CVMean[l] = total[l] / float64(x.NumRows())
		fit.CVSE[l] = math.NaN()
		if len(foldMean[l]) > 1 {
			sd, _ := stats.StandardDeviationSample(foldMean[l])
			fit.CVSE[l] = sd / math.Sqrt(float64(len(foldMean[l])))
		}
		params[l] = []float64{path[l]}
	}

	best := ArgMinTie(fit.CVMean, params)
	if best < 0 {
		return nil, &ConvergenceError{Model: "lasso", Imputation: -1, Reason: "cross-validation error has no finite minimum"}
	}
	fit.Lambda = path[best]

	fits, conv, err := cfg.lassoPath(x, path)
	if err != nil {
		return nil, err
	}
	if !conv[best] {
		return nil, &ConvergenceError{Model: "lasso", Imputation: -1,
			Reason: fmt.Sprintf("coordinate descent did not converge at lambda=%g", fit.Lambda)}
	}
	for _, lin := range fits {
		fit.NonZero = append(fit.NonZero, lin.nonzero())
	}
	fit.lin = fits[best]

	logger.Debug("lasso selected",
		zap.Float64("lambda", fit.Lambda),
		zap.Int("position", best),
		zap.Int("nonzero", fit.NonZero[best]),
		zap.Float64("cv_deviance", fit.CVMean[best]))

	return fit, nil
}
