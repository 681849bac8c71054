package selection

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/mipool/design"
	"github.com/kshedden/mipool/glm"
)

// Model is a fitted logistic model that can report its coefficients and
// predict probabilities.
type Model interface {

	// Coefficients returns the slope of every design column, including
	// those that were not selected, which are exactly zero.
	Coefficients() map[string]float64

	// Predict returns the predicted probabilities for the rows of x.
	Predict(x *design.Matrix) ([]float64, error)
}

// linear is a logistic model with an intercept and one slope per
// design column.
type linear struct {
	names     []string
	intercept float64
	coef      []float64
}

// newLinear splits glm parameters (intercept first) into a linear model
// over all of names.  support gives the design column of each slope.
func newLinear(names []string, support []int, params []float64) *linear {
	lin := &linear{
		names:     names,
		intercept: params[0],
		coef:      make([]float64, len(names)),
	}
	for k, j := range support {
		lin.coef[j] = params[k+1]
	}
	return lin
}

func (lin *linear) coefficients() map[string]float64 {
	c := make(map[string]float64, len(lin.names))
	for j, na := range lin.names {
		c[na] = lin.coef[j]
	}
	return c
}

func (lin *linear) predict(x *design.Matrix) ([]float64, error) {

	if !slices.Equal(x.Names, lin.names) {
		return nil, fmt.Errorf("selection: design columns do not match the fitted model")
	}

	lp := make([]float64, x.NumRows())
	for i := range lp {
		lp[i] = lin.intercept
	}
	for j, c := range lin.coef {
		if c != 0 {
			floats.AddScaled(lp, c, x.X[j])
		}
	}

	for i, v := range lp {
		lp[i] = glm.Expit(v)
	}

	return lp, nil
}

// start returns glm starting values for the given support.
func (lin *linear) start(support []int) []float64 {
	s := []float64{lin.intercept}
	for _, j := range support {
		s = append(s, lin.coef[j])
	}
	return s
}

func (lin *linear) nonzero() int {
	var k int
	for _, c := range lin.coef {
		if c != 0 {
			k++
		}
	}
	return k
}

// Deviance returns the binomial deviance of the probabilities p for the
// binary outcomes y, summed over observations.  Probabilities are
// clipped away from 0 and 1.
func Deviance(y, p []float64) float64 {

	const eps = 1e-15

	var d float64
	for i, v := range y {
		q := math.Min(math.Max(p[i], eps), 1-eps)
		d -= 2 * (v*math.Log(q) + (1-v)*math.Log(1-q))
	}

	return d
}

// interceptOnly returns the intercept-only fit and its negative
// log-likelihood.
func interceptOnly(x *design.Matrix) (*linear, float64, error) {

	n := float64(x.NumRows())
	ybar := floats.Sum(x.Y) / n
	if ybar <= 0 || ybar >= 1 {
		return nil, 0, fmt.Errorf("selection: outcome has no variation")
	}

	lin := &linear{
		names:     x.Names,
		intercept: math.Log(ybar / (1 - ybar)),
		coef:      make([]float64, len(x.Names)),
	}
	loss := -n * (ybar*math.Log(ybar) + (1-ybar)*math.Log(1-ybar))

	return lin, loss, nil
}

// popSD returns the standard deviation of every column, using divisor n.
func popSD(x *design.Matrix) []float64 {

	n := float64(x.NumRows())
	sd := make([]float64, len(x.X))
	for j, z := range x.X {
		m := floats.Sum(z) / n
		var v float64
		for _, u := range z {
			v += (u - m) * (u - m)
		}
		sd[j] = math.Sqrt(v / n)
	}

	return sd
}

// foldRows returns the training and held-out rows of fold k.
func foldRows(folds []int, k int) (train, test []int) {
	for i, f := range folds {
		if f == k {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test
}

func numFolds(folds []int) int {
	return slices.Max(folds) + 1
}
