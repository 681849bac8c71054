package glm

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/mipool/statmodel"
)

// fitIRLS fits the model by iteratively reweighted least squares on the
// original covariate scale.  The second return value indicates whether
// the deviance converged within the iteration limit.
func (glm *GLM) fitIRLS(start []float64) ([]float64, bool, error) {

	n := glm.NumObs()
	linpred := make([]float64, n)
	mn := make([]float64, n)
	va := make([]float64, n)
	lderiv := make([]float64, n)
	irlsw := make([]float64, n)
	adjy := make([]float64, n)

	var nparam mat.VecDense

	nvar := glm.NumParams()

	xty := make([]float64, nvar)
	xtx := make([]float64, nvar*nvar)

	params := make([]float64, nvar)
	if start != nil {
		copy(params, start)
	}

	yda := glm.data[glm.ypos]
	wgt := glm.weights()
	off := glm.offset()
	xdat := glm.xraw

	var dev []float64
	converged := false

	for iter := 0; iter < glm.maxiter; iter++ {

		zero(xtx)
		zero(xty)

		if iter == 0 && start == nil {
			// Start from a mean that is close to the data.
			glm.startingMu(yda, mn)
			glm.link.Link(mn, linpred)
		} else {
			glm.linpred(xdat, params, linpred)
			glm.link.InvLink(linpred, mn)
		}

		glm.link.Deriv(mn, lderiv)
		glm.vari.Var(mn, va)

		devi := glm.fam.Deviance(yda, mn, wgt, 1)

		// Create weights for WLS
		for i := range yda {
			irlsw[i] = 1 / (lderiv[i] * lderiv[i] * va[i])
			if wgt != nil {
				irlsw[i] *= wgt[i]
			}
		}

		// Create an adjusted response for WLS
		for i := range yda {
			adjy[i] = linpred[i] + lderiv[i]*(yda[i]-mn[i])
			if off != nil {
				adjy[i] -= off[i]
			}
		}

		// Update the weighted moment matrices.  For large data sets, this is by far the
		// most expensive step.
		glm.irlsXprod(xdat, adjy, irlsw, xty, xtx)

		// Fill in the unfilled triangle of xtx
		for j1 := 0; j1 < nvar; j1++ {
			for j2 := j1 + 1; j2 < nvar; j2++ {
				xtx[j1*nvar+j2] = xtx[j2*nvar+j1]
			}
		}

		// Update the parameters
		xtxm := mat.NewDense(nvar, nvar, xtx)
		xtyv := mat.NewVecDense(nvar, xty)
		if err := nparam.SolveVec(xtxm, xtyv); err != nil {
			return nil, false, fmt.Errorf("glm: IRLS iteration %d: %w", iter+1, err)
		}
		copy(params, nparam.RawVector().Data)

		for _, p := range params {
			if math.IsNaN(p) || math.IsInf(p, 0) {
				return nil, false, fmt.Errorf("glm: IRLS iteration %d produced non-finite estimates", iter+1)
			}
		}

		glm.log.Debug("IRLS iteration", zap.Int("iter", iter+1), zap.Float64("deviance", devi))

		// Check convergence
		dev = append(dev, devi)
		if len(dev) > 3 && math.Abs(dev[len(dev)-1]-dev[len(dev)-2]) < glm.dtol {
			converged = true
			break
		}
	}

	if converged {
		glm.log.Debug("IRLS converged", zap.Int("iterations", len(dev)))
	} else {
		glm.log.Warn("IRLS did not converge", zap.Int("maxiter", glm.maxiter))
	}

	return params, converged, nil
}

func (glm *GLM) irlsXprod(xdat [][]statmodel.Dtype, adjy, irlsw, xty, xtx []float64) {

	if len(adjy) >= glm.concurrentIRLS {
		glm.irlsXprodConcurrent(xdat, adjy, irlsw, xty, xtx)
		return
	}

	nvar := len(xdat)

	for j1 := range xdat {

		// Update x' w^-1 yadj
		xda := xdat[j1]
		var u float64
		for i := range adjy {
			u += adjy[i] * xda[i] * irlsw[i]
		}
		xty[j1] += u

		// Update x' w^-1 x
		for j2 := 0; j2 <= j1; j2++ {
			xdb := xdat[j2]
			var u float64
			for i := range xda {
				u += xda[i] * xdb[i] * irlsw[i]
			}
			xtx[j1*nvar+j2] += u
		}
	}
}

// irlsXprodConcurrent is a concurrent version of irlsXprod
func (glm *GLM) irlsXprodConcurrent(xdat [][]statmodel.Dtype, adjy, irlsw, xty, xtx []float64) {

	nvar := len(xdat)

	var wg sync.WaitGroup

	for j1 := range xdat {

		// Update x' w^-1 yadj
		xda := xdat[j1]
		wg.Add(1)
		go func(j1 int) {
			defer wg.Done()
			var u float64
			for i := range adjy {
				u += adjy[i] * xda[i] * irlsw[i]
			}
			xty[j1] += u
		}(j1)

		// Update x' w^-1 x
		for j2 := 0; j2 <= j1; j2++ {
			xdb := xdat[j2]
			wg.Add(1)
			go func(j1, j2 int) {
				defer wg.Done()
				var u float64
				for i := range xda {
					u += xda[i] * xdb[i] * irlsw[i]
				}
				xtx[j1*nvar+j2] += u
			}(j1, j2)
		}
	}

	wg.Wait()
}

func (glm *GLM) startingMu(y []statmodel.Dtype, mn []float64) {

	var q float64
	if glm.fam.TypeCode == BinomialFamily {
		q = 0.5
	} else {
		for i := range y {
			q += y[i]
		}
		q /= float64(len(y))
	}

	for i := range mn {
		mn[i] = (y[i] + q) / 2
		if glm.link.TypeCode != IdentityLink && mn[i] < 0.1 {
			mn[i] = 0.1
		}
	}
}
