// Package evaluate measures the discrimination and calibration of
// predicted probabilities on held-out rows.
package evaluate

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

func checkBinary(pred, y []float64) error {

	if len(pred) != len(y) {
		return fmt.Errorf("evaluate: %d predictions for %d outcomes", len(pred), len(y))
	}

	var n1 int
	for i, v := range y {
		switch v {
		case 1:
			n1++
		case 0:
		default:
			return fmt.Errorf("evaluate: outcome %d has value %g, expected 0 or 1", i, v)
		}
		if math.IsNaN(pred[i]) {
			return fmt.Errorf("evaluate: prediction %d is missing", i)
		}
	}
	if n1 == 0 || n1 == len(y) {
		return errors.New("evaluate: the outcomes contain a single class")
	}

	return nil
}

// ROCCurve returns the false and true positive rates at every distinct
// prediction cutoff, in increasing order.
func ROCCurve(pred, y []float64) (fpr, tpr []float64, err error) {

	if err := checkBinary(pred, y); err != nil {
		return nil, nil, err
	}

	sp := make([]float64, len(pred))
	cl := make([]bool, len(pred))
	for i, v := range pred {
		sp[i] = v
		cl[i] = y[i] == 1
	}
	stat.SortWeightedLabeled(sp, cl, nil)

	tpr, fpr, _ = stat.ROC(nil, sp, cl, nil)

	return fpr, tpr, nil
}

// AUC returns the area under the ROC curve.  Tied predictions count as
// half concordant.
func AUC(pred, y []float64) (float64, error) {

	fpr, tpr, err := ROCCurve(pred, y)
	if err != nil {
		return 0, err
	}

	return integrate.Trapezoidal(fpr, tpr), nil
}

// Discrimination summarizes the AUC over imputations.
type Discrimination struct {

	// AUC of each imputation
	AUC []float64

	Mean float64

	// Sample standard deviation, NaN for a single imputation
	SD float64
}

// Discriminate computes the AUC of each prediction vector against the
// common outcomes y.
func Discriminate(preds [][]float64, y []float64) (*Discrimination, error) {

	if len(preds) == 0 {
		return nil, errors.New("evaluate: no prediction vectors")
	}

	d := &Discrimination{SD: math.NaN()}
	for k, p := range preds {
		a, err := AUC(p, y)
		if err != nil {
			return nil, fmt.Errorf("imputation %d: %w", k, err)
		}
		d.AUC = append(d.AUC, a)
	}

	d.Mean, _ = stats.Mean(d.AUC)
	if len(d.AUC) > 1 {
		d.SD, _ = stats.StandardDeviationSample(d.AUC)
	}

	return d, nil
}
