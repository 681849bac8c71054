package evaluate

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestAUC(t *testing.T) {

	y := []float64{0, 0, 1, 1}

	cases := []struct {
		pred []float64
		want float64
	}{
		{[]float64{0.1, 0.2, 0.8, 0.9}, 1},
		{[]float64{0.9, 0.8, 0.2, 0.1}, 0},
		{[]float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{[]float64{0.1, 0.6, 0.4, 0.9}, 0.75},
	}

	for k, c := range cases {
		a, err := AUC(c.pred, y)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(a-c.want) > 1e-12 {
			t.Logf("case %d: auc=%v, want %v\n", k, a, c.want)
			t.Fail()
		}
	}

	if _, err := AUC([]float64{0.1, 0.2}, []float64{1, 1}); err == nil {
		t.Fail()
	}
	if _, err := AUC([]float64{0.1, 0.2}, []float64{0, 2}); err == nil {
		t.Fail()
	}
	if _, err := AUC([]float64{0.1}, []float64{0, 1}); err == nil {
		t.Fail()
	}
}

func TestROCCurve(t *testing.T) {

	fpr, tpr, err := ROCCurve([]float64{0.3, 0.1, 0.8, 0.7}, []float64{0, 0, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if fpr[0] != 0 || tpr[0] != 0 || fpr[len(fpr)-1] != 1 || tpr[len(tpr)-1] != 1 {
		t.Logf("fpr=%v tpr=%v\n", fpr, tpr)
		t.Fail()
	}
	for k := 1; k < len(fpr); k++ {
		if fpr[k] < fpr[k-1] || tpr[k] < tpr[k-1] {
			t.Fail()
		}
	}
}

func TestDiscriminate(t *testing.T) {

	y := []float64{0, 0, 1, 1}
	preds := [][]float64{
		{0.1, 0.2, 0.8, 0.9},
		{0.1, 0.6, 0.4, 0.9},
	}

	d, err := Discriminate(preds, y)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(d.AUC, []float64{1, 0.75}, 1e-12) {
		t.Fail()
	}
	if math.Abs(d.Mean-0.875) > 1e-12 || math.Abs(d.SD-0.25/math.Sqrt(2)) > 1e-12 {
		t.Logf("mean=%v sd=%v\n", d.Mean, d.SD)
		t.Fail()
	}

	d, err = Discriminate(preds[:1], y)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(d.SD) {
		t.Fail()
	}
}

func TestCalibrate(t *testing.T) {

	y := []float64{0, 1, 0, 1, 1}
	preds := [][]float64{
		{0.0, 0.25, 0.5, 0.75, 1.0},
		{0.1, 0.3, 0.5, 0.7, 0.9},
		{0.05, 0.2, 0.45, 0.95, 0.99},
	}

	bins, err := Calibrate(preds, y, 5)
	if err != nil {
		t.Fatal(err)
	}

	var n int
	for _, b := range bins {
		n += b.Count
	}
	if n != len(preds)*len(y) {
		t.Logf("bin counts sum to %d\n", n)
		t.Fail()
	}

	// The largest prediction lands in the last bin.
	if bins[4].Upper != 1 || bins[0].Lower != 0 {
		t.Fail()
	}
	last := bins[4]
	if last.Count != 4 || math.Abs(last.Expected-(1.0+0.9+0.95+0.99)/4) > 1e-12 || last.Observed != 1 {
		t.Logf("%+v\n", last)
		t.Fail()
	}
	if last.ObservedSD != 0 {
		t.Fail()
	}

	// 0.0, 0.1, 0.05 are all in the first bin, with outcome 0.
	if bins[0].Count != 3 || bins[0].Observed != 0 {
		t.Logf("%+v\n", bins[0])
		t.Fail()
	}

	if _, err := Calibrate(preds, y, 0); err == nil {
		t.Fail()
	}
	if _, err := Calibrate([][]float64{{0.1}}, y, 5); err == nil {
		t.Fail()
	}
}

func TestCalibrateSingleValue(t *testing.T) {

	bins, err := Calibrate([][]float64{{0.3, 0.3}}, []float64{0, 1}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if bins[4].Count != 2 || bins[4].Observed != 0.5 || !math.IsNaN(bins[0].Expected) {
		t.Fail()
	}
}

func TestLoess(t *testing.T) {

	// A line is reproduced exactly.
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 1 + 2*v
	}

	fit, err := Loess(x, y, 0.5, []float64{0.5, 3, 6.5})
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(fit, []float64{2, 7, 14}, 1e-8) {
		t.Logf("%v\n", fit)
		t.Fail()
	}

	if _, err := Loess(x, y[:3], 0.5, x); err == nil {
		t.Fail()
	}
	if _, err := Loess(x, y, 0, x); err == nil {
		t.Fail()
	}
}

func TestLinearFit(t *testing.T) {

	fit, err := LinearFit([]float64{0, 1, 2, 3}, []float64{1, 2, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	// slope 0.6, intercept 1.1
	if !floats.EqualApprox(fit, []float64{1.1, 1.7, 2.3, 2.9}, 1e-10) {
		t.Logf("%v\n", fit)
		t.Fail()
	}
}
