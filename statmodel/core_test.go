package statmodel

import (
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func data1() ([]string, [][]Dtype) {
	x := [][]Dtype{
		{0, 1, 3, 2, 1, 1, 0},
		{1, 1, 1, 1, 1, 1, 1},
		{4, 1, -1, 3, 5, -5, 3},
	}
	return []string{"y", "x1", "x2"}, x
}

func data1b() ([]string, [][]Dtype) {
	x := [][]Dtype{
		{0, 1, 3},
		{1, 1, 1},
		{8, 2, -2},
	}
	return []string{"y", "x1", "x2"}, x
}

// A mock model for testing
type Mock struct {
	data [][]Dtype
	xpos []int
}

func (m *Mock) Dataset() [][]Dtype {
	return m.data
}

func (m *Mock) LogLike(params Parameter, exact bool) float64 {
	return 0
}

func (m *Mock) Score(params Parameter, score []float64) {
}

func (m *Mock) Hessian(params Parameter, ht HessType, score []float64) {
}

func (m *Mock) NumParams() int {
	return len(m.xpos)
}

func (m *Mock) NumObs() int {
	return len(m.data[0])
}

func (m *Mock) Xpos() []int {
	return m.xpos
}

func TestResult1(t *testing.T) {

	_, da := data1()
	model := &Mock{
		data: da,
		xpos: []int{1, 2},
	}

	params := []float64{1, 2}
	xnames := []string{"x1", "x2"}
	vcov := []float64{0.25, 0, 0, 4}

	r := NewBaseResults(model, 0, params, xnames, vcov)

	// Test fitted values on the training data.
	fv, err := r.FittedValues(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal([]float64{9, 3, -1, 7, 11, -9, 7}, fv) {
		t.Fail()
	}

	// Test fitted values on new data with fewer rows.
	_, da2 := data1b()
	fv, err = r.FittedValues(da2)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal([]float64{17, 5, -3}, fv) {
		t.Fail()
	}

	if _, err := r.FittedValues(da2[0:2]); err == nil {
		t.Errorf("expected an error for a dataset with missing columns")
	}

	if !floats.EqualApprox([]float64{0.5, 2}, r.StdErr(), 1e-12) {
		t.Fail()
	}
	if !floats.EqualApprox([]float64{2, 1}, r.ZScores(), 1e-12) {
		t.Fail()
	}
	if !floats.EqualApprox([]float64{0.0455003, 0.3173105}, r.PValues(), 1e-6) {
		t.Fail()
	}
}

func TestNoVcov(t *testing.T) {

	_, da := data1()
	model := &Mock{data: da, xpos: []int{1, 2}}
	r := NewBaseResults(model, 0, []float64{1, 2}, []string{"x1", "x2"}, nil)

	if r.StdErr() != nil || r.ZScores() != nil || r.PValues() != nil {
		t.Errorf("inference values should be nil without a covariance matrix")
	}
}

func TestDataset(t *testing.T) {

	na, da := data1()
	ds := NewDataset(da, na)

	if ds.NumObs() != 7 {
		t.Errorf("NumObs=%d, want 7", ds.NumObs())
	}
	if ds.Pos("x2") != 2 || ds.Pos("z") != -1 {
		t.Fail()
	}
	if !floats.Equal(ds.Get("x2"), da[2]) {
		t.Fail()
	}
	if ds.Get("z") != nil {
		t.Fail()
	}
}

type testParam struct {
	coeff []float64
}

func (p *testParam) GetCoeff() []float64 {
	return p.coeff
}

func (p *testParam) SetCoeff(c []float64) {
	p.coeff = c
}

func (p *testParam) Clone() Parameter {
	c := make([]float64, len(p.coeff))
	copy(c, p.coeff)
	return &testParam{c}
}

// lsq is a least squares model with unit scale.
type lsq struct {
	y []float64
	x [][]float64
}

func (m *lsq) NumParams() int {
	return len(m.x)
}

func (m *lsq) NumObs() int {
	return len(m.y)
}

func (m *lsq) LinPred(coeff []float64) []float64 {
	lp := make([]float64, len(m.y))
	for j, x := range m.x {
		floats.AddScaled(lp, coeff[j], x)
	}
	return lp
}

func (m *lsq) Column(j int) []float64 {
	return m.x[j]
}

func (m *lsq) Focus(j int, offset []float64) RegFitter {
	return &lsq1{y: m.y, x: m.x[j], off: offset}
}

// lsq1 is a one-variable least squares model with an offset.
type lsq1 struct {
	y, x, off []float64
}

func (m *lsq1) NumParams() int { return 1 }
func (m *lsq1) NumObs() int { return len(m.y) }
func (m *lsq1) Xpos() []int { return []int{0} }
func (m *lsq1) Dataset() [][]Dtype { return [][]Dtype{m.x} }

func (m *lsq1) LogLike(p Parameter, exact bool) float64 {
	b := p.GetCoeff()[0]
	var ll float64
	for i, y := range m.y {
		r := y - m.off[i] - b*m.x[i]
		ll -= r * r / 2
	}
	return ll
}

func (m *lsq1) Score(p Parameter, score []float64) {
	b := p.GetCoeff()[0]
	score[0] = 0
	for i, y := range m.y {
		score[0] += m.x[i] * (y - m.off[i] - b*m.x[i])
	}
}

func (m *lsq1) Hessian(p Parameter, ht HessType, hess []float64) {
	hess[0] = 0
	for _, x := range m.x {
		hess[0] -= x * x
	}
}

func TestFitL1Reg(t *testing.T) {

	// Orthogonal unit-variance covariates, so the solution is soft
	// thresholding of (1, 2).
	model := &lsq{
		y: []float64{3, -1, 3, -1},
		x: [][]float64{
			{1, 1, 1, 1},
			{1, -1, 1, -1},
		},
	}

	for _, checkstep := range []bool{false, true} {
		for _, tc := range []struct {
			l1   float64
			want []float64
		}{
			{0, []float64{1, 2}},
			{0.5, []float64{0.5, 1.5}},
			{1.5, []float64{0, 0.5}},
			{3, []float64{0, 0}},
		} {
			cfg := DefaultL1RegConfig()
			cfg.CheckStep = checkstep
			par, ok := FitL1Reg(model, &testParam{make([]float64, 2)}, []float64{tc.l1, tc.l1}, cfg)
			if !ok {
				t.Errorf("l1=%v: did not converge", tc.l1)
			}
			if !floats.EqualApprox(par.GetCoeff(), tc.want, 1e-6) {
				t.Errorf("l1=%v checkstep=%v: got %v, want %v", tc.l1, checkstep, par.GetCoeff(), tc.want)
			}
		}
	}
}

func TestFitL1RegMaxIter(t *testing.T) {

	model := &lsq{
		y: []float64{3, -1, 2, 0},
		x: [][]float64{
			{1, 1, 1, 1},
			{1, 0.9, 1, 1.1},
		},
	}

	cfg := &L1RegConfig{MaxIter: 1, Tol: 1e-12}
	_, ok := FitL1Reg(model, &testParam{make([]float64, 2)}, []float64{0, 0}, cfg)
	if ok {
		t.Errorf("a single sweep on collinear covariates should not converge")
	}
}

func TestBisection(t *testing.T) {

	f := func(x float64) float64 {
		return (x - 3) * (x - 3)
	}

	// The minimizer lies outside the starting interval.
	x := bisection(f, -1, 1, 1e-8)
	if math.Abs(x-3) > 1e-6 {
		t.Errorf("bisection: got %f, want 3", x)
	}

	g := func(x float64) float64 {
		return math.Abs(x + 5)
	}
	x = bisection(g, -1, 1, 1e-8)
	if math.Abs(x+5) > 1e-6 {
		t.Errorf("bisection: got %f, want -5", x)
	}
}

func TestSummaryTable(t *testing.T) {

	tab := &SummaryTable{
		Title:    "Pooled estimates",
		Top:      []string{"Imputations: 5", "Test rows: 60"},
		ColNames: []string{"Variable", "Mean", "Count"},
		ColFmt:   []Fmter{StringFmter, FloatFmter, IntFmter},
		Cols: []interface{}{
			[]string{"age", "ftcd"},
			[]float64{0.25, -1.5},
			[]int{5, 3},
		},
		Msg: []string{"done"},
	}

	s := tab.String()
	for _, want := range []string{"Pooled estimates", "Imputations: 5", "0.2500", "-1.5000", "ftcd", "done"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary table is missing %q:\n%s", want, s)
		}
	}
}
