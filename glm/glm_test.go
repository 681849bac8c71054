package glm

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/mipool/statmodel"
)

func scalarClose(x, y, eps float64) bool {
	return math.Abs(x-y) <= eps
}

func data1() statmodel.Dataset {

	y := []float64{0, 1, 3, 2, 1, 1, 0}
	x1 := []float64{1, 1, 1, 1, 1, 1, 1}
	x2 := []float64{4, 1, -1, 3, 5, -5, 3}
	w := []float64{1, 2, 2, 3, 1, 3, 2}

	return statmodel.NewDataset([][]float64{y, x1, x2, w}, []string{"y", "x1", "x2", "w"})
}

func data2() statmodel.Dataset {

	y := []float64{0, 0, 1, 0, 1, 0, 0}
	x1 := []float64{1, 1, 1, 1, 1, 1, 1}
	x2 := []float64{4, 1, -1, 3, 5, -5, 3}
	x3 := []float64{1, -1, 1, 1, 2, 5, -1}
	w := []float64{2, 1, 3, 3, 4, 2, 3}

	return statmodel.NewDataset([][]float64{y, x1, x2, x3, w}, []string{"y", "x1", "x2", "x3", "w"})
}

func data3() statmodel.Dataset {

	y := []float64{1, 1, 1, 0, 0, 0, 0}
	x1 := []float64{1, 1, 1, 1, 1, 1, 1}
	x2 := []float64{0, 1, 0, 0, -1, 0, 1}
	w := []float64{3, 3, 2, 3, 1, 3, 2}

	return statmodel.NewDataset([][]float64{y, x1, x2, w}, []string{"y", "x1", "x2", "w"})
}

// A test problem
type testprob struct {
	title      string
	family     *Family
	data       statmodel.Dataset
	xnames     []string
	weight     bool
	start      []float64
	params     []float64
	stderr     []float64
	vcov       []float64
	ll         float64
	scale      float64
	l2wgt      []float64
	l1wgt      []float64
	fitmethods []string
	scaletype  []statmodel.ScaleType
}

var glmTests = []testprob{
	{
		title:      "Gaussian weighted 1",
		family:     NewFamily(GaussianFamily),
		data:       data1(),
		xnames:     []string{"x1", "x2"},
		weight:     true,
		params:     []float64{1.316285, -0.047555},
		stderr:     []float64{0.277652, 0.080877},
		vcov:       []float64{0.077091, -0.004205, -0.004205, 0.006541},
		ll:         -19.14926021670413,
		scale:      1.0414236578435769,
		fitmethods: []string{"Gradient", "IRLS"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
	{
		title:  "Gaussian weighted 2",
		family: NewFamily(GaussianFamily),
		data:   data2(),
		xnames: []string{"x1", "x2", "x3"},
		weight: true,
		params: []float64{0.191194, 0.046013, 0.090639},
		stderr: []float64{0.199909, 0.044360, 0.082265},
		vcov: []float64{0.039963, -0.005955, -0.011730,
			-0.005955, 0.001968, 0.001831,
			-0.011730, 0.001831, 0.006768},
		ll:         -11.876495505764467,
		scale:      0.25882586275287583,
		fitmethods: []string{"Gradient", "IRLS"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
	{
		title:      "Gaussian weighted 3",
		family:     NewFamily(GaussianFamily),
		data:       data3(),
		xnames:     []string{"x1", "x2"},
		weight:     true,
		params:     []float64{0.418605, 0.220930},
		stderr:     []float64{0.13620, 0.22926},
		vcov:       []float64{0.018551, -0.012367, -0.012367, 0.052560},
		ll:         -11.862285137866323,
		scale:      0.26589147286821707,
		fitmethods: []string{"Gradient", "IRLS"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale, statmodel.Variance},
	},
	{
		title:  "Binomial weighted 2",
		family: NewFamily(BinomialFamily),
		data:   data2(),
		xnames: []string{"x1", "x2", "x3"},
		weight: true,
		params: []float64{-1.378328, 0.201911, 0.407917},
		stderr: []float64{0.927975, 0.187708, 0.363425},
		vcov: []float64{0.861138, -0.122218, -0.258570, -0.122218, 0.035234, 0.037427,
			-0.258570, 0.037427, 0.132078},
		ll:         -11.17418536789415,
		scale:      1,
		fitmethods: []string{"Gradient", "IRLS"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
	{
		title:      "Binomial weighted 3",
		family:     NewFamily(BinomialFamily),
		data:       data3(),
		xnames:     []string{"x1", "x2"},
		weight:     true,
		params:     []float64{-0.343610, 0.934519},
		stderr:     []float64{0.553523, 0.963054},
		vcov:       []float64{0.306388, -0.227123, -0.227123, 0.927473},
		ll:         -11.245509472906111,
		scale:      1,
		fitmethods: []string{"Gradient", "IRLS"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
	{
		title:  "Binomial 2",
		family: NewFamily(BinomialFamily),
		data:   data2(),
		xnames: []string{"x1", "x2", "x3"},
		params: []float64{-1.650145, 0.190136, 0.344331},
		stderr: []float64{1.505798, 0.323601, 0.593428},
		vcov: []float64{2.267429, -0.337163, -0.684836,
			-0.337163, 0.104718, 0.116028,
			-0.684836, 0.116028, 0.352157},
		ll:         -3.9607532681097091,
		scale:      1,
		fitmethods: []string{"Gradient", "IRLS"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale, statmodel.Variance},
	},
	{
		title:      "Binomial 3",
		family:     NewFamily(BinomialFamily),
		data:       data3(),
		xnames:     []string{"x1", "x2"},
		params:     []float64{-0.434175, 0.868350},
		stderr:     []float64{0.830041, 1.306904},
		vcov:       []float64{0.688967, -0.330063, -0.330063, 1.707998},
		ll:         -4.53963553741,
		scale:      1,
		fitmethods: []string{"Gradient", "IRLS"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
	{
		title:      "Gaussian 1",
		family:     NewFamily(GaussianFamily),
		data:       data1(),
		xnames:     []string{"x1", "x2"},
		params:     []float64{1.290837, -0.103586},
		stderr:     []float64{0.456706, 0.130298},
		vcov:       []float64{0.208581, -0.024254, -0.024254, 0.016978},
		ll:         -9.621454,
		scale:      1.21752988048,
		fitmethods: []string{"Gradient", "IRLS"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
	{
		title:  "Gaussian 2",
		family: NewFamily(GaussianFamily),
		data:   data2(),
		xnames: []string{"x1", "x2", "x3"},
		params: []float64{0.154198, 0.038670, 0.066739},
		stderr: []float64{0.333030, 0.083695, 0.142159},
		vcov: []float64{0.110909, -0.017874, -0.032931,
			-0.017874, 0.007005, 0.006884,
			-0.032931, 0.006884, 0.020209},
		ll:         -4.596270,
		scale:      0.334176605228,
		fitmethods: []string{"Gradient", "IRLS"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
	{
		title:      "Gaussian 3",
		family:     NewFamily(GaussianFamily),
		data:       data3(),
		xnames:     []string{"x1", "x2"},
		params:     []float64{0.4, 0.2},
		stderr:     []float64{0.219089, 0.334664},
		vcov:       []float64{0.048, -0.016, -0.016, 0.112},
		ll:         -4.944550,
		scale:      0.32,
		fitmethods: []string{"Gradient", "IRLS"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
	{
		title:      "Binomial ridge 1",
		family:     NewFamily(BinomialFamily),
		data:       data2(),
		xnames:     []string{"x1", "x2", "x3"},
		weight:     true,
		params:     []float64{-0.640768, 0.092631, 0.175485},
		scale:      1.0,
		l2wgt:      []float64{0.2, 0.2, 0.2},
		fitmethods: []string{"Gradient"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale},
	},
	{
		title:      "Binomial ridge 2",
		family:     NewFamily(BinomialFamily),
		data:       data2(),
		xnames:     []string{"x1", "x2", "x3"},
		weight:     true,
		params:     []float64{-0.659042, 0.097647, 0.187009},
		scale:      1.0,
		l2wgt:      []float64{0.2, 0, 0.1},
		fitmethods: []string{"Gradient"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale},
	},
	{
		title:      "Binomial lasso 1",
		family:     NewFamily(BinomialFamily),
		data:       data2(),
		xnames:     []string{"x1", "x2", "x3"},
		params:     []float64{-0.465363, 0, 0},
		scale:      1.0,
		l1wgt:      []float64{0.1, 0.1, 0.1},
		fitmethods: []string{"Coordinate"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale},
	},
	{
		title:      "Binomial lasso 2",
		family:     NewFamily(BinomialFamily),
		data:       data2(),
		xnames:     []string{"x1", "x2", "x3"},
		params:     []float64{-0.737198, 0.024176, 0.017089},
		scale:      1.0,
		l1wgt:      []float64{0.05, 0.05, 0.05},
		fitmethods: []string{"Coordinate"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale},
	},
	{
		title:      "Binomial elastic net",
		family:     NewFamily(BinomialFamily),
		data:       data2(),
		xnames:     []string{"x1", "x2", "x3"},
		params:     []float64{-0.988257, 0.078329, 0.121922},
		scale:      1.0,
		l1wgt:      []float64{0.02, 0.02, 0.02},
		l2wgt:      []float64{0.02, 0.02, 0.02},
		fitmethods: []string{"Coordinate"},
		scaletype:  []statmodel.ScaleType{statmodel.NoScale},
	},
}

func penaltyMap(names []string, wgt []float64) map[string]float64 {
	if wgt == nil {
		return nil
	}
	m := make(map[string]float64)
	for j, na := range names {
		m[na] = wgt[j]
	}
	return m
}

func TestFit(t *testing.T) {

	for _, ds := range glmTests {
		for _, scaletype := range ds.scaletype {
			for _, fmeth := range ds.fitmethods {

				config := DefaultConfig()
				config.Family = ds.family
				config.FitMethod = fmeth
				config.ScaleType = scaletype
				config.Start = ds.start
				config.L1Penalty = penaltyMap(ds.xnames, ds.l1wgt)
				config.L2Penalty = penaltyMap(ds.xnames, ds.l2wgt)
				if ds.weight {
					config.WeightVar = "w"
				}

				glm, err := NewGLM(ds.data, "y", ds.xnames, config)
				if err != nil {
					t.Fatal(err)
				}

				result, err := glm.Fit()
				if err != nil {
					t.Fatalf("%s %s: %v", ds.title, fmeth, err)
				}

				if !floats.EqualApprox(result.Params(), ds.params, 1e-5) {
					fmt.Printf("params failed %s %s %d:\n", ds.title, fmeth, scaletype)
					fmt.Printf("%v\n", result.Params())
					t.Fail()
				}

				if math.Abs(result.Scale()-ds.scale) > 1e-5 {
					fmt.Printf("scale failed: %s %s %d\n", ds.title, fmeth, scaletype)
					t.Fail()
				}

				// Smoke test
				_ = result.Summary().String()

				// No stderr or vcov with regularization
				if ds.l2wgt != nil || ds.l1wgt != nil {
					continue
				}

				if !result.Converged() {
					fmt.Printf("not converged: %s %s\n", ds.title, fmeth)
					t.Fail()
				}

				if !scalarClose(result.LogLike(), ds.ll, 1e-5) {
					fmt.Printf("loglike failed: %s %s %d\n", ds.title, fmeth, scaletype)
					t.Fail()
				}

				if !floats.EqualApprox(result.StdErr(), ds.stderr, 1e-5) {
					fmt.Printf("stderr failed: %s %s %d\n", ds.title, fmeth, scaletype)
					t.Fail()
				}

				if !floats.EqualApprox(result.VCov(), ds.vcov, 1e-5) {
					fmt.Printf("vcov failed: %s %s %d\n", ds.title, fmeth, scaletype)
					t.Fail()
				}
			}
		}
	}
}

func TestLassoStart(t *testing.T) {

	// Warm starts reach the same solution as a cold start.
	config := DefaultConfig()
	config.Family = NewFamily(BinomialFamily)
	config.L1Penalty = map[string]float64{"x2": 0.05, "x3": 0.05}
	config.ScaleType = statmodel.Variance

	glm, err := NewGLM(data2(), "y", []string{"x1", "x2", "x3"}, config)
	if err != nil {
		t.Fatal(err)
	}
	cold, err := glm.Fit()
	if err != nil {
		t.Fatal(err)
	}

	config.Start = []float64{-1, 0.1, 0.1}
	glm, err = NewGLM(data2(), "y", []string{"x1", "x2", "x3"}, config)
	if err != nil {
		t.Fatal(err)
	}
	warm, err := glm.Fit()
	if err != nil {
		t.Fatal(err)
	}

	if !floats.EqualApprox(cold.Params(), warm.Params(), 1e-4) {
		t.Errorf("cold %v != warm %v", cold.Params(), warm.Params())
	}
	if !cold.Converged() || !warm.Converged() {
		t.Fail()
	}
}

func TestPredict(t *testing.T) {

	config := DefaultConfig()
	config.Family = NewFamily(BinomialFamily)
	glm, err := NewGLM(data3(), "y", []string{"x1", "x2"}, config)
	if err != nil {
		t.Fatal(err)
	}
	result, err := glm.Fit()
	if err != nil {
		t.Fatal(err)
	}

	newdata := statmodel.NewDataset([][]float64{{1, 1}, {0, 1}}, []string{"x1", "x2"})
	pr, err := result.Predict(newdata)
	if err != nil {
		t.Fatal(err)
	}

	b := result.Params()
	want := []float64{Expit(b[0]), Expit(b[0] + b[1])}
	if !floats.EqualApprox(pr, want, 1e-10) {
		t.Errorf("got %v, want %v", pr, want)
	}

	bad := statmodel.NewDataset([][]float64{{1, 1}}, []string{"x1"})
	if _, err := result.Predict(bad); err == nil {
		t.Errorf("expected an error for a missing covariate")
	}
}

func TestSummaryTable(t *testing.T) {

	config := DefaultConfig()
	config.Family = NewFamily(BinomialFamily)
	glm, err := NewGLM(data3(), "y", []string{"x1", "x2"}, config)
	if err != nil {
		t.Fatal(err)
	}
	result, err := glm.Fit()
	if err != nil {
		t.Fatal(err)
	}

	tab := result.Summary().Table()
	if len(tab.Cols) != 7 || len(tab.ColNames) != 7 {
		t.Fatalf("expected 7 columns, got %d", len(tab.Cols))
	}
	if !floats.EqualApprox(tab.Cols[1].([]float64), result.Params(), 1e-12) {
		t.Fail()
	}
	if !floats.EqualApprox(tab.Cols[6].([]float64), result.PValues(), 1e-12) {
		t.Fail()
	}

	msg := "Parameters are odds ratios."
	tab = result.Summary().SetScale(math.Exp, msg).Table()
	if len(tab.Cols) != 5 {
		t.Fatalf("expected 5 columns, got %d", len(tab.Cols))
	}
	or := tab.Cols[1].([]float64)
	lcb := tab.Cols[2].([]float64)
	ucb := tab.Cols[3].([]float64)
	se := result.StdErr()
	for j, b := range result.Params() {
		if !scalarClose(or[j], math.Exp(b), 1e-10) || !scalarClose(lcb[j], math.Exp(b-2*se[j]), 1e-10) {
			t.Fail()
		}
		if lcb[j] > or[j] || or[j] > ucb[j] {
			t.Fail()
		}
	}
	if len(tab.Msg) == 0 || tab.Msg[0] != msg {
		t.Fail()
	}
	if !strings.Contains(tab.String(), msg) {
		t.Fail()
	}
}

func TestNewGLMErrors(t *testing.T) {

	ds := data1()

	for _, tc := range []struct {
		name   string
		y      string
		x      []string
		config func(*Config)
		msg    string
	}{
		{"outcome", "z", []string{"x1"}, nil, "not found"},
		{"covariate", "y", []string{"x1", "q"}, nil, "not found"},
		{"nocov", "y", nil, nil, "no covariates"},
		{"weight", "y", []string{"x1"}, func(c *Config) { c.WeightVar = "ww" }, "not found"},
		{"method", "y", []string{"x1"}, func(c *Config) { c.FitMethod = "newton" }, "not allowed"},
		{"penalty", "y", []string{"x1"}, func(c *Config) { c.L1Penalty = map[string]float64{"x9": 1} }, "unknown covariate"},
		{"link", "y", []string{"x1"}, func(c *Config) { c.Link = NewLink(LogitLink) }, "not valid"},
		{"start", "y", []string{"x1", "x2"}, func(c *Config) { c.Start = []float64{1} }, "starting values"},
	} {
		config := DefaultConfig()
		if tc.config != nil {
			tc.config(config)
		}
		_, err := NewGLM(ds, tc.y, tc.x, config)
		if err == nil || !strings.Contains(err.Error(), tc.msg) {
			t.Errorf("%s: got error %v, want one containing %q", tc.name, err, tc.msg)
		}
	}

	// Missing values are rejected
	y := []float64{0, 1, math.NaN()}
	x := []float64{1, 1, 1}
	_, err := NewGLM(statmodel.NewDataset([][]float64{y, x}, []string{"y", "x"}), "y", []string{"x"}, nil)
	if err == nil {
		t.Errorf("expected an error for missing values")
	}
}

func TestSetLink(t *testing.T) {

	fam := NewFamily(BinomialFamily)
	for _, v := range []LinkType{LogitLink, LogLink, IdentityLink} {
		if !fam.IsValidLink(NewLink(v)) {
			t.Fail()
		}
	}

	if NewFamily(GaussianFamily).IsValidLink(NewLink(LogitLink)) {
		t.Fail()
	}
}
