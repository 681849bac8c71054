package glm

import (
	"fmt"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/kshedden/mipool/statmodel"
)

// A test problem
type difftestprob struct {
	title     string
	family    *Family
	link      *Link
	data      statmodel.Dataset
	xnames    []string
	weight    bool
	params    [][]float64
	scale     float64
	l2wgt     map[string]float64
	scaletype []statmodel.ScaleType
}

var diffTests = []difftestprob{
	{
		title:     "Gaussian 1",
		family:    NewFamily(GaussianFamily),
		data:      data1(),
		xnames:    []string{"x1", "x2"},
		scale:     2,
		params:    [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
		scaletype: []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
	{
		title:     "Gaussian 2",
		family:    NewFamily(GaussianFamily),
		data:      data1(),
		xnames:    []string{"x1", "x2"},
		weight:    true,
		scale:     2,
		params:    [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
		scaletype: []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
	{
		title:     "Gaussian log link",
		family:    NewFamily(GaussianFamily),
		link:      NewLink(LogLink),
		data:      data1(),
		xnames:    []string{"x1", "x2"},
		weight:    true,
		scale:     1.5,
		params:    [][]float64{{0.5, 0}, {0, 0.1}, {0.2, -0.1}},
		scaletype: []statmodel.ScaleType{statmodel.NoScale},
	},
	{
		title:     "Binomial 1",
		family:    NewFamily(BinomialFamily),
		data:      data2(),
		xnames:    []string{"x1", "x2", "x3"},
		weight:    true,
		params:    [][]float64{{1, 0, 0}, {0, 1, 0}, {1, 1, 1}, {-1, 0, 1}},
		scale:     1,
		scaletype: []statmodel.ScaleType{statmodel.NoScale, statmodel.Variance},
	},
	{
		title:     "Binomial ridge",
		family:    NewFamily(BinomialFamily),
		data:      data2(),
		xnames:    []string{"x1", "x2", "x3"},
		params:    [][]float64{{1, 0, 0}, {-1, 0.5, 1}},
		scale:     1,
		l2wgt:     map[string]float64{"x2": 0.3, "x3": 0.1},
		scaletype: []statmodel.ScaleType{statmodel.NoScale, statmodel.L2Norm},
	},
}

func (dt *difftestprob) model(t *testing.T, scaletype statmodel.ScaleType) *GLM {

	config := DefaultConfig()
	config.Family = dt.family
	config.Link = dt.link
	config.ScaleType = scaletype
	config.L2Penalty = dt.l2wgt
	if dt.weight {
		config.WeightVar = "w"
	}

	glm, err := NewGLM(dt.data, "y", dt.xnames, config)
	if err != nil {
		t.Fatal(err)
	}

	return glm
}

func TestGrad(t *testing.T) {

	for _, dt := range diffTests {
		for _, scaletype := range dt.scaletype {

			glm := dt.model(t, scaletype)

			p := len(dt.params[0])
			ngrad := make([]float64, p)
			score := make([]float64, p)

			loglike := func(x []float64) float64 {
				return glm.LogLike(&GLMParams{x, dt.scale}, true)
			}

			for _, params := range dt.params {
				fd.Gradient(ngrad, loglike, params, nil)
				glm.Score(&GLMParams{params, dt.scale}, score)

				// The Gaussian score is not scaled by the dispersion.
				if dt.family.TypeCode == GaussianFamily {
					floats.Scale(1/dt.scale, score)
				}

				if !floats.EqualApprox(score, ngrad, 1e-5) {
					fmt.Printf("%s\n", dt.title)
					fmt.Printf("Numerical:  %v\n", ngrad)
					fmt.Printf("Analytical: %v\n", score)
					t.Fail()
				}
			}
		}
	}
}

func TestHess(t *testing.T) {

	for _, dt := range diffTests {
		for _, scaletype := range dt.scaletype {

			glm := dt.model(t, scaletype)

			p := len(dt.params[0])
			nhess := make([]float64, p*p)
			hess := make([]float64, p*p)

			for _, params := range dt.params {

				// Numerically differentiate the score.
				for j := 0; j < p; j++ {
					grad := make([]float64, p)
					f := func(x []float64) float64 {
						s := make([]float64, p)
						glm.Score(&GLMParams{x, 1}, s)
						return s[j]
					}
					fd.Gradient(grad, f, params, &fd.Settings{Formula: fd.Central})
					copy(nhess[j*p:(j+1)*p], grad)
				}

				glm.Hessian(&GLMParams{params, 1}, statmodel.ObsHess, hess)
				if !floats.EqualApprox(hess, nhess, 1e-5) {
					fmt.Printf("%s\n", dt.title)
					fmt.Printf("Numerical:  %v\n", nhess)
					fmt.Printf("Analytical: %v\n", hess)
					t.Fail()
				}
			}
		}
	}
}
