package glm

import (
	"fmt"
	"math"

	"github.com/kshedden/mipool/statmodel"
)

// FamilyType is the type of GLM family used in a model.
type FamilyType uint8

// BinomialFamily and GaussianFamily are the supported families.
const (
	BinomialFamily FamilyType = iota
	GaussianFamily
)

// DispersionForm indicates whether the scale parameter is fixed or
// estimated from the data.
type DispersionForm uint8

// DispersionFixed holds the scale at 1, DispersionFree estimates it
// from the Pearson residuals.
const (
	DispersionFixed DispersionForm = iota
	DispersionFree
)

// LogLikeFunc evaluates and returns the log-likelihood for a GLM.  The arguments
// are the data, the mean values, the weights, the scale parameter, and the 'exact flag'.
// If the exact flag is false, multiplicative factors that are constant with respect to
// the mean may be omitted.  The weights may be nil in which case all weights are taken to be 1.
type LogLikeFunc func([]statmodel.Dtype, []float64, []statmodel.Dtype, float64, bool) float64

// DevianceFunc evaluates and returns the deviance for a GLM.  The arguments
// are the data, the mean values, the weights, and the scale parameter.  The weights
// may be nil in which case all weights are taken to be 1.
type DevianceFunc func([]statmodel.Dtype, []float64, []statmodel.Dtype, float64) float64

// Family represents a generalized linear model family.
type Family struct {

	// The name of the family
	Name string

	// The numeric code for the family
	TypeCode FamilyType

	// The log-likelihood function for the family
	LogLike LogLikeFunc

	// The deviance function for the family
	Deviance DevianceFunc

	// How the scale parameter is handled
	Dispersion DispersionForm

	// The names of valid links for this family.  The first listed
	// link should be the canonical link.
	validLinks []LinkType

	// The variance function used when none is configured.
	defaultVar VarianceType
}

// NewFamily returns a family object corresponding to the given type.
func NewFamily(fam FamilyType) *Family {

	switch fam {
	case BinomialFamily:
		return &binomial
	case GaussianFamily:
		return &gaussian
	default:
		msg := fmt.Sprintf("Unknown family: %v\n", fam)
		panic(msg)
	}
}

var binomial = Family{
	Name:       "Binomial",
	TypeCode:   BinomialFamily,
	LogLike:    binomialLogLike,
	Deviance:   binomialDeviance,
	Dispersion: DispersionFixed,
	validLinks: []LinkType{LogitLink, LogLink, IdentityLink},
	defaultVar: BinomialVar,
}

var gaussian = Family{
	Name:       "Gaussian",
	TypeCode:   GaussianFamily,
	LogLike:    gaussianLogLike,
	Deviance:   gaussianDeviance,
	Dispersion: DispersionFree,
	validLinks: []LinkType{IdentityLink, LogLink},
	defaultVar: ConstantVar,
}

// IsValidLink returns true or false based on whether the link is
// valid for the family.
func (fam *Family) IsValidLink(link *Link) bool {

	for _, q := range fam.validLinks {
		if link.TypeCode == q {
			return true
		}
	}

	return false
}

// CanonicalLink returns the canonical link of the family.
func (fam *Family) CanonicalLink() *Link {
	return NewLink(fam.validLinks[0])
}

func binomialLogLike(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, scale float64, exact bool) float64 {
	var ll float64
	var w float64 = 1
	for i := range y {
		if wt != nil {
			w = wt[i]
		}
		ll += w * (xlogy(y[i], mn[i]) + xlogy(1-y[i], 1-mn[i]))
	}
	return ll
}

func gaussianLogLike(y []statmodel.Dtype, mn []float64, wt []statmodel.Dtype, scale float64, exact bool) float64 {
	var ll float64
	var w float64 = 1
	var ws float64
	for i := range y {
		if wt != nil {
			w = wt[i]
		}
		r := y[i] - mn[i]
		ll -= w * r * r / (2 * scale)
		ws += w
	}
	ll -= ws * math.Log(2*math.Pi*scale) / 2
	return ll
}

func binomialDeviance(y []statmodel.Dtype, mn []float64, wgt []statmodel.Dtype, scale float64) float64 {

	var dev float64
	var w float64 = 1

	for i := range y {
		if wgt != nil {
			w = wgt[i]
		}
		dev -= 2 * w * (xlogy(y[i], mn[i]) + xlogy(1-y[i], 1-mn[i]))
	}

	return dev
}

func gaussianDeviance(y []statmodel.Dtype, mn []float64, wgt []statmodel.Dtype, scale float64) float64 {

	var dev float64
	var w float64 = 1

	for i := range y {
		if wgt != nil {
			w = wgt[i]
		}
		r := y[i] - mn[i]
		dev += w * r * r
	}
	dev /= scale

	return dev
}

// xlogy returns x*log(y), taking the value to be zero when x is zero.
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}
