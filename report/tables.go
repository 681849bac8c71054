// Package report renders the results of a run as text tables, figures,
// a markdown and HTML report, and an Excel workbook.
package report

import (
	"fmt"
	"math"

	"github.com/kshedden/mipool/pipeline"
	"github.com/kshedden/mipool/selection"
	"github.com/kshedden/mipool/statmodel"
)

// CoefficientTable returns the pooled coefficients of a model, with the
// number of pooled imputations in which each variable was selected.
func CoefficientTable(mr *pipeline.ModelResult) *statmodel.SummaryTable {

	var names, sel []string
	var mean, se []float64
	for _, e := range mr.Estimates {
		names = append(names, e.Predictor)
		mean = append(mean, e.Mean)
		se = append(se, e.SE)
		sel = append(sel, fmt.Sprintf("%d/%d", e.NonZero, e.M))
	}

	return &statmodel.SummaryTable{
		Title:    fmt.Sprintf("Pooled coefficients, %s", mr.Name),
		ColNames: []string{"Variable", "Mean", "SE", "Selected"},
		ColFmt:   []statmodel.Fmter{statmodel.StringFmter, statmodel.FloatFmter, statmodel.FloatFmter, statmodel.StringFmter},
		Cols:     []interface{}{names, mean, se, sel},
		Top: []string{
			fmt.Sprintf("Imputations: %d", len(mr.Fits)),
			fmt.Sprintf("Pooled:      %d", len(mr.Pooled)),
			fmt.Sprintf("Variables:   %d", len(mr.Estimates)),
			fmt.Sprintf("Selected:    %d", len(mr.Selected)),
		},
		Msg: []string{"Coefficients are on the log odds scale.  SE combines the within and between imputation variances."},
	}
}

// AssociationTable returns the chi-square tests of the categorical
// covariates against the outcome.
func AssociationTable(rslt *pipeline.Result) *statmodel.SummaryTable {

	var names []string
	var chi, pv []float64
	var df, n []int
	for _, a := range rslt.Associations {
		names = append(names, a.Field)
		chi = append(chi, a.Stat)
		df = append(df, a.DF)
		pv = append(pv, a.PValue)
		n = append(n, a.N)
	}

	return &statmodel.SummaryTable{
		Title:    "Association with the outcome",
		ColNames: []string{"Variable", "Chi-square", "DF", "P-value", "N"},
		ColFmt:   []statmodel.Fmter{statmodel.StringFmter, statmodel.FloatFmter, statmodel.IntFmter, statmodel.FloatFmter, statmodel.IntFmter},
		Cols:     []interface{}{names, chi, df, pv, n},
		Msg:      []string{"Pearson chi-square tests on the prepared table, before imputation."},
	}
}

// DiscriminationTable returns the test set AUC of each model,
// summarized over the pooled imputations.
func DiscriminationTable(rslt *pipeline.Result) *statmodel.SummaryTable {

	var names []string
	var mean, sd, lo, hi []float64
	var m []int
	for _, mr := range rslt.Models {
		d := mr.Discrimination
		names = append(names, mr.Name)
		mean = append(mean, d.Mean)
		sd = append(sd, d.SD)
		m = append(m, len(d.AUC))
		a, b := math.Inf(1), math.Inf(-1)
		for _, v := range d.AUC {
			a = math.Min(a, v)
			b = math.Max(b, v)
		}
		lo = append(lo, a)
		hi = append(hi, b)
	}

	return &statmodel.SummaryTable{
		Title:    "Discrimination on the test set",
		ColNames: []string{"Model", "AUC", "SD", "Min", "Max", "M"},
		ColFmt: []statmodel.Fmter{statmodel.StringFmter, statmodel.FloatFmter, statmodel.FloatFmter,
			statmodel.FloatFmter, statmodel.FloatFmter, statmodel.IntFmter},
		Cols: []interface{}{names, mean, sd, lo, hi, m},
		Top: []string{
			fmt.Sprintf("Test rows:  %d", len(rslt.TestY)),
			fmt.Sprintf("Train rows: %d", len(rslt.Mask.Train)),
		},
	}
}

// CalibrationTable returns the calibration bins of a model.
func CalibrationTable(mr *pipeline.ModelResult) *statmodel.SummaryTable {

	var bin, count []int
	var lo, hi, ex, ob, sd []float64
	for k, b := range mr.Calibration {
		bin = append(bin, k+1)
		lo = append(lo, b.Lower)
		hi = append(hi, b.Upper)
		count = append(count, b.Count)
		ex = append(ex, b.Expected)
		ob = append(ob, b.Observed)
		sd = append(sd, b.ObservedSD)
	}

	ff := statmodel.FloatFmter
	return &statmodel.SummaryTable{
		Title:    fmt.Sprintf("Calibration, %s", mr.Name),
		ColNames: []string{"Bin", "Lower", "Upper", "Count", "Predicted", "Observed", "SD"},
		ColFmt:   []statmodel.Fmter{statmodel.IntFmter, ff, ff, statmodel.IntFmter, ff, ff, ff},
		Cols:     []interface{}{bin, lo, hi, count, ex, ob, sd},
		Msg:      []string{"Predictions of all pooled imputations are binned together."},
	}
}

// TuningTable returns the tuning parameters chosen by cross validation
// for each imputation.
func TuningTable(rslt *pipeline.Result) *statmodel.SummaryTable {

	var imp, lnz, size []int
	var lam, gam, slam []float64
	lasso := rslt.Model(pipeline.Lasso)
	subset := rslt.Model(pipeline.Subset)
	for k := range rslt.Imputed {
		imp = append(imp, k+1)

		l, g, sl := math.NaN(), math.NaN(), math.NaN()
		nz, sz := -1, -1
		if lasso != nil {
			if f, ok := lasso.Fits[k].Model.(*selection.LassoFit); ok {
				l, nz = f.Lambda, 0
				for _, b := range f.Coefficients() {
					if b != 0 {
						nz++
					}
				}
			}
		}
		if subset != nil {
			if f, ok := subset.Fits[k].Model.(*selection.SubsetFit); ok {
				g, sl, sz = f.Gamma, f.Lambda, len(f.Support)
			}
		}
		lam = append(lam, l)
		lnz = append(lnz, nz)
		gam = append(gam, g)
		slam = append(slam, sl)
		size = append(size, sz)
	}

	ff := statmodel.FloatFmter
	return &statmodel.SummaryTable{
		Title:    "Cross-validated tuning parameters",
		ColNames: []string{"Imputation", "Lasso lambda", "Nonzero", "Subset gamma", "Subset lambda", "Size"},
		ColFmt:   []statmodel.Fmter{statmodel.IntFmter, ff, statmodel.IntFmter, ff, ff, statmodel.IntFmter},
		Cols:     []interface{}{imp, lam, lnz, gam, slam, size},
		Msg:      []string{"NaN and -1 mark fits that did not converge."},
	}
}

// Tables returns every table of a run, keyed by a short name that is
// also used for the workbook sheets, in reporting order.
func Tables(rslt *pipeline.Result) ([]string, []*statmodel.SummaryTable) {

	var keys []string
	var tabs []*statmodel.SummaryTable
	add := func(k string, t *statmodel.SummaryTable) {
		keys = append(keys, k)
		tabs = append(tabs, t)
	}

	add("association", AssociationTable(rslt))
	for _, mr := range rslt.Models {
		add(mr.Name+"_coef", CoefficientTable(mr))
	}
	add("auc", DiscriminationTable(rslt))
	for _, mr := range rslt.Models {
		add(mr.Name+"_calibration", CalibrationTable(mr))
	}
	add("tuning", TuningTable(rslt))

	return keys, tabs
}

// RefitTables returns the unpenalized refit of each best subset support
// as odds ratios, keyed by imputation.
func RefitTables(rslt *pipeline.Result) ([]string, []*statmodel.SummaryTable) {

	mr := rslt.Model(pipeline.Subset)
	if mr == nil {
		return nil, nil
	}

	var keys []string
	var tabs []*statmodel.SummaryTable
	for _, f := range mr.Fits {
		if f.Refit == nil {
			continue
		}
		st := f.Refit.Results.Summary().
			SetScale(math.Exp, "Odds ratios, limits are two standard errors on the log scale.").
			Table()
		st.Title = fmt.Sprintf("Unpenalized best subset refit, imputation %d", f.Imputation+1)
		st.Top = append(st.Top,
			fmt.Sprintf("Train AUC: %.4f", f.Refit.TrainAUC),
			fmt.Sprintf("Test AUC: %.4f", f.Refit.TestAUC))
		keys = append(keys, fmt.Sprintf("refit_%d", f.Imputation+1))
		tabs = append(tabs, st)
	}

	return keys, tabs
}
