package report

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kshedden/mipool/crossval"
	"github.com/kshedden/mipool/design"
	"github.com/kshedden/mipool/evaluate"
	"github.com/kshedden/mipool/pipeline"
	"github.com/kshedden/mipool/pool"
	"github.com/kshedden/mipool/selection"
	"github.com/kshedden/mipool/trial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// fakeResult assembles a run result by hand, with two imputations whose
// predictions are noisy versions of the outcome.
func fakeResult(t *testing.T) *pipeline.Result {

	cfg := trial.DefaultSimConfig()
	cfg.Rows = 120
	raw, err := trial.Simulate(cfg)
	require.NoError(t, err)
	tbl, err := trial.Prepare(raw, trial.DefaultPrepareConfig())
	require.NoError(t, err)

	y := tbl.Column("abstinent")
	mask, err := crossval.StratifiedSplit(y, 0.25, 3)
	require.NoError(t, err)

	var testY, ids []float64
	for _, i := range mask.Test {
		testY = append(testY, y[i])
		ids = append(ids, tbl.Column("id")[i])
	}

	names := []string{"ftcd", "nmr", "bdi", "age"}
	rng := rand.New(rand.NewPCG(5, 6))

	rslt := &pipeline.Result{
		RunID:    "0000-test",
		Seed:     3,
		Created:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Config:   pipeline.DefaultConfig(),
		Prepared: tbl,
		Imputed:  []*trial.Table{tbl, tbl.Clone()},
		Names:    names,
		Mask:     mask,
		TestIDs:  ids,
		TestY:    testY,
	}
	rslt.Associations, err = evaluate.Associate(tbl, "abstinent")
	require.NoError(t, err)

	for mi, name := range pipeline.Models {
		mr := &pipeline.ModelResult{Name: name}
		var coefs []map[string]float64
		var preds [][]float64
		for k := range 2 {
			p := make([]float64, len(testY))
			for i, v := range testY {
				p[i] = 0.3 + 0.4*v + 0.2*rng.Float64()
			}
			mr.Fits = append(mr.Fits, pipeline.Fit{Imputation: k, Pred: p})
			mr.Pooled = append(mr.Pooled, k)
			preds = append(preds, p)
			coefs = append(coefs, map[string]float64{
				"ftcd": -0.9 - 0.1*float64(k),
				"nmr":  -0.5,
				"bdi":  0.7 + 0.1*float64(mi),
				"age":  0,
			})
		}
		mr.Estimates, err = pool.Pool(names, coefs)
		require.NoError(t, err)
		mr.Selected = pool.Selected(mr.Estimates)
		mr.Discrimination, err = evaluate.Discriminate(preds, testY)
		require.NoError(t, err)
		mr.Calibration, err = evaluate.Calibrate(preds, testY, 5)
		require.NoError(t, err)
		rslt.Models = append(rslt.Models, mr)
	}

	// The first best subset fit carries an unpenalized refit.
	f, err := design.Parse("abstinent ~ ftcd + nmr + bdi + age")
	require.NoError(t, err)
	x, err := design.Build(tbl, f, nil)
	require.NoError(t, err)
	support := []string{"ftcd", "bdi"}
	refit, err := selection.Refit(x.SelectRows(mask.Train), support, nil)
	require.NoError(t, err)
	rslt.Model(pipeline.Subset).Fits[0].Refit = &pipeline.Refit{
		Support:  support,
		Results:  refit,
		TrainAUC: 0.78,
		TestAUC:  0.71,
	}

	return rslt
}

func TestTables(t *testing.T) {

	rslt := fakeResult(t)
	keys, tabs := Tables(rslt)

	assert.Equal(t, []string{"association", "lasso_coef", "subset_coef", "auc",
		"lasso_calibration", "subset_calibration", "tuning"}, keys)
	require.Len(t, tabs, len(keys))

	coef := tabs[1].String()
	assert.Contains(t, coef, "Pooled coefficients, lasso")
	assert.Contains(t, coef, "ftcd")
	assert.Contains(t, coef, "2/2")
	assert.Contains(t, coef, "0/2")

	assoc := AssociationTable(rslt).String()
	for _, na := range []string{"arm", "education", "income", "sex"} {
		assert.Contains(t, assoc, na)
	}

	// Fits without a model are marked in the tuning table
	tun, err := sheetRows(TuningTable(rslt))
	require.NoError(t, err)
	require.Len(t, tun, 3)
	assert.Equal(t, -1, tun[1][2])
	assert.Nil(t, tun[1][1])
}

func TestRefitTables(t *testing.T) {

	rslt := fakeResult(t)
	keys, tabs := RefitTables(rslt)
	assert.Equal(t, []string{"refit_1"}, keys)
	require.Len(t, tabs, 1)

	s := tabs[0].String()
	assert.Contains(t, s, "Unpenalized best subset refit, imputation 1")
	assert.Contains(t, s, "Test AUC: 0.7100")
	assert.Contains(t, s, "Odds ratios")
	assert.Contains(t, s, design.Intercept)

	rows, err := sheetRows(tabs[0])
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []interface{}{"Variable", "Parameter", "LCB", "UCB", "P-value"}, rows[0])
	assert.Equal(t, "ftcd", rows[2][0])

	// Odds ratios lie within their limits
	b := rslt.Model(pipeline.Subset).Fits[0].Refit.Results.Params()
	for i, r := range rows[1:] {
		or := r[1].(float64)
		assert.InDelta(t, math.Exp(b[i]), or, 1e-10)
		assert.LessOrEqual(t, r[2].(float64), or)
		assert.GreaterOrEqual(t, r[3].(float64), or)
	}

	rslt.Model(pipeline.Subset).Fits[0].Refit = nil
	keys, _ = RefitTables(rslt)
	assert.Empty(t, keys)
}

func TestSheetRows(t *testing.T) {

	rows, err := sheetRows(CalibrationTable(fakeResult(t).Models[0]))
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "Bin", rows[0][0])

	var n int
	for _, r := range rows[1:] {
		n += r[3].(int)
	}
	assert.Equal(t, 2*len(fakeResult(t).TestY), n)
}

func TestWriteWorkbook(t *testing.T) {

	rslt := fakeResult(t)
	names, tabs := Tables(rslt)
	path := filepath.Join(t.TempDir(), "tables.xlsx")
	require.NoError(t, WriteWorkbook(path, names, tabs))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, names, f.GetSheetList())

	rows, err := f.GetRows("auc")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Model", "AUC", "SD", "Min", "Max", "M"}, rows[0])
	assert.Equal(t, "lasso", rows[1][0])

	assert.Error(t, WriteWorkbook(path, names[:1], tabs))
}

func TestMarkdown(t *testing.T) {

	rslt := fakeResult(t)
	rslt.Flags = []string{"subset: imputation 1 did not converge and was not pooled"}
	md := Markdown(rslt, []string{"roc_lasso.png"})

	assert.True(t, strings.HasPrefix(md, "# "))
	assert.Contains(t, md, "0000-test")
	assert.Contains(t, md, "## Warnings")
	assert.Contains(t, md, "![roc_lasso](roc_lasso.png)")
	assert.Contains(t, md, "**lasso**: ftcd")
	assert.Contains(t, md, "## Appendix: unpenalized refits")
	assert.Contains(t, md, "### Unpenalized best subset refit, imputation 1")

	page := string(HTML(md, "test"))
	assert.Contains(t, page, "<title>test</title>")
	assert.Contains(t, page, "<h1")
	assert.Contains(t, page, `<img src="roc_lasso.png"`)
	assert.Contains(t, page, "<pre>")
}

func TestCorrelation(t *testing.T) {

	x := []float64{1, 2, 3, 4, 5, math.NaN()}
	y := []float64{2, 4, 6, 8, 10, 12}
	z := []float64{5, 4, 3, 2, 1, 0}
	tbl, err := trial.NewTable([]string{"id", "x", "y", "z"}, [][]float64{{1, 2, 3, 4, 5, 6}, x, y, z})
	require.NoError(t, err)

	names, c, err := Correlation(tbl, "id")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, names)
	assert.InDelta(t, 1, c.At(0, 1), 1e-12)
	assert.InDelta(t, -1, c.At(0, 2), 1e-12)
	assert.InDelta(t, 1, c.At(2, 2), 1e-12)

	_, _, err = Correlation(tbl, "id", "x", "y")
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {

	rslt := fakeResult(t)
	dir := filepath.Join(t.TempDir(), "out")

	files, err := Write(dir, rslt, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"correlation.png", "importance.png", "roc_lasso.png",
		"calibration_lasso.png", "roc_subset.png", "calibration_subset.png"}, files.Figures)

	for _, na := range append([]string{files.Markdown, files.HTML, files.Workbook}, files.Figures...) {
		st, err := os.Stat(filepath.Join(dir, na))
		require.NoError(t, err, na)
		assert.Positive(t, st.Size(), na)
	}

	wb, err := excelize.OpenFile(filepath.Join(dir, files.Workbook))
	require.NoError(t, err)
	defer wb.Close()
	assert.Contains(t, wb.GetSheetList(), "refit_1")
}
