package report

import (
	"fmt"
	"math"
	"sort"

	"github.com/kshedden/mipool/evaluate"
	"github.com/kshedden/mipool/pipeline"
	"github.com/kshedden/mipool/pool"
	"github.com/kshedden/mipool/trial"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// CurvePlotter draws labeled curves on a unit square, such as ROC
// curves or calibration fits.  Errors are held until Save.
type CurvePlotter struct {
	plt *plot.Plot

	labels []string

	lines []*plotter.Line

	points []*plotter.Scatter

	width  vg.Length
	height vg.Length

	err error
}

// NewCurvePlotter returns a CurvePlotter with the given title and axis
// labels.
func NewCurvePlotter(title, xlabel, ylabel string) *CurvePlotter {

	cp := &CurvePlotter{
		width:  5,
		height: 5,
		plt:    plot.New(),
	}

	cp.plt.Title.Text = title
	cp.plt.X.Label.Text = xlabel
	cp.plt.Y.Label.Text = ylabel

	return cp
}

// Width sets the width of the plot in inches.
func (cp *CurvePlotter) Width(w float64) *CurvePlotter {
	cp.width = vg.Length(w)
	return cp
}

// Height sets the height of the plot in inches.
func (cp *CurvePlotter) Height(h float64) *CurvePlotter {
	cp.height = vg.Length(h)
	return cp
}

func xys(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(x))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: x[i], Y: y[i]})
	}
	return pts
}

// Add draws a curve through the points (x[i], y[i]).  Points with a NaN
// coordinate are skipped.
func (cp *CurvePlotter) Add(x, y []float64, label string) *CurvePlotter {

	if cp.err != nil {
		return cp
	}
	if len(x) != len(y) {
		cp.err = fmt.Errorf("curve '%s' has %d x values and %d y values", label, len(x), len(y))
		return cp
	}

	line, err := plotter.NewLine(xys(x, y))
	if err != nil {
		cp.err = fmt.Errorf("curve '%s': %w", label, err)
		return cp
	}
	line.Color = plotutil.Color(len(cp.lines))
	line.Dashes = plotutil.Dashes(len(cp.lines))
	cp.lines = append(cp.lines, line)
	cp.labels = append(cp.labels, label)

	return cp
}

// AddPoints draws unconnected points, which are not given a legend entry.
func (cp *CurvePlotter) AddPoints(x, y []float64) *CurvePlotter {

	if cp.err != nil {
		return cp
	}

	sc, err := plotter.NewScatter(xys(x, y))
	if err != nil {
		cp.err = err
		return cp
	}
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(3)
	cp.points = append(cp.points, sc)

	return cp
}

// Plot constructs the plot, with a dotted identity line for reference.
func (cp *CurvePlotter) Plot() *CurvePlotter {

	if cp.err != nil {
		return cp
	}

	cp.plt.X.Min, cp.plt.X.Max = 0, 1
	cp.plt.Y.Min, cp.plt.Y.Max = 0, 1

	diag := plotter.NewFunction(func(x float64) float64 { return x })
	diag.Color = plotutil.Color(7)
	diag.Dashes = []vg.Length{vg.Points(1), vg.Points(3)}
	cp.plt.Add(diag)

	leg := plot.NewLegend()
	for i := range cp.lines {
		cp.plt.Add(cp.lines[i])
		leg.Add(cp.labels[i], cp.lines[i])
	}
	for _, sc := range cp.points {
		cp.plt.Add(sc)
	}

	if len(cp.lines) > 1 {
		leg.Top = false
		leg.Left = false
		cp.plt.Legend = leg
	}

	return cp
}

// Save writes the plot to the given file, whose extension selects the
// image format.
func (cp *CurvePlotter) Save(fname string) error {
	if cp.err != nil {
		return cp.err
	}
	return cp.plt.Save(cp.width*vg.Inch, cp.height*vg.Inch, fname)
}

// ROCPlot overlays the ROC curves of every pooled imputation of a model.
func ROCPlot(mr *pipeline.ModelResult, y []float64, fname string) error {

	cp := NewCurvePlotter(fmt.Sprintf("ROC, %s", mr.Name), "False positive rate", "True positive rate")
	for _, k := range mr.Pooled {
		fpr, tpr, err := evaluate.ROCCurve(mr.Fits[k].Pred, y)
		if err != nil {
			return fmt.Errorf("imputation %d: %w", k, err)
		}
		cp.Add(fpr, tpr, fmt.Sprintf("imputation %d", k+1))
	}

	return cp.Plot().Save(fname)
}

// CalibrationPlot draws the mean observed outcome against the mean
// predicted probability of each nonempty bin, with loess and linear
// fits through the bin means.
func CalibrationPlot(mr *pipeline.ModelResult, fname string) error {

	bins := make([]evaluate.Bin, 0, len(mr.Calibration))
	for _, b := range mr.Calibration {
		if b.Count > 0 {
			bins = append(bins, b)
		}
	}
	sort.SliceStable(bins, func(i, j int) bool { return bins[i].Expected < bins[j].Expected })

	ex := make([]float64, len(bins))
	ob := make([]float64, len(bins))
	for i, b := range bins {
		ex[i] = b.Expected
		ob[i] = b.Observed
	}

	cp := NewCurvePlotter(fmt.Sprintf("Calibration, %s", mr.Name), "Predicted probability", "Observed proportion")
	cp.AddPoints(ex, ob)

	if len(ex) >= 2 {
		lo, err := evaluate.Loess(ex, ob, 0.75, ex)
		if err != nil {
			return err
		}
		cp.Add(ex, lo, "loess")

		lin, err := evaluate.LinearFit(ex, ob)
		if err != nil {
			return err
		}
		cp.Add(ex, lin, "linear")
	}

	return cp.Plot().Save(fname)
}

// ImportancePlot draws a horizontal bar chart of the absolute pooled
// coefficients of the selected variables, largest on top.
func ImportancePlot(title string, est []pool.Estimate, fname string) error {

	sel := append([]pool.Estimate(nil), pool.Selected(est)...)
	if len(sel) == 0 {
		return fmt.Errorf("%s: no selected variables to plot", title)
	}
	sort.SliceStable(sel, func(i, j int) bool {
		return math.Abs(sel[i].Mean) < math.Abs(sel[j].Mean)
	})

	vals := make(plotter.Values, len(sel))
	names := make([]string, len(sel))
	for i, e := range sel {
		vals[i] = math.Abs(e.Mean)
		names[i] = e.Predictor
	}

	plt := plot.New()
	plt.Title.Text = title
	plt.X.Label.Text = "|pooled coefficient|"

	bars, err := plotter.NewBarChart(vals, vg.Points(12))
	if err != nil {
		return err
	}
	bars.Horizontal = true
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = 0
	plt.Add(bars)
	plt.NominalY(names...)

	height := 1.5 + 0.25*float64(len(sel))
	return plt.Save(6*vg.Inch, vg.Length(height)*vg.Inch, fname)
}

// corrGrid adapts a correlation matrix to plotter.GridXYZ, with row 0
// drawn at the top.
type corrGrid struct {
	c *mat.SymDense
}

func (g corrGrid) Dims() (c, r int) {
	n := g.c.SymmetricDim()
	return n, n
}

func (g corrGrid) Z(c, r int) float64 {
	n := g.c.SymmetricDim()
	return g.c.At(n-1-r, c)
}

func (g corrGrid) X(c int) float64 {
	return float64(c)
}

func (g corrGrid) Y(r int) float64 {
	return float64(r)
}

// Correlation returns the numeric covariates of tbl, excluding the
// named columns, and their Pearson correlation matrix.  Rows with a
// missing cell in any of the columns are skipped.
func Correlation(tbl *trial.Table, exclude ...string) ([]string, *mat.SymDense, error) {

	skip := make(map[string]bool)
	for _, na := range exclude {
		skip[na] = true
	}

	var names []string
	for _, na := range tbl.Names() {
		if !skip[na] && !tbl.IsCategorical(na) {
			names = append(names, na)
		}
	}
	if len(names) < 2 {
		return nil, nil, fmt.Errorf("correlation needs two numeric columns, found %d", len(names))
	}

	var rows []int
	for i := 0; i < tbl.NumRows(); i++ {
		ok := true
		for _, na := range names {
			if math.IsNaN(tbl.Column(na)[i]) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	if len(rows) < 3 {
		return nil, nil, fmt.Errorf("correlation needs three complete rows, found %d", len(rows))
	}

	x := mat.NewDense(len(rows), len(names), nil)
	for j, na := range names {
		col := tbl.Column(na)
		for k, i := range rows {
			x.Set(k, j, col[i])
		}
	}

	var c mat.SymDense
	stat.CorrelationMatrix(&c, x, nil)

	return names, &c, nil
}

// HeatmapPlot draws the correlation matrix of the numeric covariates
// of tbl on a diverging blue-red scale.
func HeatmapPlot(tbl *trial.Table, fname string, exclude ...string) error {

	names, c, err := Correlation(tbl, exclude...)
	if err != nil {
		return err
	}

	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(-1)
	cmap.SetMax(1)

	plt := plot.New()
	plt.Title.Text = "Correlation of numeric covariates"
	hm := plotter.NewHeatMap(corrGrid{c}, cmap.Palette(41))
	hm.Min, hm.Max = -1, 1
	plt.Add(hm)

	rev := make([]string, len(names))
	for i, na := range names {
		rev[len(names)-1-i] = na
	}
	plt.NominalX(names...)
	plt.NominalY(rev...)
	plt.X.Tick.Label.Rotation = math.Pi / 4
	plt.X.Tick.Label.XAlign = draw.XRight

	side := 2 + 0.5*float64(len(names))
	return plt.Save(vg.Length(side)*vg.Inch, vg.Length(side)*vg.Inch, fname)
}
