package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/kshedden/mipool/pipeline"
	"github.com/kshedden/mipool/pool"
	"go.uber.org/zap"
)

// Files lists the artifacts written by Write, as paths relative to the
// output directory.
type Files struct {
	Markdown string
	HTML     string
	Workbook string
	Figures  []string
}

// Markdown returns the report as markdown.  Tables are set in fixed
// width blocks and figures are referenced by file name.
func Markdown(rslt *pipeline.Result, figures []string) string {

	var b strings.Builder

	b.WriteString("# Multiple imputation variable selection\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", rslt.RunID)
	fmt.Fprintf(&b, "- Created: %s\n", rslt.Created.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Seed: %d\n", rslt.Seed)
	fmt.Fprintf(&b, "- Participants: %d\n", rslt.Prepared.NumRows())
	fmt.Fprintf(&b, "- Imputations: %d\n", len(rslt.Imputed))
	if rslt.Config != nil {
		fmt.Fprintf(&b, "- Formula: `%s`\n", rslt.Config.Formula)
	}
	b.WriteString("\n")

	if len(rslt.Flags) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, f := range rslt.Flags {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	_, tabs := Tables(rslt)

	b.WriteString("## Selected variables\n\n")
	for _, mr := range rslt.Models {
		fmt.Fprintf(&b, "**%s**: ", mr.Name)
		if len(mr.Selected) == 0 {
			b.WriteString("none\n\n")
			continue
		}
		var s []string
		for _, e := range mr.Selected {
			s = append(s, fmt.Sprintf("%s (%.3f)", e.Predictor, e.Mean))
		}
		b.WriteString(strings.Join(s, ", ") + "\n\n")
	}

	b.WriteString("## Tables\n\n")
	for _, st := range tabs {
		fmt.Fprintf(&b, "### %s\n\n```\n%s```\n\n", st.Title, st.String())
	}

	if _, refits := RefitTables(rslt); len(refits) > 0 {
		b.WriteString("## Appendix: unpenalized refits\n\n")
		b.WriteString("Each best subset support refit to the training rows without penalty. These fits are not pooled.\n\n")
		for _, st := range refits {
			fmt.Fprintf(&b, "### %s\n\n```\n%s```\n\n", st.Title, st.String())
		}
	}

	if len(figures) > 0 {
		b.WriteString("## Figures\n\n")
		for _, fig := range figures {
			name := strings.TrimSuffix(fig, filepath.Ext(fig))
			fmt.Fprintf(&b, "![%s](%s)\n\n", name, fig)
		}
	}

	return b.String()
}

// HTML renders markdown as a complete HTML page.
func HTML(md, title string) []byte {

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	r := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})

	return markdown.Render(doc, r)
}

// Write renders the figures, report.md, report.html and tables.xlsx
// into dir, creating it if needed.
func Write(dir string, rslt *pipeline.Result, logger *zap.Logger) (*Files, error) {

	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	files := &Files{
		Markdown: "report.md",
		HTML:     "report.html",
		Workbook: "tables.xlsx",
	}

	figure := func(name string, draw func(string) error) error {
		if err := draw(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("figure %s: %w", name, err)
		}
		files.Figures = append(files.Figures, name)
		return nil
	}

	id := rslt.Config.Prepare.ID
	if err := figure("correlation.png", func(p string) error {
		return HeatmapPlot(rslt.Imputed[0], p, id, rslt.Config.Prepare.Outcome)
	}); err != nil {
		logger.Warn("skipping figure", zap.Error(err))
	}

	if lasso := rslt.Model(pipeline.Lasso); lasso != nil && len(pool.Selected(lasso.Estimates)) > 0 {
		if err := figure("importance.png", func(p string) error {
			return ImportancePlot("Variable importance, lasso", lasso.Estimates, p)
		}); err != nil {
			return nil, err
		}
	}

	for _, mr := range rslt.Models {
		if err := figure(fmt.Sprintf("roc_%s.png", mr.Name), func(p string) error {
			return ROCPlot(mr, rslt.TestY, p)
		}); err != nil {
			return nil, err
		}
		if err := figure(fmt.Sprintf("calibration_%s.png", mr.Name), func(p string) error {
			return CalibrationPlot(mr, p)
		}); err != nil {
			return nil, err
		}
	}

	md := Markdown(rslt, files.Figures)
	if err := os.WriteFile(filepath.Join(dir, files.Markdown), []byte(md), 0o644); err != nil {
		return nil, err
	}
	page := HTML(md, "mipool report "+rslt.RunID)
	if err := os.WriteFile(filepath.Join(dir, files.HTML), page, 0o644); err != nil {
		return nil, err
	}

	names, tabs := Tables(rslt)
	rn, rt := RefitTables(rslt)
	names = append(names, rn...)
	tabs = append(tabs, rt...)
	if err := WriteWorkbook(filepath.Join(dir, files.Workbook), names, tabs); err != nil {
		return nil, fmt.Errorf("workbook: %w", err)
	}

	logger.Info("report written",
		zap.String("dir", dir),
		zap.Int("figures", len(files.Figures)),
		zap.Int("tables", len(tabs)))

	return files, nil
}
