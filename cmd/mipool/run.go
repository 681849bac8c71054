package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/kshedden/mipool/pipeline"
	"github.com/kshedden/mipool/report"
	"github.com/kshedden/mipool/store"
	"github.com/kshedden/mipool/trial"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runConfig string
	runData   string
	runOut    string
	runSeed   uint64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis and write the report",
	Long: `Prepares the participant table, imputes it, fits the lasso and best
subset models to every imputation, pools and evaluates them, and writes
report.md, report.html, tables.xlsx and the figures to the output
directory.  The run is also archived in runs.db in the same directory.`,
	RunE: runAnalysis,
}

func init() {
	runCmd.Flags().StringVarP(&runConfig, "config", "c", "", "YAML configuration file (default settings if empty)")
	runCmd.Flags().StringVarP(&runData, "data", "d", "", "Participant table, .csv or .xlsx (required)")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "out", "Output directory")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 0, "Random seed, overrides the configuration")
	cobra.CheckErr(runCmd.MarkFlagRequired("data"))
}

func runAnalysis(cmd *cobra.Command, args []string) error {

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := pipeline.DefaultConfig()
	if runConfig != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(runConfig); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = runSeed
	}

	raw, err := trial.Load(runData)
	if err != nil {
		return err
	}
	logger.Info("loaded data", zap.String("path", runData), zap.Int("rows", raw.NumRows()))

	rslt, err := pipeline.Run(ctx, cfg, raw, logger)
	if err != nil {
		return err
	}

	files, err := report.Write(runOut, rslt, logger)
	if err != nil {
		return err
	}

	st, err := store.Open(filepath.Join(runOut, "runs.db"))
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Save(ctx, rslt); err != nil {
		return fmt.Errorf("failed to archive run: %w", err)
	}

	printSummary(cmd.OutOrStdout(), rslt, files, runOut)
	return nil
}

func printSummary(w io.Writer, rslt *pipeline.Result, files *report.Files, dir string) {

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "\n%s\n", cyan("=== mipool run "+rslt.RunID+" ==="))
	fmt.Fprintf(w, "  Participants: %d   Imputations: %d   Test rows: %d   Seed: %d\n\n",
		rslt.Prepared.NumRows(), len(rslt.Imputed), len(rslt.TestY), rslt.Seed)

	for _, mr := range rslt.Models {
		d := mr.Discrimination
		fmt.Fprintf(w, "%s  AUC %.3f (SD %.3f)\n", yellow(mr.Name), d.Mean, d.SD)
		if len(mr.Selected) == 0 {
			fmt.Fprintf(w, "  %s\n", gray("no variables selected"))
		}
		for _, e := range mr.Selected {
			sign := green
			if e.Mean < 0 {
				sign = red
			}
			fmt.Fprintf(w, "  %-32s %s  SE %.3f  %d/%d\n", e.Predictor, sign(fmt.Sprintf("%+.3f", e.Mean)), e.SE, e.NonZero, e.M)
		}
		fmt.Fprintln(w)
	}

	for _, f := range rslt.Flags {
		fmt.Fprintf(w, "%s %s\n", yellow("warning:"), f)
	}

	fmt.Fprintf(w, "Report: %s\n", filepath.Join(dir, files.HTML))
}
