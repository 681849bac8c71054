package main

import (
	"fmt"
	"os"

	"github.com/kshedden/mipool/pipeline"
	"github.com/kshedden/mipool/trial"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	simRows    int
	simSeed    uint64
	simMissing float64
	simOut     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Write a synthetic trial table",
	Long: `Writes a synthetic participant table as CSV.  The outcome follows a
logistic model in which ftcd, nmr and bdi are predictive and the other
numeric covariates are not.  Covariate cells are missing completely at
random with the given probability.`,
	RunE: simulate,
}

var configCmd = &cobra.Command{
	Use:   "config [path]",
	Short: "Write the default configuration as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := pipeline.SaveDefaultConfig(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
		return nil
	},
}

func init() {
	def := trial.DefaultSimConfig()
	simulateCmd.Flags().IntVar(&simRows, "rows", def.Rows, "Number of participants")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", def.Seed, "Random seed")
	simulateCmd.Flags().Float64Var(&simMissing, "missing", 0.1, "Probability that a covariate cell is missing")
	simulateCmd.Flags().StringVarP(&simOut, "out", "o", "trial.csv", "Output CSV file")
}

func simulate(cmd *cobra.Command, args []string) error {

	cfg := trial.DefaultSimConfig()
	cfg.Rows = simRows
	cfg.Seed = simSeed
	cfg.Missing = simMissing

	tbl, err := trial.Simulate(cfg)
	if err != nil {
		return err
	}

	f, err := os.Create(simOut)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", simOut, err)
	}
	if err := tbl.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Info("wrote synthetic trial",
		zap.String("path", simOut),
		zap.Int("rows", tbl.NumRows()),
		zap.Uint64("seed", cfg.Seed))

	return nil
}
