// Package pipeline runs the full analysis: preparation, multiple
// imputation, penalized model selection on a shared train/test split,
// pooling and evaluation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kshedden/mipool/crossval"
	"github.com/kshedden/mipool/design"
	"github.com/kshedden/mipool/evaluate"
	"github.com/kshedden/mipool/glm"
	"github.com/kshedden/mipool/impute"
	"github.com/kshedden/mipool/pool"
	"github.com/kshedden/mipool/selection"
	"github.com/kshedden/mipool/trial"
)

// Names of the fitted models.
const (
	Lasso  = "lasso"
	Subset = "subset"
)

// Models lists the model names in reporting order.
var Models = []string{Lasso, Subset}

// The cross-validated fitters applied to each imputation.
var (
	cvLasso  = selection.CVLasso
	cvSubset = selection.CVBestSubset
)

// Fit holds one model fit to one imputed dataset.
type Fit struct {
	Imputation int

	// Nil if the fit did not converge and partial results are allowed
	Model selection.Model

	// Predicted probabilities for the test rows
	Pred []float64

	// Unpenalized refit on the selected support, best subset only
	Refit *Refit
}

// Refit is an unpenalized logistic regression on the support chosen by
// one best subset fit, reported for its standard errors.  It does not
// enter pooling.
type Refit struct {
	Support []string
	Results *glm.Results

	// AUC of the refit on the training rows and on the test rows
	TrainAUC float64
	TestAUC  float64
}

// ModelResult summarizes one model over all imputations.
type ModelResult struct {
	Name string

	// One entry per imputation
	Fits []Fit

	// Imputations that contributed to pooling
	Pooled []int

	Estimates []pool.Estimate
	Selected  []pool.Estimate

	Discrimination *evaluate.Discrimination
	Calibration    []evaluate.Bin
}

// Result holds everything produced by a run.
type Result struct {
	RunID   string
	Seed    uint64
	Created time.Time
	Config  *Config

	// The prepared table and its completed copies
	Prepared *trial.Table
	Imputed  []*trial.Table

	// Design column names, shared by all imputations
	Names []string

	Mask *crossval.Mask

	// Identifiers and outcomes of the test rows
	TestIDs []float64
	TestY   []float64

	Models []*ModelResult

	// Categorical covariates against the outcome, on the prepared table
	Associations []evaluate.Association

	// Problems that did not stop the run
	Flags []string
}

// Model returns the named model result, or nil.
func (r *Result) Model(name string) *ModelResult {
	for _, m := range r.Models {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Run performs the analysis on a raw participant table.
func Run(ctx context.Context, cfg *Config, raw *trial.Table, logger *zap.Logger) (*Result, error) {

	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rslt := &Result{
		RunID:   uuid.New().String(),
		Seed:    cfg.Seed,
		Created: time.Now().UTC(),
		Config:  cfg,
	}
	logger = logger.With(zap.String("run", rslt.RunID))
	logger.Info("starting run", zap.Uint64("seed", cfg.Seed), zap.Int("m", cfg.Imputations))

	f, err := design.Parse(cfg.Formula)
	if err != nil {
		return nil, err
	}

	// Prepare
	pc := cfg.Prepare
	pc.Log = logger
	if f.Outcome != pc.Outcome {
		return nil, fmt.Errorf("formula outcome '%s' differs from the configured outcome '%s'", f.Outcome, pc.Outcome)
	}
	prepared, err := trial.Prepare(raw, pc)
	if err != nil {
		return nil, err
	}
	for i, v := range prepared.Column(pc.Outcome) {
		if math.IsNaN(v) {
			return nil, &trial.DataError{Field: pc.Outcome, Row: i, Msg: "outcome is missing, and outcomes are never imputed"}
		}
	}
	rslt.Prepared = prepared
	if rslt.Associations, err = evaluate.Associate(prepared, pc.Outcome); err != nil {
		return nil, err
	}

	// Impute
	imp := cfg.Impute
	imp.Exclude = append([]string{pc.ID, pc.Outcome}, imp.Exclude...)
	imp.Log = logger
	imputed, err := imp.Impute(ctx, prepared, cfg.Imputations, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := impute.Check(prepared, imputed, cfg.Imputations); err != nil {
		return nil, err
	}
	rslt.Imputed = imputed

	// Designs
	designs := make([]*design.Matrix, len(imputed))
	for k, tbl := range imputed {
		designs[k], err = design.Build(tbl, f, cfg.RefLevels)
		if err != nil {
			return nil, fmt.Errorf("imputation %d: %w", k, err)
		}
		if k > 0 && !slices.Equal(designs[k].Names, designs[0].Names) {
			return nil, &trial.ShapeError{Msg: fmt.Sprintf("imputation %d has design columns %v, expected %v", k, designs[k].Names, designs[0].Names)}
		}
	}
	rslt.Names = designs[0].Names

	// One split and one fold assignment for every imputation and model
	mask, err := crossval.StratifiedSplit(designs[0].Y, cfg.TestFraction, cfg.Seed)
	if err != nil {
		return nil, err
	}
	rslt.Mask = mask
	id := prepared.Column(pc.ID)
	for _, i := range mask.Test {
		rslt.TestIDs = append(rslt.TestIDs, id[i])
		rslt.TestY = append(rslt.TestY, designs[0].Y[i])
	}

	trainY := make([]float64, len(mask.Train))
	for k, i := range mask.Train {
		trainY[k] = designs[0].Y[i]
	}
	folds, err := crossval.StratifiedFolds(trainY, cfg.Folds, cfg.Seed)
	if err != nil {
		return nil, err
	}

	logger.Info("split",
		zap.Int("train", len(mask.Train)),
		zap.Int("test", len(mask.Test)),
		zap.Int("columns", len(rslt.Names)))

	fits, err := fitAll(ctx, cfg, designs, mask, folds, logger)
	if err != nil {
		return nil, err
	}

	// Pool and evaluate
	for mi, name := range Models {

		mr := &ModelResult{Name: name}
		var coefs []map[string]float64
		var preds [][]float64
		for k := range fits {
			fit := fits[k][mi]
			mr.Fits = append(mr.Fits, fit)
			if fit.Model == nil {
				rslt.Flags = append(rslt.Flags, fmt.Sprintf("%s: imputation %d did not converge and was not pooled", name, k))
				continue
			}
			mr.Pooled = append(mr.Pooled, k)
			coefs = append(coefs, fit.Model.Coefficients())
			preds = append(preds, fit.Pred)
		}
		if len(coefs) == 0 {
			return nil, &selection.ConvergenceError{Model: name, Imputation: -1, Reason: "no imputation converged"}
		}

		if mr.Estimates, err = pool.Pool(rslt.Names, coefs); err != nil {
			return nil, err
		}
		mr.Selected = pool.Selected(mr.Estimates)

		if mr.Discrimination, err = evaluate.Discriminate(preds, rslt.TestY); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if mr.Calibration, err = evaluate.Calibrate(preds, rslt.TestY, cfg.CalibrationBins); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		logger.Info("model pooled",
			zap.String("model", name),
			zap.Int("pooled", len(mr.Pooled)),
			zap.Int("selected", len(mr.Selected)),
			zap.Float64("auc", mr.Discrimination.Mean))

		rslt.Models = append(rslt.Models, mr)
	}

	return rslt, nil
}

// fitAll fits every model to the training rows of every imputation,
// concurrently over imputations.  Each imputation writes only its own
// slot of the returned slice.
func fitAll(ctx context.Context, cfg *Config, designs []*design.Matrix, mask *crossval.Mask, folds []int, logger *zap.Logger) ([][]Fit, error) {

	fits := make([][]Fit, len(designs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for k, x := range designs {
		g.Go(func() error {

			if err := ctx.Err(); err != nil {
				return err
			}

			log := logger.With(zap.Int("imputation", k))
			train := x.SelectRows(mask.Train)
			test := x.SelectRows(mask.Test)

			lc := cfg.Lasso
			lc.Log = log
			sc := cfg.Subset
			sc.Log = log

			fit := func(name string, do func() (selection.Model, error)) (Fit, error) {
				m, err := do()
				var ce *selection.ConvergenceError
				if errors.As(err, &ce) {
					ce.Imputation = k
					if cfg.AllowPartial {
						log.Warn("fit did not converge", zap.String("model", name), zap.Error(err))
						return Fit{Imputation: k}, nil
					}
				}
				if err != nil {
					return Fit{}, fmt.Errorf("%s, imputation %d: %w", name, k, err)
				}
				p, err := m.Predict(test)
				if err != nil {
					return Fit{}, err
				}
				return Fit{Imputation: k, Model: m, Pred: p}, nil
			}

			lf, err := fit(Lasso, func() (selection.Model, error) {
				return cvLasso(train, folds, &lc)
			})
			if err != nil {
				return err
			}
			sf, err := fit(Subset, func() (selection.Model, error) {
				return cvSubset(train, folds, &sc)
			})
			if err != nil {
				return err
			}
			if m, ok := sf.Model.(*selection.SubsetFit); ok {
				if sf.Refit, err = refit(train, test, m.Support, log); err != nil {
					log.Warn("refit failed", zap.Strings("support", m.Support), zap.Error(err))
				}
			}

			fits[k] = []Fit{lf, sf}
			log.Debug("imputation fit")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fits, nil
}

// refit fits the unpenalized model on a support to the training rows
// and scores it on both row sets.
func refit(train, test *design.Matrix, support []string, logger *zap.Logger) (*Refit, error) {

	rslt, err := selection.Refit(train, support, logger)
	if err != nil {
		return nil, err
	}
	r := &Refit{Support: support, Results: rslt}

	// The linear predictor ranks the rows as the fitted probabilities do.
	lp, err := rslt.FittedValues(nil)
	if err != nil {
		return nil, err
	}
	if r.TrainAUC, err = evaluate.AUC(lp, train.Y); err != nil {
		return nil, err
	}

	ds, err := test.Dataset(append([]string{}, support...))
	if err != nil {
		return nil, err
	}
	p, err := rslt.Predict(ds)
	if err != nil {
		return nil, err
	}
	if r.TestAUC, err = evaluate.AUC(p, test.Y); err != nil {
		return nil, err
	}

	return r, nil
}
