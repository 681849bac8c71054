package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kshedden/mipool/impute"
	"github.com/kshedden/mipool/selection"
	"github.com/kshedden/mipool/trial"
)

// Config holds the settings of an analysis run.
type Config struct {

	// Model formula, "." stands for all prepared fields
	Formula string `yaml:"formula"`

	// Reference levels of categorical terms, by term
	RefLevels map[string]string `yaml:"ref_levels"`

	// Number of imputed datasets
	Imputations int `yaml:"imputations"`

	// Seed of every random stream in the run
	Seed uint64 `yaml:"seed"`

	// Fraction of rows held out for evaluation
	TestFraction float64 `yaml:"test_fraction"`

	// Number of cross-validation folds
	Folds int `yaml:"folds"`

	// Maximum number of imputations fit concurrently
	Workers int `yaml:"workers"`

	// If true, an imputation whose fit does not converge is left out of
	// pooling instead of failing the run.
	AllowPartial bool `yaml:"allow_partial"`

	// Number of calibration bins
	CalibrationBins int `yaml:"calibration_bins"`

	Prepare trial.PrepareConfig    `yaml:"prepare"`
	Impute  impute.ChainedPMM      `yaml:"impute"`
	Lasso   selection.LassoConfig  `yaml:"lasso"`
	Subset  selection.SubsetConfig `yaml:"subset"`
}

// DefaultConfig returns the default analysis settings.
func DefaultConfig() *Config {
	return &Config{
		Formula:         "abstinent ~ . - id",
		Imputations:     5,
		Seed:            2024,
		TestFraction:    0.2,
		Folds:           10,
		Workers:         4,
		CalibrationBins: 5,
		Prepare:         trial.DefaultPrepareConfig(),
		Impute:          *impute.NewChainedPMM(),
		Lasso:           *selection.DefaultLassoConfig(),
		Subset:          *selection.DefaultSubsetConfig(),
	}
}

// LoadConfig reads a YAML configuration file.  Settings absent from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveDefaultConfig writes the default configuration to path.
func SaveDefaultConfig(path string) error {

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the settings that Run relies on.
func (c *Config) Validate() error {
	switch {
	case c.Imputations < 1:
		return fmt.Errorf("config: imputations must be positive, got %d", c.Imputations)
	case c.TestFraction <= 0 || c.TestFraction >= 1:
		return fmt.Errorf("config: test_fraction %g is not in (0, 1)", c.TestFraction)
	case c.Folds < 2:
		return fmt.Errorf("config: folds must be at least 2, got %d", c.Folds)
	case c.Workers < 1:
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	case c.CalibrationBins < 1:
		return fmt.Errorf("config: calibration_bins must be positive, got %d", c.CalibrationBins)
	}
	return nil
}
