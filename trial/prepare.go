package trial

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"
)

// Arm is one of the four randomized treatment arms.
type Arm int

// The arms, ordered so that placebo with standard treatment is the
// reference level.
const (
	PlaceboST Arm = iota
	PlaceboBA
	VareniclineST
	VareniclineBA
)

// ArmLevels are the arm labels, indexed by Arm.
var ArmLevels = []string{"Placebo+ST", "Placebo+BA", "Varenicline+ST", "Varenicline+BA"}

func (a Arm) String() string {
	if a < PlaceboST || a > VareniclineBA {
		return fmt.Sprintf("Arm(%d)", int(a))
	}
	return ArmLevels[a]
}

// ArmOf derives the treatment arm from the varenicline (drug versus
// placebo) and ba (behavioral activation versus standard treatment)
// flags.  Both flags must be 0 or 1.
func ArmOf(varenicline, ba float64) (Arm, error) {

	drug, err := flag("varenicline", varenicline)
	if err != nil {
		return 0, err
	}
	act, err := flag("ba", ba)
	if err != nil {
		return 0, err
	}

	switch {
	case drug && act:
		return VareniclineBA, nil
	case drug && !act:
		return VareniclineST, nil
	case !drug && act:
		return PlaceboBA, nil
	default:
		return PlaceboST, nil
	}
}

func flag(name string, v float64) (bool, error) {
	switch {
	case math.IsNaN(v):
		return false, &DataError{Field: name, Row: -1, Msg: "missing treatment flag"}
	case v == 0:
		return false, nil
	case v == 1:
		return true, nil
	default:
		return false, &DataError{Field: name, Row: -1, Msg: fmt.Sprintf("treatment flag has value %g, expected 0 or 1", v)}
	}
}

// Unknown is the label for codes that are not in a recoding table.
const Unknown = "Unknown"

// EducationLabels maps education codes to labels.
var EducationLabels = map[int]string{
	1: "Less than high school",
	2: "High school or GED",
	3: "Some college",
	4: "Associate degree",
	5: "Bachelor's degree",
	6: "Graduate degree",
}

// IncomeLabels maps annual household income codes to labels.
var IncomeLabels = map[int]string{
	1: "Less than $20,000",
	2: "$20,000 to $34,999",
	3: "$35,000 to $49,999",
	4: "$50,000 to $74,999",
	5: "$75,000 or more",
}

// PrepareConfig configures the cleaning of a raw participant table.
type PrepareConfig struct {

	// Participant identifier
	ID string `yaml:"id"`

	// Binary outcome
	Outcome string `yaml:"outcome"`

	// Raw education code marking the record to remove
	AnomalousEducation float64 `yaml:"anomalous_education"`

	// Fields cast to categorical in addition to the fixed list
	ExtraCategorical []string `yaml:"extra_categorical"`

	Log *zap.Logger `yaml:"-"`
}

// DefaultPrepareConfig returns the default cleaning configuration.
func DefaultPrepareConfig() PrepareConfig {
	return PrepareConfig{
		ID:                 "id",
		Outcome:            "abstinent",
		AnomalousEducation: 8,
	}
}

// CategoricalFields are always cast to categorical by Prepare.
var CategoricalFields = []string{"arm", "sex", "white", "black", "hispanic", "education", "income"}

// Prepare returns a cleaned copy of raw.  The treatment arm is derived
// from the varenicline and ba flags (which are then dropped), income and
// education codes are replaced by labels, the record with the anomalous
// education code is removed, and the categorical fields are cast.  No
// other rows are removed.  The raw table is not modified.
func Prepare(raw *Table, cfg PrepareConfig) (*Table, error) {

	logger := cfg.Log
	if logger == nil {
		logger = zap.NewNop()
	}

	required := []string{cfg.ID, cfg.Outcome, "varenicline", "ba", "education", "income"}
	for _, na := range required {
		if !raw.Has(na) {
			return nil, &DataError{Field: na, Row: -1, Msg: "required field is absent"}
		}
	}
	for _, na := range append(slices.Clone(CategoricalFields), cfg.ExtraCategorical...) {
		if na != "arm" && !raw.Has(na) {
			return nil, &DataError{Field: na, Row: -1, Msg: "categorical field is absent"}
		}
	}

	for i, v := range raw.Column(cfg.Outcome) {
		if !math.IsNaN(v) && v != 0 && v != 1 {
			return nil, &DataError{Field: cfg.Outcome, Row: i, Msg: fmt.Sprintf("outcome has value %g, expected 0 or 1", v)}
		}
	}

	// Remove the anomalous education record
	var keep []int
	var dropped int
	for i, v := range raw.Column("education") {
		if v == cfg.AnomalousEducation {
			dropped++
			continue
		}
		keep = append(keep, i)
	}
	if dropped != 1 {
		logger.Warn("unexpected number of anomalous education records",
			zap.Float64("code", cfg.AnomalousEducation), zap.Int("count", dropped))
	}
	tbl := raw.SelectRows(keep)

	// Derive the treatment arm
	vc := tbl.Column("varenicline")
	bc := tbl.Column("ba")
	arm := make([]float64, tbl.NumRows())
	for i := range arm {
		a, err := ArmOf(vc[i], bc[i])
		if err != nil {
			var de *DataError
			if errors.As(err, &de) {
				de.Row = keep[i]
			}
			return nil, err
		}
		arm[i] = float64(a)
	}
	tbl.DropColumn("varenicline")
	tbl.DropColumn("ba")
	if tbl.Has("arm") {
		tbl.DropColumn("arm")
	}
	if err := tbl.AddColumn("arm", arm, slices.Clone(ArmLevels)); err != nil {
		return nil, err
	}

	// Recode the ordinal fields
	if err := recode(tbl, "education", EducationLabels); err != nil {
		return nil, err
	}
	if err := recode(tbl, "income", IncomeLabels); err != nil {
		return nil, err
	}

	for _, na := range append(slices.Clone(CategoricalFields), cfg.ExtraCategorical...) {
		if err := tbl.CastCategorical(na); err != nil {
			return nil, err
		}
	}

	logger.Info("prepared trial table",
		zap.Int("rows", tbl.NumRows()),
		zap.Int("columns", len(tbl.Names())),
		zap.Int("dropped", dropped))

	return tbl, nil
}

// recode replaces the integer codes of a column with labels from the
// lookup, in increasing code order.  Codes absent from the lookup become
// Unknown, which is the last level when it occurs.  Missing cells stay
// missing.
func recode(tbl *Table, name string, lookup map[int]string) error {

	if tbl.IsCategorical(name) {
		return &DataError{Field: name, Row: -1, Msg: "expected integer codes"}
	}

	codes := make([]int, 0, len(lookup))
	for c := range lookup {
		codes = append(codes, c)
	}
	slices.Sort(codes)

	pos := make(map[int]int, len(codes))
	levels := make([]string, len(codes))
	for k, c := range codes {
		pos[c] = k
		levels[k] = lookup[c]
	}

	x := tbl.Column(name)
	y := make([]float64, len(x))
	unknown := false
	for i, v := range x {
		if math.IsNaN(v) {
			y[i] = math.NaN()
			continue
		}
		k, ok := pos[int(v)]
		if !ok || v != math.Trunc(v) {
			unknown = true
			y[i] = float64(len(levels))
			continue
		}
		y[i] = float64(k)
	}
	if unknown {
		levels = append(levels, Unknown)
	}

	// Drop levels that never occur so that the design has no empty columns.
	used := make([]bool, len(levels))
	for _, v := range y {
		if !math.IsNaN(v) {
			used[int(v)] = true
		}
	}
	remap := make([]int, len(levels))
	var kept []string
	for k, lev := range levels {
		if used[k] {
			remap[k] = len(kept)
			kept = append(kept, lev)
		}
	}
	for i, v := range y {
		if !math.IsNaN(v) {
			y[i] = float64(remap[int(v)])
		}
	}

	copy(x, y)
	tbl.levels[name] = kept

	return nil
}
