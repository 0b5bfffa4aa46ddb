package lanes

import (
	"fmt"
	"math"
)

// Tier is a closed enumeration of difficulty buckets. Each tier selects a
// specific lane/multiplier/weight table.
type Tier string

const (
	TierEasy      Tier = "easy"
	TierMedium    Tier = "medium"
	TierHard      Tier = "hard"
	TierDaredevil Tier = "daredevil"
)

// Tiers lists all difficulty tiers in ascending risk order.
func Tiers() []Tier {
	return []Tier{TierEasy, TierMedium, TierHard, TierDaredevil}
}

// ParseTier validates a caller-supplied tier string.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierEasy, TierMedium, TierHard, TierDaredevil:
		return Tier(s), nil
	}
	return "", fmt.Errorf("lanes: unknown difficulty tier %q", s)
}

// Mode distinguishes practice play (no funds at risk) from stake play
// (real funds, subject to the risk cap). It is fixed at session creation:
// a non-positive wager selects practice mode.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeStake    Mode = "stake"
)

// ParseMode validates a stored mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePractice, ModeStake:
		return Mode(s), nil
	}
	return "", fmt.Errorf("lanes: unknown mode %q", s)
}

// Lane is one entry of a multiplier table: the payout multiplier unlocked
// by reaching the lane, and the probability weight of the crash occurring
// on it.
type Lane struct {
	Multiplier  float64 `json:"multiplier"`
	CrashWeight float64 `json:"crash_weight"`
}

// Table is the ordered lane sequence for one (tier, mode) pair. Lane
// indices are 1-based throughout the engine.
type Table []Lane

// Stake tables carry the risk-bearing economics; practice tables are
// independently tunable and more generous. Weights per table sum to 1.0.
var stakeTables = map[Tier]Table{
	TierEasy: {
		{1.00, 0.30}, {1.04, 0.25}, {1.09, 0.20}, {1.14, 0.15}, {1.20, 0.05}, {1.26, 0.05},
	},
	TierMedium: {
		{1.09, 0.34}, {1.15, 0.24}, {1.22, 0.16}, {1.31, 0.12}, {1.41, 0.08}, {1.53, 0.06},
	},
	TierHard: {
		{1.20, 0.36}, {1.32, 0.22}, {1.45, 0.16}, {1.60, 0.10}, {1.78, 0.09}, {1.98, 0.07},
	},
	TierDaredevil: {
		{1.60, 0.48}, {1.92, 0.22}, {2.30, 0.14}, {2.76, 0.09}, {3.31, 0.07},
	},
}

var practiceTables = map[Tier]Table{
	TierEasy: {
		{1.02, 0.22}, {1.08, 0.20}, {1.15, 0.18}, {1.24, 0.16}, {1.35, 0.13}, {1.48, 0.11},
	},
	TierMedium: {
		{1.12, 0.26}, {1.22, 0.22}, {1.35, 0.18}, {1.50, 0.14}, {1.68, 0.11}, {1.90, 0.09},
	},
	TierHard: {
		{1.25, 0.28}, {1.42, 0.20}, {1.62, 0.16}, {1.86, 0.14}, {2.15, 0.12}, {2.50, 0.10},
	},
	TierDaredevil: {
		{1.70, 0.38}, {2.10, 0.22}, {2.62, 0.16}, {3.30, 0.13}, {4.20, 0.11},
	},
}

// weightSumTolerance absorbs float accumulation error when checking that a
// table's crash weights sum to 1.0.
const weightSumTolerance = 1e-9

// TableFor returns the configured lane table for a tier/mode pair. The
// returned slice is a copy: callers snapshot it into the session and the
// snapshot must never be affected by later configuration changes.
func TableFor(tier Tier, mode Mode) (Table, error) {
	var src map[Tier]Table
	switch mode {
	case ModePractice:
		src = practiceTables
	case ModeStake:
		src = stakeTables
	default:
		return nil, fmt.Errorf("lanes: unknown mode %q", mode)
	}
	table, ok := src[tier]
	if !ok {
		return nil, fmt.Errorf("lanes: no table for tier %q", tier)
	}
	out := make(Table, len(table))
	copy(out, table)
	return out, nil
}

// AllTables returns every tier's practice and stake table, for the
// read-only configuration dump endpoint.
func AllTables() map[Tier]map[Mode]Table {
	out := make(map[Tier]map[Mode]Table, len(Tiers()))
	for _, tier := range Tiers() {
		practice, _ := TableFor(tier, ModePractice)
		stake, _ := TableFor(tier, ModeStake)
		out[tier] = map[Mode]Table{
			ModePractice: practice,
			ModeStake:    stake,
		}
	}
	return out
}

// Validate checks the table invariants: at least one lane, multipliers
// >= 1.0 and strictly increasing by index, weights non-negative and
// summing to 1.0. A violation is fatal; the engine must refuse to serve
// rounds from a malformed table.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("lanes: empty table")
	}
	var sum float64
	prev := 0.0
	for i, lane := range t {
		if lane.Multiplier < 1.0 {
			return fmt.Errorf("lanes: lane %d multiplier %v below 1.0", i+1, lane.Multiplier)
		}
		if lane.Multiplier <= prev {
			return fmt.Errorf("lanes: lane %d multiplier %v not strictly increasing", i+1, lane.Multiplier)
		}
		if lane.CrashWeight < 0 {
			return fmt.Errorf("lanes: lane %d has negative crash weight %v", i+1, lane.CrashWeight)
		}
		prev = lane.Multiplier
		sum += lane.CrashWeight
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("lanes: crash weights sum to %v, want 1.0", sum)
	}
	return nil
}

// ValidateAll validates every configured table. Called at startup; any
// error is fatal.
func ValidateAll() error {
	for _, tier := range Tiers() {
		for _, mode := range []Mode{ModePractice, ModeStake} {
			table, err := TableFor(tier, mode)
			if err != nil {
				return err
			}
			if err := table.Validate(); err != nil {
				return fmt.Errorf("%s/%s: %w", tier, mode, err)
			}
		}
	}
	return nil
}
