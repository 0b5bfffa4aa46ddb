package lanes

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RiskCapFraction bounds a single round's worst-case payout to this
// fraction of the reserve account.
var RiskCapFraction = decimal.RequireFromString("0.10")

// NaiveLane maps a uniform outcome in [0,1) to a 1-based lane index by
// walking the table's crash weights in order; the first lane whose
// cumulative weight reaches the outcome is selected. If float accumulation
// leaves a residual gap, the last lane is the fallback.
func NaiveLane(outcome float64, table Table) int {
	var cumulative float64
	for i, lane := range table {
		cumulative += lane.CrashWeight
		if cumulative >= outcome {
			return i + 1
		}
	}
	return len(table)
}

// SelectCrashLane maps the outcome to a crash lane and, in stake mode,
// applies the risk cap: a lane whose own multiplier would pay out more
// than RiskCapFraction of the reserve is replaced by the highest lane
// still within the cap. The cap only ever moves the selection toward a
// lower index; it never increases the payout beyond the naturally drawn
// outcome.
func SelectCrashLane(outcome float64, tier Tier, mode Mode, wager, reserve decimal.Decimal) (int, Table, error) {
	table, err := TableFor(tier, mode)
	if err != nil {
		return 0, nil, err
	}
	if err := table.Validate(); err != nil {
		return 0, nil, err
	}
	if outcome < 0 || outcome >= 1 {
		return 0, nil, fmt.Errorf("lanes: outcome %v out of range [0,1)", outcome)
	}

	naive := NaiveLane(outcome, table)
	if mode == ModePractice {
		return naive, table, nil
	}

	if wager.Sign() <= 0 {
		return 0, nil, fmt.Errorf("lanes: stake mode requires a positive wager, got %s", wager)
	}
	if reserve.Sign() <= 0 {
		// Nothing backing payouts: lowest-risk lane.
		return 1, table, nil
	}

	maxPayout := reserve.Mul(RiskCapFraction)
	if lanePayout(table, naive, wager).LessThanOrEqual(maxPayout) {
		return naive, table, nil
	}

	// Highest-index lane whose payout stays within the cap. Multipliers
	// increase strictly with index, so this is always below the naive pick.
	capped := 0
	for i := range table {
		if lanePayout(table, i+1, wager).LessThanOrEqual(maxPayout) {
			capped = i + 1
		}
	}
	if capped == 0 {
		capped = 1
	}
	return capped, table, nil
}

// lanePayout is the payout of cashing out on the given 1-based lane.
func lanePayout(table Table, lane int, wager decimal.Decimal) decimal.Decimal {
	return wager.Mul(decimal.NewFromFloat(table[lane-1].Multiplier))
}
