package lanes

import (
	"math"
	"testing"
)

func TestValidateAll(t *testing.T) {
	if err := ValidateAll(); err != nil {
		t.Fatalf("configured tables failed validation: %v", err)
	}
}

func TestWeightCoverage(t *testing.T) {
	for _, tier := range Tiers() {
		for _, mode := range []Mode{ModePractice, ModeStake} {
			table, err := TableFor(tier, mode)
			if err != nil {
				t.Fatalf("TableFor(%s, %s): %v", tier, mode, err)
			}
			var sum float64
			for _, lane := range table {
				sum += lane.CrashWeight
			}
			if math.Abs(sum-1.0) > weightSumTolerance {
				t.Errorf("%s/%s: weights sum to %v, want 1.0", tier, mode, sum)
			}
		}
	}
}

func TestMonotonicMultipliers(t *testing.T) {
	for _, tier := range Tiers() {
		for _, mode := range []Mode{ModePractice, ModeStake} {
			table, _ := TableFor(tier, mode)
			prev := 0.0
			for i, lane := range table {
				if lane.Multiplier < 1.0 {
					t.Errorf("%s/%s lane %d: multiplier %v below 1.0", tier, mode, i+1, lane.Multiplier)
				}
				if lane.Multiplier <= prev {
					t.Errorf("%s/%s lane %d: multiplier %v not strictly increasing", tier, mode, i+1, lane.Multiplier)
				}
				prev = lane.Multiplier
			}
		}
	}
}

func TestTableForReturnsCopy(t *testing.T) {
	a, _ := TableFor(TierEasy, ModeStake)
	a[0].Multiplier = 999
	b, _ := TableFor(TierEasy, ModeStake)
	if b[0].Multiplier == 999 {
		t.Fatal("TableFor must return an independent copy")
	}
}

func TestParseTier(t *testing.T) {
	for _, s := range []string{"easy", "medium", "hard", "daredevil"} {
		if _, err := ParseTier(s); err != nil {
			t.Errorf("ParseTier(%q): %v", s, err)
		}
	}
	for _, s := range []string{"", "EASY", "extreme", "easy "} {
		if _, err := ParseTier(s); err == nil {
			t.Errorf("ParseTier(%q): expected error", s)
		}
	}
}

func TestParseMode(t *testing.T) {
	if _, err := ParseMode("practice"); err != nil {
		t.Errorf("ParseMode(practice): %v", err)
	}
	if _, err := ParseMode("stake"); err != nil {
		t.Errorf("ParseMode(stake): %v", err)
	}
	if _, err := ParseMode("demo"); err == nil {
		t.Error("ParseMode(demo): expected error")
	}
}

func TestValidateRejectsMalformedTables(t *testing.T) {
	tests := []struct {
		name  string
		table Table
	}{
		{"empty", Table{}},
		{"multiplier below one", Table{{0.99, 1.0}}},
		{"non increasing", Table{{1.10, 0.5}, {1.10, 0.5}}},
		{"negative weight", Table{{1.00, 1.5}, {1.10, -0.5}}},
		{"weights under one", Table{{1.00, 0.4}, {1.10, 0.4}}},
		{"weights over one", Table{{1.00, 0.7}, {1.10, 0.7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.table.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAllTablesDump(t *testing.T) {
	all := AllTables()
	if len(all) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(all))
	}
	for tier, modes := range all {
		if len(modes[ModePractice]) == 0 || len(modes[ModeStake]) == 0 {
			t.Errorf("%s: missing practice or stake table", tier)
		}
	}
}
