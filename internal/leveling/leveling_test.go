package leveling

import (
	"testing"

	"github.com/trailmarks/gamification-backend/pkg/enums"
)

func TestLevelKnownValues(t *testing.T) {
	cases := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{2500, 6},
		{-50, 1},
	}
	for _, tc := range cases {
		if got := Level(tc.xp); got != tc.want {
			t.Fatalf("Level(%d) = %d, want %d", tc.xp, got, tc.want)
		}
	}
}

func TestLevelMonotonic(t *testing.T) {
	prev := Level(0)
	for xp := int64(0); xp <= 100_000; xp += 37 {
		lvl := Level(xp)
		if lvl < prev {
			t.Fatalf("level decreased from %d to %d at xp=%d", prev, lvl, xp)
		}
		prev = lvl
	}
}

func TestPointsRequiredRoundTrip(t *testing.T) {
	for lvl := 1; lvl <= 80; lvl++ {
		floor := PointsRequired(lvl)
		if got := Level(floor); got != lvl {
			t.Fatalf("Level(PointsRequired(%d)=%d) = %d", lvl, floor, got)
		}
	}
}

func TestProgressBounds(t *testing.T) {
	if got := Progress(0); got != 0 {
		t.Fatalf("Progress(0) = %v, want 0", got)
	}
	// Halfway between level 2 (100xp) and level 3 (400xp).
	if got := Progress(250); got != 50 {
		t.Fatalf("Progress(250) = %v, want 50", got)
	}
	for xp := int64(0); xp <= 50_000; xp += 113 {
		p := Progress(xp)
		if p < 0 || p > 100 {
			t.Fatalf("Progress(%d) = %v out of bounds", xp, p)
		}
	}
}

func TestTierBands(t *testing.T) {
	cases := []struct {
		level int
		want  enums.Tier
	}{
		{1, enums.TierBeginner},
		{5, enums.TierBeginner},
		{6, enums.TierNovice},
		{10, enums.TierNovice},
		{11, enums.TierIntermediate},
		{20, enums.TierIntermediate},
		{21, enums.TierAdvanced},
		{35, enums.TierAdvanced},
		{36, enums.TierExpert},
		{50, enums.TierExpert},
		{51, enums.TierMaster},
		{75, enums.TierMaster},
		{76, enums.TierLegend},
	}
	for _, tc := range cases {
		if got := Tier(tc.level); got != tc.want {
			t.Fatalf("Tier(%d) = %s, want %s", tc.level, got, tc.want)
		}
	}
}

func TestLevelGroupBands(t *testing.T) {
	cases := []struct {
		level int
		want  string
	}{
		{1, "1-10"},
		{10, "1-10"},
		{11, "11-20"},
		{20, "11-20"},
		{21, "21-30"},
		{30, "21-30"},
		{31, "31-50"},
		{50, "31-50"},
		{51, "51+"},
	}
	for _, tc := range cases {
		if got := LevelGroup(tc.level); got != tc.want {
			t.Fatalf("LevelGroup(%d) = %s, want %s", tc.level, got, tc.want)
		}
	}
}
