package leveling

import (
	"math"

	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// Level maps experience points to a level, starting at 1.
func Level(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	lvl := int(math.Floor(math.Sqrt(float64(xp)/100))) + 1
	if lvl < 1 {
		return 1
	}
	return lvl
}

// PointsRequired returns the experience floor for the given level.
func PointsRequired(level int) int64 {
	if level <= 1 {
		return 0
	}
	n := int64(level - 1)
	return n * n * 100
}

// Progress returns the percentage progress within the current level,
// clamped to [0, 100].
func Progress(xp int64) float64 {
	lvl := Level(xp)
	floor := PointsRequired(lvl)
	ceil := PointsRequired(lvl + 1)
	if ceil <= floor {
		return 100
	}
	pct := float64(xp-floor) / float64(ceil-floor) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Tier maps a level to its display tier.
func Tier(level int) enums.Tier {
	switch {
	case level <= 5:
		return enums.TierBeginner
	case level <= 10:
		return enums.TierNovice
	case level <= 20:
		return enums.TierIntermediate
	case level <= 35:
		return enums.TierAdvanced
	case level <= 50:
		return enums.TierExpert
	case level <= 75:
		return enums.TierMaster
	default:
		return enums.TierLegend
	}
}

// LevelGroup buckets a level into the fixed ranking bands.
func LevelGroup(level int) string {
	switch {
	case level <= 10:
		return "1-10"
	case level <= 20:
		return "11-20"
	case level <= 30:
		return "21-30"
	case level <= 50:
		return "31-50"
	default:
		return "51+"
	}
}
