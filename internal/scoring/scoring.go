package scoring

import (
	"math"
	"time"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// Snapshot is the read-side input the composite score is computed from. It is
// a plain value so callers can score a consistent copy of a stats row without
// holding any locks.
type Snapshot struct {
	TotalPoints      int64
	LastActivityAt   *time.Time
	CurrentStreak    int
	ActiveCategories int
	TotalActivities  int64
	AvgQualityRating *float64
}

// SnapshotFromStats projects a stats row into a scoring snapshot.
func SnapshotFromStats(stats *models.UserActivityStats) Snapshot {
	if stats == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalPoints:      stats.TotalPoints,
		LastActivityAt:   stats.LastActivityAt,
		CurrentStreak:    stats.CurrentStreak,
		ActiveCategories: stats.CategoryCounts.Distinct(),
		TotalActivities:  stats.CategoryCounts.Total(),
		AvgQualityRating: stats.AvgQualityRating,
	}
}

// Score computes the composite ranking score for one user at the given
// instant. Deterministic for a fixed snapshot and now.
func Score(snap Snapshot, now time.Time) float64 {
	base := float64(snap.TotalPoints)
	if base == 0 {
		return 0
	}

	tw := TimeWeight(snap.LastActivityAt, now)
	sb := StreakBonus(snap.CurrentStreak)
	ds := DiversityScore(snap.ActiveCategories, enums.PointCategoryCount(), snap.TotalActivities)
	qb := QualityBonus(snap.AvgQualityRating)

	return base*tw + base*(sb-1) + base*(ds/10) + base*(qb-1)
}

// TimeWeight decays with days since the last qualifying activity. A user with
// no recorded activity gets the deepest decay bucket.
func TimeWeight(lastActivity *time.Time, now time.Time) float64 {
	if lastActivity == nil {
		return 0.1
	}
	days := now.Sub(*lastActivity).Hours() / 24
	switch {
	case days <= 1:
		return 1.0
	case days <= 7:
		return 0.8
	case days <= 30:
		return 0.5
	case days <= 90:
		return 0.3
	default:
		return 0.1
	}
}

// StreakBonus rewards consecutive activity days.
func StreakBonus(streakDays int) float64 {
	switch {
	case streakDays >= 365:
		return 3.00
	case streakDays >= 180:
		return 2.50
	case streakDays >= 90:
		return 2.00
	case streakDays >= 30:
		return 1.50
	case streakDays >= 14:
		return 1.30
	case streakDays >= 7:
		return 1.20
	case streakDays >= 3:
		return 1.10
	default:
		return 1.00
	}
}

// DiversityScore rewards spreading activity across categories, scaled by log
// of total activity volume and clamped to [0, 10].
func DiversityScore(activeCategories, catalogSize int, totalActivities int64) float64 {
	if activeCategories <= 0 || catalogSize <= 0 || totalActivities <= 0 {
		return 0
	}
	ratio := float64(activeCategories) / float64(catalogSize)
	score := ratio * (1 + math.Log(float64(totalActivities)))
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// QualityBonus maps the average content rating onto a [0.5, 2.0] multiplier
// centered at a 3-star average. Unrated users are neutral.
func QualityBonus(avgRating *float64) float64 {
	if avgRating == nil {
		return 1.0
	}
	bonus := 1 + (*avgRating-3)/5
	if bonus < 0.5 {
		return 0.5
	}
	if bonus > 2.0 {
		return 2.0
	}
	return bonus
}
