package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/trailmarks/gamification-backend/pkg/db/types"
	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// UserActivityStats is the per-user aggregate the Point Ledger owns. Rows are
// created on first activity and never deleted; weekly/monthly counters are
// reset by the cron jobs.
type UserActivityStats struct {
	UserID           uuid.UUID               `gorm:"column:user_id;type:uuid;primaryKey"`
	DisplayName      string                  `gorm:"column:display_name;not null;default:''"`
	TotalPoints      int64                   `gorm:"column:total_points;not null;default:0"`
	WeeklyPoints     int64                   `gorm:"column:weekly_points;not null;default:0"`
	MonthlyPoints    int64                   `gorm:"column:monthly_points;not null;default:0"`
	LifetimePoints   int64                   `gorm:"column:lifetime_points;not null;default:0"`
	ExperiencePoints int64                   `gorm:"column:experience_points;not null;default:0"`
	CurrentLevel     int                     `gorm:"column:current_level;not null;default:1"`
	TierName         enums.Tier              `gorm:"column:tier_name;type:text;not null;default:beginner"`
	CategoryCounts   dbtypes.CategoryCounts  `gorm:"column:category_counts;type:jsonb;not null"`
	CurrentStreak    int                     `gorm:"column:current_streak;not null;default:0"`
	LongestStreak    int                     `gorm:"column:longest_streak;not null;default:0"`
	LastActivityAt   *time.Time              `gorm:"column:last_activity_at"`
	AvgQualityRating *float64                `gorm:"column:avg_quality_rating"`
	RatingCount      int64                   `gorm:"column:rating_count;not null;default:0"`
	LastGeoLat       *float64                `gorm:"column:last_geo_lat"`
	LastGeoLng       *float64                `gorm:"column:last_geo_lng"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides GORM's pluralization.
func (UserActivityStats) TableName() string {
	return "user_activity_stats"
}
