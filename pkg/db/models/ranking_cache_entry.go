package models

import (
	"time"

	"github.com/google/uuid"
)

// RankingCacheEntry is one user's row inside one ranking generation. The
// Batch Processor owns every column; the Point Ledger only flips Valid to
// false on the current generation when new points land.
type RankingCacheEntry struct {
	GenerationID     uuid.UUID `gorm:"column:generation_id;type:uuid;primaryKey"`
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	CompositeScore   float64   `gorm:"column:composite_score;not null"`
	RegionBucket     string    `gorm:"column:region_bucket;not null"`
	LevelGroup       string    `gorm:"column:level_group;not null"`
	GlobalRank       int64     `gorm:"column:global_rank;not null"`
	WeeklyRank       int64     `gorm:"column:weekly_rank;not null"`
	MonthlyRank      int64     `gorm:"column:monthly_rank;not null"`
	RegionalRank     int64     `gorm:"column:regional_rank;not null"`
	LevelGroupRank   int64     `gorm:"column:level_group_rank;not null"`
	GlobalPercentile float64   `gorm:"column:global_percentile;not null"`
	Valid            bool      `gorm:"column:valid;not null;default:true"`
	ComputedAt       time.Time `gorm:"column:computed_at;not null"`
}

// TableName overrides GORM's pluralization.
func (RankingCacheEntry) TableName() string {
	return "ranking_cache_entries"
}
