package models

import (
	"time"

	"github.com/google/uuid"
)

// RankingGeneration records one complete batch ranking pass. Exactly one row
// has Current=true; readers resolve entries through it so a half-written
// generation is never observable.
type RankingGeneration struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	StartedAt   time.Time  `gorm:"column:started_at;not null"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	UserCount   int64      `gorm:"column:user_count;not null;default:0"`
	Current     bool       `gorm:"column:current;not null;default:false"`
}
