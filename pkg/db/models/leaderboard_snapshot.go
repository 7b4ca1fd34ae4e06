package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// LeaderboardSnapshot is an immutable top-N capture of one partition for a
// fixed period. ParticipantCount covers the whole valid partition, not just
// the embedded entries.
type LeaderboardSnapshot struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PeriodType       enums.PeriodType `gorm:"column:period_type;type:period_type_enum;not null"`
	PeriodStart      time.Time        `gorm:"column:period_start;not null"`
	PeriodEnd        time.Time        `gorm:"column:period_end;not null"`
	Entries          json.RawMessage  `gorm:"column:entries;type:jsonb;not null"`
	ParticipantCount int64            `gorm:"column:participant_count;not null"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
}
