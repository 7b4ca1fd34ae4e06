package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// EventType identifies one kind of realtime notification.
type EventType string

const (
	EventPointsAdded         EventType = "points_added"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventUserLevelUp         EventType = "user_level_up"
	EventNewLeader           EventType = "new_leader"
	EventPositionChange      EventType = "position_change"
)

// Event is one classified notification. A nil UserID means broadcast.
type Event struct {
	SourceEventID uuid.UUID
	Type          EventType
	UserID        *uuid.UUID
	OccurredAt    time.Time
	Data          any
}

// PointsAddedData notifies a user about a committed point award.
type PointsAddedData struct {
	Category    enums.PointCategory `json:"category"`
	FinalPoints int64               `json:"final_points"`
	TotalPoints int64               `json:"total_points"`
	StreakDays  int                 `json:"streak_days"`
}

// AchievementUnlockedData notifies a user about a granted badge.
type AchievementUnlockedData struct {
	Category    enums.PointCategory `json:"category"`
	Description string              `json:"description,omitempty"`
}

// UserLevelUpData notifies a user their level increased.
type UserLevelUpData struct {
	PreviousLevel int        `json:"previous_level"`
	CurrentLevel  int        `json:"current_level"`
	Tier          enums.Tier `json:"tier"`
}

// NewLeaderData announces a change at the top of the global leaderboard.
type NewLeaderData struct {
	LeaderID         uuid.UUID  `json:"leader_id"`
	PreviousLeaderID *uuid.UUID `json:"previous_leader_id,omitempty"`
}

// PositionChangeData notifies a user their global rank moved.
type PositionChangeData struct {
	OldRank int64 `json:"old_rank"`
	NewRank int64 `json:"new_rank"`
}
