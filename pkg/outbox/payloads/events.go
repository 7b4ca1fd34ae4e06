package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// PointsAppendedEvent is emitted for every committed ledger append.
type PointsAppendedEvent struct {
	TransactionID  uuid.UUID           `json:"transaction_id"`
	UserID         uuid.UUID           `json:"user_id"`
	Category       enums.PointCategory `json:"category"`
	RawPoints      int64               `json:"raw_points"`
	FinalPoints    int64               `json:"final_points"`
	TotalPoints    int64               `json:"total_points"`
	PreviousLevel  int                 `json:"previous_level"`
	CurrentLevel   int                 `json:"current_level"`
	TierName       enums.Tier          `json:"tier_name"`
	StreakDays     int                 `json:"streak_days"`
	Description    string              `json:"description,omitempty"`
	IdempotencyKey string              `json:"idempotency_key"`
}

// RankChange records one user's global rank movement between generations.
// OldRank is zero for users absent from the previous generation.
type RankChange struct {
	UserID  uuid.UUID `json:"user_id"`
	OldRank int64     `json:"old_rank"`
	NewRank int64     `json:"new_rank"`
}

// RankingUpdatedEvent is emitted when a new ranking generation is published.
// RankChanges lists only users whose global rank moved.
type RankingUpdatedEvent struct {
	GenerationID         uuid.UUID    `json:"generation_id"`
	PreviousGenerationID *uuid.UUID   `json:"previous_generation_id,omitempty"`
	UserCount            int64        `json:"user_count"`
	GlobalLeaderID       *uuid.UUID   `json:"global_leader_id,omitempty"`
	PreviousLeaderID     *uuid.UUID   `json:"previous_leader_id,omitempty"`
	RankChanges          []RankChange `json:"rank_changes,omitempty"`
	StartedAt            time.Time    `json:"started_at"`
	CompletedAt          time.Time    `json:"completed_at"`
}

// StatsResetEvent is emitted when a periodic counter reset completes.
type StatsResetEvent struct {
	Scope        string    `json:"scope"`
	UserCount    int64     `json:"user_count"`
	ResetAt      time.Time `json:"reset_at"`
	NextResetDue time.Time `json:"next_reset_due"`
}

// SnapshotCreatedEvent is emitted after a leaderboard snapshot is persisted.
type SnapshotCreatedEvent struct {
	SnapshotID       uuid.UUID        `json:"snapshot_id"`
	PeriodType       enums.PeriodType `json:"period_type"`
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        time.Time        `json:"period_end"`
	ParticipantCount int64            `json:"participant_count"`
	EntryCount       int              `json:"entry_count"`
}
