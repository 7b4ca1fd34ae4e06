package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/outbox/payloads"
)

// ClassifyPoints turns one committed point award into the realtime events it
// implies. Every award yields points_added; badge grants and level increases
// add their own events.
func ClassifyPoints(sourceID uuid.UUID, occurredAt time.Time, payload payloads.PointsAppendedEvent) []Event {
	userID := payload.UserID
	events := []Event{{
		SourceEventID: sourceID,
		Type:          EventPointsAdded,
		UserID:        &userID,
		OccurredAt:    occurredAt,
		Data: PointsAddedData{
			Category:    payload.Category,
			FinalPoints: payload.FinalPoints,
			TotalPoints: payload.TotalPoints,
			StreakDays:  payload.StreakDays,
		},
	}}

	if payload.Category == enums.CategoryBadgeAwarded {
		events = append(events, Event{
			SourceEventID: sourceID,
			Type:          EventAchievementUnlocked,
			UserID:        &userID,
			OccurredAt:    occurredAt,
			Data: AchievementUnlockedData{
				Category:    payload.Category,
				Description: payload.Description,
			},
		})
	}

	if payload.CurrentLevel > payload.PreviousLevel {
		events = append(events, Event{
			SourceEventID: sourceID,
			Type:          EventUserLevelUp,
			UserID:        &userID,
			OccurredAt:    occurredAt,
			Data: UserLevelUpData{
				PreviousLevel: payload.PreviousLevel,
				CurrentLevel:  payload.CurrentLevel,
				Tier:          payload.TierName,
			},
		})
	}
	return events
}

// ClassifyRanking turns a published generation into a broadcast new_leader
// event when the top spot changed hands, plus one position_change per moved
// user.
func ClassifyRanking(sourceID uuid.UUID, occurredAt time.Time, payload payloads.RankingUpdatedEvent) []Event {
	var events []Event

	if payload.GlobalLeaderID != nil && (payload.PreviousLeaderID == nil || *payload.PreviousLeaderID != *payload.GlobalLeaderID) {
		events = append(events, Event{
			SourceEventID: sourceID,
			Type:          EventNewLeader,
			OccurredAt:    occurredAt,
			Data: NewLeaderData{
				LeaderID:         *payload.GlobalLeaderID,
				PreviousLeaderID: payload.PreviousLeaderID,
			},
		})
	}

	for _, change := range payload.RankChanges {
		userID := change.UserID
		events = append(events, Event{
			SourceEventID: sourceID,
			Type:          EventPositionChange,
			UserID:        &userID,
			OccurredAt:    occurredAt,
			Data: PositionChangeData{
				OldRank: change.OldRank,
				NewRank: change.NewRank,
			},
		})
	}
	return events
}
