package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trailmarks/gamification-backend/api/middleware"
	"github.com/trailmarks/gamification-backend/api/responses"
	"github.com/trailmarks/gamification-backend/api/validators"
	"github.com/trailmarks/gamification-backend/internal/ledger"
	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	pkgerrors "github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/pagination"
)

const idempotencyKeyHeader = "Idempotency-Key"

type pointsAppendRequest struct {
	DisplayName   *string         `json:"display_name,omitempty" validate:"omitempty,min=1,max=120"`
	Category      string          `json:"category" validate:"required"`
	RawPoints     int64           `json:"raw_points" validate:"required,gt=0"`
	Multiplier    *float64        `json:"multiplier,omitempty" validate:"omitempty,gt=0"`
	Description   *string         `json:"description,omitempty" validate:"omitempty,max=500"`
	RelatedIDs    []uuid.UUID     `json:"related_ids,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	QualityRating *float64        `json:"quality_rating,omitempty" validate:"omitempty,min=0,max=5"`
	GeoLat        *float64        `json:"geo_lat,omitempty" validate:"omitempty,min=-90,max=90"`
	GeoLng        *float64        `json:"geo_lng,omitempty" validate:"omitempty,min=-180,max=180"`
}

type pointsAppendResponse struct {
	TransactionID uuid.UUID  `json:"transaction_id"`
	FinalPoints   int64      `json:"final_points"`
	TotalPoints   int64      `json:"total_points"`
	Experience    int64      `json:"experience"`
	PreviousLevel int        `json:"previous_level"`
	CurrentLevel  int        `json:"current_level"`
	Tier          enums.Tier `json:"tier"`
	StreakDays    int        `json:"streak_days"`
	Replayed      bool       `json:"replayed"`
}

// PointsAppend records a point award for the authenticated user. Replays of
// the same Idempotency-Key return the original result with a 200.
func PointsAppend(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		idemKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if idemKey == "" {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is required"))
			return
		}

		var payload pointsAppendRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		category, err := enums.ParsePointCategory(payload.Category)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
			return
		}

		input := ledger.AppendInput{
			UserID:         userID,
			DisplayName:    payload.DisplayName,
			Category:       category,
			RawPoints:      payload.RawPoints,
			Description:    payload.Description,
			RelatedIDs:     payload.RelatedIDs,
			Metadata:       payload.Metadata,
			QualityRating:  payload.QualityRating,
			GeoLat:         payload.GeoLat,
			GeoLng:         payload.GeoLng,
			IdempotencyKey: idemKey,
		}
		if payload.Multiplier != nil {
			mult := decimal.NewFromFloat(*payload.Multiplier)
			input.Multiplier = &mult
		}

		result, err := svc.Append(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, pointsAppendResponse{
			TransactionID: result.TransactionID,
			FinalPoints:   result.FinalPoints,
			TotalPoints:   result.TotalPoints,
			Experience:    result.Experience,
			PreviousLevel: result.PreviousLevel,
			CurrentLevel:  result.CurrentLevel,
			Tier:          result.Tier,
			StreakDays:    result.StreakDays,
			Replayed:      result.Replayed,
		})
	}
}

type transactionView struct {
	ID            uuid.UUID           `json:"id"`
	Category      enums.PointCategory `json:"category"`
	RawPoints     int64               `json:"raw_points"`
	Multiplier    string              `json:"multiplier"`
	FinalPoints   int64               `json:"final_points"`
	Description   *string             `json:"description,omitempty"`
	RelatedIDs    []uuid.UUID         `json:"related_ids,omitempty"`
	QualityRating *float64            `json:"quality_rating,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

type transactionsPage struct {
	Items      []transactionView `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// PointsHistory lists the caller's transactions newest first with cursor
// pagination.
func PointsHistory(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, nextCursor, err := svc.ListHistory(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page := transactionsPage{Items: make([]transactionView, 0, len(items)), NextCursor: nextCursor}
		for _, tx := range items {
			page.Items = append(page.Items, transactionView{
				ID:            tx.ID,
				Category:      tx.Category,
				RawPoints:     tx.RawPoints,
				Multiplier:    tx.Multiplier.String(),
				FinalPoints:   tx.FinalPoints,
				Description:   tx.Description,
				RelatedIDs:    []uuid.UUID(tx.RelatedIDs),
				QualityRating: tx.QualityRating,
				CreatedAt:     tx.CreatedAt,
			})
		}
		responses.WriteSuccess(w, page)
	}
}

type statsView struct {
	UserID           uuid.UUID  `json:"user_id"`
	DisplayName      string     `json:"display_name,omitempty"`
	TotalPoints      int64      `json:"total_points"`
	WeeklyPoints     int64      `json:"weekly_points"`
	MonthlyPoints    int64      `json:"monthly_points"`
	LifetimePoints   int64      `json:"lifetime_points"`
	ExperiencePoints int64      `json:"experience_points"`
	CurrentLevel     int        `json:"current_level"`
	Tier             enums.Tier `json:"tier"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityAt   *time.Time `json:"last_activity_at,omitempty"`
	AvgQualityRating *float64   `json:"avg_quality_rating,omitempty"`
}

// PointsStats returns the caller's aggregate activity stats.
func PointsStats(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.GetStats(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if stats == nil {
			// No activity yet: zeroed stats at the starting level.
			responses.WriteSuccess(w, statsView{
				UserID:       userID,
				CurrentLevel: 1,
				Tier:         enums.TierBeginner,
			})
			return
		}

		responses.WriteSuccess(w, newStatsView(stats))
	}
}

func newStatsView(stats *models.UserActivityStats) statsView {
	return statsView{
		UserID:           stats.UserID,
		DisplayName:      stats.DisplayName,
		TotalPoints:      stats.TotalPoints,
		WeeklyPoints:     stats.WeeklyPoints,
		MonthlyPoints:    stats.MonthlyPoints,
		LifetimePoints:   stats.LifetimePoints,
		ExperiencePoints: stats.ExperiencePoints,
		CurrentLevel:     stats.CurrentLevel,
		Tier:             stats.TierName,
		CurrentStreak:    stats.CurrentStreak,
		LongestStreak:    stats.LongestStreak,
		LastActivityAt:   stats.LastActivityAt,
		AvgQualityRating: stats.AvgQualityRating,
	}
}

func authenticatedUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}
