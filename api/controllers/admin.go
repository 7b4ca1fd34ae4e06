package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/api/responses"
	"github.com/trailmarks/gamification-backend/api/validators"
	"github.com/trailmarks/gamification-backend/internal/query"
	"github.com/trailmarks/gamification-backend/internal/snapshots"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	pkgerrors "github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
)

type rankingUpdateResponse struct {
	GenerationID uuid.UUID `json:"generation_id"`
	UserCount    int64     `json:"user_count"`
	Coalesced    bool      `json:"coalesced"`
}

// AdminTriggerRankingUpdate forces a batch recompute. Concurrent triggers
// coalesce onto the in-flight run.
func AdminTriggerRankingUpdate(svc query.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "query service unavailable"))
			return
		}

		gen, coalesced, err := svc.TriggerManualUpdate(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := rankingUpdateResponse{Coalesced: coalesced}
		if gen != nil {
			resp.GenerationID = gen.ID
			resp.UserCount = gen.UserCount
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, resp)
	}
}

type snapshotCreateRequest struct {
	Period      string    `json:"period" validate:"required"`
	PeriodStart time.Time `json:"period_start" validate:"required"`
	PeriodEnd   time.Time `json:"period_end" validate:"required"`
}

// AdminCreateSnapshot freezes a leaderboard for the given window.
func AdminCreateSnapshot(svc snapshots.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "snapshot service unavailable"))
			return
		}

		var payload snapshotCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		period, err := enums.ParsePeriodType(payload.Period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period"))
			return
		}

		snapshot, err := svc.Create(r.Context(), period, payload.PeriodStart.UTC(), payload.PeriodEnd.UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newSnapshotView(snapshot))
	}
}
