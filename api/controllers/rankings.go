package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/api/responses"
	"github.com/trailmarks/gamification-backend/api/validators"
	"github.com/trailmarks/gamification-backend/internal/query"
	pkgerrors "github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
)

// MyRanking returns the caller's position across all partitions. Unranked
// users get ranked=false, never a 404.
func MyRanking(svc query.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "query service unavailable"))
			return
		}

		userID, err := authenticatedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ranking, err := svc.GetUserRanking(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ranking)
	}
}

// UserRanking returns any user's position by id.
func UserRanking(svc query.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "query service unavailable"))
			return
		}

		userID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ranking, err := svc.GetUserRanking(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ranking)
	}
}

// NearbyRankings returns the window of entries around a user's position in
// one partition.
func NearbyRankings(svc query.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "query service unavailable"))
			return
		}

		userID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		kind, err := parsePartitionKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		window, err := validators.ParseQueryInt(r, "window", 5, 1, 50)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.GetNearby(r.Context(), userID, kind, window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"entries": entries})
	}
}

func pathUserID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "userId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return id, nil
}
