package controllers

import (
	"net/http"
	"strings"

	"github.com/trailmarks/gamification-backend/api/responses"
	"github.com/trailmarks/gamification-backend/api/validators"
	"github.com/trailmarks/gamification-backend/internal/query"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	pkgerrors "github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/pagination"
)

// Leaderboard serves one page of the requested partition. Keyed partitions
// (regional, level_group) require the key query parameter.
func Leaderboard(svc query.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "query service unavailable"))
			return
		}

		kind, err := parsePartitionKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.GetLeaderboard(r.Context(), kind, strings.TrimSpace(r.URL.Query().Get("key")), limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

func parsePartitionKind(r *http.Request) (enums.PartitionKind, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("kind"))
	if raw == "" {
		return enums.PartitionGlobal, nil
	}
	kind, err := enums.ParsePartitionKind(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid partition kind")
	}
	return kind, nil
}
