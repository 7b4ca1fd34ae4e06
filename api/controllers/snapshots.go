package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/api/responses"
	"github.com/trailmarks/gamification-backend/internal/snapshots"
	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	pkgerrors "github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
)

type snapshotView struct {
	ID               uuid.UUID        `json:"id"`
	PeriodType       enums.PeriodType `json:"period_type"`
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        time.Time        `json:"period_end"`
	Entries          json.RawMessage  `json:"entries"`
	ParticipantCount int64            `json:"participant_count"`
	CreatedAt        time.Time        `json:"created_at"`
}

func newSnapshotView(s *models.LeaderboardSnapshot) snapshotView {
	return snapshotView{
		ID:               s.ID,
		PeriodType:       s.PeriodType,
		PeriodStart:      s.PeriodStart,
		PeriodEnd:        s.PeriodEnd,
		Entries:          s.Entries,
		ParticipantCount: s.ParticipantCount,
		CreatedAt:        s.CreatedAt,
	}
}

// SnapshotFetch returns the most recent snapshot of the period type
// overlapping the requested range.
func SnapshotFetch(svc snapshots.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "snapshot service unavailable"))
			return
		}

		period, err := enums.ParsePeriodType(strings.TrimSpace(r.URL.Query().Get("period")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period"))
			return
		}

		from, err := parseQueryTime(r, "from", time.Time{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := parseQueryTime(r, "to", time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := svc.Get(r.Context(), period, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if snapshot == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no snapshot for range"))
			return
		}

		responses.WriteSuccess(w, newSnapshotView(snapshot))
	}
}

func parseQueryTime(r *http.Request, key string, defaultVal time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid timestamp").WithDetails(map[string]any{"field": key})
	}
	return t.UTC(), nil
}
