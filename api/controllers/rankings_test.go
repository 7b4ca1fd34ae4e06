package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/internal/query"
	"github.com/trailmarks/gamification-backend/pkg/enums"
)

func TestMyRankingReturnsRankedUser(t *testing.T) {
	userID := uuid.New()
	svc := &stubQueryService{ranking: &query.UserRanking{
		Ranked:     true,
		GlobalRank: 7,
		Percentile: 94.0,
	}}
	handler := MyRanking(svc, nil)

	req := authedRequest(http.MethodGet, "/api/v1/rankings/me", nil, userID)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data query.UserRanking `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.Ranked || envelope.Data.GlobalRank != 7 {
		t.Fatalf("unexpected ranking %+v", envelope.Data)
	}
}

func TestMyRankingUnrankedIsStillOK(t *testing.T) {
	svc := &stubQueryService{ranking: &query.UserRanking{Ranked: false}}
	handler := MyRanking(svc, nil)

	req := authedRequest(http.MethodGet, "/api/v1/rankings/me", nil, uuid.New())
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unranked user got %d", rec.Code)
	}
	var envelope struct {
		Data query.UserRanking `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Ranked {
		t.Fatal("expected ranked=false")
	}
}

func TestMyRankingMissingContext(t *testing.T) {
	handler := MyRanking(&stubQueryService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rankings/me", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func newRankingsRouter(svc query.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/rankings/{userId}", UserRanking(svc, nil))
	r.Get("/rankings/{userId}/nearby", NearbyRankings(svc, nil))
	return r
}

func TestUserRankingByID(t *testing.T) {
	svc := &stubQueryService{ranking: &query.UserRanking{Ranked: true, GlobalRank: 3}}
	router := newRankingsRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/rankings/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestUserRankingRejectsBadID(t *testing.T) {
	router := newRankingsRouter(&stubQueryService{})

	req := httptest.NewRequest(http.MethodGet, "/rankings/not-a-uuid", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestNearbyRankings(t *testing.T) {
	svc := &stubQueryService{nearby: []query.LeaderboardEntry{
		{Rank: 4}, {Rank: 5}, {Rank: 6},
	}}
	router := newRankingsRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/rankings/"+uuid.NewString()+"/nearby?kind=weekly&window=1", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastKind != enums.PartitionWeekly {
		t.Fatalf("expected weekly kind, got %s", svc.lastKind)
	}
	var envelope struct {
		Data struct {
			Entries []query.LeaderboardEntry `json:"entries"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Entries) != 3 {
		t.Fatalf("expected 3 entries got %d", len(envelope.Data.Entries))
	}
}

func TestNearbyRankingsRejectsOversizeWindow(t *testing.T) {
	router := newRankingsRouter(&stubQueryService{})

	req := httptest.NewRequest(http.MethodGet, "/rankings/"+uuid.NewString()+"/nearby?window=500", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
