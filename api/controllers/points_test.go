package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trailmarks/gamification-backend/api/middleware"
	"github.com/trailmarks/gamification-backend/internal/ledger"
	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/pagination"
)

type stubLedgerService struct {
	appendResult *ledger.AppendResult
	appendErr    error
	lastInput    ledger.AppendInput
	stats        *models.UserActivityStats
	history      []models.PointTransaction
	nextCursor   string
}

func (s *stubLedgerService) Append(ctx context.Context, input ledger.AppendInput) (*ledger.AppendResult, error) {
	s.lastInput = input
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	return s.appendResult, nil
}

func (s *stubLedgerService) GetStats(ctx context.Context, userID uuid.UUID) (*models.UserActivityStats, error) {
	// nil stats without an error mirrors the repository contract for a user
	// with no activity yet.
	return s.stats, nil
}

func (s *stubLedgerService) ListHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.PointTransaction, string, error) {
	return s.history, s.nextCursor, nil
}

func (s *stubLedgerService) ResetWeekly(ctx context.Context) (int64, error)  { return 0, nil }
func (s *stubLedgerService) ResetMonthly(ctx context.Context) (int64, error) { return 0, nil }

func authedRequest(method, target string, body []byte, userID uuid.UUID) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func TestPointsAppendSuccess(t *testing.T) {
	userID := uuid.New()
	txID := uuid.New()
	svc := &stubLedgerService{appendResult: &ledger.AppendResult{
		TransactionID: txID,
		FinalPoints:   150,
		TotalPoints:   1150,
		PreviousLevel: 3,
		CurrentLevel:  4,
		Tier:          enums.TierIntermediate,
	}}
	handler := PointsAppend(svc, nil)

	payload := []byte(`{"category":"content_created","raw_points":100,"multiplier":1.5}`)
	req := authedRequest(http.MethodPost, "/api/v1/points", payload, userID)
	req.Header.Set("Idempotency-Key", "award-1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastInput.UserID != userID {
		t.Fatalf("expected user id %s got %s", userID, svc.lastInput.UserID)
	}
	if svc.lastInput.IdempotencyKey != "award-1" {
		t.Fatalf("idempotency key = %q", svc.lastInput.IdempotencyKey)
	}
	if svc.lastInput.Multiplier == nil || !svc.lastInput.Multiplier.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("multiplier = %v", svc.lastInput.Multiplier)
	}

	var envelope struct {
		Data pointsAppendResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.TransactionID != txID || envelope.Data.CurrentLevel != 4 {
		t.Fatalf("unexpected response %+v", envelope.Data)
	}
}

func TestPointsAppendReplayReturns200(t *testing.T) {
	svc := &stubLedgerService{appendResult: &ledger.AppendResult{
		TransactionID: uuid.New(),
		Replayed:      true,
	}}
	handler := PointsAppend(svc, nil)

	req := authedRequest(http.MethodPost, "/api/v1/points", []byte(`{"category":"content_created","raw_points":10}`), uuid.New())
	req.Header.Set("Idempotency-Key", "award-1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for replay got %d", rec.Code)
	}
}

func TestPointsAppendRequiresIdempotencyKey(t *testing.T) {
	handler := PointsAppend(&stubLedgerService{}, nil)

	req := authedRequest(http.MethodPost, "/api/v1/points", []byte(`{"category":"content_created","raw_points":10}`), uuid.New())
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestPointsAppendRejectsUnknownCategory(t *testing.T) {
	handler := PointsAppend(&stubLedgerService{}, nil)

	req := authedRequest(http.MethodPost, "/api/v1/points", []byte(`{"category":"bogus","raw_points":10}`), uuid.New())
	req.Header.Set("Idempotency-Key", "award-1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestPointsAppendMissingUserContext(t *testing.T) {
	handler := PointsAppend(&stubLedgerService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/points", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestPointsStats(t *testing.T) {
	userID := uuid.New()
	svc := &stubLedgerService{stats: &models.UserActivityStats{
		UserID:       userID,
		DisplayName:  "trail-blazer",
		TotalPoints:  900,
		CurrentLevel: 5,
		TierName:     enums.TierIntermediate,
	}}
	handler := PointsStats(svc, nil)

	req := authedRequest(http.MethodGet, "/api/v1/points/stats", nil, userID)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data statsView `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.UserID != userID || envelope.Data.TotalPoints != 900 {
		t.Fatalf("unexpected stats %+v", envelope.Data)
	}
}

func TestPointsStatsNoActivityYet(t *testing.T) {
	userID := uuid.New()
	handler := PointsStats(&stubLedgerService{}, nil)

	req := authedRequest(http.MethodGet, "/api/v1/points/stats", nil, userID)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data statsView `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.UserID != userID {
		t.Fatalf("user id = %s, want %s", envelope.Data.UserID, userID)
	}
	if envelope.Data.TotalPoints != 0 || envelope.Data.CurrentLevel != 1 || envelope.Data.Tier != enums.TierBeginner {
		t.Fatalf("unexpected empty stats %+v", envelope.Data)
	}
}

func TestPointsHistoryPassesCursor(t *testing.T) {
	svc := &stubLedgerService{
		history:    []models.PointTransaction{{ID: uuid.New(), Category: enums.CategoryContentCreated, FinalPoints: 10}},
		nextCursor: "abc",
	}
	handler := PointsHistory(svc, nil)

	req := authedRequest(http.MethodGet, "/api/v1/points/transactions?limit=10", nil, uuid.New())
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var envelope struct {
		Data transactionsPage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 1 || envelope.Data.NextCursor != "abc" {
		t.Fatalf("unexpected page %+v", envelope.Data)
	}
}
