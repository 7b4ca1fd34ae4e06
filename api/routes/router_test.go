package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/trailmarks/gamification-backend/pkg/auth"
	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/logger"

	"github.com/trailmarks/gamification-backend/internal/query"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type routerQueryStub struct{}

func (routerQueryStub) GetLeaderboard(ctx context.Context, kind enums.PartitionKind, key string, limit, offset int) (*query.LeaderboardPage, error) {
	return &query.LeaderboardPage{Kind: kind}, nil
}

func (routerQueryStub) GetUserRanking(ctx context.Context, userID uuid.UUID) (*query.UserRanking, error) {
	return &query.UserRanking{}, nil
}

func (routerQueryStub) GetNearby(ctx context.Context, userID uuid.UUID, kind enums.PartitionKind, window int) ([]query.LeaderboardEntry, error) {
	return nil, nil
}

func (routerQueryStub) TriggerManualUpdate(ctx context.Context) (*models.RankingGeneration, bool, error) {
	return &models.RankingGeneration{ID: uuid.New()}, false, nil
}

func (routerQueryStub) MarkCurrentGenerationStale(ctx context.Context) error { return nil }

func testRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(cfg, logg, stubPinger{}, stubPinger{}, nil, nil, routerQueryStub{}, nil)
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "8080"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "trailmarks-test",
			ExpirationMinutes: 15,
		},
	}
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := testRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestAPIRoutesRequireAuth(t *testing.T) {
	router := testRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestLeaderboardWithToken(t *testing.T) {
	cfg := testConfig()
	router := testRouter(t, cfg)

	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleUser,
	})
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/leaderboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminRoutesRejectUserRole(t *testing.T) {
	cfg := testConfig()
	router := testRouter(t, cfg)

	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleUser,
	})
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/rankings/update", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestAdminRoutesAllowAdmin(t *testing.T) {
	cfg := testConfig()
	router := testRouter(t, cfg)

	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/rankings/update", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rec.Code, rec.Body.String())
	}
}
