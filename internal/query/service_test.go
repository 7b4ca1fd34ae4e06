package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/errors"
)

type fakeCache struct {
	values map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.values[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeCache) LeaderboardPageKey(generationID, partition, partitionKey string, limit, offset int) string {
	return fmt.Sprintf("lb:%s:%s:%s:%d:%d", generationID, partition, partitionKey, limit, offset)
}

func (f *fakeCache) RankingStaleKey(generationID string) string {
	return "stale:" + generationID
}

type fakeQueryRepo struct {
	gen        *models.RankingGeneration
	rows       []LeaderboardRow
	entries    map[uuid.UUID]*models.RankingCacheEntry
	stats      map[uuid.UUID]*models.UserActivityStats
	listCalls  int
	rangeCalls int
	lastMin    int64
	lastMax    int64
}

func (f *fakeQueryRepo) CurrentGeneration(ctx context.Context) (*models.RankingGeneration, error) {
	return f.gen, nil
}

func (f *fakeQueryRepo) ListPartition(ctx context.Context, generationID uuid.UUID, kind enums.PartitionKind, key string, limit, offset int) ([]LeaderboardRow, error) {
	f.listCalls++
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[offset:end], nil
}

func (f *fakeQueryRepo) ListRankRange(ctx context.Context, generationID uuid.UUID, kind enums.PartitionKind, key string, minRank, maxRank int64) ([]LeaderboardRow, error) {
	f.rangeCalls++
	f.lastMin, f.lastMax = minRank, maxRank
	var out []LeaderboardRow
	for _, row := range f.rows {
		if row.Rank >= minRank && row.Rank <= maxRank {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeQueryRepo) CountPartition(ctx context.Context, generationID uuid.UUID, kind enums.PartitionKind, key string) (int64, error) {
	return int64(len(f.rows)), nil
}

func (f *fakeQueryRepo) GetEntry(ctx context.Context, generationID, userID uuid.UUID) (*models.RankingCacheEntry, error) {
	return f.entries[userID], nil
}

func (f *fakeQueryRepo) GetStats(ctx context.Context, userID uuid.UUID) (*models.UserActivityStats, error) {
	return f.stats[userID], nil
}

type fakeBatch struct {
	gen       *models.RankingGeneration
	coalesced bool
	calls     int
}

func (f *fakeBatch) RunBatch(ctx context.Context, trigger string) (*models.RankingGeneration, bool, error) {
	f.calls++
	return f.gen, f.coalesced, nil
}

func (f *fakeBatch) CurrentGeneration(ctx context.Context) (*models.RankingGeneration, error) {
	return f.gen, nil
}

func (f *fakeBatch) CleanupOldGenerations(ctx context.Context) (int64, error) {
	return 0, nil
}

func leaderboardRows(n int) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, LeaderboardRow{
			UserID:         uuid.New(),
			DisplayName:    fmt.Sprintf("user-%d", i),
			CurrentLevel:   i,
			TotalPoints:    int64(1000 - i*10),
			WeeklyPoints:   int64(100 - i),
			MonthlyPoints:  int64(500 - i),
			CompositeScore: float64(1000 - i*10),
			Rank:           int64(i),
		})
	}
	return rows
}

func newTestQueryService(t *testing.T, repo *fakeQueryRepo) (Service, *fakeCache, *fakeBatch) {
	t.Helper()
	cache := newFakeCache()
	batch := &fakeBatch{gen: repo.gen}
	svc, err := NewService(repo, cache, batch, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, cache, batch
}

func TestGetLeaderboardReadsThroughCache(t *testing.T) {
	repo := &fakeQueryRepo{
		gen:  &models.RankingGeneration{ID: uuid.New(), Current: true},
		rows: leaderboardRows(5),
	}
	svc, _, _ := newTestQueryService(t, repo)
	ctx := context.Background()

	first, err := svc.GetLeaderboard(ctx, enums.PartitionGlobal, "", 3, 0)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(first.Entries) != 3 || first.Total != 5 {
		t.Fatalf("page = %d entries total %d", len(first.Entries), first.Total)
	}
	if first.Entries[0].Rank != 1 || first.Entries[0].DisplayName != "user-1" {
		t.Fatalf("first entry = %+v", first.Entries[0])
	}
	if first.Stale {
		t.Fatal("fresh generation should not be stale")
	}

	// Second read must come from the page cache.
	second, err := svc.GetLeaderboard(ctx, enums.PartitionGlobal, "", 3, 0)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if repo.listCalls != 1 {
		t.Fatalf("repo hit %d times, want cache to serve the second read", repo.listCalls)
	}
	if len(second.Entries) != 3 {
		t.Fatalf("cached page = %d entries", len(second.Entries))
	}
}

func TestGetLeaderboardStaleFlag(t *testing.T) {
	repo := &fakeQueryRepo{
		gen:  &models.RankingGeneration{ID: uuid.New(), Current: true},
		rows: leaderboardRows(2),
	}
	svc, cache, _ := newTestQueryService(t, repo)
	ctx := context.Background()

	if err := svc.MarkCurrentGenerationStale(ctx); err != nil {
		t.Fatalf("MarkCurrentGenerationStale: %v", err)
	}
	if _, ok := cache.values["stale:"+repo.gen.ID.String()]; !ok {
		t.Fatal("stale flag not written")
	}

	page, err := svc.GetLeaderboard(ctx, enums.PartitionGlobal, "", 10, 0)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if !page.Stale {
		t.Fatal("page should report stale after points landed")
	}
}

func TestGetLeaderboardValidation(t *testing.T) {
	repo := &fakeQueryRepo{gen: &models.RankingGeneration{ID: uuid.New()}}
	svc, _, _ := newTestQueryService(t, repo)
	ctx := context.Background()

	if _, err := svc.GetLeaderboard(ctx, enums.PartitionKind("bogus"), "", 10, 0); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := svc.GetLeaderboard(ctx, enums.PartitionRegional, "", 10, 0); err == nil {
		t.Fatal("expected error for keyed partition without key")
	} else if appErr := errors.As(err); appErr == nil || appErr.Code() != errors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetLeaderboardWithoutGeneration(t *testing.T) {
	svc, _, _ := newTestQueryService(t, &fakeQueryRepo{})

	page, err := svc.GetLeaderboard(context.Background(), enums.PartitionGlobal, "", 10, 0)
	if err != nil {
		t.Fatalf("GetLeaderboard: %v", err)
	}
	if len(page.Entries) != 0 || !page.Stale {
		t.Fatalf("empty system should yield an empty stale page, got %+v", page)
	}
}

func TestGetUserRankingUnranked(t *testing.T) {
	repo := &fakeQueryRepo{
		gen:     &models.RankingGeneration{ID: uuid.New(), Current: true},
		entries: map[uuid.UUID]*models.RankingCacheEntry{},
	}
	svc, _, _ := newTestQueryService(t, repo)

	got, err := svc.GetUserRanking(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unranked user must not error: %v", err)
	}
	if got.Ranked {
		t.Fatal("unknown user should be unranked")
	}
}

func TestGetUserRankingRanked(t *testing.T) {
	userID := uuid.New()
	gen := &models.RankingGeneration{ID: uuid.New(), Current: true}
	repo := &fakeQueryRepo{
		gen: gen,
		entries: map[uuid.UUID]*models.RankingCacheEntry{
			userID: {
				GenerationID:     gen.ID,
				UserID:           userID,
				GlobalRank:       4,
				WeeklyRank:       2,
				RegionBucket:     "alps",
				RegionalRank:     1,
				LevelGroup:       "11-20",
				LevelGroupRank:   3,
				GlobalPercentile: 97.5,
				CompositeScore:   812.5,
			},
		},
		stats: map[uuid.UUID]*models.UserActivityStats{
			userID: {UserID: userID, CurrentLevel: 14, TotalPoints: 900},
		},
	}
	svc, _, _ := newTestQueryService(t, repo)

	got, err := svc.GetUserRanking(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUserRanking: %v", err)
	}
	if !got.Ranked || got.GlobalRank != 4 || got.RegionBucket != "alps" {
		t.Fatalf("ranking = %+v", got)
	}
	if got.Level != 14 || got.TotalPoints != 900 {
		t.Fatalf("stats projection = level %d points %d", got.Level, got.TotalPoints)
	}
}

func TestGetNearbyCentersOnUser(t *testing.T) {
	rows := leaderboardRows(10)
	userID := rows[4].UserID
	repo := &fakeQueryRepo{
		gen:  &models.RankingGeneration{ID: uuid.New(), Current: true},
		rows: rows,
		entries: map[uuid.UUID]*models.RankingCacheEntry{
			userID: {UserID: userID, GlobalRank: 5},
		},
	}
	svc, _, _ := newTestQueryService(t, repo)

	entries, err := svc.GetNearby(context.Background(), userID, enums.PartitionGlobal, 2)
	if err != nil {
		t.Fatalf("GetNearby: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 2*window+1 = 5", len(entries))
	}
	if entries[0].Rank != 3 || entries[4].Rank != 7 {
		t.Fatalf("range = [%d, %d], want [3, 7]", entries[0].Rank, entries[4].Rank)
	}
}

func TestGetNearbyTruncatesAtTop(t *testing.T) {
	rows := leaderboardRows(10)
	userID := rows[0].UserID
	repo := &fakeQueryRepo{
		gen:  &models.RankingGeneration{ID: uuid.New(), Current: true},
		rows: rows,
		entries: map[uuid.UUID]*models.RankingCacheEntry{
			userID: {UserID: userID, GlobalRank: 1},
		},
	}
	svc, _, _ := newTestQueryService(t, repo)

	entries, err := svc.GetNearby(context.Background(), userID, enums.PartitionGlobal, 3)
	if err != nil {
		t.Fatalf("GetNearby: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4 at the top edge", len(entries))
	}
	if repo.lastMin != 1 {
		t.Fatalf("range floor = %d, want clamp at 1", repo.lastMin)
	}
}

func TestGetNearbyUnrankedUser(t *testing.T) {
	repo := &fakeQueryRepo{
		gen:     &models.RankingGeneration{ID: uuid.New(), Current: true},
		entries: map[uuid.UUID]*models.RankingCacheEntry{},
	}
	svc, _, _ := newTestQueryService(t, repo)

	entries, err := svc.GetNearby(context.Background(), uuid.New(), enums.PartitionGlobal, 2)
	if err != nil {
		t.Fatalf("GetNearby: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("unranked user should get no neighbors, got %d", len(entries))
	}
}

func TestTriggerManualUpdateDelegates(t *testing.T) {
	gen := &models.RankingGeneration{ID: uuid.New(), Current: true}
	repo := &fakeQueryRepo{gen: gen}
	svc, _, batch := newTestQueryService(t, repo)
	batch.coalesced = true

	got, coalesced, err := svc.TriggerManualUpdate(context.Background())
	if err != nil {
		t.Fatalf("TriggerManualUpdate: %v", err)
	}
	if got.ID != gen.ID || !coalesced || batch.calls != 1 {
		t.Fatalf("delegation mismatch: gen=%s coalesced=%v calls=%d", got.ID, coalesced, batch.calls)
	}
}
