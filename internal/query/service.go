package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/trailmarks/gamification-backend/internal/ranking"
	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/pagination"
	"github.com/trailmarks/gamification-backend/pkg/redis"
)

const pageCacheTTL = 30 * time.Second
const staleFlagTTL = 6 * time.Hour

// Cache is the slice of the redis client the query service uses.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	LeaderboardPageKey(generationID, partition, partitionKey string, limit, offset int) string
	RankingStaleKey(generationID string) string
}

// LeaderboardEntry is one row of a leaderboard response.
type LeaderboardEntry struct {
	Rank        int64     `json:"rank"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Points      int64     `json:"points"`
	Level       int       `json:"level"`
	Score       float64   `json:"score"`
}

// LeaderboardPage is one ordered slice of a partition. Stale reports that new
// points landed since the generation was published.
type LeaderboardPage struct {
	Kind         enums.PartitionKind `json:"kind"`
	Key          string              `json:"key,omitempty"`
	GenerationID uuid.UUID           `json:"generation_id"`
	Entries      []LeaderboardEntry  `json:"entries"`
	Total        int64               `json:"total"`
	Limit        int                 `json:"limit"`
	Offset       int                 `json:"offset"`
	Stale        bool                `json:"stale"`
}

// UserRanking is one user's position across every partition. Ranked is false
// for users without a row in the current generation.
type UserRanking struct {
	Ranked         bool      `json:"ranked"`
	GenerationID   uuid.UUID `json:"generation_id,omitempty"`
	GlobalRank     int64     `json:"global_rank,omitempty"`
	WeeklyRank     int64     `json:"weekly_rank,omitempty"`
	MonthlyRank    int64     `json:"monthly_rank,omitempty"`
	RegionalRank   int64     `json:"regional_rank,omitempty"`
	RegionBucket   string    `json:"region_bucket,omitempty"`
	LevelGroupRank int64     `json:"level_group_rank,omitempty"`
	LevelGroup     string    `json:"level_group,omitempty"`
	Percentile     float64   `json:"percentile,omitempty"`
	Score          float64   `json:"score,omitempty"`
	Level          int       `json:"level,omitempty"`
	TotalPoints    int64     `json:"total_points,omitempty"`
}

// Service answers leaderboard reads and owns the manual batch trigger.
type Service interface {
	GetLeaderboard(ctx context.Context, kind enums.PartitionKind, key string, limit, offset int) (*LeaderboardPage, error)
	GetUserRanking(ctx context.Context, userID uuid.UUID) (*UserRanking, error)
	GetNearby(ctx context.Context, userID uuid.UUID, kind enums.PartitionKind, window int) ([]LeaderboardEntry, error)
	TriggerManualUpdate(ctx context.Context) (*models.RankingGeneration, bool, error)
	MarkCurrentGenerationStale(ctx context.Context) error
}

type service struct {
	repo  Repository
	cache Cache
	batch ranking.Service
	logg  *logger.Logger
}

// NewService wires the query service.
func NewService(repo Repository, cache Cache, batch ranking.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New(errors.CodeInternal, "query repository required")
	}
	if cache == nil {
		return nil, errors.New(errors.CodeInternal, "cache required")
	}
	if batch == nil {
		return nil, errors.New(errors.CodeInternal, "ranking service required")
	}
	return &service{repo: repo, cache: cache, batch: batch, logg: logg}, nil
}

func (s *service) GetLeaderboard(ctx context.Context, kind enums.PartitionKind, key string, limit, offset int) (*LeaderboardPage, error) {
	if !kind.IsValid() {
		return nil, errors.New(errors.CodeValidation, "unknown partition kind").
			WithDetails(map[string]any{"kind": string(kind)})
	}
	if kind.RequiresKey() && key == "" {
		return nil, errors.New(errors.CodeValidation, "partition key is required").
			WithDetails(map[string]any{"kind": string(kind)})
	}
	page := pagination.NormalizePage(limit, offset)

	gen, err := s.repo.CurrentGeneration(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading current generation")
	}
	if gen == nil {
		return &LeaderboardPage{
			Kind:    kind,
			Key:     key,
			Entries: []LeaderboardEntry{},
			Limit:   page.Limit,
			Offset:  page.Offset,
			Stale:   true,
		}, nil
	}

	stale := s.isStale(ctx, gen.ID)

	cacheKey := s.cache.LeaderboardPageKey(gen.ID.String(), kind.String(), key, page.Limit, page.Offset)
	if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
		var result LeaderboardPage
		if decodeErr := json.Unmarshal([]byte(cached), &result); decodeErr == nil {
			result.Stale = stale
			return &result, nil
		}
	} else if !redis.IsNil(err) && s.logg != nil {
		s.logg.Warn(ctx, "leaderboard cache read failed")
	}

	rows, err := s.repo.ListPartition(ctx, gen.ID, kind, key, page.Limit, page.Offset)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "reading leaderboard page")
	}
	total, err := s.repo.CountPartition(ctx, gen.ID, kind, key)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "counting partition")
	}

	result := &LeaderboardPage{
		Kind:         kind,
		Key:          key,
		GenerationID: gen.ID,
		Entries:      make([]LeaderboardEntry, 0, len(rows)),
		Total:        total,
		Limit:        page.Limit,
		Offset:       page.Offset,
		Stale:        stale,
	}
	for _, row := range rows {
		result.Entries = append(result.Entries, toEntry(kind, row))
	}

	if encoded, err := json.Marshal(result); err == nil {
		if cacheErr := s.cache.Set(ctx, cacheKey, string(encoded), pageCacheTTL); cacheErr != nil && s.logg != nil {
			s.logg.Warn(ctx, "leaderboard cache write failed")
		}
	}
	return result, nil
}

// GetUserRanking never errors for a user who simply has no ranked entry yet.
func (s *service) GetUserRanking(ctx context.Context, userID uuid.UUID) (*UserRanking, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	gen, err := s.repo.CurrentGeneration(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading current generation")
	}
	if gen == nil {
		return &UserRanking{Ranked: false}, nil
	}
	entry, err := s.repo.GetEntry(ctx, gen.ID, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading ranking entry")
	}
	if entry == nil {
		return &UserRanking{Ranked: false}, nil
	}

	result := &UserRanking{
		Ranked:         true,
		GenerationID:   gen.ID,
		GlobalRank:     entry.GlobalRank,
		WeeklyRank:     entry.WeeklyRank,
		MonthlyRank:    entry.MonthlyRank,
		RegionalRank:   entry.RegionalRank,
		RegionBucket:   entry.RegionBucket,
		LevelGroupRank: entry.LevelGroupRank,
		LevelGroup:     entry.LevelGroup,
		Percentile:     entry.GlobalPercentile,
		Score:          entry.CompositeScore,
	}
	if stats, err := s.repo.GetStats(ctx, userID); err == nil && stats != nil {
		result.Level = stats.CurrentLevel
		result.TotalPoints = stats.TotalPoints
	}
	return result, nil
}

// GetNearby returns at most 2*window+1 entries centered on the user's rank,
// truncated at the partition edges. An unranked user gets an empty slice.
func (s *service) GetNearby(ctx context.Context, userID uuid.UUID, kind enums.PartitionKind, window int) ([]LeaderboardEntry, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if !kind.IsValid() {
		return nil, errors.New(errors.CodeValidation, "unknown partition kind").
			WithDetails(map[string]any{"kind": string(kind)})
	}
	if window < 1 {
		window = 1
	}

	gen, err := s.repo.CurrentGeneration(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading current generation")
	}
	if gen == nil {
		return []LeaderboardEntry{}, nil
	}
	entry, err := s.repo.GetEntry(ctx, gen.ID, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading ranking entry")
	}
	if entry == nil {
		return []LeaderboardEntry{}, nil
	}

	rank := rankFor(kind, entry)
	key := keyFor(kind, entry)
	minRank := rank - int64(window)
	if minRank < 1 {
		minRank = 1
	}
	rows, err := s.repo.ListRankRange(ctx, gen.ID, kind, key, minRank, rank+int64(window))
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "reading nearby entries")
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(kind, row))
	}
	return entries, nil
}

// TriggerManualUpdate delegates to the batch processor; concurrent triggers
// coalesce onto one pass.
func (s *service) TriggerManualUpdate(ctx context.Context) (*models.RankingGeneration, bool, error) {
	return s.batch.RunBatch(ctx, "manual")
}

// MarkCurrentGenerationStale flags the published generation after new points
// land so reads can report staleness until the next batch pass.
func (s *service) MarkCurrentGenerationStale(ctx context.Context) error {
	gen, err := s.repo.CurrentGeneration(ctx)
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "loading current generation")
	}
	if gen == nil {
		return nil
	}
	return s.cache.Set(ctx, s.cache.RankingStaleKey(gen.ID.String()), "1", staleFlagTTL)
}

func (s *service) isStale(ctx context.Context, generationID uuid.UUID) bool {
	_, err := s.cache.Get(ctx, s.cache.RankingStaleKey(generationID.String()))
	return err == nil
}

func toEntry(kind enums.PartitionKind, row LeaderboardRow) LeaderboardEntry {
	return LeaderboardEntry{
		Rank:        row.Rank,
		UserID:      row.UserID,
		DisplayName: row.DisplayName,
		Points:      partitionPoints(kind, row),
		Level:       row.CurrentLevel,
		Score:       row.CompositeScore,
	}
}

func partitionPoints(kind enums.PartitionKind, row LeaderboardRow) int64 {
	switch kind {
	case enums.PartitionWeekly:
		return row.WeeklyPoints
	case enums.PartitionMonthly:
		return row.MonthlyPoints
	default:
		return row.TotalPoints
	}
}

func rankFor(kind enums.PartitionKind, entry *models.RankingCacheEntry) int64 {
	switch kind {
	case enums.PartitionWeekly:
		return entry.WeeklyRank
	case enums.PartitionMonthly:
		return entry.MonthlyRank
	case enums.PartitionRegional:
		return entry.RegionalRank
	case enums.PartitionLevelGroup:
		return entry.LevelGroupRank
	default:
		return entry.GlobalRank
	}
}

func keyFor(kind enums.PartitionKind, entry *models.RankingCacheEntry) string {
	switch kind {
	case enums.PartitionRegional:
		return entry.RegionBucket
	case enums.PartitionLevelGroup:
		return entry.LevelGroup
	default:
		return ""
	}
}
