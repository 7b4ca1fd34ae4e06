package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// LeaderboardRow is one joined leaderboard read: the ranking entry plus the
// stats columns the response embeds.
type LeaderboardRow struct {
	UserID         uuid.UUID
	DisplayName    string
	CurrentLevel   int
	TotalPoints    int64
	WeeklyPoints   int64
	MonthlyPoints  int64
	CompositeScore float64
	Rank           int64
}

// Repository reads leaderboard state through the current generation pointer.
type Repository interface {
	CurrentGeneration(ctx context.Context) (*models.RankingGeneration, error)
	ListPartition(ctx context.Context, generationID uuid.UUID, kind enums.PartitionKind, key string, limit, offset int) ([]LeaderboardRow, error)
	ListRankRange(ctx context.Context, generationID uuid.UUID, kind enums.PartitionKind, key string, minRank, maxRank int64) ([]LeaderboardRow, error)
	CountPartition(ctx context.Context, generationID uuid.UUID, kind enums.PartitionKind, key string) (int64, error)
	GetEntry(ctx context.Context, generationID, userID uuid.UUID) (*models.RankingCacheEntry, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*models.UserActivityStats, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a query repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CurrentGeneration(ctx context.Context) (*models.RankingGeneration, error) {
	var gen models.RankingGeneration
	err := r.db.WithContext(ctx).Where("current").First(&gen).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &gen, nil
}

func partitionRankColumn(kind enums.PartitionKind) string {
	switch kind {
	case enums.PartitionWeekly:
		return "weekly_rank"
	case enums.PartitionMonthly:
		return "monthly_rank"
	case enums.PartitionRegional:
		return "regional_rank"
	case enums.PartitionLevelGroup:
		return "level_group_rank"
	default:
		return "global_rank"
	}
}

func (r *repository) partitionQuery(ctx context.Context, generationID uuid.UUID, kind enums.PartitionKind, key string) *gorm.DB {
	q := r.db.WithContext(ctx).
		Table("ranking_cache_entries AS e").
		Where("e.generation_id = ?", generationID)
	switch kind {
	case enums.PartitionRegional:
		q = q.Where("e.region_bucket = ?", key)
	case enums.PartitionLevelGroup:
		q = q.Where("e.level_group = ?", key)
	}
	return q
}

func (r *repository) selectRows(q *gorm.DB, kind enums.PartitionKind) *gorm.DB {
	col := partitionRankColumn(kind)
	return q.Select(fmt.Sprintf(`e.user_id, s.display_name, s.current_level,
		s.total_points, s.weekly_points, s.monthly_points,
		e.composite_score, e.%s AS rank`, col)).
		Joins("JOIN user_activity_stats s ON s.user_id = e.user_id").
		Order("e." + col + " ASC")
}

func (r *repository) ListPartition(ctx context.Context, generationID uuid.UUID, kind enums.PartitionKind, key string, limit, offset int) ([]LeaderboardRow, error) {
	var rows []LeaderboardRow
	err := r.selectRows(r.partitionQuery(ctx, generationID, kind, key), kind).
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) ListRankRange(ctx context.Context, generationID uuid.UUID, kind enums.PartitionKind, key string, minRank, maxRank int64) ([]LeaderboardRow, error) {
	col := partitionRankColumn(kind)
	var rows []LeaderboardRow
	err := r.selectRows(
		r.partitionQuery(ctx, generationID, kind, key).
			Where(fmt.Sprintf("e.%s BETWEEN ? AND ?", col), minRank, maxRank),
		kind,
	).Scan(&rows).Error
	return rows, err
}

func (r *repository) CountPartition(ctx context.Context, generationID uuid.UUID, kind enums.PartitionKind, key string) (int64, error) {
	var count int64
	err := r.partitionQuery(ctx, generationID, kind, key).Count(&count).Error
	return count, err
}

func (r *repository) GetEntry(ctx context.Context, generationID, userID uuid.UUID) (*models.RankingCacheEntry, error) {
	var entry models.RankingCacheEntry
	err := r.db.WithContext(ctx).
		Where("generation_id = ? AND user_id = ?", generationID, userID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) GetStats(ctx context.Context, userID uuid.UUID) (*models.UserActivityStats, error) {
	var stats models.UserActivityStats
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stats, nil
}
