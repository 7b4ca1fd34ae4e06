package snapshots

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
)

// RankedRow is one leaderboard row read from the current generation, joined
// to the stats aggregate for display data.
type RankedRow struct {
	UserID        uuid.UUID
	DisplayName   string
	CurrentLevel  int
	TotalPoints   int64
	WeeklyPoints  int64
	MonthlyPoints int64
	Rank          int64
}

// Repository persists snapshots and reads ranked rows out of a generation.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListTopRows(ctx context.Context, generationID uuid.UUID, partition enums.PartitionKind, limit int) ([]RankedRow, error)
	CountValidEntries(ctx context.Context, generationID uuid.UUID) (int64, error)
	Insert(ctx context.Context, snapshot *models.LeaderboardSnapshot) error
	FindOverlapping(ctx context.Context, period enums.PeriodType, from, to time.Time) (*models.LeaderboardSnapshot, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a snapshot repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func rankColumn(partition enums.PartitionKind) string {
	switch partition {
	case enums.PartitionWeekly:
		return "weekly_rank"
	case enums.PartitionMonthly:
		return "monthly_rank"
	default:
		return "global_rank"
	}
}

func (r *repository) ListTopRows(ctx context.Context, generationID uuid.UUID, partition enums.PartitionKind, limit int) ([]RankedRow, error) {
	col := rankColumn(partition)
	var rows []RankedRow
	err := r.db.WithContext(ctx).
		Table("ranking_cache_entries AS e").
		Select(`e.user_id, s.display_name, s.current_level,
			s.total_points, s.weekly_points, s.monthly_points,
			e.`+col+` AS rank`).
		Joins("JOIN user_activity_stats s ON s.user_id = e.user_id").
		Where("e.generation_id = ? AND e.valid", generationID).
		Order("e." + col + " ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) CountValidEntries(ctx context.Context, generationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RankingCacheEntry{}).
		Where("generation_id = ? AND valid", generationID).
		Count(&count).Error
	return count, err
}

func (r *repository) Insert(ctx context.Context, snapshot *models.LeaderboardSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

// FindOverlapping returns the most recent snapshot of the period whose range
// intersects [from, to], or nil when none exists.
func (r *repository) FindOverlapping(ctx context.Context, period enums.PeriodType, from, to time.Time) (*models.LeaderboardSnapshot, error) {
	var snapshot models.LeaderboardSnapshot
	err := r.db.WithContext(ctx).
		Where("period_type = ? AND period_start <= ? AND period_end >= ?", period, to, from).
		Order("created_at DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}
