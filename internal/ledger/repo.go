package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
)

// Repository manages persistence for point transactions and aggregate stats.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTransaction(ctx context.Context, txn *models.PointTransaction) error
	FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.PointTransaction, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*models.UserActivityStats, error)
	GetStatsForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserActivityStats, error)
	SaveStats(ctx context.Context, stats *models.UserActivityStats) error
	ListTransactions(ctx context.Context, userID uuid.UUID, before *time.Time, beforeID *uuid.UUID, limit int) ([]models.PointTransaction, error)
	InvalidateCurrentEntry(ctx context.Context, userID uuid.UUID) error
	ResetWeeklyCounters(ctx context.Context) (int64, error)
	ResetMonthlyCounters(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.PointTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.PointTransaction, error) {
	var txn models.PointTransaction
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
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

// GetStatsForUpdate locks the user's stats row so concurrent appends for the
// same user serialize their counter increments.
func (r *repository) GetStatsForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserActivityStats, error) {
	var stats models.UserActivityStats
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stats, nil
}

func (r *repository) SaveStats(ctx context.Context, stats *models.UserActivityStats) error {
	return r.db.WithContext(ctx).Save(stats).Error
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, before *time.Time, beforeID *uuid.UUID, limit int) ([]models.PointTransaction, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if before != nil && beforeID != nil {
		q = q.Where("(created_at, id) < (?, ?)", *before, *beforeID)
	}
	var rows []models.PointTransaction
	err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// InvalidateCurrentEntry flips the validity flag on the user's row in the
// current ranking generation. A user without a row yet is a no-op.
func (r *repository) InvalidateCurrentEntry(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.RankingCacheEntry{}).
		Where("user_id = ? AND generation_id = (SELECT id FROM ranking_generations WHERE current)", userID).
		Update("valid", false).Error
}

func (r *repository) ResetWeeklyCounters(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.UserActivityStats{}).
		Where("weekly_points <> 0").
		Update("weekly_points", 0)
	return res.RowsAffected, res.Error
}

func (r *repository) ResetMonthlyCounters(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.UserActivityStats{}).
		Where("monthly_points <> 0").
		Update("monthly_points", 0)
	return res.RowsAffected, res.Error
}
