package ranking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
)

// Repository manages ranking generations and their cache entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListStatsChunk(ctx context.Context, afterUserID *uuid.UUID, limit int) ([]models.UserActivityStats, error)
	ListRegions(ctx context.Context) ([]models.Region, error)
	CreateGeneration(ctx context.Context, gen *models.RankingGeneration) error
	InsertEntries(ctx context.Context, entries []models.RankingCacheEntry, chunkSize int) error
	Publish(ctx context.Context, generationID uuid.UUID, userCount int64, completedAt time.Time) error
	CurrentGeneration(ctx context.Context) (*models.RankingGeneration, error)
	GlobalLeader(ctx context.Context, generationID uuid.UUID) (*uuid.UUID, error)
	GlobalRanks(ctx context.Context, generationID uuid.UUID) (map[uuid.UUID]int64, error)
	DeleteGenerationsKeeping(ctx context.Context, keep int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ranking repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListStatsChunk pages through stats rows in user-id order so the batch pass
// reads each row exactly once without holding a table-wide lock.
func (r *repository) ListStatsChunk(ctx context.Context, afterUserID *uuid.UUID, limit int) ([]models.UserActivityStats, error) {
	q := r.db.WithContext(ctx).Order("user_id ASC").Limit(limit)
	if afterUserID != nil {
		q = q.Where("user_id > ?", *afterUserID)
	}
	var rows []models.UserActivityStats
	err := q.Find(&rows).Error
	return rows, err
}

func (r *repository) ListRegions(ctx context.Context) ([]models.Region, error) {
	var rows []models.Region
	err := r.db.WithContext(ctx).Order("code ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) CreateGeneration(ctx context.Context, gen *models.RankingGeneration) error {
	return r.db.WithContext(ctx).Create(gen).Error
}

func (r *repository) InsertEntries(ctx context.Context, entries []models.RankingCacheEntry, chunkSize int) error {
	if len(entries) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return r.db.WithContext(ctx).CreateInBatches(entries, chunkSize).Error
}

// Publish flips the current pointer to the completed generation in one
// transaction, so readers move between generations atomically.
func (r *repository) Publish(ctx context.Context, generationID uuid.UUID, userCount int64, completedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RankingGeneration{}).
			Where("current").
			Update("current", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.RankingGeneration{}).
			Where("id = ?", generationID).
			Updates(map[string]any{
				"current":      true,
				"completed_at": completedAt,
				"user_count":   userCount,
			}).Error
	})
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

func (r *repository) GlobalLeader(ctx context.Context, generationID uuid.UUID) (*uuid.UUID, error) {
	var entry models.RankingCacheEntry
	err := r.db.WithContext(ctx).
		Where("generation_id = ? AND global_rank = 1", generationID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	leader := entry.UserID
	return &leader, nil
}

// GlobalRanks returns the global rank of every user in a generation.
func (r *repository) GlobalRanks(ctx context.Context, generationID uuid.UUID) (map[uuid.UUID]int64, error) {
	type row struct {
		UserID     uuid.UUID
		GlobalRank int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.RankingCacheEntry{}).
		Select("user_id, global_rank").
		Where("generation_id = ?", generationID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	ranks := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		ranks[r.UserID] = r.GlobalRank
	}
	return ranks, nil
}

// DeleteGenerationsKeeping prunes all but the newest keep generations; cache
// entries go with them via the FK cascade. The current generation is always
// retained.
func (r *repository) DeleteGenerationsKeeping(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM ranking_generations
		WHERE NOT current
		  AND id NOT IN (
			SELECT id FROM ranking_generations
			ORDER BY started_at DESC
			LIMIT ?
		  )`, keep)
	return res.RowsAffected, res.Error
}
