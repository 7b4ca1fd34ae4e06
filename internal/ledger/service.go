package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/trailmarks/gamification-backend/internal/leveling"
	dbpkg "github.com/trailmarks/gamification-backend/pkg/db"
	"github.com/trailmarks/gamification-backend/pkg/db/models"
	dbtypes "github.com/trailmarks/gamification-backend/pkg/db/types"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/outbox"
	"github.com/trailmarks/gamification-backend/pkg/outbox/payloads"
	"github.com/trailmarks/gamification-backend/pkg/pagination"
)

// Difficulty multipliers applied when points are awarded. The scoring formula
// never consumes these; they only size final_points.
var defaultMultipliers = map[enums.PointCategory]decimal.Decimal{
	enums.CategoryContentCreated:     decimal.RequireFromString("1.5"),
	enums.CategoryMediaUploaded:      decimal.RequireFromString("1.2"),
	enums.CategoryChallengeCompleted: decimal.RequireFromString("2.0"),
	enums.CategoryBadgeAwarded:       decimal.RequireFromString("1.0"),
	enums.CategoryLocationDiscovered: decimal.RequireFromString("1.8"),
	enums.CategoryContentShared:      decimal.RequireFromString("1.1"),
	enums.CategoryLikeReceived:       decimal.RequireFromString("1.0"),
	enums.CategoryCommentReceived:    decimal.RequireFromString("1.0"),
}

// TxRunner abstracts db.Client.WithTx so tests can supply an sqlite-backed
// transaction runner.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Outbox is the slice of the outbox service the ledger uses.
type Outbox interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StaleMarker flags cached leaderboard state after a committed append. Failures
// are non-fatal; the batch run repairs staleness regardless.
type StaleMarker interface {
	MarkCurrentGenerationStale(ctx context.Context) error
}

// AppendInput carries one point award request.
type AppendInput struct {
	UserID         uuid.UUID
	DisplayName    *string
	Category       enums.PointCategory
	RawPoints      int64
	Multiplier     *decimal.Decimal
	Description    *string
	RelatedIDs     []uuid.UUID
	Metadata       json.RawMessage
	QualityRating  *float64
	GeoLat         *float64
	GeoLng         *float64
	IdempotencyKey string
}

// AppendResult reports the committed transaction and updated aggregate state.
type AppendResult struct {
	TransactionID uuid.UUID
	FinalPoints   int64
	TotalPoints   int64
	Experience    int64
	PreviousLevel int
	CurrentLevel  int
	Tier          enums.Tier
	StreakDays    int
	Replayed      bool
}

// Service defines ledger operations.
type Service interface {
	Append(ctx context.Context, input AppendInput) (*AppendResult, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*models.UserActivityStats, error)
	ListHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.PointTransaction, string, error)
	ResetWeekly(ctx context.Context) (int64, error)
	ResetMonthly(ctx context.Context) (int64, error)
}

type service struct {
	runner TxRunner
	repo   Repository
	events Outbox
	stale  StaleMarker
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the ledger service.
func NewService(runner TxRunner, repo Repository, events Outbox, stale StaleMarker, logg *logger.Logger) (Service, error) {
	if runner == nil {
		return nil, errors.New(errors.CodeInternal, "tx runner required")
	}
	if repo == nil {
		return nil, errors.New(errors.CodeInternal, "ledger repository required")
	}
	if events == nil {
		return nil, errors.New(errors.CodeInternal, "outbox service required")
	}
	return &service{
		runner: runner,
		repo:   repo,
		events: events,
		stale:  stale,
		logg:   logg,
		now:    time.Now,
	}, nil
}

func (s *service) Append(ctx context.Context, input AppendInput) (*AppendResult, error) {
	multiplier, finalPoints, err := resolvePoints(input)
	if err != nil {
		return nil, err
	}

	key := input.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	// A replayed key returns the original outcome without touching counters.
	if existing, err := s.repo.FindTransactionByIdempotencyKey(ctx, key); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "looking up idempotency key")
	} else if existing != nil {
		return s.replayResult(ctx, existing)
	}

	var result *AppendResult
	err = s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()

		stats, err := repo.GetStatsForUpdate(ctx, input.UserID)
		if err != nil {
			return errors.Wrap(errors.CodeDependency, err, "locking stats row")
		}
		if stats == nil {
			stats = &models.UserActivityStats{
				UserID:         input.UserID,
				CurrentLevel:   1,
				TierName:       enums.TierBeginner,
				CategoryCounts: dbtypes.CategoryCounts{},
			}
		}
		if stats.CategoryCounts == nil {
			stats.CategoryCounts = dbtypes.CategoryCounts{}
		}

		txn := &models.PointTransaction{
			ID:             uuid.New(),
			UserID:         input.UserID,
			Category:       input.Category,
			RawPoints:      input.RawPoints,
			Multiplier:     multiplier,
			FinalPoints:    finalPoints,
			Description:    input.Description,
			RelatedIDs:     dbtypes.UUIDArray(input.RelatedIDs),
			Metadata:       input.Metadata,
			QualityRating:  input.QualityRating,
			GeoLat:         input.GeoLat,
			GeoLng:         input.GeoLng,
			IdempotencyKey: key,
			CreatedAt:      now,
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_point_transactions_idempotency_key") {
				return errors.New(errors.CodeIdempotency, "idempotency key already used")
			}
			return errors.Wrap(errors.CodeDependency, err, "writing transaction")
		}

		prevLevel := stats.CurrentLevel
		applyAppend(stats, input, finalPoints, now)

		if err := repo.SaveStats(ctx, stats); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "updating stats")
		}
		if err := repo.InvalidateCurrentEntry(ctx, input.UserID); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "invalidating ranking entry")
		}

		description := ""
		if input.Description != nil {
			description = *input.Description
		}
		userID := input.UserID
		event := outbox.DomainEvent{
			EventType:     enums.EventPointsAppended,
			AggregateType: enums.AggregateUserStats,
			AggregateID:   input.UserID,
			Actor:         &outbox.ActorRef{UserID: &userID},
			Version:       1,
			OccurredAt:    now,
			Data: payloads.PointsAppendedEvent{
				TransactionID:  txn.ID,
				UserID:         input.UserID,
				Category:       input.Category,
				RawPoints:      input.RawPoints,
				FinalPoints:    finalPoints,
				TotalPoints:    stats.TotalPoints,
				PreviousLevel:  prevLevel,
				CurrentLevel:   stats.CurrentLevel,
				TierName:       stats.TierName,
				StreakDays:     stats.CurrentStreak,
				Description:    description,
				IdempotencyKey: key,
			},
		}
		if err := s.events.Emit(ctx, tx, event); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "queueing points event")
		}

		result = &AppendResult{
			TransactionID: txn.ID,
			FinalPoints:   finalPoints,
			TotalPoints:   stats.TotalPoints,
			Experience:    stats.ExperiencePoints,
			PreviousLevel: prevLevel,
			CurrentLevel:  stats.CurrentLevel,
			Tier:          stats.TierName,
			StreakDays:    stats.CurrentStreak,
		}
		return nil
	})
	if err != nil {
		if appErr := errors.As(err); appErr != nil && appErr.Code() == errors.CodeIdempotency {
			// Lost a concurrent race on the same key; serve the winner's row.
			if existing, findErr := s.repo.FindTransactionByIdempotencyKey(ctx, key); findErr == nil && existing != nil {
				return s.replayResult(ctx, existing)
			}
		}
		return nil, err
	}

	if s.stale != nil {
		if staleErr := s.stale.MarkCurrentGenerationStale(ctx); staleErr != nil && s.logg != nil {
			s.logg.Warn(ctx, "marking leaderboard cache stale failed")
		}
	}
	return result, nil
}

func (s *service) replayResult(ctx context.Context, txn *models.PointTransaction) (*AppendResult, error) {
	stats, err := s.repo.GetStats(ctx, txn.UserID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading stats for replay")
	}
	result := &AppendResult{
		TransactionID: txn.ID,
		FinalPoints:   txn.FinalPoints,
		Replayed:      true,
	}
	if stats != nil {
		result.TotalPoints = stats.TotalPoints
		result.Experience = stats.ExperiencePoints
		result.PreviousLevel = stats.CurrentLevel
		result.CurrentLevel = stats.CurrentLevel
		result.Tier = stats.TierName
		result.StreakDays = stats.CurrentStreak
	}
	return result, nil
}

func (s *service) GetStats(ctx context.Context, userID uuid.UUID) (*models.UserActivityStats, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	stats, err := s.repo.GetStats(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading stats")
	}
	return stats, nil
}

func (s *service) ListHistory(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.PointTransaction, string, error) {
	if userID == uuid.Nil {
		return nil, "", errors.New(errors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", errors.Wrap(errors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var before *time.Time
	var beforeID *uuid.UUID
	if cursor != nil {
		before = &cursor.CreatedAt
		beforeID = &cursor.ID
	}

	rows, err := s.repo.ListTransactions(ctx, userID, before, beforeID, limit+1)
	if err != nil {
		return nil, "", errors.Wrap(errors.CodeDependency, err, "listing transactions")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) ResetWeekly(ctx context.Context) (int64, error) {
	count, err := s.repo.ResetWeeklyCounters(ctx)
	if err != nil {
		return 0, errors.Wrap(errors.CodeDependency, err, "resetting weekly counters")
	}
	return count, nil
}

func (s *service) ResetMonthly(ctx context.Context) (int64, error) {
	count, err := s.repo.ResetMonthlyCounters(ctx)
	if err != nil {
		return 0, errors.Wrap(errors.CodeDependency, err, "resetting monthly counters")
	}
	return count, nil
}

func resolvePoints(input AppendInput) (decimal.Decimal, int64, error) {
	if input.UserID == uuid.Nil {
		return decimal.Zero, 0, errors.New(errors.CodeValidation, "user id is required")
	}
	if !input.Category.IsValid() {
		return decimal.Zero, 0, errors.New(errors.CodeValidation, "unknown point category").
			WithDetails(map[string]any{"category": string(input.Category)})
	}
	if input.RawPoints <= 0 {
		return decimal.Zero, 0, errors.New(errors.CodeValidation, "raw points must be positive")
	}

	multiplier := defaultMultipliers[input.Category]
	if input.Multiplier != nil {
		multiplier = *input.Multiplier
	}
	if multiplier.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, 0, errors.New(errors.CodeValidation, "multiplier must be positive")
	}

	finalPoints := decimal.NewFromInt(input.RawPoints).Mul(multiplier).Floor().IntPart()
	if finalPoints <= 0 {
		return decimal.Zero, 0, errors.New(errors.CodeValidation, "final points floor to zero")
	}
	return multiplier, finalPoints, nil
}

func applyAppend(stats *models.UserActivityStats, input AppendInput, finalPoints int64, now time.Time) {
	stats.TotalPoints += finalPoints
	stats.WeeklyPoints += finalPoints
	stats.MonthlyPoints += finalPoints
	stats.LifetimePoints += finalPoints
	stats.ExperiencePoints += finalPoints
	stats.CategoryCounts[input.Category]++

	stats.CurrentStreak = nextStreak(stats.LastActivityAt, stats.CurrentStreak, now)
	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}
	activityAt := now
	stats.LastActivityAt = &activityAt

	if input.QualityRating != nil {
		total := 0.0
		if stats.AvgQualityRating != nil {
			total = *stats.AvgQualityRating * float64(stats.RatingCount)
		}
		stats.RatingCount++
		avg := (total + *input.QualityRating) / float64(stats.RatingCount)
		stats.AvgQualityRating = &avg
	}

	if input.GeoLat != nil && input.GeoLng != nil {
		stats.LastGeoLat = input.GeoLat
		stats.LastGeoLng = input.GeoLng
	}
	if input.DisplayName != nil && *input.DisplayName != "" {
		stats.DisplayName = *input.DisplayName
	}

	stats.CurrentLevel = leveling.Level(stats.ExperiencePoints)
	stats.TierName = leveling.Tier(stats.CurrentLevel)
	stats.UpdatedAt = now
}

// nextStreak extends the streak when the previous activity was yesterday,
// keeps it on a same-day append, and restarts it otherwise.
func nextStreak(lastActivity *time.Time, current int, now time.Time) int {
	if lastActivity == nil {
		return 1
	}
	lastDay := lastActivity.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	switch today.Sub(lastDay) {
	case 0:
		if current < 1 {
			return 1
		}
		return current
	case 24 * time.Hour:
		return current + 1
	default:
		return 1
	}
}
