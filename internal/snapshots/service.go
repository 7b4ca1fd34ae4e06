package snapshots

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/outbox"
	"github.com/trailmarks/gamification-backend/pkg/outbox/payloads"
)

// Entry is one embedded leaderboard row inside a snapshot.
type Entry struct {
	Rank        int64     `json:"rank"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Points      int64     `json:"points"`
	Level       int       `json:"level"`
}

// TxRunner abstracts db.Client.WithTx.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Outbox is the slice of the outbox service the snapshot service uses.
type Outbox interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// GenerationSource resolves the currently published ranking generation.
type GenerationSource interface {
	CurrentGeneration(ctx context.Context) (*models.RankingGeneration, error)
}

// Service creates and retrieves immutable leaderboard snapshots.
type Service interface {
	Create(ctx context.Context, period enums.PeriodType, start, end time.Time) (*models.LeaderboardSnapshot, error)
	Get(ctx context.Context, period enums.PeriodType, from, to time.Time) (*models.LeaderboardSnapshot, error)
}

type service struct {
	runner      TxRunner
	repo        Repository
	generations GenerationSource
	events      Outbox
	logg        *logger.Logger
	cfg         config.SnapshotConfig
	now         func() time.Time
}

// NewService wires the snapshot service.
func NewService(runner TxRunner, repo Repository, generations GenerationSource, events Outbox, logg *logger.Logger, cfg config.SnapshotConfig) (Service, error) {
	if runner == nil {
		return nil, errors.New(errors.CodeInternal, "tx runner required")
	}
	if repo == nil {
		return nil, errors.New(errors.CodeInternal, "snapshot repository required")
	}
	if generations == nil {
		return nil, errors.New(errors.CodeInternal, "generation source required")
	}
	if events == nil {
		return nil, errors.New(errors.CodeInternal, "outbox service required")
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 100
	}
	return &service{
		runner:      runner,
		repo:        repo,
		generations: generations,
		events:      events,
		logg:        logg,
		cfg:         cfg,
		now:         time.Now,
	}, nil
}

// Create captures the top of the period's partition at call time. The
// participant count covers the whole valid partition, not just the embedded
// rows. A missing generation yields an empty snapshot rather than an error.
func (s *service) Create(ctx context.Context, period enums.PeriodType, start, end time.Time) (*models.LeaderboardSnapshot, error) {
	if !period.IsValid() {
		return nil, errors.New(errors.CodeValidation, "unknown period type").
			WithDetails(map[string]any{"period": string(period)})
	}
	if !end.After(start) {
		return nil, errors.New(errors.CodeValidation, "period end must follow period start")
	}

	gen, err := s.generations.CurrentGeneration(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading current generation")
	}

	var entries []Entry
	var participants int64
	if gen != nil {
		rows, err := s.repo.ListTopRows(ctx, gen.ID, period.Partition(), s.cfg.TopN)
		if err != nil {
			return nil, errors.Wrap(errors.CodeDependency, err, "reading ranked rows")
		}
		participants, err = s.repo.CountValidEntries(ctx, gen.ID)
		if err != nil {
			return nil, errors.Wrap(errors.CodeDependency, err, "counting partition")
		}
		entries = make([]Entry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, Entry{
				Rank:        row.Rank,
				UserID:      row.UserID,
				DisplayName: row.DisplayName,
				Points:      periodPoints(period, row),
				Level:       row.CurrentLevel,
			})
		}
	}
	if entries == nil {
		entries = []Entry{}
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "encoding snapshot entries")
	}

	snapshot := &models.LeaderboardSnapshot{
		ID:               uuid.New(),
		PeriodType:       period,
		PeriodStart:      start,
		PeriodEnd:        end,
		Entries:          raw,
		ParticipantCount: participants,
		CreatedAt:        s.now(),
	}

	err = s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Insert(ctx, snapshot); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "writing snapshot")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventSnapshotCreated,
			AggregateType: enums.AggregateSnapshot,
			AggregateID:   snapshot.ID,
			Version:       1,
			OccurredAt:    snapshot.CreatedAt,
			Data: payloads.SnapshotCreatedEvent{
				SnapshotID:       snapshot.ID,
				PeriodType:       period,
				PeriodStart:      start,
				PeriodEnd:        end,
				ParticipantCount: participants,
				EntryCount:       len(entries),
			},
		}
		if err := s.events.Emit(ctx, tx, event); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "queueing snapshot event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"snapshot_id": snapshot.ID.String(),
			"period_type": period.String(),
			"entry_count": len(entries),
		}), "leaderboard snapshot created")
	}
	return snapshot, nil
}

// Get returns the most recent snapshot of the period overlapping [from, to],
// or nil when none exists.
func (s *service) Get(ctx context.Context, period enums.PeriodType, from, to time.Time) (*models.LeaderboardSnapshot, error) {
	if !period.IsValid() {
		return nil, errors.New(errors.CodeValidation, "unknown period type").
			WithDetails(map[string]any{"period": string(period)})
	}
	if to.Before(from) {
		return nil, errors.New(errors.CodeValidation, "range end precedes range start")
	}
	snapshot, err := s.repo.FindOverlapping(ctx, period, from, to)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "looking up snapshot")
	}
	return snapshot, nil
}

func periodPoints(period enums.PeriodType, row RankedRow) int64 {
	switch period {
	case enums.PeriodWeekly:
		return row.WeeklyPoints
	case enums.PeriodMonthly:
		return row.MonthlyPoints
	default:
		return row.TotalPoints
	}
}
