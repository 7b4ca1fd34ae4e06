package ranking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/trailmarks/gamification-backend/internal/leveling"
	"github.com/trailmarks/gamification-backend/internal/scoring"
	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/metrics"
	"github.com/trailmarks/gamification-backend/pkg/outbox"
	"github.com/trailmarks/gamification-backend/pkg/outbox/payloads"
)

// TxRunner abstracts db.Client.WithTx.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Outbox is the slice of the outbox service the batch processor uses.
type Outbox interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service recomputes and publishes ranking generations.
type Service interface {
	RunBatch(ctx context.Context, trigger string) (*models.RankingGeneration, bool, error)
	CurrentGeneration(ctx context.Context) (*models.RankingGeneration, error)
	CleanupOldGenerations(ctx context.Context) (int64, error)
}

type service struct {
	runner  TxRunner
	repo    Repository
	events  Outbox
	logg    *logger.Logger
	metrics *metrics.RankingMetrics
	cfg     config.RankingConfig

	group singleflight.Group
	now   func() time.Time
}

// NewService wires the batch processor.
func NewService(runner TxRunner, repo Repository, events Outbox, logg *logger.Logger, m *metrics.RankingMetrics, cfg config.RankingConfig) (Service, error) {
	if runner == nil {
		return nil, errors.New(errors.CodeInternal, "tx runner required")
	}
	if repo == nil {
		return nil, errors.New(errors.CodeInternal, "ranking repository required")
	}
	if events == nil {
		return nil, errors.New(errors.CodeInternal, "outbox service required")
	}
	return &service{
		runner:  runner,
		repo:    repo,
		events:  events,
		logg:    logg,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// RunBatch executes one full recompute pass. Concurrent callers coalesce onto
// the in-flight pass and share its result; the returned flag reports whether
// this caller joined an existing pass. The pass stages a complete new
// generation before flipping the current pointer, so an interrupted run leaves
// the previous generation authoritative.
func (s *service) RunBatch(ctx context.Context, trigger string) (*models.RankingGeneration, bool, error) {
	v, err, shared := s.group.Do("batch", func() (interface{}, error) {
		// Detached from the trigger's deadline: a caller timing out must
		// not abort the shared pass mid-generation.
		return s.runOnce(context.WithoutCancel(ctx), trigger)
	})
	if shared {
		s.metrics.IncCoalesced()
	}
	if err != nil {
		return nil, shared, err
	}
	return v.(*models.RankingGeneration), shared, nil
}

func (s *service) runOnce(ctx context.Context, trigger string) (*models.RankingGeneration, error) {
	started := s.now()
	gen := &models.RankingGeneration{
		ID:        uuid.New(),
		StartedAt: started,
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"generation_id": gen.ID.String(),
			"trigger":       trigger,
		})
		s.logg.Info(ctx, "ranking batch started")
	}

	if err := s.repo.CreateGeneration(ctx, gen); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "creating generation")
	}

	regions, err := s.repo.ListRegions(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading regions")
	}
	index := NewRegionIndex(regions)

	drafts, err := s.stageDrafts(ctx, gen.ID, index)
	if err != nil {
		return nil, err
	}

	assignRanks(drafts)

	entries := make([]models.RankingCacheEntry, 0, len(drafts))
	for _, d := range drafts {
		entries = append(entries, d.entry)
	}
	if err := s.repo.InsertEntries(ctx, entries, s.cfg.StageChunkSize); err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "staging cache entries")
	}

	prevGen, err := s.repo.CurrentGeneration(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading current generation")
	}
	var prevLeader *uuid.UUID
	prevRanks := map[uuid.UUID]int64{}
	if prevGen != nil {
		prevLeader, err = s.repo.GlobalLeader(ctx, prevGen.ID)
		if err != nil {
			return nil, errors.Wrap(errors.CodeDependency, err, "loading previous leader")
		}
		prevRanks, err = s.repo.GlobalRanks(ctx, prevGen.ID)
		if err != nil {
			return nil, errors.Wrap(errors.CodeDependency, err, "loading previous ranks")
		}
	}
	var rankChanges []payloads.RankChange
	for _, d := range drafts {
		old := prevRanks[d.entry.UserID]
		if old != d.entry.GlobalRank {
			rankChanges = append(rankChanges, payloads.RankChange{
				UserID:  d.entry.UserID,
				OldRank: old,
				NewRank: d.entry.GlobalRank,
			})
		}
	}
	var newLeader *uuid.UUID
	for _, d := range drafts {
		if d.entry.GlobalRank == 1 {
			leader := d.entry.UserID
			newLeader = &leader
			break
		}
	}

	completed := s.now()
	userCount := int64(len(drafts))
	err = s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Publish(ctx, gen.ID, userCount, completed); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "publishing generation")
		}
		var prevGenID *uuid.UUID
		if prevGen != nil {
			prevGenID = &prevGen.ID
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventRankingUpdated,
			AggregateType: enums.AggregateRankingGeneration,
			AggregateID:   gen.ID,
			Actor:         &outbox.ActorRef{Source: trigger},
			Version:       1,
			OccurredAt:    completed,
			Data: payloads.RankingUpdatedEvent{
				GenerationID:         gen.ID,
				PreviousGenerationID: prevGenID,
				UserCount:            userCount,
				GlobalLeaderID:       newLeader,
				PreviousLeaderID:     prevLeader,
				RankChanges:          rankChanges,
				StartedAt:            started,
				CompletedAt:          completed,
			},
		}
		if err := s.events.Emit(ctx, tx, event); err != nil {
			return errors.Wrap(errors.CodeDependency, err, "queueing ranking event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	gen.Current = true
	gen.CompletedAt = &completed
	gen.UserCount = userCount

	s.metrics.ObserveBatchDuration(completed.Sub(started))
	s.metrics.SetRankedUsers(userCount)
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "user_count", userCount), "ranking batch published")
	}
	return gen, nil
}

// stageDrafts walks the stats table in keyset chunks and scores each user
// from the single row read, tolerating concurrent mutations elsewhere.
func (s *service) stageDrafts(ctx context.Context, generationID uuid.UUID, index *RegionIndex) ([]*draft, error) {
	chunkSize := s.cfg.StageChunkSize
	if chunkSize <= 0 {
		chunkSize = 500
	}

	var drafts []*draft
	var after *uuid.UUID
	now := s.now()
	for {
		rows, err := s.repo.ListStatsChunk(ctx, after, chunkSize)
		if err != nil {
			return nil, errors.Wrap(errors.CodeDependency, err, "reading stats chunk")
		}
		if len(rows) == 0 {
			break
		}
		for i := range rows {
			stats := rows[i]
			score := scoring.Score(scoring.SnapshotFromStats(&stats), now)
			drafts = append(drafts, &draft{
				entry: models.RankingCacheEntry{
					GenerationID:   generationID,
					UserID:         stats.UserID,
					CompositeScore: score,
					RegionBucket:   index.Lookup(stats.LastGeoLat, stats.LastGeoLng),
					LevelGroup:     leveling.LevelGroup(stats.CurrentLevel),
					Valid:          true,
					ComputedAt:     now,
				},
				totalPoints:   stats.TotalPoints,
				weeklyPoints:  stats.WeeklyPoints,
				monthlyPoints: stats.MonthlyPoints,
			})
		}
		last := rows[len(rows)-1].UserID
		after = &last
		if len(rows) < chunkSize {
			break
		}
	}
	return drafts, nil
}

func (s *service) CurrentGeneration(ctx context.Context) (*models.RankingGeneration, error) {
	gen, err := s.repo.CurrentGeneration(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "loading current generation")
	}
	return gen, nil
}

func (s *service) CleanupOldGenerations(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteGenerationsKeeping(ctx, s.cfg.GenerationKeepage)
	if err != nil {
		return 0, errors.Wrap(errors.CodeDependency, err, "pruning generations")
	}
	return removed, nil
}
