package cron

import (
	"context"
	"fmt"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/logger"
)

// RankingBatcher is the slice of the batch processor the cron jobs use.
type RankingBatcher interface {
	RunBatch(ctx context.Context, trigger string) (*models.RankingGeneration, bool, error)
	CleanupOldGenerations(ctx context.Context) (int64, error)
}

type RankingUpdateJobParams struct {
	Logger  *logger.Logger
	Ranking RankingBatcher
}

func NewRankingUpdateJob(params RankingUpdateJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ranking == nil {
		return nil, fmt.Errorf("ranking service required")
	}
	return &rankingUpdateJob{logg: params.Logger, ranking: params.Ranking}, nil
}

type rankingUpdateJob struct {
	logg    *logger.Logger
	ranking RankingBatcher
}

func (j *rankingUpdateJob) Name() string { return "ranking-update" }

func (j *rankingUpdateJob) Run(ctx context.Context) error {
	gen, coalesced, err := j.ranking.RunBatch(ctx, "cron")
	if err != nil {
		return fmt.Errorf("ranking update: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"generation_id": gen.ID.String(),
		"user_count":    gen.UserCount,
		"coalesced":     coalesced,
	})
	j.logg.Info(logCtx, "ranking batch run complete")
	return nil
}
