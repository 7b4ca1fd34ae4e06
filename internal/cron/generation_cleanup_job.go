package cron

import (
	"context"
	"fmt"

	"github.com/trailmarks/gamification-backend/pkg/logger"
)

type GenerationCleanupJobParams struct {
	Logger  *logger.Logger
	Ranking RankingBatcher
}

// NewGenerationCleanupJob prunes superseded ranking generations and their
// staged cache entries.
func NewGenerationCleanupJob(params GenerationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ranking == nil {
		return nil, fmt.Errorf("ranking service required")
	}
	return &generationCleanupJob{logg: params.Logger, ranking: params.Ranking}, nil
}

type generationCleanupJob struct {
	logg    *logger.Logger
	ranking RankingBatcher
}

func (j *generationCleanupJob) Name() string { return "generation-cleanup" }

func (j *generationCleanupJob) Run(ctx context.Context) error {
	removed, err := j.ranking.CleanupOldGenerations(ctx)
	if err != nil {
		return fmt.Errorf("generation cleanup: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_deleted", removed), "stale generations pruned")
	return nil
}
