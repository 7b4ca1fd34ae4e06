package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/logger"
)

// SnapshotCreator is the slice of the snapshot service the job uses.
type SnapshotCreator interface {
	Create(ctx context.Context, period enums.PeriodType, start, end time.Time) (*models.LeaderboardSnapshot, error)
}

type SnapshotJobParams struct {
	Logger    *logger.Logger
	Snapshots SnapshotCreator
	Marker    onceMarker
	Period    enums.PeriodType
}

// NewSnapshotJob builds a job that captures one snapshot per period instance.
// A Redis marker keeps hourly cron cycles from duplicating work.
func NewSnapshotJob(params SnapshotJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot service required")
	}
	if params.Marker == nil {
		return nil, fmt.Errorf("run marker required")
	}
	if !params.Period.IsValid() {
		return nil, fmt.Errorf("invalid snapshot period %q", params.Period)
	}
	return &snapshotJob{
		logg:      params.Logger,
		snapshots: params.Snapshots,
		marker:    params.Marker,
		period:    params.Period,
		now:       time.Now,
	}, nil
}

type snapshotJob struct {
	logg      *logger.Logger
	snapshots SnapshotCreator
	marker    onceMarker
	period    enums.PeriodType
	now       func() time.Time
}

func (j *snapshotJob) Name() string { return fmt.Sprintf("snapshot-%s", j.period) }

func (j *snapshotJob) Run(ctx context.Context) error {
	now := j.now()
	key := j.marker.CounterKey(fmt.Sprintf("snapshot:%s:%s", j.period, periodStamp(j.period, now)))
	acquired, err := j.marker.SetNX(ctx, key, "1", markerTTL(j.period))
	if err != nil {
		return fmt.Errorf("snapshot marker: %w", err)
	}
	if !acquired {
		return nil
	}

	start, end := periodBounds(j.period, now)
	snapshot, err := j.snapshots.Create(ctx, j.period, start, end)
	if err != nil {
		return fmt.Errorf("creating %s snapshot: %w", j.period, err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"snapshot_id":  snapshot.ID.String(),
		"period_type":  j.period.String(),
		"participants": snapshot.ParticipantCount,
	})
	j.logg.Info(logCtx, "periodic snapshot captured")
	return nil
}
