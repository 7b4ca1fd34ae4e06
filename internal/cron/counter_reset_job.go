package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/outbox"
	"github.com/trailmarks/gamification-backend/pkg/outbox/payloads"
)

// txRunner abstracts db.Client.WithTx.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CounterResetter is the slice of the ledger the reset jobs use.
type CounterResetter interface {
	ResetWeekly(ctx context.Context) (int64, error)
	ResetMonthly(ctx context.Context) (int64, error)
}

// eventEmitter is the slice of the outbox service the reset jobs use.
type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type CounterResetJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Ledger CounterResetter
	Events eventEmitter
	Marker onceMarker
	Period enums.PeriodType
}

// NewCounterResetJob builds the weekly or monthly counter reset job. The
// reset runs once per period instance, gated by a Redis marker, and emits a
// stats_reset event alongside.
func NewCounterResetJob(params CounterResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Marker == nil {
		return nil, fmt.Errorf("run marker required")
	}
	if params.Period != enums.PeriodWeekly && params.Period != enums.PeriodMonthly {
		return nil, fmt.Errorf("counter reset only supports weekly or monthly, got %q", params.Period)
	}
	return &counterResetJob{
		logg:   params.Logger,
		db:     params.DB,
		ledger: params.Ledger,
		events: params.Events,
		marker: params.Marker,
		period: params.Period,
		now:    time.Now,
	}, nil
}

type counterResetJob struct {
	logg   *logger.Logger
	db     txRunner
	ledger CounterResetter
	events eventEmitter
	marker onceMarker
	period enums.PeriodType
	now    func() time.Time
}

func (j *counterResetJob) Name() string { return fmt.Sprintf("%s-counter-reset", j.period) }

func (j *counterResetJob) Run(ctx context.Context) error {
	now := j.now()
	key := j.marker.CounterKey(fmt.Sprintf("reset:%s:%s", j.period, periodStamp(j.period, now)))
	acquired, err := j.marker.SetNX(ctx, key, "1", markerTTL(j.period))
	if err != nil {
		return fmt.Errorf("reset marker: %w", err)
	}
	if !acquired {
		return nil
	}

	var count int64
	if j.period == enums.PeriodWeekly {
		count, err = j.ledger.ResetWeekly(ctx)
	} else {
		count, err = j.ledger.ResetMonthly(ctx)
	}
	if err != nil {
		return fmt.Errorf("resetting %s counters: %w", j.period, err)
	}

	_, nextDue := periodBounds(j.period, now)
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStatsReset,
			AggregateType: enums.AggregateUserStats,
			AggregateID:   uuid.New(),
			Actor:         &outbox.ActorRef{Source: j.Name()},
			Version:       1,
			OccurredAt:    now,
			Data: payloads.StatsResetEvent{
				Scope:        j.period.String(),
				UserCount:    count,
				ResetAt:      now,
				NextResetDue: nextDue,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("queueing reset event: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scope":      j.period.String(),
		"rows_reset": count,
	})
	j.logg.Info(logCtx, "periodic counter reset complete")
	return nil
}
