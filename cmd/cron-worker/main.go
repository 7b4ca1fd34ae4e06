package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trailmarks/gamification-backend/internal/cron"
	"github.com/trailmarks/gamification-backend/internal/ledger"
	"github.com/trailmarks/gamification-backend/internal/query"
	"github.com/trailmarks/gamification-backend/internal/ranking"
	"github.com/trailmarks/gamification-backend/internal/snapshots"
	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/db"
	"github.com/trailmarks/gamification-backend/pkg/enums"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/metrics"
	"github.com/trailmarks/gamification-backend/pkg/migrate"
	"github.com/trailmarks/gamification-backend/pkg/outbox"
	"github.com/trailmarks/gamification-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(promRegistry)
	rankingMetrics := metrics.NewRankingMetrics(promRegistry)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

	rankingService, err := ranking.NewService(
		dbClient,
		ranking.NewRepository(dbClient.DB()),
		outboxService,
		logg,
		rankingMetrics,
		cfg.Ranking,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create ranking service", err)
		os.Exit(1)
	}

	queryService, err := query.NewService(query.NewRepository(dbClient.DB()), redisClient, rankingService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create query service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(
		dbClient,
		ledger.NewRepository(dbClient.DB()),
		outboxService,
		queryService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	snapshotService, err := snapshots.NewService(
		dbClient,
		snapshots.NewRepository(dbClient.DB()),
		rankingService,
		outboxService,
		logg,
		cfg.Snapshot,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create snapshot service", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	registerJob := func(job cron.Job, err error) {
		if err != nil {
			logg.Error(context.Background(), "failed to build cron job", err)
			os.Exit(1)
		}
		registry.Register(job)
	}

	registerJob(cron.NewRankingUpdateJob(cron.RankingUpdateJobParams{
		Logger:  logg,
		Ranking: rankingService,
	}))
	for _, period := range []enums.PeriodType{enums.PeriodDaily, enums.PeriodWeekly, enums.PeriodMonthly} {
		registerJob(cron.NewSnapshotJob(cron.SnapshotJobParams{
			Logger:    logg,
			Snapshots: snapshotService,
			Marker:    redisClient,
			Period:    period,
		}))
	}
	for _, period := range []enums.PeriodType{enums.PeriodWeekly, enums.PeriodMonthly} {
		registerJob(cron.NewCounterResetJob(cron.CounterResetJobParams{
			Logger: logg,
			DB:     dbClient,
			Ledger: ledgerService,
			Events: outboxService,
			Marker: redisClient,
			Period: period,
		}))
	}
	registerJob(cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
	}))
	registerJob(cron.NewGenerationCleanupJob(cron.GenerationCleanupJobParams{
		Logger:  logg,
		Ranking: rankingService,
	}))

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
