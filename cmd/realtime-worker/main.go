package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trailmarks/gamification-backend/internal/realtime"
	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/metrics"
	"github.com/trailmarks/gamification-backend/pkg/outbox/idempotency"
	"github.com/trailmarks/gamification-backend/pkg/pubsub"
	"github.com/trailmarks/gamification-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "realtime-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "realtime-worker"

	logg = logger.New(logger.Options{
		ServiceName: "realtime-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	deduper, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	rankingMetrics := metrics.NewRankingMetrics(promRegistry)

	listenerRegistry := realtime.NewRegistry(0, rankingMetrics)

	consumer, err := realtime.NewConsumer(
		cfg.Realtime,
		pubsubClient.PointsSubscription(),
		pubsubClient.RankingSubscription(),
		deduper,
		listenerRegistry,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create realtime consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting realtime worker")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "realtime worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "realtime worker shutting down gracefully")
}
