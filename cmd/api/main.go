package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trailmarks/gamification-backend/api/routes"
	"github.com/trailmarks/gamification-backend/internal/ledger"
	"github.com/trailmarks/gamification-backend/internal/query"
	"github.com/trailmarks/gamification-backend/internal/ranking"
	"github.com/trailmarks/gamification-backend/internal/snapshots"
	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/db"
	"github.com/trailmarks/gamification-backend/pkg/env"
	"github.com/trailmarks/gamification-backend/pkg/logger"
	"github.com/trailmarks/gamification-backend/pkg/metrics"
	"github.com/trailmarks/gamification-backend/pkg/migrate"
	"github.com/trailmarks/gamification-backend/pkg/outbox"
	"github.com/trailmarks/gamification-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	rankingMetrics := metrics.NewRankingMetrics(promRegistry)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

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

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promRegistry,
			ledgerService,
			queryService,
			snapshotService,
		),
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown error", err)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
