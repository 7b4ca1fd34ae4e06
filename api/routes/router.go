package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trailmarks/gamification-backend/api/controllers"
	"github.com/trailmarks/gamification-backend/api/middleware"
	"github.com/trailmarks/gamification-backend/internal/ledger"
	"github.com/trailmarks/gamification-backend/internal/query"
	"github.com/trailmarks/gamification-backend/internal/snapshots"
	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	promRegistry *prometheus.Registry,
	ledgerService ledger.Service,
	queryService query.Service,
	snapshotService snapshots.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/points", func(r chi.Router) {
			r.Post("/", controllers.PointsAppend(ledgerService, logg))
			r.Get("/transactions", controllers.PointsHistory(ledgerService, logg))
			r.Get("/stats", controllers.PointsStats(ledgerService, logg))
		})

		r.Get("/leaderboard", controllers.Leaderboard(queryService, logg))

		r.Route("/rankings", func(r chi.Router) {
			r.Get("/me", controllers.MyRanking(queryService, logg))
			r.Get("/{userId}", controllers.UserRanking(queryService, logg))
			r.Get("/{userId}/nearby", controllers.NearbyRankings(queryService, logg))
		})

		r.Get("/snapshots", controllers.SnapshotFetch(snapshotService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Post("/rankings/update", controllers.AdminTriggerRankingUpdate(queryService, logg))
		r.Post("/snapshots", controllers.AdminCreateSnapshot(snapshotService, logg))
	})

	return r
}
