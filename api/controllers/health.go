package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/trailmarks/gamification-backend/api/responses"
	"github.com/trailmarks/gamification-backend/pkg/config"
	pkgerrors "github.com/trailmarks/gamification-backend/pkg/errors"
	"github.com/trailmarks/gamification-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is the dependency health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Trailmarks-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Trailmarks-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]Pinger{
			"postgres": dbP,
			"redis":    redisP,
		}
		for name, pinger := range checks {
			if pinger == nil {
				continue
			}
			if err := pinger.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dependency not ready").WithDetails(map[string]any{"dependency": name}))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
