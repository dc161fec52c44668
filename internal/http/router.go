// Package http assembles the public API surface from the per-domain handlers.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/platform/metrics"
	"github.com/xyo-geohacker/chaincheck-sub003/internal/platform/middleware"
	"github.com/xyo-geohacker/chaincheck-sub003/pkg/platform/httputil"
)

// Registrar is implemented by every domain handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports readiness of a backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter mounts the domain handlers under /api plus the operational
// endpoints. Handlers own their routes; this layer owns the middleware chain.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, checks map[string]HealthChecker, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(middleware.Latency(m))

	r.Route("/api", func(api chi.Router) {
		for _, h := range handlers {
			h.Register(api)
		}
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", healthHandler(checks))
	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(r.Context()); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, map[string]any{
			"healthy": healthy,
			"checks":  status,
		})
	}
}
