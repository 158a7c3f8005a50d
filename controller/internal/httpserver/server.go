package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/frothly/episode-mesh/controller/internal/dependents"
	"github.com/frothly/episode-mesh/controller/internal/episode"
	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/tracing"
)

// Scenarios is the part of episode.Service the routes drive.
type Scenarios interface {
	Break(ctx context.Context) (episode.Result, error)
	Fix(ctx context.Context) (episode.Result, error)
	Status(ctx context.Context) (episode.Result, error)
}

type Server struct {
	scenarios Scenarios
	gatherer  prometheus.Gatherer
}

func New(scenarios Scenarios, gatherer prometheus.Gatherer) *Server {
	return &Server{scenarios: scenarios, gatherer: gatherer}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing.Middleware)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", s.scenario(s.scenarios.Status))
	r.Get("/break", s.scenario(s.scenarios.Break))
	r.Get("/fix", s.scenario(s.scenarios.Fix))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(r, "breakcontroller")
}

func (s *Server) scenario(run func(context.Context) (episode.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := run(r.Context())
		if err != nil {
			var de *dependents.Error
			if errors.As(err, &de) {
				logging.From(r.Context()).Warn("dependent unavailable",
					zap.String("dependent", de.Name),
					zap.String("correlation_id", res.CorrelationID),
					zap.Error(de.Err),
				)
				respondJSON(w, http.StatusBadGateway, map[string]string{
					"error":     dependents.ErrUnavailable.Error(),
					"dependent": de.Name,
					"detail":    de.Err.Error(),
				})
				return
			}
			logging.From(r.Context()).Error("scenario failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
