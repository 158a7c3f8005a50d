package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/tracing"
	"github.com/frothly/episode-mesh/reviews/internal/consumer"
)

// Pinger reports whether the review store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	state    *apiversion.State
	db       Pinger
	gatherer prometheus.Gatherer
}

func New(state *apiversion.State, db Pinger, gatherer prometheus.Gatherer) *Server {
	return &Server{state: state, db: db, gatherer: gatherer}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing.Middleware)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/config", s.handleConfig)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(r, "reviews-consumer")
}

type configResponse struct {
	ApiVersion apiversion.Version `json:"ApiVersion"`
	UserRoute  string             `json:"UserRoute"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	v, ok, err := apiversion.FromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ok {
		if prev := s.state.Set(v); prev != v {
			logging.From(r.Context()).Info("api version changed",
				zap.Stringer("from", prev),
				zap.Stringer("to", v),
				zap.String("user_route", consumer.UserRoute(v)),
			)
		}
	}
	cur := s.state.Get()
	respondJSON(w, http.StatusOK, configResponse{ApiVersion: cur, UserRoute: consumer.UserRoute(cur)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
