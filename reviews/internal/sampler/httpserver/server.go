package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/tracing"
	"github.com/frothly/episode-mesh/reviews/internal/sampler"
)

type Server struct {
	sampler  *sampler.Sampler
	gatherer prometheus.Gatherer
	served   *prometheus.CounterVec
}

func New(s *sampler.Sampler, reg *prometheus.Registry) *Server {
	served := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviews_served_total",
		Help: "Reviews served by api version and pool.",
	}, []string{"api_version", "pool"})
	reg.MustRegister(served)
	return &Server{sampler: s, gatherer: reg, served: served}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing.Middleware)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"message": "Success"})
	})
	r.Get("/get_review", s.handleGetReview)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(r, "review-service")
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	v, ok, err := apiversion.FromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, apiversion.QueryParam+" required")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	review, positive := s.sampler.Sample(v)
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int(tracing.AttrAPIVersion, int(v)))
	if stars, ok := sampler.Stars(review); ok {
		span.SetAttributes(attribute.Float64("rating", stars))
	}
	pool := "negative"
	if positive {
		pool = "positive"
	}
	s.served.WithLabelValues(v.String(), pool).Inc()
	logging.From(r.Context()).Debug("review sampled")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(review)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
