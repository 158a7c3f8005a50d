package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/tracing"
	"github.com/frothly/episode-mesh/reviews/internal/producer"
)

type Server struct {
	service   *producer.Service
	gatherer  prometheus.Gatherer
	published *prometheus.CounterVec
}

func New(service *producer.Service, reg *prometheus.Registry) *Server {
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviews_published_total",
		Help: "Reviews handled by /reviews, by api version and result.",
	}, []string{"api_version", "result"})
	reg.MustRegister(published)
	return &Server{service: service, gatherer: reg, published: published}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing.Middleware)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/config", s.handleConfig)
	r.Get("/reviews", s.handleReviews)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return otelhttp.NewHandler(r, "reviews-producer")
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	v, ok, err := apiversion.FromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var version *apiversion.Version
	if ok {
		version = &v
	}
	var count *int
	if raw := r.URL.Query().Get("num_reviews"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "num_reviews must be an integer")
			return
		}
		count = &n
	}
	settings, err := s.service.Configure(version, count)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Submit(r.Context())
	v := res.ApiVersion.String()
	s.published.WithLabelValues(v, "published").Add(float64(res.Published))
	s.published.WithLabelValues(v, "failed").Add(float64(res.Failed))
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
