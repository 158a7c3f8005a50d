package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/latency"
	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/records"
	"github.com/frothly/episode-mesh/internal/tracing"
	"github.com/frothly/episode-mesh/lookup/internal/resource"
)

type Server struct {
	def      resource.Def
	store    records.Store
	state    *apiversion.State
	injector *latency.Injector
	gatherer prometheus.Gatherer
	lookups  *prometheus.CounterVec
}

// New builds the server for def. reg receives the lookup counters and backs /metrics.
func New(def resource.Def, store records.Store, state *apiversion.State, injector *latency.Injector, reg *prometheus.Registry) *Server {
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lookups_total",
		Help: "Record lookups by resource, route and outcome.",
	}, []string{"resource", "route", "outcome"})
	reg.MustRegister(lookups)
	return &Server{
		def:      def,
		store:    store,
		state:    state,
		injector: injector,
		gatherer: reg,
		lookups:  lookups,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing.Middleware)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", s.handleRoot)
	r.Get("/config", s.handleConfig)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Get(s.def.LookupPath(), s.handleLookup(nil))
	if s.def.Versioned {
		legacy := apiversion.Legacy
		r.Get(s.def.LegacyPath(), s.handleLookup(&legacy))
	}

	return otelhttp.NewHandler(r, s.def.Name+"-lookup")
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": s.def.RootMessage()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type configResponse struct {
	ApiVersion apiversion.Version `json:"ApiVersion"`
	Resource   string             `json:"Resource"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	v, ok, err := apiversion.FromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ok {
		prev := s.state.Set(v)
		if prev != v {
			logging.From(r.Context()).Info("api version changed",
				zap.Stringer("from", prev),
				zap.Stringer("to", v),
			)
		}
	}
	respondJSON(w, http.StatusOK, configResponse{ApiVersion: s.state.Get(), Resource: s.def.Name})
}

// handleLookup serves the lookup routes. A non-nil pinned version ignores api_version; otherwise
// the parameter is required.
func (s *Server) handleLookup(pinned *apiversion.Version) http.HandlerFunc {
	route := s.def.LookupPath()
	if pinned != nil {
		route = s.def.LegacyPath()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logging.From(ctx)

		id := r.URL.Query().Get(s.def.IDField)
		if id == "" {
			s.lookups.WithLabelValues(s.def.Name, route, "bad_request").Inc()
			respondError(w, http.StatusBadRequest, s.def.IDField+" required")
			return
		}

		if s.def.Versioned {
			v, err := s.versionFor(r, pinned)
			if err != nil {
				s.lookups.WithLabelValues(s.def.Name, route, "bad_request").Inc()
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			trace.SpanFromContext(ctx).SetAttributes(attribute.Int(tracing.AttrAPIVersion, int(v)))
			if _, err := s.injector.Apply(ctx, s.def.CheckStep(), v); err != nil {
				s.lookups.WithLabelValues(s.def.Name, route, "cancelled").Inc()
				log.Warn("lookup cancelled during latency wait", zap.Error(err))
				respondError(w, http.StatusServiceUnavailable, "request cancelled")
				return
			}
		}

		rec, err := s.store.Find(ctx, id)
		if errors.Is(err, records.ErrNotFound) {
			s.lookups.WithLabelValues(s.def.Name, route, "not_found").Inc()
			respondJSON(w, http.StatusNotFound, map[string]string{"message": s.def.NotFoundMessage()})
			return
		}
		if err != nil {
			s.lookups.WithLabelValues(s.def.Name, route, "error").Inc()
			log.Error("lookup failed", zap.String(s.def.IDField, id), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		s.lookups.WithLabelValues(s.def.Name, route, "found").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(rec)
	}
}

func (s *Server) versionFor(r *http.Request, pinned *apiversion.Version) (apiversion.Version, error) {
	if pinned != nil {
		return *pinned, nil
	}
	v, ok, err := apiversion.FromRequest(r)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errVersionRequired
	}
	return v, nil
}

var errVersionRequired = errors.New(apiversion.QueryParam + " required")

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
