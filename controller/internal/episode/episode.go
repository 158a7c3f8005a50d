// Package episode runs the break, fix and status scenarios: push a version to every dependent,
// mark the change with an event and classify the result.
package episode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/frothly/episode-mesh/controller/internal/dependents"
	"github.com/frothly/episode-mesh/controller/internal/events"
	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/logging"
	"github.com/frothly/episode-mesh/internal/tracing"
)

type Scenario string

const (
	ScenarioBreak  Scenario = "break"
	ScenarioFix    Scenario = "fix"
	ScenarioStatus Scenario = "status"
)

type Configurer interface {
	Configure(ctx context.Context, dep dependents.Dependent, v *apiversion.Version) (dependents.Response, error)
}

type Emitter interface {
	Emit(ctx context.Context, ev events.DeploymentEvent) error
}

// NamedResponse is one dependent's reply, kept in registry order.
type NamedResponse struct {
	Name     string
	Response dependents.Response
}

type Result struct {
	Responses     []NamedResponse
	Status        Status
	CorrelationID string
}

// MarshalJSON writes {"<Name>Response":{...},...,"EpisodeStatus":{...},"CorrelationId":"..."}.
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField := func(key string, value any) error {
		b, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(b)
		return nil
	}
	for _, nr := range r.Responses {
		if err := writeField(nr.Name+"Response", nr.Response); err != nil {
			return nil, err
		}
	}
	if err := writeField("EpisodeStatus", r.Status); err != nil {
		return nil, err
	}
	if err := writeField("CorrelationId", r.CorrelationID); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type Config struct {
	Template     events.Template
	EventTimeout time.Duration
}

type Service struct {
	registry *dependents.Registry
	client   Configurer
	emitter  Emitter
	template events.Template
	timeout  time.Duration
	tracer   trace.Tracer
	now      func() time.Time

	emits sync.WaitGroup

	scenarios *prometheus.CounterVec
	delivered *prometheus.CounterVec
}

func NewService(registry *dependents.Registry, client Configurer, emitter Emitter, tracer trace.Tracer, reg prometheus.Registerer, cfg Config) *Service {
	scenarios := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "episode_scenarios_total",
		Help: "Scenario runs by scenario and outcome.",
	}, []string{"scenario", "outcome"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "episode_events_total",
		Help: "Episode events by type and delivery outcome.",
	}, []string{"type", "outcome"})
	reg.MustRegister(scenarios, delivered)

	timeout := cfg.EventTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		registry:  registry,
		client:    client,
		emitter:   emitter,
		template:  cfg.Template,
		timeout:   timeout,
		tracer:    tracer,
		now:       time.Now,
		scenarios: scenarios,
		delivered: delivered,
	}
}

// Break moves every dependent to the legacy version and records a deployment.
func (s *Service) Break(ctx context.Context) (Result, error) {
	v := apiversion.Legacy
	return s.run(ctx, ScenarioBreak, &v, s.template.Deployment)
}

// Fix moves every dependent back to the nominal version and records a rollback.
func (s *Service) Fix(ctx context.Context) (Result, error) {
	v := apiversion.Nominal
	return s.run(ctx, ScenarioFix, &v, s.template.Rollback)
}

// Status reads every dependent's current version without changing it. No event is sent.
func (s *Service) Status(ctx context.Context) (Result, error) {
	return s.run(ctx, ScenarioStatus, nil, nil)
}

// Wait blocks until in-flight event deliveries finish.
func (s *Service) Wait() {
	s.emits.Wait()
}

func (s *Service) run(ctx context.Context, scenario Scenario, v *apiversion.Version, event func(string, time.Time) events.DeploymentEvent) (Result, error) {
	id := tracing.CorrelationID(ctx)
	if id == "" {
		id = tracing.NewCorrelationID()
		ctx = tracing.WithCorrelationID(ctx, id)
	}

	attrs := []attribute.KeyValue{
		attribute.String("episode.scenario", string(scenario)),
		attribute.String(tracing.AttrCorrelationID, id),
	}
	if v != nil {
		attrs = append(attrs, attribute.Int(tracing.AttrAPIVersion, int(*v)))
	}
	ctx, span := s.tracer.Start(ctx, "episode."+string(scenario), trace.WithAttributes(attrs...))
	defer span.End()

	responses, err := s.configureAll(ctx, v)
	if event != nil {
		s.emitAsync(ctx, event(id, s.now()))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dependent unavailable")
		s.scenarios.WithLabelValues(string(scenario), "unavailable").Inc()
		return Result{CorrelationID: id}, err
	}

	status, err := s.classify(responses)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.scenarios.WithLabelValues(string(scenario), "error").Inc()
		return Result{CorrelationID: id}, err
	}
	span.SetAttributes(
		attribute.String("episode.review_sentiment", status.ReviewSentiment),
		attribute.String("episode.user_lookup_status", status.UserLookupStatus),
	)
	s.scenarios.WithLabelValues(string(scenario), "ok").Inc()
	return Result{Responses: responses, Status: status, CorrelationID: id}, nil
}

func (s *Service) configureAll(ctx context.Context, v *apiversion.Version) ([]NamedResponse, error) {
	deps := s.registry.Dependents()
	out := make([]NamedResponse, len(deps))
	g, gctx := errgroup.WithContext(ctx)
	for i, dep := range deps {
		g.Go(func() error {
			resp, err := s.client.Configure(gctx, dep, v)
			if err != nil {
				return err
			}
			out[i] = NamedResponse{Name: dep.Name, Response: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) classify(responses []NamedResponse) (Status, error) {
	for _, nr := range responses {
		if nr.Name == s.registry.Designated() {
			return Classify(nr.Response.ApiVersion), nil
		}
	}
	return Status{}, fmt.Errorf("designated dependent %q returned no response", s.registry.Designated())
}

func (s *Service) emitAsync(ctx context.Context, ev events.DeploymentEvent) {
	logger := logging.From(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.emits.Add(1)
	go func() {
		defer s.emits.Done()
		defer cancel()
		if err := s.emitter.Emit(ctx, ev); err != nil {
			s.delivered.WithLabelValues(ev.EventType, "failed").Inc()
			logger.Warn("event delivery failed",
				zap.String("event_type", ev.EventType),
				zap.String("correlation_id", ev.Properties["correlation_id"]),
				zap.Error(err),
			)
			return
		}
		s.delivered.WithLabelValues(ev.EventType, "delivered").Inc()
		logger.Info("event delivered",
			zap.String("event_type", ev.EventType),
			zap.String("correlation_id", ev.Properties["correlation_id"]),
		)
	}()
}

// IsUnavailable reports whether err came from an unreachable or misbehaving dependent.
func IsUnavailable(err error) bool {
	return errors.Is(err, dependents.ErrUnavailable)
}
