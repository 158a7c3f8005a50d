package episode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/frothly/episode-mesh/controller/internal/dependents"
	"github.com/frothly/episode-mesh/controller/internal/events"
	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/tracing"
)

// fakeDependent is a /config endpoint backed by an apiversion.State.
type fakeDependent struct {
	state *apiversion.State
	delay time.Duration
	calls int
	mu    sync.Mutex
}

func (f *fakeDependent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-r.Context().Done():
			return
		}
	}
	v, ok, err := apiversion.FromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ok {
		f.state.Set(v)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ApiVersion": int(f.state.Get())})
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.DeploymentEvent
	err    error
}

func (e *recordingEmitter) Emit(_ context.Context, ev events.DeploymentEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return e.err
}

func (e *recordingEmitter) recorded() []events.DeploymentEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]events.DeploymentEvent(nil), e.events...)
}

type fixture struct {
	svc      *Service
	producer *fakeDependent
	consumer *fakeDependent
	emitter  *recordingEmitter
	reg      *prometheus.Registry
}

func newFixture(t *testing.T, clientTimeout time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		producer: &fakeDependent{state: apiversion.NewState(apiversion.Nominal)},
		consumer: &fakeDependent{state: apiversion.NewState(apiversion.Nominal)},
		emitter:  &recordingEmitter{},
		reg:      prometheus.NewRegistry(),
	}
	p := httptest.NewServer(f.producer)
	t.Cleanup(p.Close)
	c := httptest.NewServer(f.consumer)
	t.Cleanup(c.Close)

	registry, err := dependents.NewRegistry([]dependents.Dependent{
		{Name: "ReviewsProducer", URL: p.URL},
		{Name: "ReviewsConsumer", URL: c.URL},
	}, "ReviewsProducer")
	require.NoError(t, err)

	f.svc = NewService(registry, dependents.NewClient(dependents.ClientConfig{Timeout: clientTimeout}), f.emitter,
		noop.NewTracerProvider().Tracer("test"), f.reg, Config{
			Template: events.Template{
				DeployedBy:      "Jenna Eagle",
				RolledBackBy:    "Jenna Eagle's Boss",
				DeployVersion:   "latest",
				RollbackVersion: "2",
			},
			EventTimeout: time.Second,
		})
	return f
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Status{ReviewSentiment: "Negative", UserLookupStatus: "Broken"}, Classify(1))
	assert.Equal(t, Status{ReviewSentiment: "Positive", UserLookupStatus: "Normal"}, Classify(2))
	assert.Equal(t, Status{ReviewSentiment: "Positive", UserLookupStatus: "Normal"}, Classify(7))
}

func TestBreakStatusFixStatus(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	res, err := f.svc.Break(ctx)
	require.NoError(t, err)
	assert.Equal(t, Classify(apiversion.Legacy), res.Status)
	assert.Equal(t, apiversion.Legacy, f.producer.state.Get())
	assert.Equal(t, apiversion.Legacy, f.consumer.state.Get())

	res, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Broken", res.Status.UserLookupStatus)
	assert.Equal(t, apiversion.Legacy, f.producer.state.Get())

	res, err = f.svc.Fix(ctx)
	require.NoError(t, err)
	assert.Equal(t, Classify(apiversion.Nominal), res.Status)
	assert.Equal(t, apiversion.Nominal, f.consumer.state.Get())

	res, err = f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Positive", res.Status.ReviewSentiment)

	f.svc.Wait()
	evs := f.emitter.recorded()
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeDeployment, evs[0].EventType)
	assert.Equal(t, "Jenna Eagle", evs[0].Dimensions["deployed_by"])
	assert.Equal(t, events.TypeRollback, evs[1].EventType)
	assert.Equal(t, "2", evs[1].Properties["version"])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.scenarios.WithLabelValues("break", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.svc.scenarios.WithLabelValues("status", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.svc.delivered.WithLabelValues(events.TypeDeployment, "delivered"))+
		testutil.ToFloat64(f.svc.delivered.WithLabelValues(events.TypeRollback, "delivered")))
}

func TestStatusUsesOnlyDesignatedDependent(t *testing.T) {
	f := newFixture(t, time.Second)
	f.consumer.state.Set(apiversion.Legacy)

	res, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Normal", res.Status.UserLookupStatus)
	f.svc.Wait()
	assert.Empty(t, f.emitter.recorded())
}

func TestCorrelationIDReusedOrMinted(t *testing.T) {
	f := newFixture(t, time.Second)

	res, err := f.svc.Break(tracing.WithCorrelationID(context.Background(), "corr-42"))
	require.NoError(t, err)
	assert.Equal(t, "corr-42", res.CorrelationID)
	f.svc.Wait()
	assert.Equal(t, "corr-42", f.emitter.recorded()[0].Properties["correlation_id"])

	res, err = f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.CorrelationID)
	assert.NotEqual(t, "corr-42", res.CorrelationID)
}

func TestDependentTimeoutIsUnavailable(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	f.consumer.delay = 500 * time.Millisecond

	res, err := f.svc.Break(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	var de *dependents.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "ReviewsConsumer", de.Name)
	assert.Equal(t, Status{}, res.Status)
	assert.Empty(t, res.Responses)

	f.svc.Wait()
	assert.Len(t, f.emitter.recorded(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.scenarios.WithLabelValues("break", "unavailable")))
}

func TestEmitFailureDoesNotFailScenario(t *testing.T) {
	f := newFixture(t, time.Second)
	f.emitter.err = errors.New("ingest down")

	res, err := f.svc.Fix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Normal", res.Status.UserLookupStatus)
	f.svc.Wait()
	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.delivered.WithLabelValues(events.TypeRollback, "failed")))
}

func TestResultMarshalJSON(t *testing.T) {
	res := Result{
		Responses: []NamedResponse{
			{Name: "ReviewsProducer", Response: dependents.Response{StatusCode: 200, Response: json.RawMessage(`{"ApiVersion":1}`)}},
			{Name: "ReviewsConsumer", Response: dependents.Response{StatusCode: 200, Response: json.RawMessage(`{"ApiVersion":"1"}`)}},
		},
		Status:        Classify(1),
		CorrelationID: "corr-1",
	}
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Equal(t, `{"ReviewsProducerResponse":{"StatusCode":200,"Response":{"ApiVersion":1}},`+
		`"ReviewsConsumerResponse":{"StatusCode":200,"Response":{"ApiVersion":"1"}},`+
		`"EpisodeStatus":{"ReviewSentiment":"Negative","UserLookupStatus":"Broken"},"CorrelationId":"corr-1"}`, string(b))
}
