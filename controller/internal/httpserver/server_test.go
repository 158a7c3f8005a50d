package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frothly/episode-mesh/controller/internal/dependents"
	"github.com/frothly/episode-mesh/controller/internal/episode"
	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/tracing"
)

type stubScenarios struct {
	called string
	err    error
}

func (s *stubScenarios) result(ctx context.Context, name string, v int) (episode.Result, error) {
	s.called = name
	id := tracing.CorrelationID(ctx)
	if s.err != nil {
		return episode.Result{CorrelationID: id}, s.err
	}
	return episode.Result{
		Responses: []episode.NamedResponse{{
			Name:     "ReviewsProducer",
			Response: dependents.Response{StatusCode: 200, Response: json.RawMessage(`{"ApiVersion":` + strconv.Itoa(v) + `}`)},
		}},
		Status:        episode.Classify(apiversion.Version(v)),
		CorrelationID: id,
	}, nil
}

func (s *stubScenarios) Break(ctx context.Context) (episode.Result, error)  { return s.result(ctx, "break", 1) }
func (s *stubScenarios) Fix(ctx context.Context) (episode.Result, error)    { return s.result(ctx, "fix", 2) }
func (s *stubScenarios) Status(ctx context.Context) (episode.Result, error) { return s.result(ctx, "status", 2) }

func do(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScenarioRoutes(t *testing.T) {
	stub := &stubScenarios{}
	h := New(stub, prometheus.NewRegistry()).Router()

	for path, want := range map[string]string{"/break": "break", "/fix": "fix", "/": "status"} {
		rec := do(t, h, path, http.Header{tracing.CorrelationHeader: {"corr-7"}})
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, stub.called)
		assert.Equal(t, "corr-7", rec.Header().Get(tracing.CorrelationHeader))

		var body map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body, "ReviewsProducerResponse")
		assert.Contains(t, body, "EpisodeStatus")
		assert.JSONEq(t, `"corr-7"`, string(body["CorrelationId"]))
	}

	rec := do(t, h, "/break", nil)
	assert.Contains(t, rec.Body.String(), `"UserLookupStatus":"Broken"`)
}

func TestDependentUnavailableIs502(t *testing.T) {
	stub := &stubScenarios{err: &dependents.Error{Name: "ReviewsConsumer", Err: errors.New("context deadline exceeded")}}
	h := New(stub, prometheus.NewRegistry()).Router()

	rec := do(t, h, "/break", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"dependent unavailable","dependent":"ReviewsConsumer","detail":"context deadline exceeded"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "EpisodeStatus")
}

func TestOtherFailureIs500(t *testing.T) {
	stub := &stubScenarios{err: errors.New("designated dependent missing")}
	rec := do(t, New(stub, prometheus.NewRegistry()).Router(), "/", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "episode_probe_total", Help: "probe"})
	reg.MustRegister(c)
	c.Inc()
	h := New(&stubScenarios{}, reg).Router()

	assert.JSONEq(t, `{"status":"ok"}`, do(t, h, "/health", nil).Body.String())
	assert.Contains(t, do(t, h, "/metrics", nil).Body.String(), "episode_probe_total 1")
}
