package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/latency"
	"github.com/frothly/episode-mesh/internal/records"
	"github.com/frothly/episode-mesh/lookup/internal/resource"
)

const testUnit = 100 * time.Millisecond

const usersFixture = `{"user_id":"u-1","name":"Ada Lovelace","state":"CA"}
{"user_id":"u-2","name":"Grace Hopper","state":"NY"}
`

type fixture struct {
	state    *apiversion.State
	recorder *tracetest.SpanRecorder
	handler  http.Handler
}

func newFixture(t *testing.T, name string, store records.Store) fixture {
	t.Helper()
	def, err := resource.Lookup(name)
	require.NoError(t, err)
	if store == nil {
		ix, err := records.LoadJSONLines(strings.NewReader(usersFixture), def.IDField)
		require.NoError(t, err)
		store = ix
	}
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	// the inbound otelhttp span comes from the global provider
	otel.SetTracerProvider(tp)

	reg := prometheus.NewRegistry()
	state := apiversion.NewState(apiversion.Nominal)
	injector := latency.NewInjector(latency.NewPolicy(testUnit, nil), tp.Tracer("test"), reg)
	srv := New(def, store, state, injector, reg)
	return fixture{state: state, recorder: rec, handler: srv.Router()}
}

func (f fixture) get(t *testing.T, target string) (*httptest.ResponseRecorder, time.Duration) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	start := time.Now()
	f.handler.ServeHTTP(rr, req)
	return rr, time.Since(start)
}

func TestRootMessage(t *testing.T) {
	f := newFixture(t, "user", nil)
	rr, _ := f.get(t, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"user-lookup-api: please access /user_lookup"}`, rr.Body.String())
}

func TestLookupPassesRecordThrough(t *testing.T) {
	f := newFixture(t, "user", nil)
	rr, elapsed := f.get(t, "/user_lookup?user_id=u-2&api_version=2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"user_id":"u-2","name":"Grace Hopper","state":"NY"}`, rr.Body.String())
	assert.Less(t, elapsed, testUnit)
	assert.NotEmpty(t, rr.Header().Get("X-Correlation-ID"))
}

func TestLookupNotFoundMessage(t *testing.T) {
	f := newFixture(t, "user", nil)
	rr, _ := f.get(t, "/user_lookup?user_id=nobody&api_version=2")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"message":"user not found"}`, rr.Body.String())
}

func TestLookupRejectsInvalidVersion(t *testing.T) {
	f := newFixture(t, "user", nil)
	for _, raw := range []string{"abc", "0", "-3", ""} {
		rr, _ := f.get(t, "/user_lookup?user_id=u-1&api_version="+raw)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "api_version=%q", raw)
	}
}

func TestLookupRequiresID(t *testing.T) {
	f := newFixture(t, "user", nil)
	rr, _ := f.get(t, "/user_lookup?api_version=2")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "user_id required")
}

func TestDegradedVersionDelaysLookup(t *testing.T) {
	f := newFixture(t, "user", nil)
	rr, elapsed := f.get(t, "/user_lookup?user_id=u-1&api_version=1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.GreaterOrEqual(t, elapsed, time.Duration(latency.DegradedMin*float64(testUnit)))

	var checkSpans int
	for _, s := range f.recorder.Ended() {
		if s.Name() == "check_user" {
			checkSpans++
			assert.Len(t, s.Links(), 1)
		}
	}
	assert.Equal(t, 1, checkSpans)
}

func TestLegacyRouteIsPinnedToVersionOne(t *testing.T) {
	f := newFixture(t, "user", nil)
	rr, elapsed := f.get(t, "/find_user?user_id=u-1&api_version=2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.GreaterOrEqual(t, elapsed, time.Duration(latency.DegradedMin*float64(testUnit)))
}

func TestLookupRequiresVersion(t *testing.T) {
	f := newFixture(t, "user", nil)

	rr, elapsed := f.get(t, "/user_lookup?user_id=u-1")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"api_version required"}`, rr.Body.String())
	assert.Less(t, elapsed, testUnit)

	// the configured version never stands in for a missing parameter
	_, _ = f.get(t, "/config?api_version=1")
	rr, _ = f.get(t, "/user_lookup?user_id=u-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = f.get(t, "/find_user?user_id=u-1")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestConfigSetsAndReportsVersion(t *testing.T) {
	f := newFixture(t, "user", nil)

	rr, _ := f.get(t, "/config?api_version=1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ApiVersion":1,"Resource":"user"}`, rr.Body.String())
	assert.Equal(t, apiversion.Legacy, f.state.Get())

	rr, _ = f.get(t, "/config")
	assert.JSONEq(t, `{"ApiVersion":1,"Resource":"user"}`, rr.Body.String())

	rr, _ = f.get(t, "/config?api_version=two")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apiversion.Legacy, f.state.Get())
}

func TestCancelledRequestEndsWaitEarly(t *testing.T) {
	f := newFixture(t, "user", nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	req := httptest.NewRequest(http.MethodGet, "/find_user?user_id=u-1", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	start := time.Now()
	f.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Less(t, time.Since(start), time.Duration(latency.DegradedMin*float64(testUnit)))
}

func TestProductIsNotVersioned(t *testing.T) {
	ix, err := records.LoadJSONLines(strings.NewReader(`{"product_id":"p-1","title":"Frothly Mug"}`+"\n"), "product_id")
	require.NoError(t, err)
	f := newFixture(t, "product", ix)

	rr, elapsed := f.get(t, "/product_lookup?product_id=p-1&api_version=1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Less(t, elapsed, testUnit)

	rr, _ = f.get(t, "/find_product?product_id=p-1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type failingStore struct{}

func (failingStore) Find(context.Context, string) (json.RawMessage, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIs500(t *testing.T) {
	f := newFixture(t, "user", failingStore{})
	rr, _ := f.get(t, "/user_lookup?user_id=u-1&api_version=2")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMetricsExposeLookupOutcomes(t *testing.T) {
	f := newFixture(t, "user", nil)
	f.get(t, "/user_lookup?user_id=u-1&api_version=2")
	f.get(t, "/user_lookup?user_id=nobody&api_version=2")

	rr, _ := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `lookups_total{outcome="found",resource="user",route="/user_lookup"} 1`)
	assert.Contains(t, body, `lookups_total{outcome="not_found",resource="user",route="/user_lookup"} 1`)
}
