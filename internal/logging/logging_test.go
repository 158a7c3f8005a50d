package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/frothly/episode-mesh/internal/tracing"
)

func TestFromFallsBackToGlobal(t *testing.T) {
	assert.Same(t, L(), From(context.Background()))

	l := zap.NewExample()
	assert.Same(t, l, From(ToContext(context.Background(), l)))
}

func TestMiddlewareScopesRequestFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	h := tracing.Middleware(Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		From(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	req.Header.Set(tracing.CorrelationHeader, "corr-7")
	req = req.WithContext(ToContext(req.Context(), base))
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "inside", entries[0].Message)
	assert.Equal(t, "corr-7", entries[0].ContextMap()["correlation_id"])
	assert.Equal(t, "request completed", entries[1].Message)
	assert.EqualValues(t, http.StatusTeapot, entries[1].ContextMap()["status"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("DEBUG").String())
	assert.Equal(t, "info", parseLevel("").String())
	assert.Equal(t, "error", parseLevel("error").String())
}
