package tracing

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the episode correlation id next to the api_version argument.
const CorrelationHeader = "X-Correlation-ID"

const (
	AttrCorrelationID = "correlation.id"
	AttrAPIVersion    = "api.version"
)

type correlationKey struct{}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id stored in ctx, or "".
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}

// NewCorrelationID returns a fresh id for a new episode step.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Middleware adopts the caller's correlation id (or mints one), stores it in the request context,
// echoes it on the response and tags the active span with it.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = NewCorrelationID()
		}
		w.Header().Set(CorrelationHeader, id)
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String(AttrCorrelationID, id))
		next.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), id)))
	})
}

// Transport copies the correlation id from the request context onto outbound requests.
type Transport struct {
	Base http.RoundTripper
}

func (t Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if id := CorrelationID(req.Context()); id != "" && req.Header.Get(CorrelationHeader) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(CorrelationHeader, id)
	}
	return base.RoundTrip(req)
}

// NewHTTPClient returns a client that propagates trace context and the correlation id.
// base may be nil.
func NewHTTPClient(timeout time.Duration, base http.RoundTripper) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(Transport{Base: base}),
	}
}
