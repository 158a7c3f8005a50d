package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/tracing"
)

// User lookup routes. The legacy route is served with degraded latency.
const (
	UserRouteNominal = "/user_lookup"
	UserRouteLegacy  = "/find_user"
	productRoute     = "/product_lookup"
)

// Enriched is a review merged with its product, user and sentiment documents.
type Enriched struct {
	ID         string
	ReviewID   string
	UserID     string
	ProductID  string
	ApiVersion apiversion.Version
	UserRoute  string
	Document   json.RawMessage
	ConsumedAt time.Time
}

// UserRoute picks the user lookup route for the consumer's configured version.
func UserRoute(v apiversion.Version) string {
	if v.Degraded() {
		return UserRouteLegacy
	}
	return UserRouteNominal
}

type Enricher struct {
	products  *LookupClient
	users     *LookupClient
	sentiment *SentimentClient
	state     *apiversion.State
	tracer    trace.Tracer
}

// NewEnricher wires the enrichment dependencies. sentiment may be nil.
func NewEnricher(products, users *LookupClient, sentiment *SentimentClient, state *apiversion.State, tracer trace.Tracer) *Enricher {
	return &Enricher{products: products, users: users, sentiment: sentiment, state: state, tracer: tracer}
}

type reviewKeys struct {
	ReviewID  string `json:"review_id"`
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
}

// Enrich looks up the review's product and user (and sentiment when configured) and merges the
// documents in review, product, user, sentiment order.
func (e *Enricher) Enrich(ctx context.Context, review json.RawMessage) (*Enriched, error) {
	var keys reviewKeys
	if err := json.Unmarshal(review, &keys); err != nil {
		return nil, fmt.Errorf("decode review: %w", err)
	}
	if keys.ProductID == "" || keys.UserID == "" {
		return nil, fmt.Errorf("review missing product_id or user_id")
	}

	v := e.state.Get()
	route := UserRoute(v)
	ctx, span := e.tracer.Start(ctx, "enrich_review", trace.WithAttributes(
		attribute.Int(tracing.AttrAPIVersion, int(v)),
		attribute.String("user.route", route),
		attribute.String("review.id", keys.ReviewID),
	))
	defer span.End()

	docs := []json.RawMessage{review}
	var sentiment json.RawMessage
	if e.sentiment != nil {
		s, err := e.sentiment.Analyze(ctx, review)
		if err != nil {
			return nil, e.fail(span, fmt.Errorf("sentiment: %w", err))
		}
		sentiment = s
	}
	product, err := e.products.Get(ctx, productRoute, "product_id", keys.ProductID, nil)
	if err != nil {
		return nil, e.fail(span, fmt.Errorf("product %s: %w", keys.ProductID, err))
	}
	user, err := e.users.Get(ctx, route, "user_id", keys.UserID, &v)
	if err != nil {
		return nil, e.fail(span, fmt.Errorf("user %s: %w", keys.UserID, err))
	}
	docs = append(docs, product, user, sentiment)

	merged, err := Merge(docs...)
	if err != nil {
		return nil, e.fail(span, err)
	}
	return &Enriched{
		ID:         uuid.NewString(),
		ReviewID:   keys.ReviewID,
		UserID:     keys.UserID,
		ProductID:  keys.ProductID,
		ApiVersion: v,
		UserRoute:  route,
		Document:   merged,
		ConsumedAt: time.Now().UTC(),
	}, nil
}

func (e *Enricher) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
