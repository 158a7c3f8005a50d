// Package producer fetches sampled reviews at the service's configured api_version and publishes
// them to Kafka, so a version change on this service shifts the sentiment mix downstream.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/logging"
)

type Fetcher interface {
	Fetch(ctx context.Context, v apiversion.Version) (json.RawMessage, error)
}

type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type Service struct {
	state     *apiversion.State
	perSubmit atomic.Int64
	fetcher   Fetcher
	publisher Publisher
}

func NewService(state *apiversion.State, reviewsPerSubmission int, fetcher Fetcher, publisher Publisher) *Service {
	s := &Service{state: state, fetcher: fetcher, publisher: publisher}
	s.perSubmit.Store(int64(reviewsPerSubmission))
	return s
}

// Settings is the body of the /config route.
type Settings struct {
	ApiVersion           apiversion.Version `json:"ApiVersion"`
	ReviewsPerSubmission int                `json:"ReviewsPerSubmission"`
}

// Configure applies any non-nil setting and returns the resulting settings.
func (s *Service) Configure(v *apiversion.Version, reviewsPerSubmission *int) (Settings, error) {
	if reviewsPerSubmission != nil {
		if *reviewsPerSubmission < 0 {
			return Settings{}, fmt.Errorf("num_reviews must be >= 0")
		}
		s.perSubmit.Store(int64(*reviewsPerSubmission))
	}
	if v != nil {
		s.state.Set(*v)
	}
	return s.Settings(), nil
}

func (s *Service) Settings() Settings {
	return Settings{ApiVersion: s.state.Get(), ReviewsPerSubmission: int(s.perSubmit.Load())}
}

// SubmitResult is the body of the /reviews route.
type SubmitResult struct {
	Published  int                `json:"published"`
	Failed     int                `json:"failed"`
	ApiVersion apiversion.Version `json:"ApiVersion"`
}

// Submit fetches ReviewsPerSubmission reviews at the current version and publishes each one.
// A failed fetch or publish is logged and counted, not returned.
func (s *Service) Submit(ctx context.Context) (SubmitResult, error) {
	v := s.state.Get()
	n := int(s.perSubmit.Load())
	log := logging.From(ctx)
	res := SubmitResult{ApiVersion: v}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		review, err := s.fetcher.Fetch(ctx, v)
		if err != nil {
			log.Warn("fetch review failed", zap.Stringer("api_version", v), zap.Error(err))
			res.Failed++
			continue
		}
		if err := s.publisher.Publish(ctx, reviewKey(review), review); err != nil {
			log.Error("publish review failed", zap.Error(err))
			res.Failed++
			continue
		}
		res.Published++
	}
	log.Info("reviews submitted",
		zap.Int("published", res.Published),
		zap.Int("failed", res.Failed),
		zap.Stringer("api_version", v),
	)
	return res, nil
}

func reviewKey(review json.RawMessage) []byte {
	var body struct {
		ReviewID string `json:"review_id"`
	}
	if err := json.Unmarshal(review, &body); err == nil && body.ReviewID != "" {
		return []byte(body.ReviewID)
	}
	return []byte(uuid.NewString())
}
