// Package sampler picks canned reviews whose sentiment mix follows the caller's api_version:
// nominal versions draw mostly positive reviews, degraded versions mostly negative ones.
package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/frothly/episode-mesh/internal/apiversion"
	"github.com/frothly/episode-mesh/internal/records"
)

var ErrEmptyPool = errors.New("review pool is empty")

const (
	NominalPositiveChance  = 0.90
	DegradedPositiveChance = 0.10
)

// Sampler holds the two review pools. It is safe for concurrent use.
type Sampler struct {
	positive []json.RawMessage
	negative []json.RawMessage

	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a sampler over the given pools. Both pools must be non-empty. src may be nil for a
// time-seeded source.
func New(positive, negative []json.RawMessage, src rand.Source) (*Sampler, error) {
	if len(positive) == 0 {
		return nil, fmt.Errorf("positive: %w", ErrEmptyPool)
	}
	if len(negative) == 0 {
		return nil, fmt.Errorf("negative: %w", ErrEmptyPool)
	}
	if src == nil {
		src = rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())
	}
	return &Sampler{positive: positive, negative: negative, rnd: rand.New(src)}, nil
}

// Opener yields the contents of a named pool file.
type Opener func(ctx context.Context, name string) (io.Reader, error)

// Load reads both pools through open and builds a sampler.
func Load(ctx context.Context, open Opener, positiveName, negativeName string, src rand.Source) (*Sampler, error) {
	positive, err := readPool(ctx, open, positiveName)
	if err != nil {
		return nil, err
	}
	negative, err := readPool(ctx, open, negativeName)
	if err != nil {
		return nil, err
	}
	return New(positive, negative, src)
}

func readPool(ctx context.Context, open Opener, name string) ([]json.RawMessage, error) {
	r, err := open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	lines, err := records.ReadLines(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return lines, nil
}

// PositiveChance is the probability of drawing from the positive pool at version v.
func PositiveChance(v apiversion.Version) float64 {
	if v.Degraded() {
		return DegradedPositiveChance
	}
	return NominalPositiveChance
}

// Sample draws one review for v. The pool choice and the index are independent draws.
func (s *Sampler) Sample(v apiversion.Version) (review json.RawMessage, positive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool := s.negative
	if s.rnd.Float64() < PositiveChance(v) {
		pool, positive = s.positive, true
	}
	return pool[s.rnd.IntN(len(pool))], positive
}

// Sizes reports the number of reviews in each pool.
func (s *Sampler) Sizes() (positive, negative int) {
	return len(s.positive), len(s.negative)
}

// Stars extracts the numeric "stars" rating of a review, if present.
func Stars(review json.RawMessage) (float64, bool) {
	var body struct {
		Stars *json.Number `json:"stars"`
	}
	if err := json.Unmarshal(review, &body); err != nil || body.Stars == nil {
		return 0, false
	}
	f, err := body.Stars.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}
