// Package latency turns an API version into the synthetic delay a dependent injects before
// serving a lookup.
package latency

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/frothly/episode-mesh/internal/apiversion"
)

// Degraded delays are drawn uniformly from [DegradedMin, DegradedMax) time units.
const (
	DegradedMin = 1.5
	DegradedMax = 2.2
)

// Policy maps a version to a delay. It is safe for concurrent use.
type Policy struct {
	unit time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPolicy returns a policy measuring delays in unit (one second when unit <= 0).
// src may be nil for a time-seeded source.
func NewPolicy(unit time.Duration, src rand.Source) *Policy {
	if unit <= 0 {
		unit = time.Second
	}
	if src == nil {
		src = rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())
	}
	return &Policy{unit: unit, rnd: rand.New(src)}
}

func (p *Policy) Unit() time.Duration {
	return p.unit
}

// Delay returns zero for nominal versions and a uniform draw in the degraded window otherwise.
func (p *Policy) Delay(v apiversion.Version) time.Duration {
	if !v.Degraded() {
		return 0
	}
	p.mu.Lock()
	f := p.rnd.Float64()
	p.mu.Unlock()
	units := DegradedMin + f*(DegradedMax-DegradedMin)
	return time.Duration(units * float64(p.unit))
}

// MaxDelay is the exclusive upper bound of any injected delay.
func (p *Policy) MaxDelay() time.Duration {
	return time.Duration(DegradedMax * float64(p.unit))
}

// Wait suspends the calling goroutine for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
