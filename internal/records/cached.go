package records

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cached is a read-through cache in front of a slower Store. Misses are not cached, so a record
// inserted later becomes visible on the next lookup.
type Cached struct {
	next Store
	c    *gocache.Cache
}

func NewCached(next Store, ttl time.Duration) *Cached {
	return &Cached{next: next, c: gocache.New(ttl, 2*ttl)}
}

func (c *Cached) Find(ctx context.Context, key string) (json.RawMessage, error) {
	if v, ok := c.c.Get(key); ok {
		return v.(json.RawMessage), nil
	}
	rec, err := c.next.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	c.c.SetDefault(key, rec)
	return rec, nil
}
