// Package records implements the keyed lookup collaborators behind the lookup and review
// services: an in-memory index over JSON lines or CSV (read from disk or S3), a Postgres table,
// and a read-through cache.
package records

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is the normal outcome of a lookup with no matching record.
var ErrNotFound = errors.New("not found")

// Store finds one record by key. The returned bytes are the record as stored.
type Store interface {
	Find(ctx context.Context, key string) (json.RawMessage, error)
}
