package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PGStore looks records up in a table shaped (key text primary key, record jsonb).
type PGStore struct {
	db    *sql.DB
	query string
}

func NewPGStore(db *sql.DB, table string) (*PGStore, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PGStore{
		db:    db,
		query: fmt.Sprintf(`SELECT record FROM %s WHERE key = $1`, table),
	}, nil
}

func (p *PGStore) Find(ctx context.Context, key string) (json.RawMessage, error) {
	var rec []byte
	if err := p.db.QueryRowContext(ctx, p.query, key).Scan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query record: %w", err)
	}
	return rec, nil
}

func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
