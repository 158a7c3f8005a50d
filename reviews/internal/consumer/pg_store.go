package consumer

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS enriched_reviews (
	id          uuid PRIMARY KEY,
	review_id   text,
	user_id     text NOT NULL,
	product_id  text NOT NULL,
	api_version integer NOT NULL,
	user_route  text NOT NULL,
	document    jsonb NOT NULL,
	archive_key text,
	consumed_at timestamptz NOT NULL
)`

// PGStore persists enriched reviews into Postgres.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// EnsureSchema creates the enriched_reviews table when it does not exist.
func (p *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create enriched_reviews: %w", err)
	}
	return nil
}

func (p *PGStore) InsertEnriched(ctx context.Context, r *Enriched) error {
	q := `
		INSERT INTO enriched_reviews (id, review_id, user_id, product_id, api_version, user_route, document, consumed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	reviewID := sql.NullString{String: r.ReviewID, Valid: r.ReviewID != ""}
	_, err := p.db.ExecContext(ctx, q, r.ID, reviewID, r.UserID, r.ProductID, int(r.ApiVersion), r.UserRoute, []byte(r.Document), r.ConsumedAt)
	if err != nil {
		return fmt.Errorf("insert enriched review: %w", err)
	}
	return nil
}

// MarkArchived records the object key an enriched review was archived under.
func (p *PGStore) MarkArchived(ctx context.Context, id, key string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE enriched_reviews SET archive_key = $1 WHERE id = $2`, key, id)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	return nil
}
