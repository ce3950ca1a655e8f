package search

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PgFTS is the Postgres fallback: full-text search over design titles and
// owners against the same table the store writes.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Search matches the query against designs using websearch semantics, with
// a trailing ILIKE net for prefixes tsquery would miss.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const query = `
		SELECT id, title, owner_name, COUNT(*) OVER ()
		FROM designs
		WHERE to_tsvector('simple', title || ' ' || owner_name) @@ websearch_to_tsquery('simple', $1)
			OR title ILIKE '%' || $1 || '%'
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := p.db.QueryContext(ctx, query, q.Text, limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.OwnerName, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords reads every design for reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DesignRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, title, owner_name FROM designs`)
	if err != nil {
		return nil, fmt.Errorf("load design records: %w", err)
	}
	defer rows.Close()

	var records []DesignRecord
	for rows.Next() {
		var r DesignRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.OwnerName); err != nil {
			return nil, fmt.Errorf("scan design record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
