package search

import (
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the documents fts column, scoped to the
// tenant, with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const countSQL = `
		SELECT count(*)
		FROM documents d
		WHERE d.user_id = $1 AND d.fts @@ plainto_tsquery('english', $2)
	`
	var total int
	if err := p.db.QueryRow(countSQL, q.UserID, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT d.id, d.title,
			ts_headline('english', d.content, plainto_tsquery('english', $2), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM documents d
		WHERE d.user_id = $1 AND d.fts @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(d.fts, plainto_tsquery('english', $2)) DESC
		LIMIT %d OFFSET %d
	`, limit, offset)

	rows, err := p.db.Query(dataSQL, q.UserID, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search results: %w", err)
	}
	return results, total, nil
}
