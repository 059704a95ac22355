package search

import (
	"context"
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

// Healthy always returns true since Postgres down means the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over name, description, and change summary,
// with ts_headline for snippets.
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

	where := "to_tsvector('english', v.name || ' ' || v.description || ' ' || v.change_summary) @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.FilterWorkflowID != "" {
		where += " AND v.workflow_id = $2"
		args = append(args, q.FilterWorkflowID)
	}

	countSQL := "SELECT count(*) FROM workflow_versions v WHERE " + where

	dataSQL := fmt.Sprintf(`
		SELECT v.id, v.workflow_id, v.version, v.name,
			ts_headline('english', coalesce(v.change_summary, '') || ' ' || coalesce(v.description, ''),
				plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM workflow_versions v
		WHERE %s
		ORDER BY ts_rank(to_tsvector('english', v.name || ' ' || v.description || ' ' || v.change_summary),
			plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.WorkflowID, &r.Version, &r.Name, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all version records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]VersionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, workflow_id, version, name, description, change_summary
		FROM workflow_versions
	`)
	if err != nil {
		return nil, fmt.Errorf("load versions: %w", err)
	}
	defer rows.Close()

	records := make([]VersionRecord, 0)
	for rows.Next() {
		var r VersionRecord
		if err := rows.Scan(&r.ID, &r.WorkflowID, &r.Version, &r.Name, &r.Description, &r.ChangeSummary); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return records, nil
}
