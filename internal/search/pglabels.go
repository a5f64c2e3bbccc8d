package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgLabels searches panel labels in Postgres. It is the fallback when
// Meilisearch is not configured or unhealthy.
type PgLabels struct {
	db *sql.DB
}

func NewPgLabels(db *sql.DB) *PgLabels {
	return &PgLabels{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgLabels) Healthy() bool {
	return true
}

// Search matches the canonical label columns exactly when the query
// normalizes, otherwise the raw labels by substring.
func (p *PgLabels) Search(ctx context.Context, q Query) ([]Result, int, error) {
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

	where := "project_id=$1 AND (canonical_panel=$2 OR canonical_roll=$2)"
	arg := q.Canonical
	if arg == "" {
		where = "project_id=$1 AND (panel_number ILIKE $2 OR roll_number ILIKE $2)"
		arg = "%" + strings.TrimSpace(q.Text) + "%"
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, COALESCE(panel_number, ''), COALESCE(roll_number, ''), COALESCE(canonical_panel, ''), COALESCE(canonical_roll, ''), COUNT(*) OVER()
		FROM layout_panels
		WHERE %s
		ORDER BY sort_order ASC
		LIMIT $3 OFFSET $4
	`, where), q.ProjectID, arg, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search panel labels: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	total := 0
	for rows.Next() {
		rec := PanelRecord{ProjectID: q.ProjectID}
		if err := rows.Scan(&rec.PanelID, &rec.PanelNumber, &rec.RollNumber, &rec.CanonicalPanel, &rec.CanonicalRoll, &total); err != nil {
			return nil, 0, fmt.Errorf("scan panel label: %w", err)
		}
		results = append(results, resultFromRecord(rec, q.Canonical))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate panel labels: %w", err)
	}
	return results, total, nil
}
