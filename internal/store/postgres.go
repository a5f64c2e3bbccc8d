package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/panelid"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLayout(ctx context.Context, projectID string) (Layout, error) {
	layout := Layout{ProjectID: projectID}
	err := s.db.QueryRowContext(ctx, `
		SELECT width, height, scale, updated_at
		FROM panel_layouts
		WHERE project_id=$1
	`, projectID).Scan(&layout.Width, &layout.Height, &layout.Scale, &layout.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return Layout{}, ErrNotFound
	}
	if err != nil {
		return Layout{}, fmt.Errorf("get layout: %w", err)
	}

	panels, err := s.listPanels(ctx, projectID)
	if err != nil {
		return Layout{}, err
	}
	patches, err := s.listPatches(ctx, projectID)
	if err != nil {
		return Layout{}, err
	}
	layout.Panels = panels
	layout.Patches = patches
	return layout, nil
}

func (s *PostgresStore) listPanels(ctx context.Context, projectID string) ([]Panel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shape, x, y, width, height, radius, rotation, panel_number, roll_number, updated_at
		FROM layout_panels
		WHERE project_id=$1
		ORDER BY sort_order ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list panels: %w", err)
	}
	defer rows.Close()

	items := make([]Panel, 0)
	for rows.Next() {
		var (
			item        Panel
			shape       string
			panelNumber sql.NullString
			rollNumber  sql.NullString
		)
		if err := rows.Scan(
			&item.ID,
			&shape,
			&item.X,
			&item.Y,
			&item.Width,
			&item.Height,
			&item.Radius,
			&item.Rotation,
			&panelNumber,
			&rollNumber,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan panel: %w", err)
		}
		item.ProjectID = projectID
		item.Shape = Shape(shape)
		item.PanelNumber = nullableString(panelNumber)
		item.RollNumber = nullableString(rollNumber)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate panels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) listPatches(ctx context.Context, projectID string) ([]Patch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, x, y, radius, rotation, patch_number, COALESCE(patch_date, ''), COALESCE(location, ''), COALESCE(material, ''), thickness, updated_at
		FROM layout_patches
		WHERE project_id=$1
		ORDER BY sort_order ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list patches: %w", err)
	}
	defer rows.Close()

	items := make([]Patch, 0)
	for rows.Next() {
		var item Patch
		if err := rows.Scan(
			&item.ID,
			&item.X,
			&item.Y,
			&item.Radius,
			&item.Rotation,
			&item.PatchNumber,
			&item.Date,
			&item.Location,
			&item.Material,
			&item.Thickness,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan patch: %w", err)
		}
		item.ProjectID = projectID
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patches: %w", err)
	}
	return items, nil
}

// SaveLayout replaces the project's panels and patches in one transaction
// and returns the new layout timestamp.
func (s *PostgresStore) SaveLayout(ctx context.Context, layout Layout) (time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("begin save layout: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var updatedAt time.Time
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO panel_layouts (project_id, width, height, scale)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id) DO UPDATE SET width=EXCLUDED.width, height=EXCLUDED.height, scale=EXCLUDED.scale, updated_at=NOW()
		RETURNING updated_at
	`, layout.ProjectID, layout.Width, layout.Height, layout.Scale).Scan(&updatedAt); err != nil {
		return time.Time{}, fmt.Errorf("upsert layout: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM layout_panels WHERE project_id=$1`, layout.ProjectID); err != nil {
		return time.Time{}, fmt.Errorf("clear panels: %w", err)
	}
	for i, panel := range layout.Panels {
		canonicalPanel, _ := panelid.Canonical(panel.PanelNumber)
		canonicalRoll, _ := panelid.Canonical(panel.RollNumber)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO layout_panels (id, project_id, sort_order, shape, x, y, width, height, radius, rotation, panel_number, roll_number, canonical_panel, canonical_roll, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), NULLIF($14, ''), $15)
		`, panel.ID, layout.ProjectID, i, string(panel.Shape), panel.X, panel.Y, panel.Width, panel.Height, panel.Radius, panel.Rotation,
			panel.PanelNumber, panel.RollNumber, canonicalPanel, canonicalRoll, timestampOr(panel.UpdatedAt, updatedAt)); err != nil {
			return time.Time{}, fmt.Errorf("insert panel %s: %w", panel.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM layout_patches WHERE project_id=$1`, layout.ProjectID); err != nil {
		return time.Time{}, fmt.Errorf("clear patches: %w", err)
	}
	for i, patch := range layout.Patches {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO layout_patches (id, project_id, sort_order, x, y, radius, rotation, patch_number, patch_date, location, material, thickness, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12, $13)
		`, patch.ID, layout.ProjectID, i, patch.X, patch.Y, patch.Radius, patch.Rotation, patch.PatchNumber,
			patch.Date, patch.Location, patch.Material, patch.Thickness, timestampOr(patch.UpdatedAt, updatedAt)); err != nil {
			return time.Time{}, fmt.Errorf("insert patch %s: %w", patch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("commit save layout: %w", err)
	}
	return updatedAt, nil
}

// FindPanelsByCanonicalLabel returns ids of panels whose canonical panel or
// roll label equals label, in layout order.
func (s *PostgresStore) FindPanelsByCanonicalLabel(ctx context.Context, projectID, label string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM layout_panels
		WHERE project_id=$1 AND (canonical_panel=$2 OR canonical_roll=$2)
		ORDER BY sort_order ASC
	`, projectID, label)
	if err != nil {
		return nil, fmt.Errorf("find panels by label: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan panel id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate panel ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) InsertAsbuiltRecord(ctx context.Context, record AsbuiltRecord) (AsbuiltRecord, error) {
	rawData, err := json.Marshal(nonNilMap(record.RawData))
	if err != nil {
		return AsbuiltRecord{}, fmt.Errorf("encode raw data: %w", err)
	}
	mappedData, err := json.Marshal(nonNilMap(record.MappedData))
	if err != nil {
		return AsbuiltRecord{}, fmt.Errorf("encode mapped data: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO asbuilt_records (id, project_id, panel_id, domain, raw_data, mapped_data, ai_confidence, requires_review)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8)
		RETURNING created_at, updated_at
	`, record.ID, record.ProjectID, record.PanelID, string(record.Domain), string(rawData), string(mappedData),
		record.AIConfidence, record.RequiresReview).Scan(&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return AsbuiltRecord{}, fmt.Errorf("insert asbuilt record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListPanelRecords(ctx context.Context, projectID, panelID string) ([]AsbuiltRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, panel_id, domain, raw_data::text, mapped_data::text, ai_confidence, requires_review, created_at, updated_at
		FROM asbuilt_records
		WHERE project_id=$1 AND panel_id=$2
		ORDER BY created_at ASC
	`, projectID, panelID)
	if err != nil {
		return nil, fmt.Errorf("list panel records: %w", err)
	}
	defer rows.Close()

	items := make([]AsbuiltRecord, 0)
	for rows.Next() {
		var (
			item       AsbuiltRecord
			panel      sql.NullString
			domain     string
			rawData    string
			mappedData string
		)
		if err := rows.Scan(
			&item.ID,
			&item.ProjectID,
			&panel,
			&domain,
			&rawData,
			&mappedData,
			&item.AIConfidence,
			&item.RequiresReview,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan asbuilt record: %w", err)
		}
		item.PanelID = nullableString(panel)
		item.Domain = Domain(domain)
		if err := json.Unmarshal([]byte(rawData), &item.RawData); err != nil {
			return nil, fmt.Errorf("decode raw data for %s: %w", item.ID, err)
		}
		if err := json.Unmarshal([]byte(mappedData), &item.MappedData); err != nil {
			return nil, fmt.Errorf("decode mapped data for %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asbuilt records: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ProjectSummary(ctx context.Context, projectID string) (ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT domain, COUNT(*), COUNT(panel_id), COUNT(*) FILTER (WHERE requires_review)
		FROM asbuilt_records
		WHERE project_id=$1
		GROUP BY domain
		ORDER BY domain ASC
	`, projectID)
	if err != nil {
		return ProjectSummary{}, fmt.Errorf("project summary: %w", err)
	}
	defer rows.Close()

	summary := ProjectSummary{ProjectID: projectID, Domains: make([]DomainCount, 0)}
	for rows.Next() {
		var (
			item   DomainCount
			domain string
		)
		if err := rows.Scan(&domain, &item.Total, &item.Linked, &item.RequiresReview); err != nil {
			return ProjectSummary{}, fmt.Errorf("scan project summary: %w", err)
		}
		item.Domain = Domain(domain)
		summary.TotalRecords += item.Total
		summary.LinkedRecords += item.Linked
		summary.RequiresReview += item.RequiresReview
		summary.Domains = append(summary.Domains, item)
	}
	if err := rows.Err(); err != nil {
		return ProjectSummary{}, fmt.Errorf("iterate project summary: %w", err)
	}
	return summary, nil
}

func nullableString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func timestampOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}
