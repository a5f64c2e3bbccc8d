package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/panelid"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres.
type Service struct {
	meili  *Meili
	pg     *PgLabels
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pg *PgLabels, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, pg: pg, logger: logger}
}

// Search normalizes the query text so that "R21" finds panel P021, then
// searches Meilisearch if healthy and Postgres otherwise.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Canonical, _ = panelid.Normalize(q.Text)
	empty := Response{Results: []Result{}, Query: q.Text, Canonical: q.Canonical}

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Canonical: q.Canonical}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
	}

	if s.pg == nil {
		return empty
	}
	results, total, err := s.pg.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres label search failed", zap.String("project_id", q.ProjectID), zap.Error(err))
		return empty
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Canonical: q.Canonical}
}

// IndexLayout indexes a project's panels (fire-and-forget to Meilisearch).
func (s *Service) IndexLayout(projectID string, panels []store.Panel) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records := make([]PanelRecord, 0, len(panels))
	for _, p := range panels {
		records = append(records, NewPanelRecord(projectID, p))
	}
	go func() {
		if err := s.meili.IndexPanels(records); err != nil {
			s.logger.Warn("index panels", zap.String("project_id", projectID), zap.Error(err))
		}
	}()
}

// RemovePanels drops panels from the index (fire-and-forget).
func (s *Service) RemovePanels(projectID string, panelIDs []string) {
	if s.meili == nil || !s.meili.Healthy() || len(panelIDs) == 0 {
		return
	}
	go func() {
		for _, id := range panelIDs {
			if err := s.meili.DeletePanel(DocID(projectID, id)); err != nil {
				s.logger.Warn("delete panel from index", zap.String("project_id", projectID), zap.String("panel_id", id), zap.Error(err))
			}
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
