package resolve

import (
	"context"

	"go.uber.org/zap"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

// PanelSource supplies the current panel collection of a project.
type PanelSource interface {
	ProjectPanels(ctx context.Context, projectID string) ([]store.Panel, error)
}

type Resolver struct {
	source PanelSource
	logger *zap.Logger
}

func New(source PanelSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, logger: logger}
}

// ResolvePanelID resolves identifier against the project's panels. A source
// failure is logged and reported as a miss.
func (r *Resolver) ResolvePanelID(ctx context.Context, projectID, identifier string) (string, bool) {
	res := r.Resolve(ctx, projectID, identifier)
	return res.PanelID, res.Found()
}

func (r *Resolver) Resolve(ctx context.Context, projectID, identifier string) Resolution {
	panels, err := r.source.ProjectPanels(ctx, projectID)
	if err != nil {
		r.logger.Warn("panel lookup failed",
			zap.String("project_id", projectID),
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		return Resolution{}
	}
	res := Resolve(projectID, identifier, panels)
	if res.Ambiguous() {
		r.logger.Warn("duplicate panel label",
			zap.String("project_id", projectID),
			zap.String("canonical", res.Canonical),
			zap.Strings("panel_ids", res.Duplicates),
		)
	}
	return res
}
