package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/config"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/geometry"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/positions"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/resolve"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

type fakeStore struct {
	getLayoutFn    func(context.Context, string) (store.Layout, error)
	saveLayoutFn   func(context.Context, store.Layout) (time.Time, error)
	insertRecordFn func(context.Context, store.AsbuiltRecord) (store.AsbuiltRecord, error)
	pingFn         func(context.Context) error

	mu        sync.Mutex
	layouts   map[string]store.Layout
	records   []store.AsbuiltRecord
	saveCalls int
}

func newFakeStore(layouts ...store.Layout) *fakeStore {
	fs := &fakeStore{layouts: make(map[string]store.Layout)}
	for _, l := range layouts {
		fs.layouts[l.ProjectID] = l
	}
	return fs
}

func (f *fakeStore) GetLayout(ctx context.Context, projectID string) (store.Layout, error) {
	if f.getLayoutFn != nil {
		return f.getLayoutFn(ctx, projectID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	layout, ok := f.layouts[projectID]
	if !ok {
		return store.Layout{}, store.ErrNotFound
	}
	layout.Panels = clonePanels(layout.Panels)
	return layout, nil
}

func (f *fakeStore) SaveLayout(ctx context.Context, layout store.Layout) (time.Time, error) {
	f.mu.Lock()
	f.saveCalls++
	f.mu.Unlock()
	if f.saveLayoutFn != nil {
		return f.saveLayoutFn(ctx, layout)
	}
	return f.storeLayout(layout), nil
}

func (f *fakeStore) storeLayout(layout store.Layout) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	layout.LastUpdated = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	f.layouts[layout.ProjectID] = layout
	return layout.LastUpdated
}

func (f *fakeStore) saved(projectID string) store.Layout {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.layouts[projectID]
}

func (f *fakeStore) InsertAsbuiltRecord(ctx context.Context, rec store.AsbuiltRecord) (store.AsbuiltRecord, error) {
	if f.insertRecordFn != nil {
		return f.insertRecordFn(ctx, rec)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.CreatedAt = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	rec.UpdatedAt = rec.CreatedAt
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeStore) ListPanelRecords(_ context.Context, projectID, panelID string) ([]store.AsbuiltRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.AsbuiltRecord{}
	for _, rec := range f.records {
		if rec.ProjectID == projectID && rec.PanelID != nil && *rec.PanelID == panelID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) ProjectSummary(_ context.Context, projectID string) (store.ProjectSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summary := store.ProjectSummary{ProjectID: projectID, Domains: []store.DomainCount{}}
	for _, rec := range f.records {
		if rec.ProjectID != projectID {
			continue
		}
		summary.TotalRecords++
		if rec.PanelID != nil {
			summary.LinkedRecords++
		}
		if rec.RequiresReview {
			summary.RequiresReview++
		}
	}
	return summary, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func strPtr(s string) *string { return &s }

func testSettings() config.Layout {
	return config.Layout{
		CellSize:      200,
		SnapThreshold: 5,
		MinWidth:      1,
		MinHeight:     1,
		PixelsPerFoot: 1,
		DefaultWidth:  40,
		DefaultHeight: 100,
		CacheTTL:      time.Hour,
		CacheVersion:  1,
	}
}

func newTestService(fs *fakeStore, kv positions.KV) *Service {
	return New(config.Config{Layout: testSettings()}, fs, kv, nil, zap.NewNop())
}

func scenarioLayout() store.Layout {
	return store.Layout{
		ProjectID: "proj-1",
		Panels: []store.Panel{
			{ID: "u1", Shape: store.ShapeRectangle, X: 0, Y: 0, Width: 20, Height: 100, PanelNumber: strPtr("21")},
		},
	}
}

func TestImportRecordResolvesRollIdentifier(t *testing.T) {
	fs := newFakeStore(scenarioLayout())
	svc := newTestService(fs, nil)

	linked, err := svc.ImportRecord(t.Context(), "proj-1", ImportInput{Identifier: "R21", Domain: store.DomainPanelPlacement})
	require.NoError(t, err)
	require.NotNil(t, linked.Record.PanelID)
	assert.Equal(t, "u1", *linked.Record.PanelID)
	assert.False(t, linked.Record.RequiresReview)
	assert.Equal(t, resolve.MethodLabel, linked.Resolution.Method)

	unlinked, err := svc.ImportRecord(t.Context(), "proj-1", ImportInput{Identifier: "99", Domain: store.DomainPanelPlacement})
	require.NoError(t, err)
	assert.Nil(t, unlinked.Record.PanelID)
	assert.True(t, unlinked.Record.RequiresReview)
	assert.Equal(t, "P099", unlinked.Resolution.Canonical)

	assert.Len(t, fs.records, 2)
	assert.NotEmpty(t, fs.records[0].ID)
	assert.NotEqual(t, fs.records[0].ID, fs.records[1].ID)
}

func TestImportRecordFallsBackToRecordData(t *testing.T) {
	fs := newFakeStore(scenarioLayout())
	svc := newTestService(fs, nil)

	result, err := svc.ImportRecord(t.Context(), "proj-1", ImportInput{
		Domain:     store.DomainPanelSeaming,
		MappedData: map[string]any{"panelNumber": "P-021", "seamer": "JD"},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Record.PanelID)
	assert.Equal(t, "u1", *result.Record.PanelID)
	assert.False(t, result.Record.RequiresReview)
}

func TestImportRecordDuplicateLabelNeedsReview(t *testing.T) {
	layout := scenarioLayout()
	layout.Panels = append(layout.Panels, store.Panel{ID: "u2", Shape: store.ShapeRectangle, X: 40, Width: 20, Height: 100, PanelNumber: strPtr("P021")})
	svc := newTestService(newFakeStore(layout), nil)

	result, err := svc.ImportRecord(t.Context(), "proj-1", ImportInput{Identifier: "21", Domain: store.DomainRepairs})
	require.NoError(t, err)
	require.NotNil(t, result.Record.PanelID)
	assert.Equal(t, "u1", *result.Record.PanelID)
	assert.True(t, result.Record.RequiresReview)
	assert.Equal(t, []string{"u1", "u2"}, result.Resolution.Duplicates)
}

func TestImportRecordKeepsCallerReviewFlag(t *testing.T) {
	svc := newTestService(newFakeStore(scenarioLayout()), nil)

	result, err := svc.ImportRecord(t.Context(), "proj-1", ImportInput{Identifier: "u1", Domain: store.DomainTrialWeld, RequiresReview: true})
	require.NoError(t, err)
	assert.Equal(t, resolve.MethodExactID, result.Resolution.Method)
	assert.True(t, result.Record.RequiresReview)
}

func TestImportRecordRejectsUnknownDomain(t *testing.T) {
	svc := newTestService(newFakeStore(scenarioLayout()), nil)

	_, err := svc.ImportRecord(t.Context(), "proj-1", ImportInput{Identifier: "R21", Domain: "weather"})
	var domainErr *DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, http.StatusBadRequest, domainErr.Status)
	assert.Equal(t, "INVALID_DOMAIN", domainErr.Code)
}

func TestImportRecordStoreFailureIsRetryable(t *testing.T) {
	cause := errors.New("connection reset")
	fs := newFakeStore(scenarioLayout())
	fs.insertRecordFn = func(context.Context, store.AsbuiltRecord) (store.AsbuiltRecord, error) {
		return store.AsbuiltRecord{}, cause
	}
	svc := newTestService(fs, nil)

	_, err := svc.ImportRecord(t.Context(), "proj-1", ImportInput{Identifier: "R21", Domain: store.DomainDestructive})
	var domainErr *DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.True(t, domainErr.Retryable)
	assert.True(t, errors.Is(err, cause))
}

func TestCreateRecordWithoutPanelRequiresReview(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, nil)

	rec, err := svc.CreateRecord(t.Context(), store.AsbuiltRecord{ProjectID: "proj-1", PanelID: strPtr(" "), Domain: store.DomainNonDestructive})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Nil(t, rec.PanelID)
	assert.True(t, rec.RequiresReview)

	_, err = svc.CreateRecord(t.Context(), store.AsbuiltRecord{Domain: store.DomainNonDestructive})
	assert.Error(t, err)
}

func TestPanelRecordsAndSummary(t *testing.T) {
	fs := newFakeStore(scenarioLayout())
	svc := newTestService(fs, nil)

	_, err := svc.ImportRecord(t.Context(), "proj-1", ImportInput{Identifier: "R21", Domain: store.DomainPanelPlacement})
	require.NoError(t, err)
	_, err = svc.ImportRecord(t.Context(), "proj-1", ImportInput{Identifier: "nope", Domain: store.DomainPanelPlacement})
	require.NoError(t, err)

	records, err := svc.PanelRecords(t.Context(), "proj-1", "u1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	summary, err := svc.ProjectSummary(t.Context(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalRecords)
	assert.Equal(t, 1, summary.LinkedRecords)
	assert.Equal(t, 1, summary.RequiresReview)
}

func TestResolvePanel(t *testing.T) {
	svc := newTestService(newFakeStore(scenarioLayout()), nil)

	res, err := svc.ResolvePanel(t.Context(), "proj-1", "panel #21")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.PanelID)

	res, err = svc.ResolvePanel(t.Context(), "proj-1", "")
	require.NoError(t, err)
	assert.False(t, res.Found())

	_, err = svc.ResolvePanel(t.Context(), " ", "R21")
	assert.Error(t, err)
}

func TestSearchWithoutIndexMatchesCanonicalLabels(t *testing.T) {
	layout := scenarioLayout()
	layout.Panels = append(layout.Panels, store.Panel{ID: "u2", Shape: store.ShapeRectangle, X: 40, Width: 20, Height: 100, RollNumber: strPtr("R7")})
	svc := newTestService(newFakeStore(layout), nil)

	resp, err := svc.Search(t.Context(), "proj-1", "R21", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "P021", resp.Canonical)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "u1", resp.Results[0].PanelID)

	resp, err = svc.Search(t.Context(), "proj-1", "7", 0, 0)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "u2", resp.Results[0].PanelID)

	resp, err = svc.Search(t.Context(), "proj-1", "no digits", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSaveStoredLayoutDropsCleanSession(t *testing.T) {
	fs := newFakeStore(scenarioLayout())
	svc := newTestService(fs, nil)

	_, err := svc.Layout(t.Context(), "proj-1")
	require.NoError(t, err)

	layout := scenarioLayout()
	layout.Panels = append(layout.Panels,
		store.Panel{ID: "u2", Shape: store.ShapeRectangle, X: 40, Width: 20, Height: 100, Rotation: -90},
		store.Panel{ID: "patch-1", Shape: store.ShapeLegacyPatch, X: 5, Y: 5, Radius: 2, PanelNumber: strPtr("PA-1")},
	)
	_, err = svc.SaveStoredLayout(t.Context(), layout)
	require.NoError(t, err)

	saved := fs.saved("proj-1")
	require.Len(t, saved.Panels, 2)
	assert.Equal(t, 270.0, saved.Panels[1].Rotation)
	require.Len(t, saved.Patches, 1)
	assert.Equal(t, "PA-1", saved.Patches[0].PatchNumber)

	model, err := svc.Layout(t.Context(), "proj-1")
	require.NoError(t, err)
	assert.Len(t, model.Panels, 2)
}

func TestSaveStoredLayoutRejectsInvalidPanel(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)

	_, err := svc.SaveStoredLayout(t.Context(), store.Layout{
		ProjectID: "proj-1",
		Panels:    []store.Panel{{ID: "bad", Shape: store.ShapeRectangle, Width: -1, Height: 10}},
	})
	assert.True(t, errors.Is(err, store.ErrInvalidPanel))
}

func TestSaveStoredLayoutRejectsDuplicateIDs(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, nil)

	_, err := svc.SaveStoredLayout(t.Context(), store.Layout{
		ProjectID: "proj-1",
		Panels:    []store.Panel{rect("a", 0, 0, 10, 10), rect("a", 50, 0, 10, 10)},
	})
	require.ErrorIs(t, err, ErrDuplicatePanel)
	assert.Zero(t, fs.saveCalls)

	status, code, _, _ := mapError(err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_PANEL", code)
}

func TestSaveStoredLayoutRefusedWhileSessionDirty(t *testing.T) {
	fs := newFakeStore(twoPanelLayout())
	svc := newTestService(fs, nil)

	_, err := svc.MovePanel(t.Context(), "proj-1", "a", geometry.Point{X: 10, Y: 20})
	require.NoError(t, err)

	overwrite := twoPanelLayout()
	overwrite.Panels = overwrite.Panels[:1]
	_, err = svc.SaveStoredLayout(t.Context(), overwrite)
	require.ErrorIs(t, err, ErrUnsavedEdits)
	assert.Zero(t, fs.saveCalls)
	status, code, _, _ := mapError(err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "UNSAVED_EDITS", code)

	_, err = svc.Save(t.Context(), "proj-1")
	require.NoError(t, err)
	_, err = svc.SaveStoredLayout(t.Context(), overwrite)
	require.NoError(t, err)

	model, err := svc.Layout(t.Context(), "proj-1")
	require.NoError(t, err)
	require.Len(t, model.Panels, 1)
	assert.Equal(t, StateReady, model.State)
}

func TestPingMethod(t *testing.T) {
	tests := []struct {
		name      string
		pingError error
		wantError bool
	}{
		{
			name:      "healthy database",
			pingError: nil,
			wantError: false,
		},
		{
			name:      "unhealthy database",
			pingError: errors.New("connection failed"),
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeStore()
			fs.pingFn = func(context.Context) error {
				return tt.pingError
			}
			svc := newTestService(fs, nil)

			err := svc.Ping(context.Background())
			if (err != nil) != tt.wantError {
				t.Errorf("Ping() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}
