package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/config"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/geometry"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/panelid"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/positions"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/resolve"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/search"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/util"
)

// RecordStore persists as-built records.
type RecordStore interface {
	InsertAsbuiltRecord(ctx context.Context, rec store.AsbuiltRecord) (store.AsbuiltRecord, error)
	ListPanelRecords(ctx context.Context, projectID, panelID string) ([]store.AsbuiltRecord, error)
	ProjectSummary(ctx context.Context, projectID string) (store.ProjectSummary, error)
}

type dataStore interface {
	LayoutBackend
	RecordStore
	Ping(ctx context.Context) error
}

// PanelIndex is the label search backend; *search.Service implements it.
type PanelIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexLayout(projectID string, panels []store.Panel)
	RemovePanels(projectID string, panelIDs []string)
}

// ImportInput is one as-built record as delivered by the import pipeline.
// Identifier is the raw panel reference read off the source document.
type ImportInput struct {
	Identifier     string         `json:"identifier"`
	Domain         store.Domain   `json:"domain"`
	RawData        map[string]any `json:"rawData"`
	MappedData     map[string]any `json:"mappedData"`
	AIConfidence   float64        `json:"aiConfidence"`
	RequiresReview bool           `json:"requiresReview"`
}

type ImportResult struct {
	Record     store.AsbuiltRecord `json:"record"`
	Resolution resolve.Resolution  `json:"resolution"`
}

// Service keeps one LayoutSession per project and links as-built records to
// the panels of those sessions.
type Service struct {
	cfg      config.Config
	store    dataStore
	kv       positions.KV
	search   PanelIndex
	resolver *resolve.Resolver
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*LayoutSession
}

// New builds the service. kv and searchIndex may be nil: positions are then
// cached in memory only and label search scans the session panels.
func New(cfg config.Config, dataStore dataStore, kv positions.KV, searchIndex PanelIndex, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		kv:       kv,
		search:   searchIndex,
		logger:   logger,
		sessions: make(map[string]*LayoutSession),
	}
	s.resolver = resolve.New(s, logger)
	return s
}

// Session returns the loaded session of a project, creating it on first use.
func (s *Service) Session(ctx context.Context, projectID string) (*LayoutSession, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, domainError(http.StatusBadRequest, "BAD_REQUEST", "projectId is required", nil)
	}
	s.mu.Lock()
	sess, ok := s.sessions[projectID]
	if !ok {
		sess = NewLayoutSession(projectID, s.store, s.positionStore(projectID), s.cfg.Layout, s.logger)
		s.sessions[projectID] = sess
	}
	s.mu.Unlock()

	if err := sess.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) positionStore(projectID string) *positions.Store {
	opts := []positions.Option{
		positions.WithTTL(s.cfg.Layout.CacheTTL),
		positions.WithLogger(s.logger),
	}
	if s.cfg.Layout.CacheVersion > 0 {
		opts = append(opts, positions.WithVersion(s.cfg.Layout.CacheVersion))
	}
	return positions.NewStore(s.kv, projectID, opts...)
}

// ProjectPanels returns the in-memory panels of a project's session.
func (s *Service) ProjectPanels(ctx context.Context, projectID string) ([]store.Panel, error) {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return sess.Panels(), nil
}

func (s *Service) Layout(ctx context.Context, projectID string) (ReadModel, error) {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return ReadModel{}, err
	}
	return sess.ReadModel(), nil
}

// Reload re-reads the server copy. Unsaved positions survive in the position
// cache and win where they are newer; panels added since the last save are
// kept and leave the session dirty.
func (s *Service) Reload(ctx context.Context, projectID string) (ReadModel, error) {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return ReadModel{}, err
	}
	if err := sess.Load(ctx); err != nil {
		return ReadModel{}, err
	}
	return sess.ReadModel(), nil
}

func (s *Service) SetPanels(ctx context.Context, projectID string, panels []store.Panel) (ReadModel, error) {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return ReadModel{}, err
	}
	if err := sess.SetPanels(ctx, panels); err != nil {
		return ReadModel{}, err
	}
	return sess.ReadModel(), nil
}

func (s *Service) AddPanel(ctx context.Context, projectID string, panel store.Panel) (store.Panel, error) {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return store.Panel{}, err
	}
	return sess.AddPanel(ctx, panel)
}

func (s *Service) UpdatePanel(ctx context.Context, projectID, panelID string, update PanelUpdate) (store.Panel, error) {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return store.Panel{}, err
	}
	return sess.UpdatePanel(ctx, panelID, update)
}

func (s *Service) RemovePanel(ctx context.Context, projectID, panelID string) error {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return err
	}
	if err := sess.RemovePanel(ctx, panelID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.RemovePanels(projectID, []string{panelID})
	}
	return nil
}

func (s *Service) MovePanel(ctx context.Context, projectID, panelID string, delta geometry.Point) (GeometryOutcome, error) {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return GeometryOutcome{}, err
	}
	return sess.MovePanel(ctx, panelID, delta)
}

func (s *Service) ResizePanel(ctx context.Context, projectID, panelID string, handle geometry.Handle, dragStart, dragCurrent geometry.Point) (GeometryOutcome, error) {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return GeometryOutcome{}, err
	}
	return sess.ResizePanel(ctx, panelID, handle, dragStart, dragCurrent)
}

func (s *Service) BeginGesture(ctx context.Context, projectID, panelID string) error {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return err
	}
	return sess.BeginGesture(panelID)
}

func (s *Service) EndGesture(ctx context.Context, projectID, panelID string) error {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return err
	}
	sess.EndGesture(ctx, panelID)
	return nil
}

// Save persists the project's session and refreshes the label index.
func (s *Service) Save(ctx context.Context, projectID string) (ReadModel, error) {
	sess, err := s.Session(ctx, projectID)
	if err != nil {
		return ReadModel{}, err
	}
	if err := sess.Save(ctx); err != nil {
		return ReadModel{}, err
	}
	if s.search != nil {
		s.search.IndexLayout(projectID, sess.Panels())
	}
	return sess.ReadModel(), nil
}

// ResolvePanel maps a raw identifier to a panel of the project.
func (s *Service) ResolvePanel(ctx context.Context, projectID, identifier string) (resolve.Resolution, error) {
	if _, err := s.Session(ctx, projectID); err != nil {
		return resolve.Resolution{}, err
	}
	return s.resolver.Resolve(ctx, projectID, identifier), nil
}

// ImportRecord links one imported as-built record to a panel and stores it.
// The explicit identifier is tried first, then the panel fields of the
// record data. Unresolved and ambiguous records are flagged for review.
func (s *Service) ImportRecord(ctx context.Context, projectID string, input ImportInput) (ImportResult, error) {
	if !input.Domain.Valid() {
		return ImportResult{}, domainError(http.StatusBadRequest, "INVALID_DOMAIN", fmt.Sprintf("unknown domain %q", input.Domain), nil)
	}
	panels, err := s.ProjectPanels(ctx, projectID)
	if err != nil {
		return ImportResult{}, err
	}

	rec := store.AsbuiltRecord{
		ID:             util.NewID(""),
		ProjectID:      projectID,
		Domain:         input.Domain,
		RawData:        input.RawData,
		MappedData:     input.MappedData,
		AIConfidence:   input.AIConfidence,
		RequiresReview: input.RequiresReview,
	}

	var res resolve.Resolution
	if strings.TrimSpace(input.Identifier) != "" {
		res = s.resolver.Resolve(ctx, projectID, input.Identifier)
	}
	if !res.Found() {
		if fromData := resolve.ResolveRecordPanel(rec, panels); fromData.Found() || res.Canonical == "" {
			res = fromData
		}
	}
	if res.Found() {
		panelID := res.PanelID
		rec.PanelID = &panelID
	}
	if !res.Found() || res.Ambiguous() {
		rec.RequiresReview = true
	}

	stored, err := s.store.InsertAsbuiltRecord(ctx, rec)
	if err != nil {
		s.logger.Error("store as-built record", zap.String("project_id", projectID), zap.Error(err))
		return ImportResult{}, retryableError("RECORD_SAVE_FAILED", "Record could not be stored", err)
	}
	s.logger.Info("as-built record imported",
		zap.String("project_id", projectID),
		zap.String("record_id", stored.ID),
		zap.String("panel_id", res.PanelID),
		zap.String("method", string(res.Method)),
		zap.Bool("requires_review", stored.RequiresReview),
	)
	return ImportResult{Record: stored, Resolution: res}, nil
}

// CreateRecord stores a record whose panel link was decided by the caller.
// Records without a panel are always flagged for review.
func (s *Service) CreateRecord(ctx context.Context, rec store.AsbuiltRecord) (store.AsbuiltRecord, error) {
	if strings.TrimSpace(rec.ProjectID) == "" {
		return store.AsbuiltRecord{}, domainError(http.StatusBadRequest, "BAD_REQUEST", "projectId is required", nil)
	}
	if !rec.Domain.Valid() {
		return store.AsbuiltRecord{}, domainError(http.StatusBadRequest, "INVALID_DOMAIN", fmt.Sprintf("unknown domain %q", rec.Domain), nil)
	}
	if rec.ID == "" {
		rec.ID = util.NewID("")
	}
	if rec.PanelID != nil && strings.TrimSpace(*rec.PanelID) == "" {
		rec.PanelID = nil
	}
	if rec.PanelID == nil {
		rec.RequiresReview = true
	}
	return s.store.InsertAsbuiltRecord(ctx, rec)
}

func (s *Service) PanelRecords(ctx context.Context, projectID, panelID string) ([]store.AsbuiltRecord, error) {
	return s.store.ListPanelRecords(ctx, projectID, panelID)
}

func (s *Service) ProjectSummary(ctx context.Context, projectID string) (store.ProjectSummary, error) {
	return s.store.ProjectSummary(ctx, projectID)
}

// StoredLayout reads the persisted layout, bypassing any session.
func (s *Service) StoredLayout(ctx context.Context, projectID string) (store.Layout, error) {
	return s.store.GetLayout(ctx, projectID)
}

// SaveStoredLayout writes a layout directly to the store. It is refused while
// the project's session holds unsaved edits; otherwise the session is dropped
// so the next access reloads it.
func (s *Service) SaveStoredLayout(ctx context.Context, layout store.Layout) (time.Time, error) {
	if strings.TrimSpace(layout.ProjectID) == "" {
		return time.Time{}, domainError(http.StatusBadRequest, "BAD_REQUEST", "projectId is required", nil)
	}
	panels, migrated := store.MigrateLegacyPatches(layout.Panels)
	for i := range panels {
		panels[i].Normalize()
		panels[i].ProjectID = layout.ProjectID
	}
	panels = resolve.AssignDerivedIDs(layout.ProjectID, panels)
	seen := make(map[string]struct{}, len(panels))
	for i, p := range panels {
		if err := p.Validate(); err != nil {
			return time.Time{}, fmt.Errorf("panel %d: %w", i, err)
		}
		if _, dup := seen[p.ID]; dup {
			return time.Time{}, fmt.Errorf("panel %s: %w", p.ID, ErrDuplicatePanel)
		}
		seen[p.ID] = struct{}{}
	}
	layout.Panels = panels
	layout.Patches = append(layout.Patches, migrated...)

	// A session holding unsaved edits would overwrite this write on its next
	// save, so that session has to be saved first.
	s.mu.Lock()
	if sess, ok := s.sessions[layout.ProjectID]; ok {
		if state := sess.State(); state == StateDirty || state == StateSaving {
			s.mu.Unlock()
			return time.Time{}, fmt.Errorf("project %s: %w", layout.ProjectID, ErrUnsavedEdits)
		}
	}
	s.mu.Unlock()

	updated, err := s.store.SaveLayout(ctx, layout)
	if err != nil {
		return time.Time{}, err
	}
	s.mu.Lock()
	if sess, ok := s.sessions[layout.ProjectID]; ok {
		if state := sess.State(); state == StateDirty || state == StateSaving {
			s.logger.Warn("layout session edited during stored layout write",
				zap.String("project_id", layout.ProjectID),
				zap.String("state", string(state)))
		}
		delete(s.sessions, layout.ProjectID)
	}
	s.mu.Unlock()
	if s.search != nil {
		s.search.IndexLayout(layout.ProjectID, panels)
	}
	return updated, nil
}

// Search finds panels by label. Without a search backend the session panels
// are matched on their canonical labels.
func (s *Service) Search(ctx context.Context, projectID, text string, limit, offset int) (search.Response, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset = max(offset, 0)
	if s.search != nil {
		return s.search.Search(ctx, search.Query{ProjectID: projectID, Text: text, Limit: limit, Offset: offset}), nil
	}

	panels, err := s.ProjectPanels(ctx, projectID)
	if err != nil {
		return search.Response{}, err
	}
	canonical, _ := panelid.Normalize(text)
	resp := search.Response{Results: []search.Result{}, Query: text, Canonical: canonical}
	if canonical == "" {
		return resp, nil
	}
	var matches []search.Result
	for _, p := range panels {
		rec := search.NewPanelRecord(projectID, p)
		if rec.CanonicalPanel != canonical && rec.CanonicalRoll != canonical {
			continue
		}
		matches = append(matches, search.Result{
			PanelID:     p.ID,
			ProjectID:   projectID,
			PanelNumber: rec.PanelNumber,
			RollNumber:  rec.RollNumber,
			Canonical:   canonical,
		})
	}
	resp.Total = len(matches)
	if offset < len(matches) {
		resp.Results = matches[offset:min(offset+limit, len(matches))]
	}
	return resp, nil
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// FlushPositions writes every session's position cache, used on shutdown.
func (s *Service) FlushPositions(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*LayoutSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		if err := sess.positions.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", sess.projectID, err))
		}
	}
	return errors.Join(errs...)
}
