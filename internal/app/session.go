package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/config"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/geometry"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/positions"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/resolve"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/spatial"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
	"github.com/dtaplin21/DellSystemManager-sub008/internal/util"
)

type SessionState string

const (
	StateLoading SessionState = "loading"
	StateReady   SessionState = "ready"
	StateDirty   SessionState = "dirty"
	StateSaving  SessionState = "saving"
)

// LayoutBackend persists whole project layouts. *store.PostgresStore and
// *layoutclient.Client implement it.
type LayoutBackend interface {
	GetLayout(ctx context.Context, projectID string) (store.Layout, error)
	SaveLayout(ctx context.Context, layout store.Layout) (time.Time, error)
}

// PanelUpdate carries the fields of a partial panel edit. Nil fields are left
// alone; an empty label clears it.
type PanelUpdate struct {
	Shape       *store.Shape `json:"shape"`
	X           *float64     `json:"x"`
	Y           *float64     `json:"y"`
	Width       *float64     `json:"width"`
	Height      *float64     `json:"height"`
	Radius      *float64     `json:"radius"`
	Rotation    *float64     `json:"rotation"`
	PanelNumber *string      `json:"panelNumber"`
	RollNumber  *string      `json:"rollNumber"`
}

func (u PanelUpdate) apply(p *store.Panel) {
	if u.Shape != nil {
		p.Shape = *u.Shape
	}
	for _, f := range []struct {
		src *float64
		dst *float64
	}{{u.X, &p.X}, {u.Y, &p.Y}, {u.Width, &p.Width}, {u.Height, &p.Height}, {u.Radius, &p.Radius}, {u.Rotation, &p.Rotation}} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	if u.PanelNumber != nil {
		p.PanelNumber = label(*u.PanelNumber)
	}
	if u.RollNumber != nil {
		p.RollNumber = label(*u.RollNumber)
	}
}

func label(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// GeometryOutcome is the committed (or rejected) result of a move or resize.
type GeometryOutcome struct {
	Panel      store.Panel     `json:"panel"`
	Result     geometry.Result `json:"result"`
	Violations []string        `json:"violations,omitempty"`
}

// ReadModel is the view of a session handed to clients.
type ReadModel struct {
	ProjectID   string                     `json:"projectId"`
	State       SessionState               `json:"state"`
	Revision    uint64                     `json:"revision"`
	Panels      []store.Panel              `json:"panels"`
	Patches     []store.Patch              `json:"patches"`
	Width       float64                    `json:"width"`
	Height      float64                    `json:"height"`
	Scale       float64                    `json:"scale"`
	LastUpdated time.Time                  `json:"lastUpdated"`
	PixelBounds map[string]geometry.Bounds `json:"pixelBounds"`
	Duplicates  []resolve.DuplicateLabel   `json:"duplicates"`
	Unsynced    []string                   `json:"unsynced"`
}

type gesture struct {
	panelID string
	initial geometry.Bounds
}

// LayoutSession owns the panel set of one project. Every mutation goes
// through it; mu is never held across backend or cache I/O.
type LayoutSession struct {
	projectID string
	backend   LayoutBackend
	positions *positions.Store
	settings  config.Layout
	logger    *zap.Logger
	now       func() time.Time

	loadMu sync.Mutex

	mu          sync.Mutex
	state       SessionState
	loaded      bool
	panels      []store.Panel
	patches     []store.Patch
	width       float64
	height      float64
	scale       float64
	lastUpdated time.Time

	index      *spatial.Index
	indexed    map[string]geometry.Bounds
	gesture    *gesture
	staleIndex bool

	revision uint64
	// editedAt holds the revision of each panel's last unsaved edit.
	editedAt map[string]uint64

	saving        bool
	saveRequested bool
	saveWaiters   []chan error
}

// NewLayoutSession creates an unloaded session. A nil cache keeps positions
// in memory only.
func NewLayoutSession(projectID string, backend LayoutBackend, cache *positions.Store, settings config.Layout, logger *zap.Logger) *LayoutSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = positions.NewStore(nil, projectID, positions.WithLogger(logger))
	}
	return &LayoutSession{
		projectID: projectID,
		backend:   backend,
		positions: cache,
		settings:  settings,
		logger:    logger.With(zap.String("project_id", projectID)),
		now:       time.Now,
		state:     StateLoading,
		index:     spatial.New(settings.CellSize),
		indexed:   make(map[string]geometry.Bounds),
		editedAt:  make(map[string]uint64),
	}
}

func (s *LayoutSession) ProjectID() string { return s.projectID }

// Load fetches the layout and the position cache concurrently, reconciles
// them and rebuilds the spatial index. Cache failures are logged and the
// session continues without cached positions.
func (s *LayoutSession) Load(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.load(ctx)
}

// EnsureLoaded loads the session unless a previous load succeeded.
func (s *LayoutSession) EnsureLoaded(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}
	return s.load(ctx)
}

func (s *LayoutSession) load(ctx context.Context) error {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return domainError(http.StatusConflict, "SAVE_IN_PROGRESS", "Layout is being saved", nil)
	}
	previousState := s.state
	previous := clonePanels(s.panels)
	s.state = StateLoading
	s.mu.Unlock()

	var layout store.Layout
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched, err := s.backend.GetLayout(gctx, s.projectID)
		if errors.Is(err, store.ErrNotFound) {
			layout = store.Layout{ProjectID: s.projectID}
			return nil
		}
		if err != nil {
			return fmt.Errorf("get layout: %w", err)
		}
		layout = fetched
		return nil
	})
	g.Go(func() error {
		if err := s.positions.Init(gctx); err != nil {
			s.logger.Warn("position cache unavailable", zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.mu.Lock()
		if s.loaded {
			s.state = previousState
		}
		s.mu.Unlock()
		s.logger.Error("layout load failed", zap.Error(err))
		return retryableError("LAYOUT_UNAVAILABLE", "Layout could not be loaded", err)
	}

	panels, migrated := store.MigrateLegacyPatches(layout.Panels)
	for i := range panels {
		panels[i].Normalize()
		panels[i].ProjectID = s.projectID
	}
	panels = resolve.AssignDerivedIDs(s.projectID, panels)
	patches := append(append([]store.Patch(nil), layout.Patches...), migrated...)

	renamed := resolve.ReconcileDerivedIDs(s.projectID, previous, panels)
	for oldID, newID := range renamed {
		pos, ok := s.positions.Get(oldID)
		if !ok {
			continue
		}
		s.positions.Remove(oldID)
		if _, exists := s.positions.Get(newID); !exists {
			s.positions.UpdateCachedPosition(newID, pos, pos.BackendSynced)
		}
	}

	merged := positions.MergePositions(panels, s.positions.Positions())
	s.positions.Replace(merged)
	var pending []string
	for i := range panels {
		p := &panels[i]
		pos, ok := merged[p.ID]
		if !ok || (pos.X == p.X && pos.Y == p.Y && pos.Rotation == p.Rotation) {
			continue
		}
		p.X, p.Y, p.Rotation = pos.X, pos.Y, geometry.NormalizeRotation(pos.Rotation)
		if pos.BackendSynced {
			s.positions.UpdateCachedPosition(p.ID, pos, false)
		}
		pending = append(pending, p.ID)
	}

	// Panels added here but never saved are missing from the server copy;
	// they come through whole as long as their position is still unsynced.
	onServer := make(map[string]struct{}, len(panels))
	for _, p := range panels {
		onServer[p.ID] = struct{}{}
	}
	carried := 0
	for _, p := range previous {
		if _, ok := onServer[p.ID]; ok {
			continue
		}
		if _, ok := renamed[p.ID]; ok {
			continue
		}
		pos, ok := merged[p.ID]
		if !ok || pos.BackendSynced {
			continue
		}
		p.X, p.Y, p.Rotation = pos.X, pos.Y, geometry.NormalizeRotation(pos.Rotation)
		panels = append(panels, p)
		pending = append(pending, p.ID)
		carried++
	}

	scale := layout.Scale
	if scale <= 0 {
		scale = s.settings.PixelsPerFoot
	}

	s.mu.Lock()
	s.panels = panels
	s.patches = patches
	s.width, s.height, s.scale = layout.Width, layout.Height, scale
	s.lastUpdated = layout.LastUpdated
	s.gesture = nil
	s.revision++
	s.editedAt = make(map[string]uint64, len(pending))
	for _, id := range pending {
		s.editedAt[id] = s.revision
	}
	s.state = StateReady
	if len(pending) > 0 || len(migrated) > 0 {
		s.state = StateDirty
	}
	s.loaded = true
	s.rebuildIndexLocked()
	s.mu.Unlock()

	s.flush(ctx)
	s.logger.Info("layout loaded",
		zap.Int("panel_count", len(panels)),
		zap.Int("patch_count", len(patches)),
		zap.Int("cached_wins", len(pending)-carried),
		zap.Int("unsaved_panels", carried),
		zap.Int("migrated_patches", len(migrated)),
	)
	return nil
}

func (s *LayoutSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *LayoutSession) Panels() []store.Panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePanels(s.panels)
}

func (s *LayoutSession) Patches() []store.Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Patch{}, s.patches...)
}

func (s *LayoutSession) ReadModel() ReadModel {
	unsynced := s.positions.UnsyncedPositions()

	s.mu.Lock()
	defer s.mu.Unlock()
	model := ReadModel{
		ProjectID:   s.projectID,
		State:       s.state,
		Revision:    s.revision,
		Panels:      clonePanels(s.panels),
		Patches:     append([]store.Patch{}, s.patches...),
		Width:       s.width,
		Height:      s.height,
		Scale:       s.scale,
		LastUpdated: s.lastUpdated,
		PixelBounds: make(map[string]geometry.Bounds, len(s.panels)),
		Duplicates:  resolve.FindDuplicateLabels(s.panels),
		Unsynced:    make([]string, 0, len(unsynced)),
	}
	for _, p := range s.panels {
		model.PixelBounds[p.ID] = geometry.BoundsToPixels(p.Bounds(), s.scale)
	}
	for id := range unsynced {
		model.Unsynced = append(model.Unsynced, id)
	}
	sort.Strings(model.Unsynced)
	if model.Duplicates == nil {
		model.Duplicates = []resolve.DuplicateLabel{}
	}
	return model
}

// SetPanels replaces the whole panel set. Legacy patch panels are split out
// into patches and panels without an id get a derived one.
func (s *LayoutSession) SetPanels(ctx context.Context, panels []store.Panel) error {
	kept, migrated := store.MigrateLegacyPatches(clonePanels(panels))
	for i := range kept {
		kept[i].Normalize()
		kept[i].ProjectID = s.projectID
	}
	kept = resolve.AssignDerivedIDs(s.projectID, kept)
	seen := make(map[string]struct{}, len(kept))
	for i, p := range kept {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("panel %d: %w", i, err)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("panel %s: %w", p.ID, ErrDuplicatePanel)
		}
		seen[p.ID] = struct{}{}
	}

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.gesture != nil {
		s.mu.Unlock()
		return ErrGestureActive
	}
	for _, p := range s.panels {
		if _, ok := seen[p.ID]; !ok {
			s.positions.Remove(p.ID)
			delete(s.editedAt, p.ID)
		}
	}
	now := s.now()
	ids := make([]string, 0, len(kept))
	for i := range kept {
		kept[i].UpdatedAt = now.UTC()
		s.cachePositionLocked(kept[i], now)
		ids = append(ids, kept[i].ID)
	}
	s.panels = kept
	s.patches = append(s.patches, migrated...)
	s.touchLocked(ids...)
	s.rebuildIndexLocked()
	s.mu.Unlock()

	s.flush(ctx)
	return nil
}

// AddPanel inserts a new panel at the first free spot at or after its
// requested position. Missing sizes take the configured defaults.
func (s *LayoutSession) AddPanel(ctx context.Context, p store.Panel) (store.Panel, error) {
	p.Normalize()
	p.ProjectID = s.projectID
	if p.ID == "" {
		p.ID = util.NewID("")
	}
	switch p.Shape {
	case store.ShapeCircle:
		if p.Radius == 0 {
			p.Radius = s.settings.DefaultWidth / 2
		}
	default:
		if p.Width == 0 {
			p.Width = s.settings.DefaultWidth
		}
		if p.Height == 0 {
			p.Height = s.settings.DefaultHeight
		}
	}
	if err := p.Validate(); err != nil {
		return store.Panel{}, err
	}

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return store.Panel{}, err
	}
	if s.find(p.ID) >= 0 {
		s.mu.Unlock()
		return store.Panel{}, fmt.Errorf("panel %s: %w", p.ID, ErrDuplicatePanel)
	}
	occupied := make([]geometry.Bounds, 0, len(s.panels))
	for _, other := range s.panels {
		occupied = append(occupied, other.Bounds())
	}
	placed, ok := geometry.PlaceWithoutOverlap(p.Bounds(), occupied, geometry.Placement{
		Container: s.containerLocked(),
		Gap:       s.settings.PlacementGap,
	})
	if !ok {
		s.mu.Unlock()
		return store.Panel{}, &ConstraintError{PanelID: p.ID, Violations: []string{"no free position inside the layout area"}}
	}
	p.SetBounds(placed)
	now := s.now()
	p.UpdatedAt = now.UTC()
	s.panels = append(s.panels, p)
	s.cachePositionLocked(p, now)
	s.touchLocked(p.ID)
	s.rebuildIndexLocked()
	s.mu.Unlock()

	s.flush(ctx)
	s.logger.Debug("panel added", zap.String("panel_id", p.ID))
	return p, nil
}

// UpdatePanel applies a partial edit. Geometry changes are checked against
// the layout limits before they are committed.
func (s *LayoutSession) UpdatePanel(ctx context.Context, id string, update PanelUpdate) (store.Panel, error) {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return store.Panel{}, err
	}
	i := s.find(id)
	if i < 0 {
		s.mu.Unlock()
		return store.Panel{}, ErrPanelNotFound
	}
	current := s.panels[i]
	next := current
	update.apply(&next)
	next.Normalize()
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return store.Panel{}, err
	}
	if next.Bounds() != current.Bounds() {
		if violations := geometry.ValidateResizeResult(next.Bounds(), s.constraintsLocked(next)); len(violations) > 0 {
			s.mu.Unlock()
			return store.Panel{}, &ConstraintError{PanelID: id, Violations: violations}
		}
	}
	now := s.now()
	next.UpdatedAt = now.UTC()
	s.panels[i] = next
	s.touchLocked(id)
	if next.X != current.X || next.Y != current.Y || next.Rotation != current.Rotation {
		s.cachePositionLocked(next, now)
	}
	s.reindexLocked(id, next.Bounds())
	s.mu.Unlock()

	s.flush(ctx)
	return next, nil
}

func (s *LayoutSession) RemovePanel(ctx context.Context, id string) error {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.find(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrPanelNotFound
	}
	if s.gesture != nil && s.gesture.panelID == id {
		s.gesture = nil
	}
	s.panels = append(s.panels[:i:i], s.panels[i+1:]...)
	s.positions.Remove(id)
	s.touchLocked()
	delete(s.editedAt, id)
	s.rebuildIndexLocked()
	s.mu.Unlock()

	s.flush(ctx)
	return nil
}

// BeginGesture starts a drag on one panel. Until EndGesture the spatial index
// is frozen and drag deltas are taken relative to the panel's bounds at the
// start of the gesture.
func (s *LayoutSession) BeginGesture(panelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	i := s.find(panelID)
	if i < 0 {
		return ErrPanelNotFound
	}
	if s.gesture != nil && s.gesture.panelID != panelID {
		return ErrGestureActive
	}
	s.gesture = &gesture{panelID: panelID, initial: s.panels[i].Bounds()}
	return nil
}

// EndGesture finishes a drag and applies any deferred index updates.
func (s *LayoutSession) EndGesture(ctx context.Context, panelID string) {
	s.mu.Lock()
	if s.gesture == nil || s.gesture.panelID != panelID {
		s.mu.Unlock()
		return
	}
	s.gesture = nil
	if s.staleIndex {
		s.rebuildIndexLocked()
	}
	s.mu.Unlock()

	s.flush(ctx)
}

// MovePanel translates a panel by delta with grid and neighbor snapping.
func (s *LayoutSession) MovePanel(ctx context.Context, id string, delta geometry.Point) (GeometryOutcome, error) {
	return s.applyGeometry(ctx, id, func(initial geometry.Bounds, c geometry.Constraints) (geometry.Result, error) {
		return geometry.ComputeMove(initial, delta, c)
	})
}

// ResizePanel drags one handle of a panel from dragStart to dragCurrent.
// Circles always keep a 1:1 aspect.
func (s *LayoutSession) ResizePanel(ctx context.Context, id string, handle geometry.Handle, dragStart, dragCurrent geometry.Point) (GeometryOutcome, error) {
	return s.applyGeometry(ctx, id, func(initial geometry.Bounds, c geometry.Constraints) (geometry.Result, error) {
		return geometry.ComputeResize(handle, dragStart, dragCurrent, initial, c)
	})
}

func (s *LayoutSession) applyGeometry(ctx context.Context, id string, compute func(geometry.Bounds, geometry.Constraints) (geometry.Result, error)) (GeometryOutcome, error) {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return GeometryOutcome{}, err
	}
	i := s.find(id)
	if i < 0 {
		s.mu.Unlock()
		return GeometryOutcome{}, ErrPanelNotFound
	}
	panel := s.panels[i]
	initial := panel.Bounds()
	if s.gesture != nil && s.gesture.panelID == id {
		initial = s.gesture.initial
	}
	c := s.constraintsLocked(panel)
	result, err := compute(initial, c)
	if err != nil {
		s.mu.Unlock()
		return GeometryOutcome{}, err
	}
	outcome := GeometryOutcome{Panel: panel, Result: result}
	if violations := geometry.ValidateResizeResult(result.Bounds, c); len(violations) > 0 {
		s.mu.Unlock()
		outcome.Violations = violations
		return outcome, &ConstraintError{PanelID: id, Violations: violations}
	}

	now := s.now()
	panel.SetBounds(result.Bounds)
	panel.UpdatedAt = now.UTC()
	s.panels[i] = panel
	s.cachePositionLocked(panel, now)
	s.touchLocked(id)
	s.reindexLocked(id, panel.Bounds())
	inGesture := s.gesture != nil
	s.mu.Unlock()

	if !inGesture {
		s.flush(ctx)
	}
	outcome.Panel = panel
	return outcome, nil
}

// Save persists the current layout. A Save issued while another is running
// waits for it; the running saver then saves once more so the waiter's edits
// are included, and every waiter receives the final outcome. A failed save
// leaves the session dirty and returns a retryable error.
func (s *LayoutSession) Save(ctx context.Context) error {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.saving {
		s.saveRequested = true
		done := make(chan error, 1)
		s.saveWaiters = append(s.saveWaiters, done)
		s.mu.Unlock()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.state == StateReady {
		s.mu.Unlock()
		return nil
	}
	s.saving = true
	s.mu.Unlock()

	var err error
	for {
		s.mu.Lock()
		s.saveRequested = false
		s.state = StateSaving
		snapshot := s.layoutLocked()
		rev := s.revision
		snapTime := s.now().UnixMilli()
		s.mu.Unlock()

		var updatedAt time.Time
		updatedAt, err = s.backend.SaveLayout(ctx, snapshot)

		s.mu.Lock()
		if err != nil {
			s.state = StateDirty
			break
		}
		s.lastUpdated = updatedAt
		var synced []string
		for id, edited := range s.editedAt {
			if edited <= rev {
				synced = append(synced, id)
				delete(s.editedAt, id)
			}
		}
		s.positions.MarkPositionsAsSynced(synced, snapTime)
		if s.revision == rev {
			s.state = StateReady
			break
		}
		s.state = StateDirty
		if !s.saveRequested {
			break
		}
		s.mu.Unlock()
	}
	waiters := s.saveWaiters
	s.saveWaiters = nil
	s.saving = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("layout save failed", zap.Error(err))
		err = retryableError("SAVE_FAILED", "Layout could not be saved", err)
	} else {
		s.logger.Info("layout saved", zap.Int("panel_count", len(s.Panels())))
	}
	for _, w := range waiters {
		w <- err
	}
	s.flush(ctx)
	return err
}

func (s *LayoutSession) writableLocked() error {
	if !s.loaded || s.state == StateLoading {
		return ErrSessionNotReady
	}
	return nil
}

func (s *LayoutSession) find(id string) int {
	for i, p := range s.panels {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *LayoutSession) touchLocked(ids ...string) {
	s.revision++
	for _, id := range ids {
		s.editedAt[id] = s.revision
	}
	if s.state != StateSaving {
		s.state = StateDirty
	}
}

func (s *LayoutSession) cachePositionLocked(p store.Panel, at time.Time) {
	s.positions.UpdateCachedPosition(p.ID, positions.CachedPosition{
		X:         p.X,
		Y:         p.Y,
		Rotation:  p.Rotation,
		Timestamp: at.UnixMilli(),
	}, false)
}

func (s *LayoutSession) containerLocked() *geometry.Bounds {
	if s.width <= 0 || s.height <= 0 {
		return nil
	}
	return &geometry.Bounds{Width: s.width, Height: s.height}
}

func (s *LayoutSession) constraintsLocked(p store.Panel) geometry.Constraints {
	c := geometry.Constraints{
		MinWidth:        s.settings.MinWidth,
		MinHeight:       s.settings.MinHeight,
		MaxWidth:        s.settings.MaxWidth,
		MaxHeight:       s.settings.MaxHeight,
		GridSize:        s.settings.GridSize,
		SnapToNeighbors: s.settings.SnapToNeighbor,
		SnapThreshold:   s.settings.SnapThreshold,
		Neighbors:       s.index,
		Lookup: func(id string) (geometry.Bounds, bool) {
			b, ok := s.indexed[id]
			return b, ok
		},
		ExcludeID: p.ID,
		Container: s.containerLocked(),
	}
	if p.Shape == store.ShapeCircle {
		c.LockAspect = true
		c.AspectRatio = 1
	}
	return c
}

func (s *LayoutSession) rebuildIndexLocked() {
	if s.gesture != nil {
		s.staleIndex = true
		return
	}
	s.index.Clear()
	s.indexed = make(map[string]geometry.Bounds, len(s.panels))
	for _, p := range s.panels {
		b := p.Bounds()
		s.index.Insert(p.ID, b.X, b.Y, b.Width, b.Height)
		s.indexed[p.ID] = b
	}
	s.staleIndex = false
}

func (s *LayoutSession) reindexLocked(id string, b geometry.Bounds) {
	if s.gesture != nil {
		s.staleIndex = true
		return
	}
	if old, ok := s.indexed[id]; ok {
		s.index.Remove(id, old.X, old.Y, old.Width, old.Height)
	}
	s.index.Insert(id, b.X, b.Y, b.Width, b.Height)
	s.indexed[id] = b
}

func (s *LayoutSession) layoutLocked() store.Layout {
	return store.Layout{
		ProjectID:   s.projectID,
		Panels:      clonePanels(s.panels),
		Patches:     append([]store.Patch{}, s.patches...),
		Width:       s.width,
		Height:      s.height,
		Scale:       s.scale,
		LastUpdated: s.lastUpdated,
	}
}

func (s *LayoutSession) flush(ctx context.Context) {
	if err := s.positions.Flush(ctx); err != nil {
		s.logger.Warn("position cache flush failed", zap.Error(err))
	}
}

func clonePanels(panels []store.Panel) []store.Panel {
	out := make([]store.Panel, len(panels))
	for i, p := range panels {
		if p.PanelNumber != nil {
			v := *p.PanelNumber
			p.PanelNumber = &v
		}
		if p.RollNumber != nil {
			v := *p.RollNumber
			p.RollNumber = &v
		}
		out[i] = p
	}
	return out
}
